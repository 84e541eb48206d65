// Package ledger accumulates model spend per phase and per specialist.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Phase is the orchestration stage a cost is attributed to.
type Phase string

const (
	PhaseAnalysis   Phase = "analysis"
	PhaseSpecialist Phase = "specialist"
	PhaseSynthesis  Phase = "synthesis"
)

// Entry is the running total for one phase or specialist.
type Entry struct {
	Usage models.Usage `json:"usage"`
	Cost  float64      `json:"cost"`
	Calls int          `json:"calls"`
}

func (e *Entry) add(u models.Usage, cost float64) {
	e.Usage = e.Usage.Add(u)
	e.Cost += cost
	e.Calls++
}

// Breakdown is a point-in-time copy of the ledger.
type Breakdown struct {
	Analysis    float64            `json:"analysis"`
	Specialists map[string]float64 `json:"specialists"`
	Synthesis   float64            `json:"synthesis"`
	Total       float64            `json:"total"`
	Tokens      int64              `json:"tokens"`
}

// Ledger is safe for concurrent use by many specialists. Create one per
// orchestration and pass it to every component that spends.
type Ledger struct {
	pricing map[string]ModelPricing
	metrics *Metrics

	mu          sync.Mutex
	analysis    Entry
	synthesis   Entry
	specialists map[string]*Entry
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPricing overrides the pricing table.
func WithPricing(p map[string]ModelPricing) Option {
	return func(l *Ledger) { l.pricing = p }
}

// WithMetrics mirrors every record into Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		pricing:     DefaultModelPricing,
		specialists: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record prices u with the model pricing table and adds it to the ledger.
// The specialist name is required for PhaseSpecialist and ignored otherwise.
// It returns the cost of this record.
func (l *Ledger) Record(phase Phase, specialist string, u models.Usage) (float64, error) {
	cost := Lookup(l.pricing, u.Model).Cost(u.InputTokens, u.OutputTokens)
	return cost, l.RecordCost(phase, specialist, u, cost)
}

// RecordCost adds a usage whose dollar cost is already known, as reported by
// the claude CLI.
func (l *Ledger) RecordCost(phase Phase, specialist string, u models.Usage, cost float64) error {
	if cost < 0 {
		return fmt.Errorf("record cost: negative cost %f", cost)
	}

	l.mu.Lock()
	switch phase {
	case PhaseAnalysis:
		l.analysis.add(u, cost)
	case PhaseSynthesis:
		l.synthesis.add(u, cost)
	case PhaseSpecialist:
		if specialist == "" {
			l.mu.Unlock()
			return fmt.Errorf("record cost: specialist name required for phase %s", phase)
		}
		e, ok := l.specialists[specialist]
		if !ok {
			e = &Entry{}
			l.specialists[specialist] = e
		}
		e.add(u, cost)
	default:
		l.mu.Unlock()
		return fmt.Errorf("record cost: unknown phase %q", phase)
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.CostUSD.WithLabelValues(string(phase)).Add(cost)
		l.metrics.Tokens.WithLabelValues(string(phase), "input").Add(float64(u.InputTokens))
		l.metrics.Tokens.WithLabelValues(string(phase), "output").Add(float64(u.OutputTokens))
	}
	return nil
}

// Specialist returns the running total for one specialist.
func (l *Ledger) Specialist(name string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.specialists[name]; ok {
		return *e
	}
	return Entry{}
}

// Breakdown returns per-phase costs and the total.
func (l *Ledger) Breakdown() Breakdown {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := Breakdown{
		Analysis:    l.analysis.Cost,
		Synthesis:   l.synthesis.Cost,
		Specialists: make(map[string]float64, len(l.specialists)),
		Tokens:      l.analysis.Usage.Total() + l.synthesis.Usage.Total(),
	}
	b.Total = b.Analysis + b.Synthesis
	for _, name := range sortedKeys(l.specialists) {
		e := l.specialists[name]
		b.Specialists[name] = e.Cost
		b.Total += e.Cost
		b.Tokens += e.Usage.Total()
	}
	return b
}

func sortedKeys(m map[string]*Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
