package ledger

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func TestLedger_RecordAndBreakdown(t *testing.T) {
	l := New(WithPricing(map[string]ModelPricing{
		"m": {InputPerMillion: 1, OutputPerMillion: 2},
	}))

	cost, err := l.Record(PhaseAnalysis, "", models.Usage{InputTokens: 1_000_000, Model: "m"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cost, 1e-9)

	_, err = l.Record(PhaseSpecialist, "bugfix", models.Usage{OutputTokens: 500_000, Model: "m"})
	require.NoError(t, err)
	require.NoError(t, l.RecordCost(PhaseSpecialist, "testwriter", models.Usage{InputTokens: 10}, 0.25))
	require.NoError(t, l.RecordCost(PhaseSynthesis, "", models.Usage{}, 0.5))

	b := l.Breakdown()
	assert.InDelta(t, 1.0, b.Analysis, 1e-9)
	assert.InDelta(t, 1.0, b.Specialists["bugfix"], 1e-9)
	assert.InDelta(t, 0.25, b.Specialists["testwriter"], 1e-9)
	assert.InDelta(t, 0.5, b.Synthesis, 1e-9)
	assert.InDelta(t, 2.75, b.Total, 1e-9)
	assert.Equal(t, int64(1_500_010), b.Tokens)

	e := l.Specialist("bugfix")
	assert.Equal(t, 1, e.Calls)
	assert.Equal(t, int64(500_000), e.Usage.OutputTokens)
	assert.Zero(t, l.Specialist("missing").Calls)
}

func TestLedger_Errors(t *testing.T) {
	l := New()
	assert.Error(t, l.RecordCost(PhaseSpecialist, "", models.Usage{}, 1))
	assert.Error(t, l.RecordCost("deploy", "", models.Usage{}, 1))
	assert.Error(t, l.RecordCost(PhaseAnalysis, "", models.Usage{}, -1))
	assert.Zero(t, l.Breakdown().Total)
}

func TestLedger_Concurrent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordCost(PhaseSpecialist, "bugfix", models.Usage{InputTokens: 1}, 0.01)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Specialist("bugfix").Calls)
	assert.InDelta(t, 0.5, l.Breakdown().Total, 1e-9)
}

func TestLedger_Metrics(t *testing.T) {
	m := NewMetrics()
	assert.Same(t, m, NewMetrics())

	before := testutil.ToFloat64(m.CostUSD.WithLabelValues("synthesis"))
	l := New(WithMetrics(m))
	require.NoError(t, l.RecordCost(PhaseSynthesis, "", models.Usage{InputTokens: 3, OutputTokens: 4}, 0.75))

	assert.InDelta(t, before+0.75, testutil.ToFloat64(m.CostUSD.WithLabelValues("synthesis")), 1e-9)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, DefaultModelPricing["claude-sonnet-4-20250514"],
		Lookup(DefaultModelPricing, "us.anthropic.claude-sonnet-4-20250514-v1:0"))
	assert.Equal(t, FallbackPricing, Lookup(DefaultModelPricing, "unknown"))
	assert.InDelta(t, 18.0, FallbackPricing.Cost(1_000_000, 1_000_000), 1e-9)
}
