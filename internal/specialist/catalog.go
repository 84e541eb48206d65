// Package specialist holds the catalog of specialist definitions: titles,
// system prompts and iteration budgets.
package specialist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// DefaultBudget applies to types with no budget of their own.
const DefaultBudget = 15

// Definition describes one specialist type.
type Definition struct {
	Type models.SpecialistType `yaml:"type"`
	// Title is the short subtask title the team lead uses.
	Title string `yaml:"title"`
	// Focus is one line describing what the specialist does.
	Focus string `yaml:"focus"`
	// Prompt is the role-specific part of the system prompt.
	Prompt string `yaml:"prompt"`
	// Budget is the iteration budget.
	Budget int `yaml:"budget"`
}

// Catalog is an immutable set of definitions.
type Catalog struct {
	defs map[models.SpecialistType]Definition
}

// builtin is the default catalog.
var builtin = []Definition{
	{
		Type:   models.SpecialistBugfix,
		Title:  "Find and fix root cause",
		Focus:  "Reproduce the defect, locate its root cause and fix it with a regression test.",
		Prompt: "You are a debugging specialist. Reproduce the problem first, then fix the root cause rather than the symptom. Add a test that fails without your fix.",
		Budget: 15,
	},
	{
		Type:   models.SpecialistFeatureBuilder,
		Title:  "Implement the feature",
		Focus:  "Build the requested functionality end to end.",
		Prompt: "You are a feature specialist. Implement the requested behaviour completely, following the conventions already used in the codebase.",
		Budget: 50,
	},
	{
		Type:   models.SpecialistTestWriter,
		Title:  "Write comprehensive tests",
		Focus:  "Cover the change with focused unit and integration tests.",
		Prompt: "You are a testing specialist. Write tests that pin down the intended behaviour, including edge cases and failure paths. Do not change production code unless a test exposes a bug.",
		Budget: 15,
	},
	{
		Type:   models.SpecialistCodeQuality,
		Title:  "Review and improve code quality",
		Focus:  "Refactor for clarity and remove duplication without changing behaviour.",
		Prompt: "You are a code quality specialist. Improve structure and naming, remove duplication and dead code, and keep behaviour identical.",
		Budget: 20,
	},
	{
		Type:   models.SpecialistAdvisor,
		Title:  "Assess approach and risks",
		Focus:  "Review the plan and point out risks and better alternatives.",
		Prompt: "You are an advisory specialist. Study the task and the code, then write down risks, trade-offs and a recommended approach. Only touch code to add notes.",
		Budget: 10,
	},
	{
		Type:   models.SpecialistDeployment,
		Title:  "Prepare deployment",
		Focus:  "Update build and release configuration for the change.",
		Prompt: "You are a deployment specialist. Make the change shippable: build scripts, configuration and release notes.",
		Budget: 10,
	},
	{
		Type:   models.SpecialistMigration,
		Title:  "Plan and apply migration",
		Focus:  "Write safe, reversible data or schema migrations.",
		Prompt: "You are a migration specialist. Write migrations that can be rolled back and never lose data.",
		Budget: 15,
	},
}

// Builtin returns the default catalog.
func Builtin() *Catalog {
	c := &Catalog{defs: make(map[models.SpecialistType]Definition, len(builtin))}
	for _, d := range builtin {
		c.defs[d.Type] = d
	}
	return c
}

type catalogFile struct {
	Specialists []Definition `yaml:"specialists"`
}

// Load reads a YAML file of definitions and layers it over the builtin
// catalog. Fields left empty in the file keep their builtin values.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := Builtin()
	for i, d := range f.Specialists {
		if d.Type == "" {
			return nil, fmt.Errorf("parse catalog: entry %d has no type", i)
		}
		if d.Budget < 0 {
			return nil, fmt.Errorf("parse catalog: %s has negative budget", d.Type)
		}
		c.defs[d.Type] = merge(c.defs[d.Type], d)
	}
	return c, nil
}

func merge(base, over Definition) Definition {
	base.Type = over.Type
	if over.Title != "" {
		base.Title = over.Title
	}
	if over.Focus != "" {
		base.Focus = over.Focus
	}
	if over.Prompt != "" {
		base.Prompt = over.Prompt
	}
	if over.Budget > 0 {
		base.Budget = over.Budget
	}
	return base
}

// WithBudgets returns a copy whose budgets are replaced by the positive
// entries of budgets.
func (c *Catalog) WithBudgets(budgets map[string]int) *Catalog {
	out := &Catalog{defs: make(map[models.SpecialistType]Definition, len(c.defs))}
	for k, d := range c.defs {
		if b, ok := budgets[string(k)]; ok && b > 0 {
			d.Budget = b
		}
		out.defs[k] = d
	}
	return out
}

// Get returns the definition for t. Unknown types get a generic definition
// with the default budget and ok=false.
func (c *Catalog) Get(t models.SpecialistType) (Definition, bool) {
	if d, ok := c.defs[t]; ok {
		return d, true
	}
	return Definition{
		Type:   t,
		Title:  "Complete the " + string(t) + " work",
		Prompt: "You are a software engineering specialist.",
		Budget: DefaultBudget,
	}, false
}

// Budget returns the iteration budget for t.
func (c *Catalog) Budget(t models.SpecialistType) int {
	d, _ := c.Get(t)
	if d.Budget <= 0 {
		return DefaultBudget
	}
	return d.Budget
}

// Types lists every defined type, sorted.
func (c *Catalog) Types() []models.SpecialistType {
	out := make([]models.SpecialistType, 0, len(c.defs))
	for t := range c.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SystemPrompt is the full system prompt for a definition.
func (d Definition) SystemPrompt(completionMarker, blockedMarker string) string {
	var b strings.Builder
	b.WriteString(d.Prompt)
	b.WriteString("\n\nYou are one of several specialists working on the same task in a shared working tree. ")
	b.WriteString("Stay within your role and do not undo changes made by others.\n\n")
	fmt.Fprintf(&b, "When your part is finished and verified, end your reply with %s on its own line.\n", completionMarker)
	fmt.Fprintf(&b, "If you cannot proceed, end your reply with %s followed by the reason.\n", blockedMarker)
	return b.String()
}
