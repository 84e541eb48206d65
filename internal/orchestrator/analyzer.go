package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Analyzer derives a TaskAnalysis from the task text. The returned usage is
// the provider spend, zero for local strategies.
type Analyzer interface {
	Analyze(ctx context.Context, description string) (*models.TaskAnalysis, models.Usage, error)
}

// HeuristicAnalyzer classifies a task with keyword rules.
type HeuristicAnalyzer struct {
	bugfixPatterns   []*regexp.Regexp
	featurePatterns  []*regexp.Regexp
	testPatterns     []*regexp.Regexp
	refactorPatterns []*regexp.Regexp
	advisorPatterns  []*regexp.Regexp
	crossRepoPattern []*regexp.Regexp
}

// NewHeuristicAnalyzer creates a HeuristicAnalyzer with default patterns.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{
		bugfixPatterns: compilePatterns([]string{
			`\b(fix|fixing|fixes)\b`,
			`\b(bug|bugs)\b`,
			`\b(debug|debugging)\b`,
			`\b(broken|not working|doesn't work|does not work)\b`,
			`\b(crash|crashes|panic|regression)\b`,
			`\b(error|errors|exception)\b`,
		}),
		featurePatterns: compilePatterns([]string{
			`\b(implement|implementing)\b`,
			`\b(add|adding|build|building|create|creating)\b`,
			`\b(new\s+)?(feature|endpoint|command|page|component)\b`,
			`\b(support for|integrate|integration)\b`,
		}),
		testPatterns: compilePatterns([]string{
			`\b(test|tests|testing)\b`,
			`\b(coverage|unit test|integration test|e2e)\b`,
		}),
		refactorPatterns: compilePatterns([]string{
			`\b(refactor|refactoring)\b`,
			`\b(restructure|reorganize|reorganise)\b`,
			`\b(clean\s*up|cleanup|simplify|lint)\b`,
			`\b(code quality|tech debt|technical debt)\b`,
		}),
		advisorPatterns: compilePatterns([]string{
			`\b(design|architecture|approach)\b`,
			`\b(should we|evaluate|assess|review|risk|risks)\b`,
			`\b(migrate|migration|upgrade)\b`,
		}),
		crossRepoPattern: compilePatterns([]string{
			`\b(cross[- ]repo|cross[- ]repository)\b`,
			`\b(multiple|several|many)\s+(repos|repositories|services)\b`,
		}),
	}
}

// compilePatterns compiles a slice of pattern strings into case-insensitive regexps.
func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if r, err := regexp.Compile("(?i)" + p); err == nil {
			compiled = append(compiled, r)
		}
	}
	return compiled
}

// countMatches counts how many patterns match the input.
func countMatches(input string, patterns []*regexp.Regexp) int {
	count := 0
	for _, p := range patterns {
		if p.MatchString(input) {
			count++
		}
	}
	return count
}

// Analyze never fails.
func (a *HeuristicAnalyzer) Analyze(_ context.Context, description string) (*models.TaskAnalysis, models.Usage, error) {
	return a.analyze(description), models.Usage{}, nil
}

func (a *HeuristicAnalyzer) analyze(description string) *models.TaskAnalysis {
	analysis := &models.TaskAnalysis{
		Challenges:             []string{},
		RecommendedSpecialists: []string{},
		SubtaskBreakdown:       splitItems(description),
		RiskFactors:            []string{},
		Source:                 models.AnalysisSourceHeuristic,
	}

	bugfix := countMatches(description, a.bugfixPatterns)
	feature := countMatches(description, a.featurePatterns)
	tests := countMatches(description, a.testPatterns)
	refactor := countMatches(description, a.refactorPatterns)
	advisor := countMatches(description, a.advisorPatterns)
	crossRepo := countMatches(description, a.crossRepoPattern) > 0

	recommend := func(t models.SpecialistType) {
		analysis.RecommendedSpecialists = append(analysis.RecommendedSpecialists, string(t))
	}
	if bugfix > 0 {
		recommend(models.SpecialistBugfix)
	}
	if feature > 0 && feature >= bugfix {
		recommend(models.SpecialistFeatureBuilder)
	}
	if tests > 0 {
		recommend(models.SpecialistTestWriter)
		analysis.Challenges = append(analysis.Challenges, "existing tests must keep passing")
	}
	if refactor > 0 {
		recommend(models.SpecialistCodeQuality)
		analysis.Challenges = append(analysis.Challenges, "behaviour must be preserved while refactoring")
	}
	if advisor > 0 || crossRepo {
		recommend(models.SpecialistAdvisor)
	}
	if crossRepo {
		analysis.Challenges = append(analysis.Challenges, "cross-repository coordination")
		analysis.RiskFactors = append(analysis.RiskFactors, "changes span more than one repository")
	}
	if tests == 0 && (bugfix > 0 || feature > 0) {
		analysis.RiskFactors = append(analysis.RiskFactors, "task does not mention tests")
	}
	if len(analysis.SubtaskBreakdown) >= 3 {
		analysis.RiskFactors = append(analysis.RiskFactors, "several independent changes in one task")
	}

	categories := len(analysis.RecommendedSpecialists)
	switch {
	case crossRepo || categories >= 3 || len(description) > 800:
		analysis.Complexity = models.ComplexityHigh
	case categories == 2 || len(analysis.SubtaskBreakdown) >= 3 || len(description) > 200:
		analysis.Complexity = models.ComplexityMedium
	default:
		analysis.Complexity = models.ComplexityLow
	}
	return analysis
}

var listItem = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(\S.*)$`)

// splitItems breaks a task into its listed items, or returns the first line.
func splitItems(description string) []string {
	var items []string
	for _, line := range strings.Split(description, "\n") {
		if m := listItem.FindStringSubmatch(line); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
		}
	}
	if len(items) > 0 {
		return items
	}
	first, _, _ := strings.Cut(strings.TrimSpace(description), "\n")
	if first == "" {
		return []string{}
	}
	return []string{truncate(first, 200)}
}

// JSONCompleter is the completion call the provider analyzer needs.
// api.Runner satisfies it.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, target any) (models.Usage, error)
}

const analysisSystemPrompt = `You are the team lead of a group of AI coding specialists.
Analyze the task and answer with a single JSON object and nothing else:
{
  "challenges": ["..."],
  "recommended_specialists": ["bugfix" | "featurebuilder" | "testwriter" | "codequality" | "advisor"],
  "subtask_breakdown": ["..."],
  "risk_factors": ["..."],
  "complexity": "low" | "medium" | "high"
}
Recommend only the specialists the task actually needs.`

// ProviderAnalyzer asks a completion provider for the analysis and falls back
// to heuristics on any failure.
type ProviderAnalyzer struct {
	completer JSONCompleter
	fallback  *HeuristicAnalyzer
	logger    *zap.Logger
}

// NewProviderAnalyzer creates a ProviderAnalyzer.
func NewProviderAnalyzer(completer JSONCompleter, logger *zap.Logger) *ProviderAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderAnalyzer{completer: completer, fallback: NewHeuristicAnalyzer(), logger: logger}
}

// Analyze returns the provider's analysis, or the heuristic one when the
// provider fails or answers with something unusable. It never returns an error.
func (a *ProviderAnalyzer) Analyze(ctx context.Context, description string) (*models.TaskAnalysis, models.Usage, error) {
	var out models.TaskAnalysis
	usage, err := a.completer.CompleteJSON(ctx, analysisSystemPrompt, "Task:\n"+description, &out)
	if err == nil {
		err = normalize(&out)
	}
	if err != nil {
		a.logger.Warn("provider analysis failed, using heuristics", zap.Error(err))
		return a.fallback.analyze(description), usage, nil
	}
	out.Source = models.AnalysisSourceProvider
	return &out, usage, nil
}

// normalize fills nil lists and checks complexity.
func normalize(a *models.TaskAnalysis) error {
	if a.Complexity == "" {
		a.Complexity = models.ComplexityMedium
	}
	a.Complexity = models.Complexity(strings.ToLower(string(a.Complexity)))
	if !a.Complexity.Valid() {
		return fmt.Errorf("analysis: unknown complexity %q", a.Complexity)
	}
	for _, list := range []*[]string{&a.Challenges, &a.RecommendedSpecialists, &a.SubtaskBreakdown, &a.RiskFactors} {
		if *list == nil {
			*list = []string{}
		}
	}
	return nil
}
