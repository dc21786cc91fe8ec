package report

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesweep/codesweep/internal/finding"
)

func debtFinding(file string, line int, desc, source string, sev finding.Severity) finding.Finding {
	return finding.Finding{
		Kind:        finding.KindDebt,
		Severity:    sev,
		Description: desc,
		File:        file,
		Line:        line,
		Action:      "fix it",
		Sources:     []string{source},
	}
}

func TestAggregateDeduplicatesAcrossSources(t *testing.T) {
	// Two plugins report the identical finding; only source differs.
	a := debtFinding("a.py", 10, "unused import os", "ruff-like", finding.SeverityLow)
	b := debtFinding("a.py", 10, "Unused  import os", "lint-two", finding.SeverityLow)

	r := Aggregate([]finding.Finding{a, b})

	require.Len(t, r.Debt, 1)
	assert.Equal(t, finding.SeverityLow, r.Debt[0].Severity)
	assert.ElementsMatch(t, []string{"ruff-like", "lint-two"}, r.Debt[0].Sources)
	assert.Equal(t, 1, r.TotalIssues)
	assert.Zero(t, r.HighSeverityCount)
}

func TestAggregateKeepsMaxSeverity(t *testing.T) {
	a := debtFinding("a.py", 10, "risky call", "p1", finding.SeverityLow)
	b := debtFinding("a.py", 10, "risky call", "p2", finding.SeverityHigh)

	r := Aggregate([]finding.Finding{a, b})

	require.Len(t, r.Debt, 1)
	assert.Equal(t, finding.SeverityHigh, r.Debt[0].Severity)
	assert.Equal(t, 1, r.HighSeverityCount)
}

func TestAggregateBuckets(t *testing.T) {
	findings := []finding.Finding{
		debtFinding("a.py", 1, "debt one", "p", finding.SeverityLow),
		{Kind: finding.KindImprovement, Severity: finding.SeverityMedium, Description: "speed up loop",
			File: "b.py", Line: 2, Action: "optimize"},
		{Kind: finding.KindCritical, Severity: finding.SeverityHigh, Description: "auth bypass",
			File: "c.py", Line: 3, Action: "patch"},
		{Kind: finding.KindDocumentation, Severity: finding.SeverityLow, Description: "readme stub",
			File: "README.md", Line: 0},
		{Kind: finding.KindOther, Severity: finding.SeverityLow, Description: "odd pattern",
			File: "d.py", Line: 4},
	}

	r := Aggregate(findings)

	assert.Len(t, r.Documentation, 1)
	assert.Len(t, r.Improvement, 1)
	assert.Len(t, r.Critical, 1)
	assert.Len(t, r.Debt, 2, "debt and other share the debt bucket")
	assert.Equal(t, 4, r.TotalIssues, "documentation is passthrough, not an issue")
	assert.Equal(t, 1, r.HighSeverityCount)
}

func TestAggregateDocumentationPassthrough(t *testing.T) {
	doc := finding.Finding{
		Kind: finding.KindDocumentation, Severity: finding.SeverityLow,
		Description: "generated readme", File: "README.md", Line: 0,
	}
	r := Aggregate([]finding.Finding{doc, doc})
	assert.Len(t, r.Documentation, 2, "documentation is not deduplicated")
}

func TestAggregateOrderIndependent(t *testing.T) {
	base := []finding.Finding{
		debtFinding("a.py", 10, "dup a", "p1", finding.SeverityLow),
		debtFinding("a.py", 10, "dup a", "p2", finding.SeverityMedium),
		debtFinding("b.py", 5, "other thing", "p1", finding.SeverityHigh),
		{Kind: finding.KindImprovement, Severity: finding.SeverityMedium, Description: "imp",
			File: "a.py", Line: 2, Action: "do"},
		{Kind: finding.KindCritical, Severity: finding.SeverityHigh, Description: "crit",
			File: "z.py", Line: 1, Action: "fix"},
	}

	want := Aggregate(base)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]finding.Finding, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Aggregate(shuffled)
		assert.Equal(t, want.Debt, got.Debt)
		assert.Equal(t, want.Improvement, got.Improvement)
		assert.Equal(t, want.Critical, got.Critical)
		assert.Equal(t, want.TotalIssues, got.TotalIssues)
		assert.Equal(t, want.HighSeverityCount, got.HighSeverityCount)
	}
}

func TestAggregateDeterministicOrdering(t *testing.T) {
	r := Aggregate([]finding.Finding{
		debtFinding("b.py", 1, "bbb", "p", finding.SeverityLow),
		debtFinding("a.py", 9, "low sev", "p", finding.SeverityLow),
		debtFinding("a.py", 9, "high sev entry", "p", finding.SeverityHigh),
		debtFinding("a.py", 2, "aaa", "p", finding.SeverityLow),
	})

	require.Len(t, r.Debt, 4)
	assert.Equal(t, "a.py", r.Debt[0].File)
	assert.Equal(t, 2, r.Debt[0].Line)
	// Same file and line: higher severity sorts first.
	assert.Equal(t, finding.SeverityHigh, r.Debt[1].Severity)
	assert.Equal(t, finding.SeverityLow, r.Debt[2].Severity)
	assert.Equal(t, "b.py", r.Debt[3].File)
}

func TestComplete(t *testing.T) {
	r := &Report{PluginStatuses: []PluginStatus{{Plugin: "todo", State: StateOK}}}
	assert.True(t, r.Complete())

	r.PluginStatuses = append(r.PluginStatuses, PluginStatus{Plugin: "secrets", State: StateFailed})
	assert.False(t, r.Complete())

	r = &Report{BatchStatuses: []BatchStatus{{Batch: 0, State: StateCancelled}}}
	assert.False(t, r.Complete())
}
