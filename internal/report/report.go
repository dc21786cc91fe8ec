// Package report aggregates raw findings into the four-bucket scan
// report: deduplication, severity merging, bucketing, summary counts,
// and a deterministic total order.
package report

import (
	"sort"

	"github.com/codesweep/codesweep/internal/finding"
)

// PluginState describes how a plugin (or LLM batch) ended up.
type PluginState string

const (
	StateOK        PluginState = "ok"
	StateCached    PluginState = "cached"
	StateFailed    PluginState = "failed"
	StateCancelled PluginState = "cancelled"
)

// PluginStatus records one plugin's outcome for the status section.
// Callers must consult these before trusting an empty bucket: a failed
// or cancelled plugin means the report may be partial.
type PluginStatus struct {
	Plugin   string      `json:"plugin"`
	State    PluginState `json:"state"`
	Attempts int         `json:"attempts,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// BatchStatus records one LLM batch's outcome.
type BatchStatus struct {
	Batch    int    `json:"batch"`
	Findings int    `json:"findings"`
	State    PluginState `json:"state"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Report is the aggregated view of a scan.
type Report struct {
	// Documentation findings pass through without deduplication.
	Documentation []finding.Finding `json:"documentation"`

	Debt        []finding.Finding `json:"debt"`
	Improvement []finding.Finding `json:"improvement"`
	Critical    []finding.Finding `json:"critical"`

	TotalIssues       int `json:"total_issues"`
	HighSeverityCount int `json:"high_severity_count"`

	// Status carries the per-plugin and per-batch outcomes so partial
	// results are distinguishable from complete ones.
	PluginStatuses []PluginStatus `json:"plugin_statuses,omitempty"`
	BatchStatuses  []BatchStatus  `json:"batch_statuses,omitempty"`
}

// Aggregate merges, deduplicates and buckets a finding multiset. The
// result is the same for any permutation of the input: duplicates merge
// commutatively (max severity, source union) and every bucket is sorted
// by file path, then line, then severity descending, then fingerprint.
func Aggregate(findings []finding.Finding) *Report {
	r := &Report{}

	merged := make(map[string]*finding.Finding)
	var keys []string

	for _, f := range findings {
		if f.Kind == finding.KindDocumentation {
			r.Documentation = append(r.Documentation, f)
			continue
		}
		key := f.Fingerprint()
		if existing, ok := merged[key]; ok {
			existing.Merge(f)
			continue
		}
		copied := f
		merged[key] = &copied
		keys = append(keys, key)
	}

	for _, key := range keys {
		f := *merged[key]
		// Source order depends on merge order; sort it so the report is
		// identical for any input permutation.
		sort.Strings(f.Sources)
		switch f.Kind {
		case finding.KindImprovement:
			r.Improvement = append(r.Improvement, f)
		case finding.KindCritical:
			r.Critical = append(r.Critical, f)
		default:
			// debt and other land in the debt bucket
			r.Debt = append(r.Debt, f)
		}
	}

	sortBucket(r.Documentation)
	sortBucket(r.Debt)
	sortBucket(r.Improvement)
	sortBucket(r.Critical)

	r.TotalIssues = len(r.Debt) + len(r.Improvement) + len(r.Critical)
	for _, bucket := range [][]finding.Finding{r.Debt, r.Improvement, r.Critical} {
		for _, f := range bucket {
			if f.Severity == finding.SeverityHigh {
				r.HighSeverityCount++
			}
		}
	}
	return r
}

// sortBucket imposes the deterministic report order.
func sortBucket(bucket []finding.Finding) {
	sort.Slice(bucket, func(i, j int) bool {
		a, b := bucket[i], bucket[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Fingerprint() < b.Fingerprint()
	})
}

// Complete reports whether every plugin and batch finished cleanly.
func (r *Report) Complete() bool {
	for _, s := range r.PluginStatuses {
		if s.State == StateFailed || s.State == StateCancelled {
			return false
		}
	}
	for _, s := range r.BatchStatuses {
		if s.State == StateFailed || s.State == StateCancelled {
			return false
		}
	}
	return true
}
