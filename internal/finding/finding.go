// Package finding defines the normalized result type shared by every
// analysis plugin, along with the fingerprinting and merge rules used
// for deduplication.
package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Kind classifies a finding into one of the report buckets.
type Kind string

const (
	KindDocumentation Kind = "documentation"
	KindDebt          Kind = "debt"
	KindImprovement   Kind = "improvement"
	KindCritical      Kind = "critical"
	KindOther         Kind = "other"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDocumentation, KindDebt, KindImprovement, KindCritical, KindOther:
		return true
	}
	return false
}

// Severity indicates how urgent a finding is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns a comparable weight for severity merging. Higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Finding is one normalized issue produced by a plugin.
//
// Line is 1-based; 0 means the finding applies to the whole file.
// Action carries the improvement suggestion for debt/improvement findings
// and the remediation steps for critical findings.
type Finding struct {
	Kind        Kind     `json:"kind"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Action      string   `json:"action,omitempty"`
	Reference   string   `json:"reference,omitempty"`

	// Sources lists the identifiers of every plugin that reported this
	// finding. Merging duplicates unions this list.
	Sources []string `json:"sources,omitempty"`

	// Explanation and ProposedFix are filled in by the LLM batch stage.
	// They are annotations: they never participate in the dedup key.
	Explanation string `json:"explanation,omitempty"`
	ProposedFix string `json:"proposed_fix,omitempty"`
}

// Validate checks structural invariants before a finding enters the pipeline.
// Critical findings are constrained to high severity; debt, improvement and
// critical findings must carry an action (suggestion or remediation).
func (f *Finding) Validate() error {
	if !f.Kind.Valid() {
		return fmt.Errorf("unknown finding kind %q", f.Kind)
	}
	if !f.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", f.Severity)
	}
	if f.Kind == KindCritical && f.Severity != SeverityHigh {
		return fmt.Errorf("critical finding in %s must have high severity (got %q)", f.File, f.Severity)
	}
	if f.Description == "" {
		return fmt.Errorf("finding in %s has no description", f.File)
	}
	if f.File == "" {
		return fmt.Errorf("finding %q has no file path", f.Description)
	}
	if f.Line < 0 {
		return fmt.Errorf("finding in %s has negative line %d", f.File, f.Line)
	}
	switch f.Kind {
	case KindDebt, KindImprovement:
		if f.Action == "" {
			return fmt.Errorf("%s finding in %s must include a suggestion", f.Kind, f.File)
		}
	case KindCritical:
		if f.Action == "" {
			return fmt.Errorf("critical finding in %s must include remediation steps", f.File)
		}
	}
	return nil
}

// Fingerprint returns the stable dedup key for a finding:
// kind, file, line, and a digest of the normalized description.
// Two findings with the same fingerprint are the same issue regardless
// of which plugins reported them.
func (f *Finding) Fingerprint() string {
	digest := sha256.Sum256([]byte(normalizeDescription(f.Description)))
	return fmt.Sprintf("%s|%s|%d|%s", f.Kind, f.File, f.Line, hex.EncodeToString(digest[:]))
}

// normalizeDescription lowercases the description and collapses every run
// of whitespace to a single space, so cosmetic formatting differences
// between plugins do not defeat deduplication.
func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Merge folds other into f. Both findings must share a fingerprint; the
// caller is responsible for checking that. The merged finding keeps the
// highest severity, unions sources and references, and keeps the first
// non-empty action and annotations.
func (f *Finding) Merge(other Finding) {
	if other.Severity.Rank() > f.Severity.Rank() {
		f.Severity = other.Severity
	}
	for _, src := range other.Sources {
		if !containsString(f.Sources, src) {
			f.Sources = append(f.Sources, src)
		}
	}
	if f.Reference == "" {
		f.Reference = other.Reference
	}
	if f.Action == "" {
		f.Action = other.Action
	}
	if f.Explanation == "" {
		f.Explanation = other.Explanation
	}
	if f.ProposedFix == "" {
		f.ProposedFix = other.ProposedFix
	}
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
