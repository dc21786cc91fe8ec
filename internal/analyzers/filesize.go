package analyzers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/plugin"
	"github.com/codesweep/codesweep/internal/scan"
)

// DefaultLineThreshold is the line count above which LongFileAnalyzer
// reports a file as an improvement candidate.
const DefaultLineThreshold = 400

// LongFileAnalyzer reports files whose line count suggests they have
// accumulated too many responsibilities to review comfortably.
type LongFileAnalyzer struct {
	threshold int
}

// NewLongFileAnalyzer creates the file length analyzer with the default
// threshold.
func NewLongFileAnalyzer() plugin.Plugin {
	return &LongFileAnalyzer{threshold: DefaultLineThreshold}
}

// Identifier implements plugin.Plugin.
func (l *LongFileAnalyzer) Identifier() string {
	return "long-file"
}

// Version implements plugin.Plugin.
func (l *LongFileAnalyzer) Version() string {
	return "1.0.0"
}

// SupportedLanguages implements plugin.Plugin.
func (l *LongFileAnalyzer) SupportedLanguages() []string {
	return nil // any language
}

// Speed implements plugin.Plugin.
func (l *LongFileAnalyzer) Speed() plugin.Speed {
	return plugin.SpeedFast
}

// Run implements plugin.Plugin.
func (l *LongFileAnalyzer) Run(ctx context.Context, files []scan.SourceFile, _ scan.Config) ([]finding.Finding, error) {
	var issues []finding.Finding
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines := countLines(file.Content)
		if lines <= l.threshold {
			continue
		}
		issues = append(issues, finding.Finding{
			Kind:        finding.KindImprovement,
			Severity:    finding.SeverityMedium,
			Description: fmt.Sprintf("file is %d lines long (threshold %d)", lines, l.threshold),
			File:        file.Path,
			Line:        0, // whole file
			Action:      "Split the file into smaller, focused units",
		})
	}
	return issues, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
