// Package analyzers provides the built-in static analysis plugins that
// ship with the engine. Each analyzer implements plugin.Plugin and works
// purely on the in-memory file snapshot it is handed; the CLI layer owns
// all filesystem access.
package analyzers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/plugin"
	"github.com/codesweep/codesweep/internal/scan"
)

// TodoScanner flags deferred-work markers (TODO, FIXME, XXX, HACK) as
// technical debt. It is language-agnostic: the markers are a comment
// convention, not syntax.
type TodoScanner struct {
	marker *regexp.Regexp
}

// NewTodoScanner creates the deferred-work marker scanner.
func NewTodoScanner() plugin.Plugin {
	return &TodoScanner{
		marker: regexp.MustCompile(`\b(TODO|FIXME|XXX|HACK)\b[:\s]?(.*)`),
	}
}

// Identifier implements plugin.Plugin.
func (t *TodoScanner) Identifier() string {
	return "todo-scanner"
}

// Version implements plugin.Plugin.
func (t *TodoScanner) Version() string {
	return "1.0.0"
}

// SupportedLanguages implements plugin.Plugin.
func (t *TodoScanner) SupportedLanguages() []string {
	return nil // any language
}

// Speed implements plugin.Plugin.
func (t *TodoScanner) Speed() plugin.Speed {
	return plugin.SpeedFast
}

// Run implements plugin.Plugin.
func (t *TodoScanner) Run(ctx context.Context, files []scan.SourceFile, _ scan.Config) ([]finding.Finding, error) {
	var issues []finding.Finding
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, line := range strings.Split(string(file.Content), "\n") {
			m := t.marker.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			note := strings.TrimSpace(m[2])
			desc := fmt.Sprintf("%s marker left in code", m[1])
			if note != "" {
				desc = fmt.Sprintf("%s: %s", desc, note)
			}
			issues = append(issues, finding.Finding{
				Kind:        finding.KindDebt,
				Severity:    finding.SeverityLow,
				Description: desc,
				File:        file.Path,
				Line:        i + 1,
				Action:      "Resolve the deferred work or track it in the issue tracker",
			})
		}
	}
	return issues, nil
}
