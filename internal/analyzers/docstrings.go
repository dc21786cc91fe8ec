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

// DocAuditor reports public Python functions and classes that carry no
// docstring. Names with a leading underscore are treated as private and
// skipped.
type DocAuditor struct {
	def *regexp.Regexp
}

// NewDocAuditor creates the docstring coverage auditor.
func NewDocAuditor() plugin.Plugin {
	return &DocAuditor{
		def: regexp.MustCompile(`^(\s*)(?:async\s+)?(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	}
}

// Identifier implements plugin.Plugin.
func (d *DocAuditor) Identifier() string {
	return "doc-auditor"
}

// Version implements plugin.Plugin.
func (d *DocAuditor) Version() string {
	return "1.0.0"
}

// SupportedLanguages implements plugin.Plugin.
func (d *DocAuditor) SupportedLanguages() []string {
	return []string{"python"}
}

// Speed implements plugin.Plugin.
func (d *DocAuditor) Speed() plugin.Speed {
	return plugin.SpeedFast
}

// Run implements plugin.Plugin.
func (d *DocAuditor) Run(ctx context.Context, files []scan.SourceFile, _ scan.Config) ([]finding.Finding, error) {
	var issues []finding.Finding
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(file.Path, ".py") {
			continue
		}
		issues = append(issues, d.auditFile(file)...)
	}
	return issues, nil
}

func (d *DocAuditor) auditFile(file scan.SourceFile) []finding.Finding {
	var issues []finding.Finding
	lines := strings.Split(string(file.Content), "\n")
	for i, line := range lines {
		m := d.def.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		kind, name := m[2], m[3]
		if strings.HasPrefix(name, "_") {
			continue
		}
		if hasDocstring(lines, i) {
			continue
		}
		issues = append(issues, finding.Finding{
			Kind:        finding.KindDocumentation,
			Severity:    finding.SeverityLow,
			Description: fmt.Sprintf("public %s %q has no docstring", kind, name),
			File:        file.Path,
			Line:        i + 1,
		})
	}
	return issues
}

// hasDocstring looks at the first non-blank line after the def/class
// header for an opening string literal. Multi-line signatures are
// followed to the line that closes with a colon.
func hasDocstring(lines []string, defLine int) bool {
	i := defLine
	for i < len(lines) && !strings.HasSuffix(strings.TrimSpace(lines[i]), ":") {
		i++
	}
	for j := i + 1; j < len(lines); j++ {
		body := strings.TrimSpace(lines[j])
		if body == "" {
			continue
		}
		return strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`) ||
			strings.HasPrefix(body, `r"""`) || strings.HasPrefix(body, `f"""`)
	}
	return false
}
