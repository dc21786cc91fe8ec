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

// SecretScanner detects hardcoded credentials: API keys, cloud access
// keys, passwords, tokens, and private key material. Every hit is a
// critical finding with remediation steps.
type SecretScanner struct {
	patterns []credentialPattern
}

type credentialPattern struct {
	re    *regexp.Regexp
	label string
}

// NewSecretScanner creates the credential leak scanner.
func NewSecretScanner() plugin.Plugin {
	return &SecretScanner{patterns: compileCredentialPatterns()}
}

func compileCredentialPatterns() []credentialPattern {
	specs := []struct {
		expr  string
		label string
	}{
		{`(?i)api[_-]?key\s*[:=]\s*["'][^"']{20,}["']`, "API key"},
		{`(?i)aws[_-]?access[_-]?key[_-]?id\s*[:=]\s*["'][A-Z0-9]{20}["']`, "AWS access key ID"},
		{`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["'][A-Za-z0-9/+=]{40}["']`, "AWS secret access key"},
		{`(?i)secret\s*[:=]\s*["'][^"']{16,}["']`, "secret"},
		{`(?i)password\s*[:=]\s*["'][^"']{8,}["']`, "password"},
		{`(?i)token\s*[:=]\s*["'][^"']{20,}["']`, "token"},
		{`-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----`, "private key"},
	}
	patterns := make([]credentialPattern, 0, len(specs))
	for _, s := range specs {
		patterns = append(patterns, credentialPattern{
			re:    regexp.MustCompile(s.expr),
			label: s.label,
		})
	}
	return patterns
}

// Identifier implements plugin.Plugin.
func (s *SecretScanner) Identifier() string {
	return "secret-scanner"
}

// Version implements plugin.Plugin.
func (s *SecretScanner) Version() string {
	return "1.0.0"
}

// SupportedLanguages implements plugin.Plugin.
func (s *SecretScanner) SupportedLanguages() []string {
	return nil // any language
}

// Speed implements plugin.Plugin.
func (s *SecretScanner) Speed() plugin.Speed {
	return plugin.SpeedSlow
}

// Run implements plugin.Plugin.
func (s *SecretScanner) Run(ctx context.Context, files []scan.SourceFile, _ scan.Config) ([]finding.Finding, error) {
	var issues []finding.Finding
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, line := range strings.Split(string(file.Content), "\n") {
			for _, p := range s.patterns {
				if !p.re.MatchString(line) {
					continue
				}
				issues = append(issues, finding.Finding{
					Kind:        finding.KindCritical,
					Severity:    finding.SeverityHigh,
					Description: fmt.Sprintf("hardcoded %s detected", p.label),
					File:        file.Path,
					Line:        i + 1,
					Action:      "Move the credential to environment variables or a secret manager, then rotate it",
					Reference:   "https://owasp.org/Top10/A07_2021-Identification_and_Authentication_Failures/",
				})
				break // one finding per line is enough
			}
		}
	}
	return issues, nil
}
