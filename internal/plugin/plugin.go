// Package plugin defines the static-analysis plugin contract and the
// registry that resolves a scan mode into an ordered plugin list.
package plugin

import (
	"context"

	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/scan"
)

// Speed is a coarse cost estimate used by quick-mode defaults.
type Speed string

const (
	// SpeedFast plugins are cheap enough to run on every scan and form
	// the quick-mode default tool set.
	SpeedFast Speed = "fast"

	// SpeedSlow plugins only run in deep mode by default.
	SpeedSlow Speed = "slow"
)

// Plugin is one static-analysis tool. Plugins own no state across calls:
// Run is a pure function of (files, config) and may fail independently
// of every other plugin.
type Plugin interface {
	// Identifier returns the unique name of this plugin, e.g. "secrets".
	Identifier() string

	// Version returns the plugin's semver version. It is part of the
	// cache key, so bumping it implicitly invalidates cached findings.
	Version() string

	// SupportedLanguages returns the language hints this plugin can
	// analyze, e.g. ["python", "go"]. An empty slice marks the plugin
	// as language-agnostic.
	SupportedLanguages() []string

	// Speed estimates the plugin's cost. Fast plugins are included in
	// quick-mode scans.
	Speed() Speed

	// Run analyzes the given files and returns normalized findings.
	Run(ctx context.Context, files []scan.SourceFile, cfg scan.Config) ([]finding.Finding, error)
}

// CacheKey returns the cache key component identifying a plugin at a
// specific version.
func CacheKey(p Plugin) string {
	return p.Identifier() + "@" + p.Version()
}
