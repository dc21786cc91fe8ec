package analyzers

import (
	"github.com/codesweep/codesweep/internal/plugin"
)

// RegisterAll registers the built-in analyzers with the given registry.
// The CLI calls this once at startup to set up the full plugin suite.
func RegisterAll(registry *plugin.Registry) error {
	plugins := []plugin.Plugin{
		NewTodoScanner(),
		NewLongFileAnalyzer(),
		NewDocAuditor(),
		NewSecretScanner(),
	}

	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	return nil
}
