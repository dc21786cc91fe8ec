package plugin

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/codesweep/codesweep/internal/scan"
)

// LLMStageIdentifier is the identifier the registry appends when a deep
// scan resolves its plugin list. It is a stage marker, not a registered
// plugin: the orchestrator dispatches it to the LLM batch stage.
const LLMStageIdentifier = "llm-explain"

// ErrDuplicateIdentifier is returned when registering a plugin whose
// identifier is already taken.
var ErrDuplicateIdentifier = errors.New("duplicate plugin identifier")

// Registry holds the registered static plugins. Resolution is
// deterministic: plugins come back in registration order.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register adds a plugin. The identifier must be unique and must not
// collide with the LLM stage marker; the version must be valid semver.
func (r *Registry) Register(p Plugin) error {
	id := p.Identifier()
	if id == "" {
		return fmt.Errorf("plugin has empty identifier")
	}
	if id == LLMStageIdentifier {
		return fmt.Errorf("identifier %q is reserved for the LLM stage", id)
	}
	if v := canonicalVersion(p.Version()); !semver.IsValid(v) {
		return fmt.Errorf("plugin %q has invalid version %q (want semver)", id, p.Version())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateIdentifier, id)
	}
	r.plugins[id] = p
	r.order = append(r.order, id)
	return nil
}

// Get returns a registered plugin by identifier.
func (r *Registry) Get(identifier string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[identifier]
	return p, ok
}

// Has reports whether a plugin is registered. Implements scan.PluginCatalog.
func (r *Registry) Has(identifier string) bool {
	_, ok := r.Get(identifier)
	return ok
}

// StaticIdentifiers returns all registered plugin identifiers in
// registration order. Implements scan.PluginCatalog.
func (r *Registry) StaticIdentifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FastIdentifiers returns the fast plugins in registration order.
// Implements scan.PluginCatalog.
func (r *Registry) FastIdentifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range r.order {
		if r.plugins[id].Speed() == SpeedFast {
			out = append(out, id)
		}
	}
	return out
}

// Resolve returns the ordered plugin identifiers for a scan: the
// configured static plugins filtered by language overlap with the
// detected hints, with the LLM stage marker appended last when the mode
// is deep. Resolution is deterministic for a given registry state.
//
// An empty hint set keeps every configured plugin, and a plugin that
// declares no languages is treated as language-agnostic; a scan of
// files the engine cannot classify should still run generic tooling.
func (r *Registry) Resolve(cfg scan.Config, languageHints []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var resolved []string
	for _, id := range cfg.Tools {
		p, ok := r.plugins[id]
		if !ok {
			// Unknown identifiers are rejected at config resolution.
			continue
		}
		supported := p.SupportedLanguages()
		if len(languageHints) == 0 || len(supported) == 0 || languagesOverlap(supported, languageHints) {
			resolved = append(resolved, id)
		}
	}

	if cfg.Mode == scan.ModeDeep && cfg.LLMEnabled {
		resolved = append(resolved, LLMStageIdentifier)
	}
	return resolved
}

func languagesOverlap(supported, hints []string) bool {
	for _, s := range supported {
		for _, h := range hints {
			if strings.EqualFold(s, h) {
				return true
			}
		}
	}
	return false
}

// canonicalVersion normalizes a version string to the "vX.Y.Z" form
// golang.org/x/mod/semver expects. Plugins may report either "1.2.0"
// or "v1.2.0".
func canonicalVersion(v string) string {
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
