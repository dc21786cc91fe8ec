// Package scan defines scan requests and the configuration resolver that
// turns a raw mode string into a concrete, validated plugin selection.
package scan

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how thorough a scan is.
type Mode string

const (
	// ModeQuick runs only the fast static plugins, no LLM stage.
	ModeQuick Mode = "quick"

	// ModeDeep runs every registered static plugin and appends the
	// LLM explain/fix stage.
	ModeDeep Mode = "deep"
)

// ExecutionStyle controls how plugin units of work are scheduled.
type ExecutionStyle string

const (
	// ExecutionParallel runs plugin units concurrently under a bounded
	// worker pool. This is the default.
	ExecutionParallel ExecutionStyle = "parallel"

	// ExecutionSynchronous runs plugin units one at a time in resolution
	// order. Used for deterministic testing and debugging.
	ExecutionSynchronous ExecutionStyle = "synchronous"
)

// ErrInvalidConfig is returned when a scan configuration cannot be
// resolved: unknown mode, or a tool selection naming an unregistered
// plugin. It is always surfaced before any work is scheduled.
var ErrInvalidConfig = errors.New("invalid scan configuration")

// Config is a fully resolved scan configuration. The engine only ever
// consumes a Config produced by ResolveConfig; callers never build one
// field by field.
type Config struct {
	Mode           Mode
	Tools          []string // static plugin identifiers, resolution order
	ExecutionStyle ExecutionStyle
	LLMEnabled     bool

	// LLMBatchSize caps how many findings go into one LLM call.
	// Only meaningful when LLMEnabled is true.
	LLMBatchSize int

	// MaxWorkers bounds concurrent plugin units when ExecutionStyle
	// is parallel.
	MaxWorkers int

	// MaxAttempts is the total attempt cap per plugin unit (initial
	// run plus retries). InitialBackoff seeds the exponential backoff
	// between attempts.
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Defaults applied by ResolveConfig when the caller leaves knobs unset.
const (
	DefaultLLMBatchSize   = 10
	DefaultMaxWorkers     = 4
	DefaultMaxAttempts    = 3 // 1 initial + 2 retries
	DefaultInitialBackoff = 500 * time.Millisecond
)

// PluginCatalog is the view of the plugin registry the resolver needs.
// It is implemented by plugin.Registry; scan stays import-free of the
// plugin package to keep the dependency direction one-way.
type PluginCatalog interface {
	// StaticIdentifiers returns all registered static plugin
	// identifiers in registration order.
	StaticIdentifiers() []string

	// FastIdentifiers returns the subset of static plugins flagged as
	// fast, in registration order. These form the quick-mode default.
	FastIdentifiers() []string

	// Has reports whether a plugin with the given identifier is
	// registered.
	Has(identifier string) bool
}

// ResolveConfig validates a raw mode string and optional tool-selection
// override against the registered plugins and produces a Config.
//
// Quick mode defaults to the fast static plugins only; deep mode defaults
// to all static plugins plus the LLM stage. An override listing an
// unregistered plugin is rejected with ErrInvalidConfig naming it.
func ResolveConfig(rawMode string, toolOverride []string, catalog PluginCatalog) (Config, error) {
	var mode Mode
	switch Mode(rawMode) {
	case ModeQuick:
		mode = ModeQuick
	case ModeDeep:
		mode = ModeDeep
	default:
		return Config{}, fmt.Errorf("%w: unknown scan mode %q (want %q or %q)",
			ErrInvalidConfig, rawMode, ModeQuick, ModeDeep)
	}

	var tools []string
	if len(toolOverride) > 0 {
		for _, id := range toolOverride {
			if !catalog.Has(id) {
				return Config{}, fmt.Errorf("%w: tool selection references unregistered plugin %q",
					ErrInvalidConfig, id)
			}
		}
		tools = append(tools, toolOverride...)
	} else if mode == ModeQuick {
		tools = catalog.FastIdentifiers()
	} else {
		tools = catalog.StaticIdentifiers()
	}

	return Config{
		Mode:           mode,
		Tools:          tools,
		ExecutionStyle: ExecutionParallel,
		LLMEnabled:     mode == ModeDeep,
		LLMBatchSize:   DefaultLLMBatchSize,
		MaxWorkers:     DefaultMaxWorkers,
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
	}, nil
}
