// Package orchestrator schedules plugin execution across a codebase
// snapshot: cache partitioning, bounded-concurrency dispatch, per-plugin
// retry with exponential backoff, and the optional LLM annotation stage.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codesweep/codesweep/internal/cache"
	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/llm"
	"github.com/codesweep/codesweep/internal/plugin"
	"github.com/codesweep/codesweep/internal/report"
	"github.com/codesweep/codesweep/internal/scan"
)

// Orchestrator owns the lifetime of a scan request: it consults the
// cache, dispatches static plugins, collects raw findings, and hands
// the merged set to the LLM stage when the mode requires it. The cache
// store is the only state shared across concurrent scans.
type Orchestrator struct {
	registry *plugin.Registry
	store    cache.Store
	llmStage *llm.BatchStage
	log      *zap.SugaredLogger
}

// New creates an orchestrator. llmStage may be nil; deep scans then run
// without annotation and record no batch statuses.
func New(registry *plugin.Registry, store cache.Store, llmStage *llm.BatchStage, log *zap.SugaredLogger) *Orchestrator {
	if store == nil {
		store = cache.NewMemoryStore(0)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		llmStage: llmStage,
		log:      log,
	}
}

// Result is the raw output of a scan: the unordered finding stream plus
// the per-plugin and per-batch status summary. The report aggregator is
// responsible for deterministic ordering.
type Result struct {
	RequestID      string
	Findings       []finding.Finding
	PluginStatuses []report.PluginStatus
	BatchStatuses  []report.BatchStatus
	Languages      []string
	Duration       time.Duration
}

// Aggregate builds the final report from the raw result.
func (r *Result) Aggregate() *report.Report {
	rep := report.Aggregate(r.Findings)
	rep.PluginStatuses = r.PluginStatuses
	rep.BatchStatuses = r.BatchStatuses
	return rep
}

// unitOutcome is what one plugin unit of work settles to.
type unitOutcome struct {
	status   report.PluginStatus
	findings []finding.Finding
}

// Run executes a scan request. Per-plugin failures never abort the
// scan; only an invalid request errors out before any work starts.
func (o *Orchestrator) Run(ctx context.Context, req *scan.Request) (*Result, error) {
	if req == nil || len(req.Files) == 0 {
		return nil, fmt.Errorf("scan request has no files")
	}
	start := time.Now()

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	languages := scan.DetectLanguages(req.Files)
	resolved := o.registry.Resolve(req.Config, languages)

	var staticIDs []string
	runLLM := false
	for _, id := range resolved {
		if id == plugin.LLMStageIdentifier {
			runLLM = true
			continue
		}
		staticIDs = append(staticIDs, id)
	}

	o.log.Infow("scan started",
		"request", req.ID, "mode", req.Config.Mode, "files", len(req.Files),
		"plugins", staticIDs, "llm", runLLM)

	outcomes := make([]unitOutcome, len(staticIDs))

	if req.Config.ExecutionStyle == scan.ExecutionSynchronous {
		for i, id := range staticIDs {
			outcomes[i] = o.runUnit(ctx, req, id)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxWorkers(req.Config))
		for i, id := range staticIDs {
			g.Go(func() error {
				outcomes[i] = o.runUnit(gctx, req, id)
				return nil
			})
		}
		// Units never return errors; failures live in their status.
		_ = g.Wait()
	}

	result := &Result{
		RequestID: req.ID,
		Languages: languages,
	}
	for _, out := range outcomes {
		result.PluginStatuses = append(result.PluginStatuses, out.status)
		result.Findings = append(result.Findings, out.findings...)
	}

	if runLLM && o.llmStage != nil && len(result.Findings) > 0 {
		annotated, batchStatuses := o.llmStage.Explain(ctx, result.Findings, req.Config.LLMBatchSize)
		result.Findings = annotated
		result.BatchStatuses = batchStatuses
	}

	result.Duration = time.Since(start)
	o.log.Infow("scan finished",
		"request", req.ID, "findings", len(result.Findings), "duration", result.Duration)
	return result, nil
}

func maxWorkers(cfg scan.Config) int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return scan.DefaultMaxWorkers
}

// runUnit executes one plugin against the request: cache partition
// first, then the plugin itself on the pending files under the bounded
// retry policy, then the write-back of fresh findings.
func (o *Orchestrator) runUnit(ctx context.Context, req *scan.Request, pluginID string) unitOutcome {
	p, ok := o.registry.Get(pluginID)
	if !ok {
		return unitOutcome{status: report.PluginStatus{
			Plugin: pluginID,
			State:  report.StateFailed,
			Error:  "plugin not registered",
		}}
	}
	key := plugin.CacheKey(p)

	// Partition files into cached and pending for this plugin. A cache
	// read failure degrades to a miss and the file is recomputed.
	var cached []finding.Finding
	var pending []scan.SourceFile
	for _, f := range req.Files {
		hit, ok, err := o.store.Get(ctx, f.Path, f.ContentHash, key)
		if err != nil {
			o.log.Warnw("cache read failed, treating as miss",
				"plugin", pluginID, "file", f.Path, "error", err)
			pending = append(pending, f)
			continue
		}
		if ok {
			cached = append(cached, hit...)
		} else {
			pending = append(pending, f)
		}
	}

	if len(pending) == 0 {
		return unitOutcome{
			status:   report.PluginStatus{Plugin: pluginID, State: report.StateCached},
			findings: cached,
		}
	}

	fresh, attempts, err := o.runWithRetry(ctx, p, pending, req.Config)
	if err != nil {
		state := report.StateFailed
		if ctx.Err() != nil {
			state = report.StateCancelled
		}
		// Cached findings still count; only the pending partition is lost.
		return unitOutcome{
			status: report.PluginStatus{
				Plugin:   pluginID,
				State:    state,
				Attempts: attempts,
				Error:    err.Error(),
			},
			findings: cached,
		}
	}

	fresh = o.normalize(pluginID, fresh)
	o.writeBack(ctx, key, pending, fresh)

	return unitOutcome{
		status:   report.PluginStatus{Plugin: pluginID, State: report.StateOK, Attempts: attempts},
		findings: append(cached, fresh...),
	}
}

// runWithRetry drives one unit through the bounded retry state machine:
// each attempt either succeeds, schedules a retry after backoff, or
// fails terminally once the attempt cap is reached or the deadline has
// passed.
func (o *Orchestrator) runWithRetry(ctx context.Context, p plugin.Plugin, files []scan.SourceFile, cfg scan.Config) ([]finding.Finding, int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = scan.DefaultMaxAttempts
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = scan.DefaultInitialBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, attempt - 1, fmt.Errorf("plugin %s abandoned: %w", p.Identifier(), ctx.Err())
		}

		findings, err := p.Run(ctx, files, cfg)
		if err == nil {
			return findings, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		o.log.Warnw("plugin failed, retrying",
			"plugin", p.Identifier(), "attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, attempt, fmt.Errorf("plugin %s abandoned during backoff: %w", p.Identifier(), ctx.Err())
		}
	}

	return nil, maxAttempts, fmt.Errorf("plugin %s failed after %d attempts: %w", p.Identifier(), maxAttempts, lastErr)
}

// normalize validates fresh findings and stamps their source. Invalid
// findings are dropped with a warning rather than poisoning the report.
func (o *Orchestrator) normalize(pluginID string, findings []finding.Finding) []finding.Finding {
	out := findings[:0]
	for _, f := range findings {
		if len(f.Sources) == 0 {
			f.Sources = []string{pluginID}
		}
		if err := f.Validate(); err != nil {
			o.log.Warnw("dropping invalid finding", "plugin", pluginID, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out
}

// writeBack caches findings per file for every file the plugin just
// analyzed. Files with no findings get an empty entry so the next scan
// sees a hit for them too. Write-back only happens after a successful
// run; a failed plugin never populates the cache.
func (o *Orchestrator) writeBack(ctx context.Context, pluginKey string, analyzed []scan.SourceFile, findings []finding.Finding) {
	byFile := make(map[string][]finding.Finding)
	for _, f := range findings {
		byFile[f.File] = append(byFile[f.File], f)
	}

	var wg sync.WaitGroup
	for _, file := range analyzed {
		wg.Add(1)
		go func(file scan.SourceFile) {
			defer wg.Done()
			entry := byFile[file.Path]
			if entry == nil {
				entry = []finding.Finding{}
			}
			if err := o.store.Put(ctx, file.Path, file.ContentHash, pluginKey, entry); err != nil {
				o.log.Warnw("cache write failed", "file", file.Path, "error", err)
			}
		}(file)
	}
	wg.Wait()
}
