package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/report"
)

// StageConfig configures the batch stage.
type StageConfig struct {
	BatchSize     int     // max findings per downstream call (default: 10)
	MaxConcurrent int     // concurrent batches in flight (default: 3)
	CallsPerSec   float64 // rate limit across all batches (default: 2)
	Retry         RetryConfig
}

// DefaultStageConfig returns the default batch stage configuration.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		BatchSize:     10,
		MaxConcurrent: 3,
		CallsPerSec:   2,
		Retry:         DefaultRetryConfig(),
	}
}

// BatchStage groups findings into batches and requests explanations and
// fix proposals. Annotation is additive: a batch that exhausts its
// retries ships its findings unannotated, never dropped.
type BatchStage struct {
	explainer Explainer
	cfg       StageConfig
	retry     RetryConfig
	breaker   *CircuitBreaker
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	log       *zap.SugaredLogger
}

// NewBatchStage creates a batch stage around an explainer.
func NewBatchStage(explainer Explainer, cfg StageConfig, log *zap.SugaredLogger) *BatchStage {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultStageConfig().BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultStageConfig().MaxConcurrent
	}
	if cfg.CallsPerSec <= 0 {
		cfg.CallsPerSec = DefaultStageConfig().CallsPerSec
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var breaker *CircuitBreaker
	if cfg.Retry.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(cfg.Retry.FailureThreshold, cfg.Retry.SuccessThreshold, cfg.Retry.OpenTimeout, log)
	}

	return &BatchStage{
		explainer: explainer,
		cfg:       cfg,
		retry:     cfg.Retry,
		breaker:   breaker,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:   rate.NewLimiter(rate.Limit(cfg.CallsPerSec), 1),
		log:       log,
	}
}

// Explain annotates findings in batches of at most batchSize (the last
// batch may be smaller). Batches run concurrently up to MaxConcurrent.
// The returned slice preserves input order and always contains every
// input finding; the statuses report which batches failed.
func (s *BatchStage) Explain(ctx context.Context, findings []finding.Finding, batchSize int) ([]finding.Finding, []report.BatchStatus) {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	annotated := make([]finding.Finding, len(findings))
	copy(annotated, findings)
	if len(findings) == 0 {
		return annotated, nil
	}

	batchCount := (len(findings) + batchSize - 1) / batchSize
	statuses := make([]report.BatchStatus, batchCount)

	var wg sync.WaitGroup
	for b := 0; b < batchCount; b++ {
		lo := b * batchSize
		hi := lo + batchSize
		if hi > len(findings) {
			hi = len(findings)
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Context gone: mark the remaining batches cancelled.
			for rest := b; rest < batchCount; rest++ {
				rlo := rest * batchSize
				rhi := rlo + batchSize
				if rhi > len(findings) {
					rhi = len(findings)
				}
				statuses[rest] = report.BatchStatus{
					Batch:    rest,
					Findings: rhi - rlo,
					State:    report.StateCancelled,
					Error:    err.Error(),
				}
			}
			break
		}

		wg.Add(1)
		go func(batch, lo, hi int) {
			defer wg.Done()
			defer s.sem.Release(1)
			statuses[batch] = s.runBatch(ctx, batch, annotated[lo:hi])
		}(b, lo, hi)
	}
	wg.Wait()

	return annotated, statuses
}

// runBatch submits one batch and writes annotations into the slice in
// place. The slice is this batch's exclusive window of the output.
func (s *BatchStage) runBatch(ctx context.Context, batch int, window []finding.Finding) report.BatchStatus {
	operation := fmt.Sprintf("explain batch %d", batch)

	var annotations []Annotation
	attempts, err := s.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		if err := s.limiter.Wait(attemptCtx); err != nil {
			return err
		}
		result, callErr := s.explainer.ExplainBatch(attemptCtx, window)
		if callErr != nil {
			return callErr
		}
		annotations = result
		return nil
	})

	status := report.BatchStatus{
		Batch:    batch,
		Findings: len(window),
		Attempts: attempts,
	}
	if err != nil {
		if ctx.Err() != nil {
			status.State = report.StateCancelled
		} else {
			status.State = report.StateFailed
		}
		status.Error = err.Error()
		s.log.Warnw("llm batch failed, findings ship unannotated",
			"batch", batch, "findings", len(window), "error", err)
		return status
	}

	for _, a := range annotations {
		if a.Index < 0 || a.Index >= len(window) {
			s.log.Warnw("annotation index out of range", "batch", batch, "index", a.Index)
			continue
		}
		window[a.Index].Explanation = a.Explanation
		if a.ProposedFix != "" {
			window[a.Index].ProposedFix = a.ProposedFix
		}
	}
	status.State = report.StateOK
	return status
}
