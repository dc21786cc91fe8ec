package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetryConfig holds retry configuration for LLM API calls.
type RetryConfig struct {
	MaxRetries        int           // retries after the initial attempt (default: 2)
	InitialBackoff    time.Duration // default: 1s
	MaxBackoff        time.Duration // default: 30s
	BackoffMultiplier float64       // default: 2.0
	Timeout           time.Duration // per-attempt timeout (default: 60s)

	// Circuit breaker settings
	CircuitBreakerEnabled bool
	FailureThreshold      int           // failures before opening (default: 5)
	SuccessThreshold      int           // successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // how long the circuit stays open (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            2,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
	}
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // normal operation
	CircuitOpen                         // too many failures, fail fast
	CircuitHalfOpen                     // probing for recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker prevents hammering a failing LLM endpoint: after
// FailureThreshold consecutive retriable failures it fails fast for
// OpenTimeout, then allows probe requests until SuccessThreshold
// successes close it again.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	log              *zap.SugaredLogger
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, log *zap.SugaredLogger) *CircuitBreaker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		log:              log,
	}
}

// Allow checks whether a request may proceed. Returns ErrCircuitOpen
// while the circuit is open and the open timeout has not elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.failureCount = 0
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	cb.log.Infow("circuit breaker state change",
		"from", from.String(), "to", to.String(), "failures", cb.failureCount)
}

// retryWithBackoff runs fn with bounded retries and exponential backoff,
// consulting the circuit breaker before every attempt. It returns the
// attempt count alongside the final error so batch statuses can report
// how hard the stage tried.
func (s *BatchStage) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) (int, error) {
	var lastErr error
	backoff := s.retry.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if s.breaker != nil {
			if err := s.breaker.Allow(); err != nil {
				if attempts == 0 {
					attempts = 1
				}
				return attempts, fmt.Errorf("%s blocked: %w", operation, err)
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.retry.Timeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		attempts++

		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			if attempt > 0 {
				s.log.Infow("llm call recovered", "operation", operation, "retries", attempt)
			}
			return attempts, nil
		}
		lastErr = err

		if !isRetriableError(err) {
			s.log.Warnw("llm call failed with non-retriable error", "operation", operation, "error", err)
			return attempts, err
		}
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		if attempt == s.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return attempts, fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		s.log.Infow("llm call failed, retrying",
			"operation", operation, "attempt", attempt+1, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * s.retry.BackoffMultiplier)
			if backoff > s.retry.MaxBackoff {
				backoff = s.retry.MaxBackoff
			}
		case <-ctx.Done():
			return attempts, fmt.Errorf("%s: %w", operation, ctx.Err())
		}
	}

	return attempts, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

// isRetriableError classifies transient failures: timeouts, rate
// limits, server errors, and connection problems retry; client errors
// do not.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}
	// Remaining 4xx class errors are bad requests that will not succeed
	// on retry.
	return false
}
