// Package ratelimit governs outbound LLM calls with sliding-window
// admission control and exponential backoff retries. One controller is
// shared by all sessions in the process so the provider sees a single
// admission window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jaimegago/scribe/internal/llm"
)

// window is the span of the sliding admission window.
const window = time.Minute

var (
	// ErrAcquireTimeout is returned when admission could not be
	// obtained within the configured timeout. Fatal to the session.
	ErrAcquireTimeout = errors.New("rate limit admission timed out")

	// ErrRetriesExhausted is returned after all backoff retries on
	// rate-limited calls have failed.
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")
)

// Config configures the controller.
type Config struct {
	// MaxPerMinute is the admission budget for the sliding window.
	MaxPerMinute int
	// MaxRetries is the number of retry attempts on rate-limited calls
	// (total attempts = MaxRetries + 1).
	MaxRetries int
	// InitialBackoff is the first backoff delay.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration
	// AcquireTimeout bounds how long a call may block on admission.
	AcquireTimeout time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerMinute:   30,
		MaxRetries:     3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     120 * time.Second,
		AcquireTimeout: 120 * time.Second,
	}
}

// Controller wraps an LLM adapter with admission control and retries.
// Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	admitted []time.Time // FIFO of admission timestamps

	cfg     Config
	adapter llm.LLMAdapter
	logger  *slog.Logger

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a controller in front of the given adapter.
func New(adapter llm.LLMAdapter, cfg Config, logger *slog.Logger) *Controller {
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = DefaultConfig().MaxPerMinute
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		adapter: adapter,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepWithContext,
	}
}

// Acquire blocks until an admission slot is available or the timeout
// elapses. It returns false on timeout or cancellation; the caller must
// fail the session in that case.
//
// Admission is a sliding 60s window: timestamps older than the window
// are evicted, and a request is admitted iff fewer than MaxPerMinute
// remain. Back-to-back admissions are additionally spaced at least
// window/MaxPerMinute apart.
func (c *Controller) Acquire(ctx context.Context, timeout time.Duration) bool {
	deadline := c.now().Add(timeout)

	for {
		c.mu.Lock()
		now := c.now()
		c.evictLocked(now)

		if len(c.admitted) < c.cfg.MaxPerMinute {
			wait := c.spacingLocked(now)
			if wait <= 0 {
				c.admitted = append(c.admitted, now)
				c.mu.Unlock()
				return true
			}
			c.mu.Unlock()
			if !c.sleepUntil(ctx, now, now.Add(wait), deadline) {
				return false
			}
			continue
		}

		// Window is full: the next slot opens when the oldest
		// admission ages out.
		wake := c.admitted[0].Add(window)
		c.mu.Unlock()
		if !c.sleepUntil(ctx, now, wake, deadline) {
			return false
		}
	}
}

// sleepUntil sleeps until target, bounded by deadline. Returns false if
// the deadline elapsed or the context was cancelled.
func (c *Controller) sleepUntil(ctx context.Context, now, target, deadline time.Time) bool {
	if target.After(deadline) {
		_ = c.sleep(ctx, deadline.Sub(now))
		return false
	}
	return c.sleep(ctx, target.Sub(now)) == nil
}

func (c *Controller) evictLocked(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(c.admitted) && !c.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		c.admitted = append(c.admitted[:0], c.admitted[i:]...)
	}
}

// spacingLocked returns how long to wait to honor the minimum
// inter-call interval of window/MaxPerMinute.
func (c *Controller) spacingLocked(now time.Time) time.Duration {
	if len(c.admitted) == 0 {
		return 0
	}
	interval := window / time.Duration(c.cfg.MaxPerMinute)
	gap := now.Sub(c.admitted[len(c.admitted)-1])
	return interval - gap
}

// CallLLM acquires an admission slot and calls the underlying adapter,
// retrying rate-limited failures with exponential backoff. Any other
// failure is retried once at the base backoff, then surfaced.
func (c *Controller) CallLLM(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	attempts := c.cfg.MaxRetries + 1
	otherRetried := false
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.Acquire(ctx, c.cfg.AcquireTimeout) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrAcquireTimeout
		}

		resp, err := c.adapter.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		if IsRateLimited(err) {
			wait := backoffDelay(c.cfg.InitialBackoff, c.cfg.MaxBackoff, attempt)
			c.logger.Warn("provider rate limited, backing off",
				"attempt", attempt+1, "wait", wait, "error", err)
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
			continue
		}

		if otherRetried {
			return nil, err
		}
		otherRetried = true
		c.logger.Warn("LLM call failed, retrying once", "error", err)
		if serr := c.sleep(ctx, c.cfg.InitialBackoff); serr != nil {
			return nil, serr
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, lastErr)
}

// backoffDelay returns min(initial * 2^attempt, max).
func backoffDelay(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// rateLimitMarkers identify rate-limit failures when no structured
// status is available. Text matching is the fallback; adapters that
// expose llm.APIErrorDetails are classified by status code.
var rateLimitMarkers = []string{"429", "too many requests", "rate limit", "quota"}

// IsRateLimited reports whether err looks like a provider rate limit.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var details llm.APIErrorDetails
	if errors.As(err, &details) {
		if details.APICode() == 429 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
