package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jaimegago/scribe/internal/llm"
)

// fakeClock is a manually advanced clock shared by now() and sleep().
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.t = f.t.Add(d)
	}
}

// mockAdapter is a scripted LLM adapter.
type mockAdapter struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*llm.ChatResponse, error)
}

func (m *mockAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(call)
	}
	return &llm.ChatResponse{Content: "ok"}, nil
}

func (m *mockAdapter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newTestController wires a controller to a fake clock and returns the
// slice of sleep durations observed.
func newTestController(adapter llm.LLMAdapter, cfg Config) (*Controller, *fakeClock, *[]time.Duration) {
	clock := newFakeClock()
	var slept []time.Duration
	c := New(adapter, cfg, nil)
	c.now = clock.Now
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		slept = append(slept, d)
		clock.Advance(d)
		return nil
	}
	return c, clock, &slept
}

func TestAcquireSlidingWindowBound(t *testing.T) {
	const maxPerMinute = 5
	c, clock, _ := newTestController(&mockAdapter{}, Config{
		MaxPerMinute:   maxPerMinute,
		AcquireTimeout: 10 * time.Minute,
	})

	var admissions []time.Time
	for i := 0; i < 20; i++ {
		if !c.Acquire(context.Background(), 10*time.Minute) {
			t.Fatalf("acquire %d timed out", i)
		}
		admissions = append(admissions, clock.Now())
	}

	// No sliding 60s window may contain more than maxPerMinute admissions.
	for i := range admissions {
		count := 0
		for j := i; j < len(admissions); j++ {
			if admissions[j].Sub(admissions[i]) < window {
				count++
			}
		}
		if count > maxPerMinute {
			t.Errorf("window starting at admission %d holds %d admissions, want <= %d", i, count, maxPerMinute)
		}
	}
}

func TestAcquireSpacing(t *testing.T) {
	c, clock, _ := newTestController(&mockAdapter{}, Config{
		MaxPerMinute:   6, // interval 10s
		AcquireTimeout: time.Minute,
	})

	if !c.Acquire(context.Background(), time.Minute) {
		t.Fatal("first acquire timed out")
	}
	first := clock.Now()
	if !c.Acquire(context.Background(), time.Minute) {
		t.Fatal("second acquire timed out")
	}
	second := clock.Now()

	interval := window / 6
	if gap := second.Sub(first); gap < interval {
		t.Errorf("inter-call gap = %v, want >= %v", gap, interval)
	}
}

func TestAcquireTimeout(t *testing.T) {
	c, clock, _ := newTestController(&mockAdapter{}, Config{MaxPerMinute: 1})

	if !c.Acquire(context.Background(), time.Minute) {
		t.Fatal("first acquire timed out")
	}
	start := clock.Now()
	if c.Acquire(context.Background(), 10*time.Second) {
		t.Fatal("second acquire should time out with a full window")
	}
	if waited := clock.Now().Sub(start); waited > 11*time.Second {
		t.Errorf("timed-out acquire blocked %v, want <= timeout", waited)
	}
}

func TestAcquireCancelled(t *testing.T) {
	c, _, _ := newTestController(&mockAdapter{}, Config{MaxPerMinute: 1})

	if !c.Acquire(context.Background(), time.Minute) {
		t.Fatal("first acquire timed out")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.Acquire(ctx, time.Minute) {
		t.Fatal("acquire should fail after cancellation")
	}
}

func TestCallLLMRateLimitRecovery(t *testing.T) {
	adapter := &mockAdapter{fn: func(call int) (*llm.ChatResponse, error) {
		if call == 1 {
			return nil, errors.New("429 too many requests")
		}
		return &llm.ChatResponse{Content: "report"}, nil
	}}
	cfg := Config{
		MaxPerMinute:   5,
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     time.Second,
		AcquireTimeout: time.Minute,
	}
	c, _, slept := newTestController(adapter, cfg)

	resp, err := c.CallLLM(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("CallLLM() error = %v", err)
	}
	if resp.Content != "report" {
		t.Errorf("content = %q, want %q", resp.Content, "report")
	}
	if got := adapter.callCount(); got != 2 {
		t.Errorf("adapter calls = %d, want 2", got)
	}

	// The first backoff must be the initial backoff.
	found := false
	for _, d := range *slept {
		if d == cfg.InitialBackoff {
			found = true
		}
	}
	if !found {
		t.Errorf("sleeps %v do not include initial backoff %v", *slept, cfg.InitialBackoff)
	}
}

func TestCallLLMBackoffMonotonic(t *testing.T) {
	adapter := &mockAdapter{fn: func(int) (*llm.ChatResponse, error) {
		return nil, errors.New("rate limit exceeded")
	}}
	cfg := Config{
		MaxPerMinute:   100,
		MaxRetries:     5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		AcquireTimeout: time.Minute,
	}
	c, _, _ := newTestController(adapter, cfg)

	_, err := c.CallLLM(context.Background(), llm.ChatRequest{})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("CallLLM() error = %v, want ErrRetriesExhausted", err)
	}
	if got := adapter.callCount(); got != cfg.MaxRetries+1 {
		t.Errorf("adapter calls = %d, want %d", got, cfg.MaxRetries+1)
	}

	// Backoff sequence is non-decreasing and capped at MaxBackoff.
	var prev time.Duration
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		d := backoffDelay(cfg.InitialBackoff, cfg.MaxBackoff, attempt)
		if d < prev {
			t.Errorf("backoff for attempt %d = %v, less than previous %v", attempt, d, prev)
		}
		if d > cfg.MaxBackoff {
			t.Errorf("backoff for attempt %d = %v, exceeds max %v", attempt, d, cfg.MaxBackoff)
		}
		prev = d
	}
}

func TestCallLLMOtherErrorRetriedOnce(t *testing.T) {
	adapter := &mockAdapter{fn: func(int) (*llm.ChatResponse, error) {
		return nil, errors.New("connection reset")
	}}
	c, _, _ := newTestController(adapter, Config{
		MaxPerMinute:   100,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Second,
		AcquireTimeout: time.Minute,
	})

	_, err := c.CallLLM(context.Background(), llm.ChatRequest{})
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("CallLLM() error = %v, want surfaced adapter error", err)
	}
	if got := adapter.callCount(); got != 2 {
		t.Errorf("adapter calls = %d, want 2 (initial + one retry)", got)
	}
}

func TestCallLLMCancelled(t *testing.T) {
	adapter := &mockAdapter{}
	c, _, _ := newTestController(adapter, Config{MaxPerMinute: 5, AcquireTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CallLLM(ctx, llm.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("CallLLM() error = %v, want context.Canceled", err)
	}
	if got := adapter.callCount(); got != 0 {
		t.Errorf("adapter calls = %d, want 0 after cancellation", got)
	}
}

type codedError struct{ code int }

func (e *codedError) Error() string      { return fmt.Sprintf("provider error %d", e.code) }
func (e *codedError) APICode() int       { return e.code }
func (e *codedError) APIMessage() string { return e.Error() }

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "status 429 marker", err: errors.New("unexpected status 429"), want: true},
		{name: "too many requests", err: errors.New("Too Many Requests"), want: true},
		{name: "rate limit text", err: errors.New("provider rate limit hit"), want: true},
		{name: "quota", err: errors.New("quota exceeded for project"), want: true},
		{name: "structured 429", err: &codedError{code: 429}, want: true},
		{name: "structured 500", err: &codedError{code: 500}, want: false},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
		{name: "wrapped", err: fmt.Errorf("call failed: %w", &codedError{code: 429}), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	initial := 5 * time.Second
	max := 120 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 80 * time.Second},
		{5, 120 * time.Second},
		{6, 120 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(initial, max, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
