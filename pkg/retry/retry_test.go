package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillgate/quillgate/pkg/api"
)

// testPolicy returns a policy with an instrumented sleep that records
// delays instead of waiting.
func testPolicy(delays *[]time.Duration) *Policy {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func upstream5xx(msg string) *api.Error {
	e := api.NewUpstreamError(msg)
	e.HTTPStatus = 503
	return e
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{api.NewRateLimitedError("429", 0), true},
		{api.NewNetworkError("refused"), true},
		{upstream5xx("503"), true},
		{api.NewAuthenticationError("no key"), false},
		{api.NewProtocolError("bad shape"), false},
		{api.NewInvalidRequestError("x", "bad"), false},
		{errors.New("unclassified"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryableFatal404(t *testing.T) {
	e := api.NewUpstreamError("not found")
	e.HTTPStatus = 404
	if Retryable(e) {
		t.Error("404 upstream error must not be retryable")
	}
}

func TestDoSucceedsAfterRateLimits(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return api.NewRateLimitedError("backend rate limit", 0)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Delay doubles: base, then 2x base.
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Errorf("delays = %v, want [2s 4s]", delays)
	}
}

func TestDoFatalErrorNoRetry(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		e := api.NewUpstreamError("not found")
		e.HTTPStatus = 404
		return e
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on fatal)", calls)
	}
	if len(delays) != 0 {
		t.Errorf("slept %v on a fatal error", delays)
	}
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	err := p.Do(context.Background(), func(ctx context.Context) error {
		return upstream5xx("backend server error (HTTP 503)")
	})

	var e *api.Error
	if !errors.As(err, &e) || e.Kind != api.ErrorKindUpstream {
		t.Fatalf("err = %v, want the captured upstream error", err)
	}
	if e.Message != "backend server error (HTTP 503)" {
		t.Errorf("message lost specificity: %q", e.Message)
	}
}

func TestNextDelayHonorsRetryAfter(t *testing.T) {
	p := DefaultPolicy()
	err := api.NewRateLimitedError("slow down", 10*time.Second)

	if d := p.NextDelay(1, err); d != 10*time.Second {
		t.Errorf("NextDelay = %v, want the 10s Retry-After hint", d)
	}
}

func TestNextDelayCapped(t *testing.T) {
	p := DefaultPolicy()
	if d := p.NextDelay(10, nil); d != p.MaxDelay {
		t.Errorf("NextDelay(10) = %v, want cap %v", d, p.MaxDelay)
	}
}

func TestDoContextCancelledDuringSleep(t *testing.T) {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return api.NewNetworkError("refused")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no attempt after cancelled sleep)", calls)
	}
	if api.KindOf(err) != api.ErrorKindNetwork {
		t.Errorf("err = %v, want the last network error", err)
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)

	var attempts []int
	p.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
		if api.KindOf(err) != api.ErrorKindRateLimited {
			t.Errorf("OnRetry err kind = %q, want rate_limited", api.KindOf(err))
		}
	}

	calls := 0
	p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return api.NewRateLimitedError("slow down", 0)
	})

	// Three attempts, two retries between them.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}
