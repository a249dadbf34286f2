package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net failure" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return e.timeout }

type temporaryErr struct{ temp bool }

func (e temporaryErr) Error() string   { return "upstream failure" }
func (e temporaryErr) Temporary() bool { return e.temp }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, 10*time.Millisecond, 100*time.Millisecond)

	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "attempts exhausted", err: errors.New("boom"), attempt: 3, want: false},
		{name: "context canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, attempt: 1, want: false},
		{name: "auth denied", err: fmt.Errorf("lookup: %w", catalog.ErrAuthDenied), attempt: 1, want: false},
		{name: "network timeout", err: timeoutErr{timeout: true}, attempt: 1, want: true},
		{name: "network non timeout", err: timeoutErr{timeout: false}, attempt: 1, want: false},
		{name: "temporary upstream", err: temporaryErr{temp: true}, attempt: 2, want: true},
		{name: "permanent upstream", err: temporaryErr{temp: false}, attempt: 1, want: false},
		{name: "plain error", err: errors.New("boom"), attempt: 2, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	t.Parallel()

	p := NewExponential(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0), "attempt %d", attempt)
		require.LessOrEqual(t, d, 400*time.Millisecond, "attempt %d", attempt)
	}
}

func TestDoSucceedsWithinCeiling(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, time.Millisecond, 2*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func() error {
		calls++
		if calls < 3 {
			return timeoutErr{timeout: true}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	p := NewExponential(2, time.Millisecond, 2*time.Millisecond)
	calls := 0
	wantErr := timeoutErr{timeout: true}
	err := Do(context.Background(), p, func() error {
		calls++
		return wantErr
	})
	require.Equal(t, 2, calls)
	var te timeoutErr
	require.ErrorAs(t, err, &te)
}

func TestDoWithNilPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("boom")
	err := Do(context.Background(), nil, func() error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
}

func TestDoStopsWhenContextEndsDuringBackoff(t *testing.T) {
	t.Parallel()

	p := NewExponential(5, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func() error {
		calls++
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
