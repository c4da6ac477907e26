package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
)

const testInterval = 5 * time.Millisecond

func TestPollImmediateSuccess(t *testing.T) {
	defer test.CheckRoutines(t)()

	calls := 0
	err := Scheduler{Interval: time.Hour}.Poll(context.Background(), 3, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPollRetriesUntilReady(t *testing.T) {
	defer test.CheckRoutines(t)()

	calls := 0
	err := Scheduler{Interval: testInterval}.Poll(context.Background(), 5, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("empty channel: %w", ErrNotReady)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPollExhausted(t *testing.T) {
	defer test.CheckRoutines(t)()

	tests := []struct {
		maxTries  int
		wantCalls int
	}{
		{maxTries: 1, wantCalls: 1},
		{maxTries: 4, wantCalls: 4},
		{maxTries: 0, wantCalls: 1},
	}

	for _, tc := range tests {
		calls := 0
		err := Scheduler{Interval: testInterval}.Poll(context.Background(), tc.maxTries, func(context.Context) error {
			calls++
			return ErrNotReady
		})
		if !errors.Is(err, ErrExhausted) {
			t.Errorf("maxTries=%d: expected ErrExhausted, got %v", tc.maxTries, err)
		}
		if calls != tc.wantCalls {
			t.Errorf("maxTries=%d: calls = %d, want %d", tc.maxTries, calls, tc.wantCalls)
		}
	}
}

func TestPollNotify(t *testing.T) {
	defer test.CheckRoutines(t)()

	var waits []time.Duration
	s := Scheduler{
		Interval: testInterval,
		Notify: func(err error, wait time.Duration) {
			if !errors.Is(err, ErrNotReady) {
				t.Errorf("Notify err = %v, want ErrNotReady", err)
			}
			waits = append(waits, wait)
		},
	}
	err := s.Poll(context.Background(), 3, func(context.Context) error {
		return ErrNotReady
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	// No wait follows the last attempt.
	if len(waits) != 2 {
		t.Fatalf("Notify calls = %d, want 2", len(waits))
	}
	for i, w := range waits {
		if w != testInterval {
			t.Errorf("wait %d = %v, want %v", i, w, testInterval)
		}
	}
}

func TestPollCheckError(t *testing.T) {
	defer test.CheckRoutines(t)()

	wantErr := errors.New("wrong message")
	calls := 0
	err := Scheduler{Interval: testInterval}.Poll(context.Background(), 10, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Errorf("a hard error must not be retried, calls = %d", calls)
	}
}

func TestPollCancelledWhileWaiting(t *testing.T) {
	defer test.CheckRoutines(t)()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := Scheduler{Interval: time.Hour}.Poll(ctx, 10, func(context.Context) error {
		calls++
		time.AfterFunc(testInterval, cancel)
		return ErrNotReady
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > time.Minute {
		t.Error("Poll did not return promptly after cancel")
	}
}

func TestPollAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Scheduler{}.Poll(ctx, 10, func(context.Context) error {
		t.Error("check must not run on a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
