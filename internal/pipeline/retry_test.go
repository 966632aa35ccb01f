package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/doctrans/internal/backend"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	tests := []struct {
		attempt int
		min     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{10, time.Second},
		{100, time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			d := p.Backoff(tt.attempt)
			if d < tt.min || d >= tt.min+tt.min/2 {
				t.Fatalf("attempt %d: expected [%v, %v), got %v", tt.attempt, tt.min, tt.min+tt.min/2, d)
			}
		}
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	if d := (RetryPolicy{}).Backoff(3); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	transient := &backend.RetryableError{StatusCode: 503}
	permanent := errors.New("bad request")

	tests := []struct {
		name      string
		attempts  int
		script    []error
		wantCalls int
		wantErr   error
	}{
		{"first try", 3, []error{nil}, 1, nil},
		{"recovers", 3, []error{transient, transient, nil}, 3, nil},
		{"exhausted", 3, []error{transient, transient, transient, nil}, 3, transient},
		{"permanent", 3, []error{permanent, nil}, 1, permanent},
		{"zero attempts means one", 0, []error{transient}, 1, transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RetryPolicy{MaxAttempts: tt.attempts, BaseDelay: time.Microsecond}
			calls, retries := 0, 0
			err := p.Do(context.Background(), func(int, error) { retries++ }, func(context.Context) error {
				err := tt.script[calls]
				calls++
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, calls)
			}
			if retries != calls-1 {
				t.Errorf("expected %d retry callbacks, got %d", calls-1, retries)
			}
		})
	}
}

func TestRetryPolicy_DoStopsOnCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(int, error) { cancel() }, func(context.Context) error {
		calls++
		return &backend.RetryableError{StatusCode: 429}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
