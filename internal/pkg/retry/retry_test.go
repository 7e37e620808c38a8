package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := NewPolicy(3, time.Millisecond).Execute(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteWrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := NewPolicy(3, time.Millisecond).Execute(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want wrapped boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewPolicy(5, time.Hour).Execute(ctx, func() error {
		calls++
		cancel()
		return errors.New("down")
	})
	if err == nil {
		t.Fatal("Execute() should fail")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
