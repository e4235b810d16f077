package cmd

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRunWorkerRunsImmediatelyAndStops(t *testing.T) {
	stop := make(chan os.Signal, 1)
	stop <- os.Interrupt

	calls := 0
	runWorker("sweep_expired", time.Hour, stop, func(ctx context.Context) error {
		calls++
		if ctx.Err() != nil {
			t.Fatal("expected live context during run")
		}
		return nil
	})

	if calls != 1 {
		t.Fatalf("expected one immediate run, got %d", calls)
	}
}

func TestRunWorkerRunsOnTick(t *testing.T) {
	stop := make(chan os.Signal, 1)
	calls := 0
	done := make(chan struct{})

	go func() {
		runWorker("sweep_expired", 10*time.Millisecond, stop, func(context.Context) error {
			calls++
			if calls == 3 {
				stop <- os.Interrupt
			}
			return errors.New("transient")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if calls < 3 {
		t.Fatalf("expected at least 3 runs, got %d", calls)
	}
}

func TestRunJobSwallowsError(t *testing.T) {
	ran := false
	runJob("sweep_expired", func() error {
		ran = true
		return errors.New("boom")
	})
	if !ran {
		t.Fatal("expected job to run")
	}
}
