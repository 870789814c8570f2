package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func stop(t *testing.T, s *Supervisor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(ctx)
}

func TestGoCollectsFirstError(t *testing.T) {
	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("a", func(ctx context.Context) error { return boom })
	s.Go("b", func(ctx context.Context) error { return nil })

	if err := stop(t, s); !errors.Is(err, boom) {
		t.Fatalf("Stop = %v, want %v", err, boom)
	}
}

func TestGoIgnoresContextCanceled(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := stop(t, s); err != nil {
		t.Fatalf("Stop = %v, want nil for a clean cancellation", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go0("p", func(ctx context.Context) { panic("oops") })

	err := stop(t, s)
	if err == nil || err.Error() != "panic in p: oops" {
		t.Fatalf("Stop = %v, want recovered panic error", err)
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("fatal") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after goroutine error")
	}
	_ = stop(t, s)
}

func TestGoRestartBacksOffAndRecovers(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int64
	done := make(chan struct{})
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("loop not restarted to success; runs = %d", runs.Load())
	}
	if err := stop(t, s); err != nil {
		t.Fatalf("Stop = %v; restart loop errors must not surface", err)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := stop(t, s); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("Active = %d after Stop, want 0", got)
	}
}

func TestWaitTimesOut(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	s.Go0("slow", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	close(release)
	if err := stop(t, s); err != nil {
		t.Fatalf("Stop after release = %v", err)
	}
}
