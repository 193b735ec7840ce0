package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "wingobot/pkg/logx"
)

func TestIntervalJobRuns(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 1, HistorySize: 10}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	var runs atomic.Int32
	if _, err := s.AddInterval("tick", time.Second, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}

	hist := s.History()
	if len(hist) == 0 || hist[0].Name != "tick" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestOverlapSkipped(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 2}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	var concurrent, max atomic.Int32
	release := make(chan struct{})
	if _, err := s.AddInterval("slow", time.Second, 0, func(ctx context.Context) error {
		n := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			if m := max.Load(); n <= m || max.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	// Let several ticks pass while the first run is blocked.
	time.Sleep(2500 * time.Millisecond)
	close(release)
	time.Sleep(100 * time.Millisecond)

	if max.Load() > 1 {
		t.Fatalf("job overlapped: max concurrency %d", max.Load())
	}
}

func TestStopStartReRegisterKeepsSingleTrigger(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 1, HistorySize: 20}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	tick := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}

	// The disable/enable cycle re-registers the same job names.
	s.Start(ctx)
	if _, err := s.AddInterval("card.refresh", time.Second, 0, tick); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	s.Stop(context.Background())

	s.Start(ctx)
	defer s.Stop(context.Background())
	if _, err := s.AddInterval("card.refresh", time.Second, 0, tick); err != nil {
		t.Fatalf("AddInterval after restart: %v", err)
	}

	runs.Store(0)
	time.Sleep(3200 * time.Millisecond)

	// A single 1s trigger fires ~3 times in the window; a doubled
	// registration would fire ~6.
	if got := runs.Load(); got < 2 || got > 4 {
		t.Fatalf("runs in window = %d, want ~3 (single trigger)", got)
	}
}

func TestStopUnblocksWorkers(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 2}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Stop(context.Background())

	// A second cycle gets a fresh queue and pool; jobs must still run.
	s.Start(ctx)
	defer s.Stop(context.Background())

	var runs atomic.Int32
	if _, err := s.AddInterval("tick", time.Second, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran after restart")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestAddIntervalValidation(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, logx.Logger{})
	if _, err := s.AddInterval("bad", 0, 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for non-positive interval")
	}
	// Not started: AddCron must refuse.
	if _, err := s.AddCron("x", "@every 1s", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestJobPanicIsContained(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Workers: 1, HistorySize: 5}, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if _, err := s.AddInterval("boom", time.Second, 0, func(ctx context.Context) error {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		hist := s.History()
		if len(hist) > 0 {
			if hist[0].Error == "" {
				t.Fatalf("expected panic recorded as error, got %+v", hist[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("panicking job never recorded")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
