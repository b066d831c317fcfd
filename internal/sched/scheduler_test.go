package sched

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hybridsched/internal/logx"
)

func newTestScheduler(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	return s
}

func TestScheduler_NewRegistersConfiguredTasks(t *testing.T) {
	cfg := Default()
	cfg.Tasks = []TaskConfig{
		{Name: "a", Policy: "fifo"},
		{Name: "b", Policy: "rr", TimeSlice: 10},
	}
	s := newTestScheduler(t, cfg)

	got := s.Inspect()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("Inspect=%+v", got)
	}
}

func TestScheduler_NewRejectsBadTask(t *testing.T) {
	cfg := Default()
	cfg.Tasks = []TaskConfig{{Name: "b", Policy: "rr"}}
	if _, err := New(cfg); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err=%v, want ErrConfiguration", err)
	}
}

func TestScheduler_TickScenarios(t *testing.T) {
	s := newTestScheduler(t, Default())
	if _, err := s.Register(Task{Name: "A", Policy: FIFO}); err != nil {
		t.Fatalf("Register err=%v", err)
	}

	ts, ok := s.Tick()
	if !ok || ts.Name != "A" || ts.State.Kind != Finished {
		t.Fatalf("first Tick=%+v,%v want A Finished", ts, ok)
	}
	if _, ok := s.Tick(); ok {
		t.Fatal("second Tick dispatched, want idle")
	}
	if s.CurrentTick() != 2 {
		t.Fatalf("CurrentTick=%d, want 2", s.CurrentTick())
	}
}

func TestScheduler_EventsNeverBlock(t *testing.T) {
	s := newTestScheduler(t, Default(), WithEventBuffer(1))
	if _, err := s.Register(Task{Name: "f", Policy: Fair}); err != nil {
		t.Fatalf("Register err=%v", err)
	}
	for i := 0; i < 10; i++ {
		s.Tick()
	}
	if s.Dropped() == 0 {
		t.Fatal("Dropped()=0, want events dropped with nobody draining")
	}
}

func TestScheduler_ReniceEmitsEvent(t *testing.T) {
	cfg := Default()
	cfg.Tasks = []TaskConfig{{Name: "indexer", Policy: "fair"}}
	s := newTestScheduler(t, cfg)

	if err := s.Renice("indexer", -10); err != nil {
		t.Fatalf("Renice err=%v", err)
	}
	if got := s.Inspect()[0].Nice; got != -10 {
		t.Fatalf("nice=%d, want -10", got)
	}
	if err := s.Renice("indexer", -21); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err=%v, want ErrConfiguration", err)
	}

	var found bool
	for len(s.statusCh) > 0 {
		ev := <-s.statusCh
		if ev.Kind == StatusRenice {
			found = ev.Name == "indexer" && ev.Nice == -10
		}
	}
	if !found {
		t.Fatal("no Renice event for indexer at nice -10")
	}
}

func TestScheduler_RunStopsAfterMaxTicks(t *testing.T) {
	cfg := Default()
	cfg.TickMS = 1
	cfg.MaxTicks = 20
	cfg.Tasks = []TaskConfig{
		{Name: "stream", Policy: "fifo"},
		{Name: "player", Policy: "rr", TimeSlice: 10},
		{Name: "indexer", Policy: "fair"},
	}

	var buf bytes.Buffer
	s := newTestScheduler(t, cfg, WithLogger(logx.NewWithWriter(&syncWriter{w: &buf}, "debug")))
	csvPath := filepath.Join(t.TempDir(), "events.csv")
	if err := s.EnableCSVLogging(csvPath); err != nil {
		t.Fatalf("EnableCSVLogging err=%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if got := s.CurrentTick(); got != 20 {
		t.Fatalf("CurrentTick=%d, want 20", got)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		t.Fatalf("header=%v", rows[0])
	}
	var finished bool
	for _, r := range rows[1:] {
		if r[2] == "Finish" && r[4] == "stream" {
			finished = true
		}
	}
	if !finished {
		t.Fatal("csv has no Finish row for stream")
	}
	if !strings.Contains(buf.String(), s.RunID()) {
		t.Fatal("log lines do not carry the run id")
	}
	if !strings.Contains(buf.String(), `"missed_ticks"`) {
		t.Fatal("stop line does not report missed ticks")
	}

	if err := s.Run(ctx); err == nil {
		t.Fatal("second Run err=nil, want already running")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	cfg := Default()
	cfg.TickMS = 1
	s := newTestScheduler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_ConcurrentInjection(t *testing.T) {
	cfg := Default()
	cfg.TickMS = 1
	cfg.MaxTicks = 200
	s := newTestScheduler(t, cfg)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Register(Task{Name: name, Policy: Fair}); err != nil {
			t.Fatalf("Register err=%v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		names := []string{"a", "b", "c", "missing"}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			err := s.MarkSleeping(names[i%len(names)], 2)
			if err != nil && !errors.Is(err, ErrNotFound) {
				t.Errorf("MarkSleeping err=%v", err)
				return
			}
			_ = s.Inspect()
			time.Sleep(time.Millisecond)
		}
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	close(stop)
	wg.Wait()

	for _, ts := range s.Inspect() {
		if ts.State.Kind == Sleeping && ts.State.Remaining > 2 {
			t.Fatalf("%s sleeping %d ticks, want <= 2", ts.Name, ts.State.Remaining)
		}
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.String()
}
