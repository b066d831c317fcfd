package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"hybridsched/internal/logx"
	"hybridsched/internal/sched"
)

func newScheduler(t *testing.T, tasks []sched.TaskConfig) *sched.Scheduler {
	t.Helper()
	cfg := sched.Default()
	cfg.Tasks = tasks
	s, err := sched.New(cfg)
	if err != nil {
		t.Fatalf("sched.New err=%v", err)
	}
	return s
}

func TestScript_DueInTickOrder(t *testing.T) {
	s := NewScript([]sched.EventConfig{
		{AtTick: 5, Action: "sleep", Task: "b", Ticks: 1},
		{AtTick: 2, Action: "sleep", Task: "a", Ticks: 1},
		{AtTick: 5, Action: "sleep", Task: "c", Ticks: 1},
	}, logx.Nop())

	if got := s.Due(1); len(got) != 0 {
		t.Fatalf("Due(1)=%v, want none", got)
	}
	if got := s.Due(4); len(got) != 1 || got[0].Task != "a" {
		t.Fatalf("Due(4)=%v, want [a]", got)
	}
	got := s.Due(10)
	if len(got) != 2 || got[0].Task != "b" || got[1].Task != "c" {
		t.Fatalf("Due(10)=%v, want [b c]", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending()=%d, want 0", s.Pending())
	}
}

func TestApply(t *testing.T) {
	s := newScheduler(t, Demo())

	if err := Apply(s, sched.EventConfig{Action: "sleep", Task: "video-player", Ticks: 2}); err != nil {
		t.Fatalf("sleep err=%v", err)
	}
	if err := Apply(s, sched.EventConfig{Action: "sleep", Task: "ghost", Ticks: 2}); !errors.Is(err, sched.ErrNotFound) {
		t.Fatalf("ghost err=%v, want ErrNotFound", err)
	}
	spawn := &sched.TaskConfig{Name: "late", Policy: "fifo"}
	if err := Apply(s, sched.EventConfig{Action: "register", Spawn: spawn}); err != nil {
		t.Fatalf("register err=%v", err)
	}
	bad := &sched.TaskConfig{Name: "bad", Policy: "rr"}
	if err := Apply(s, sched.EventConfig{Action: "register", Spawn: bad}); !errors.Is(err, sched.ErrConfiguration) {
		t.Fatalf("bad register err=%v, want ErrConfiguration", err)
	}
	if err := Apply(s, sched.EventConfig{Action: "kill"}); err == nil {
		t.Fatal("unknown action err=nil")
	}

	tasks := s.Inspect()
	if len(tasks) != 4 || tasks[3].Name != "late" {
		t.Fatalf("Inspect=%+v, want late registered", tasks)
	}
	if tasks[1].State != (sched.State{Kind: sched.Sleeping, Remaining: 2}) {
		t.Fatalf("video-player state=%s, want Sleeping(2)", tasks[1].State)
	}
}

func TestScript_FireSkipsMissingTargets(t *testing.T) {
	s := newScheduler(t, Demo())
	script := NewScript([]sched.EventConfig{
		{AtTick: 1, Action: "sleep", Task: "ghost", Ticks: 1},
		{AtTick: 1, Action: "sleep", Task: "background-indexer", Ticks: 3},
	}, logx.Nop())

	script.Fire(s, 1)
	if script.Pending() != 0 {
		t.Fatalf("Pending()=%d, want 0", script.Pending())
	}
	if got := s.Inspect()[0].State.Kind; got != sched.Sleeping {
		t.Fatalf("indexer state=%s, want Sleeping", got)
	}
}

func TestScript_PlayAgainstManualTicks(t *testing.T) {
	s := newScheduler(t, Demo())
	script := NewScript(DemoEvents(), logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- script.Play(ctx, s, time.Millisecond) }()

	for i := 0; i < 12; i++ {
		s.Tick()
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not finish")
	}
	var found bool
	for _, ts := range s.Inspect() {
		if ts.Name == "batch-report" {
			found = true
		}
	}
	if !found {
		t.Fatal("batch-report was not registered")
	}
}

func TestScript_PlayStopsOnCancel(t *testing.T) {
	s := newScheduler(t, Demo())
	script := NewScript([]sched.EventConfig{{AtTick: 1000, Action: "sleep", Task: "video-player", Ticks: 1}}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := script.Play(ctx, s, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("Play err=%v, want context.Canceled", err)
	}
}
