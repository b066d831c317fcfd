package sched

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.TickInterval() != 200*time.Millisecond {
		t.Fatalf("TickInterval=%v, want 200ms", cfg.TickInterval())
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params err=%v", err)
	}
	if p != DefaultParams() {
		t.Fatalf("Params=%+v, want %+v", p, DefaultParams())
	}
}

func TestLoad_ParsesTasksAndEvents(t *testing.T) {
	path := writeConfig(t, `
tick_ms: 50
quantum: 20
rr_sleep_ticks: 2
mode: strict
max_ticks: 30
tasks:
  - name: indexer
    policy: fair
    nice: 5
  - name: player
    policy: rr
    time_slice: 40
    priority: 1
  - name: stream
    policy: fifo
    deadline: 12
events:
  - at_tick: 4
    action: sleep
    task: indexer
    ticks: 3
  - at_tick: 6
    action: register
    spawn:
      name: late
      policy: fifo
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.TickMS != 50 || cfg.MaxTicks != 30 || len(cfg.Tasks) != 3 || len(cfg.Events) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	p, _ := cfg.Params()
	if p.Quantum != 20 || p.RRSleepTicks != 2 || p.Mode != ModeStrict {
		t.Fatalf("Params=%+v", p)
	}
	player, err := cfg.Tasks[1].Task()
	if err != nil {
		t.Fatalf("Task() err=%v", err)
	}
	if player.Policy != RoundRobin || player.TimeSlice != 40 || player.Priority != 1 {
		t.Fatalf("player=%+v", player)
	}
	if stream, _ := cfg.Tasks[2].Task(); stream.Deadline != 12 {
		t.Fatalf("deadline=%d, want 12", stream.Deadline)
	}
	if cfg.Events[1].Spawn == nil || cfg.Events[1].Spawn.Name != "late" {
		t.Fatalf("spawn=%+v", cfg.Events[1].Spawn)
	}
}

func TestLoad_SanityClamps(t *testing.T) {
	path := writeConfig(t, "tick_ms: -5\nquantum: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.TickMS != 200 || cfg.Quantum != DefaultQuantum || cfg.RRSleepTicks != DefaultRRSleepTicks {
		t.Fatalf("clamps not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		cfgE bool
	}{
		{name: "rr without slice", body: "tasks:\n  - {name: a, policy: rr}\n", cfgE: true},
		{name: "unknown policy", body: "tasks:\n  - {name: a, policy: batch}\n", cfgE: true},
		{name: "nice out of range", body: "tasks:\n  - {name: a, policy: fair, nice: 25}\n", cfgE: true},
		{name: "bad mode", body: "mode: lottery\n"},
		{name: "sleep without ticks", body: "events:\n  - {at_tick: 1, action: sleep, task: a}\n"},
		{name: "unknown action", body: "events:\n  - {at_tick: 1, action: kill, task: a}\n"},
		{name: "bad yaml", body: "tasks: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.cfgE && !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err=%v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
