// internal/sched/scheduler.go

package sched

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hybridsched/internal/logx"
)

// Scheduler owns one Dispatcher behind a single mutex so a background tick
// loop and external event injectors can share it.
type Scheduler struct {
	// Scheduler-related
	mu       sync.Mutex  // protects disp
	disp     *Dispatcher // queues, arena and tick counter
	interval time.Duration
	maxTicks uint64

	// event stream
	emitMu   sync.Mutex // protects statusCh against send-after-close
	closed   bool
	statusCh chan StatusEvent
	dropped  atomic.Uint64
	missed   atomic.Int64  // clock ticks lost while a step was still running
	running  atomic.Bool

	// logging-related
	log       logx.Logger
	runID     string
	idleLog   rate.Sometimes
	csvFile   *os.File
	csvWriter *csv.Writer
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithLogger sets the logger used for status events.
func WithLogger(l logx.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithEventBuffer sets the status channel capacity (default 256).
func WithEventBuffer(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.statusCh = make(chan StatusEvent, n)
		}
	}
}

// New creates a Scheduler from cfg and registers cfg.Tasks in order.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		disp:     NewDispatcher(params),
		interval: cfg.TickInterval(),
		maxTicks: cfg.MaxTicks,
		statusCh: make(chan StatusEvent, 256),
		log:      logx.Nop(),
		runID:    uuid.NewString(),
		idleLog:  rate.Sometimes{First: 1, Interval: time.Second},
	}
	if s.interval <= 0 {
		s.interval = 200 * time.Millisecond
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logx.String("run_id", s.runID))

	for i, tc := range cfg.Tasks {
		t, err := tc.Task()
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		if _, err := s.Register(t); err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
	}
	return s, nil
}

// RunID identifies this scheduler instance in logs.
func (s *Scheduler) RunID() string { return s.runID }

// Dropped counts status events discarded because nobody drained the stream.
func (s *Scheduler) Dropped() uint64 { return s.dropped.Load() }

// MissedTicks counts clock ticks the last Run skipped because a step overran.
func (s *Scheduler) MissedTicks() int64 { return s.missed.Load() }

// Params returns the dispatcher tunables in effect.
func (s *Scheduler) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp.Params()
}

// Register validates and enqueues a task. It may be called while Run is active.
func (s *Scheduler) Register(t Task) (TaskID, error) {
	s.mu.Lock()
	id, err := s.disp.Register(t)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	snap, _ := s.disp.Registry().Get(id)
	tick := s.disp.CurrentTick()
	s.mu.Unlock() // NOTE: unlock before emitting

	s.emit(taskEvent(StatusEnqueue, tick, snap))
	return id, nil
}

// Tick runs exactly one scheduling step and returns the task that ran, or
// false on an idle tick.
func (s *Scheduler) Tick() (TaskSnapshot, bool) {
	res := s.Step()
	return res.Task, res.Ran
}

// Step is Tick with the full step report.
func (s *Scheduler) Step() TickResult {
	s.mu.Lock()
	res := s.disp.Step()
	s.mu.Unlock()

	for _, ev := range eventsFor(res) {
		s.emit(ev)
	}
	return res
}

// Inspect returns a point-in-time copy of every task in registration order.
func (s *Scheduler) Inspect() []TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp.Snapshot()
}

// CurrentTick returns the number of completed steps.
func (s *Scheduler) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp.CurrentTick()
}

// MarkSleeping forces the named task into Sleeping(ticks).
func (s *Scheduler) MarkSleeping(name string, ticks uint32) error {
	s.mu.Lock()
	snap, err := s.disp.MarkSleeping(name, ticks)
	tick := s.disp.CurrentTick()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emit(taskEvent(StatusSleep, tick, snap))
	return nil
}

// Renice changes a fair task's nice value while it stays queued.
func (s *Scheduler) Renice(name string, nice int) error {
	s.mu.Lock()
	snap, err := s.disp.Renice(name, nice)
	tick := s.disp.CurrentTick()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.emit(taskEvent(StatusRenice, tick, snap))
	return nil
}

// Run drives one Step per clock tick until ctx is cancelled or MaxTicks
// steps have completed, logging every status event. Run may be called once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler %s already running", s.runID)
	}
	s.log.Info("scheduler started",
		logx.Duration("tick", s.interval),
		logx.Uint64("max_ticks", s.maxTicks),
		logx.String("mode", s.Params().Mode.String()))

	// start loop
	go s.loop(ctx)

	// consume events
	for ev := range s.statusCh {
		s.handleEvent(ev)
	}

	s.log.Info("scheduler stopped",
		logx.Uint64("tick", s.CurrentTick()),
		logx.Uint64("dropped_events", s.Dropped()),
		logx.Int64("missed_ticks", s.MissedTicks()))
	return s.closeCSV()
}

// loop runs the dispatch loop. The mutex is only held inside Step, so
// injected events interleave between ticks.
func (s *Scheduler) loop(ctx context.Context) {
	clock := NewTickClock(16)
	clock.Start(s.interval)
	defer func() {
		// stop the underlying clock to release its goroutine
		clock.Stop()
		s.missed.Store(clock.Missed())
		s.closeEvents()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-clock.Ch:
			if !ok {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		res := s.Step()
		if s.maxTicks > 0 && res.Tick >= s.maxTicks {
			return
		}
	}
}

// emit never blocks; a full or closed stream counts the event as dropped.
func (s *Scheduler) emit(ev StatusEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.statusCh <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Scheduler) closeEvents() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.statusCh)
	}
}

func (s *Scheduler) handleEvent(ev StatusEvent) {
	// ticks are only markers on the stream
	if ev.Kind == StatusTick {
		return
	}
	s.writeCSV(ev)

	if ev.Kind == StatusIdle {
		s.idleLog.Do(func() {
			s.log.Debug("idle tick", logx.Uint64("tick", ev.Tick))
		})
		return
	}

	fields := []logx.Field{
		logx.Uint64("tick", ev.Tick),
		logx.String("task", ev.Name),
		logx.String("policy", ev.Policy.String()),
		logx.String("state", ev.State.String()),
		logx.Uint64("total_runtime", ev.TotalRuntime),
	}
	if ev.Policy == Fair {
		fields = append(fields, logx.Int("nice", ev.Nice), logx.Uint64("vruntime", ev.Vruntime))
	}
	if ev.Kind == StatusDispatch {
		s.log.Debug(ev.Kind.String(), fields...)
		return
	}
	s.log.Info(ev.Kind.String(), fields...)
}
