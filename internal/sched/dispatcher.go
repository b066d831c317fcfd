package sched

import "fmt"

// Mode selects how real-time and fair tasks share the CPU once no FIFO task is ready.
type Mode int

const (
	// ModeAlternate alternates between the real-time and fair classes so
	// neither can starve the other.
	ModeAlternate Mode = iota
	// ModeStrict always prefers RoundRobin over Fair. A continuously ready RR
	// task starves the fair queue.
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeAlternate:
		return "alternate"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "alternate":
		return ModeAlternate, nil
	case "strict":
		return ModeStrict, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

const (
	DefaultQuantum      = 10
	DefaultRRSleepTicks = 3
)

// Params holds the dispatcher's tunables.
type Params struct {
	Quantum      uint64 // CPU time credited per dispatch
	RRSleepTicks uint32 // cooldown after an RR task exhausts its slice
	Mode         Mode
}

func DefaultParams() Params {
	return Params{Quantum: DefaultQuantum, RRSleepTicks: DefaultRRSleepTicks, Mode: ModeAlternate}
}

func (p Params) withDefaults() Params {
	if p.Quantum == 0 {
		p.Quantum = DefaultQuantum
	}
	if p.RRSleepTicks == 0 {
		p.RRSleepTicks = DefaultRRSleepTicks
	}
	return p
}

// TickResult describes one scheduling step.
type TickResult struct {
	Tick  uint64
	Ran   bool         // false on an idle tick
	Task  TaskSnapshot // the dispatched task with post-update fields
	Woken []TaskSnapshot
}

// Dispatcher runs the tick algorithm over a Registry. It is not safe for
// concurrent use; Scheduler wraps it with a mutex.
type Dispatcher struct {
	reg       *Registry
	params    Params
	tick      uint64
	lastWasRT bool
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{reg: NewRegistry(), params: p.withDefaults()}
}

func (d *Dispatcher) Params() Params { return d.params }

func (d *Dispatcher) Registry() *Registry { return d.reg }

// CurrentTick is the number of the last completed step.
func (d *Dispatcher) CurrentTick() uint64 { return d.tick }

func (d *Dispatcher) Register(t Task) (TaskID, error) { return d.reg.Register(t) }

func (d *Dispatcher) Snapshot() []TaskSnapshot { return d.reg.Snapshot() }

// MarkSleeping puts the named task to sleep for ticks ticks.
func (d *Dispatcher) MarkSleeping(name string, ticks uint32) (TaskSnapshot, error) {
	if ticks < 1 {
		return TaskSnapshot{}, ErrInvalidSleep
	}
	id, err := d.reg.Lookup(name)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("mark sleeping %q: %w", name, err)
	}
	t := d.reg.task(id)
	if t.State.Kind == Finished {
		return TaskSnapshot{}, fmt.Errorf("mark sleeping %q: %w", name, ErrTaskFinished)
	}
	t.State = State{Kind: Sleeping, Remaining: ticks}
	return TaskSnapshot{ID: id, Task: *t}, nil
}

// Renice changes the nice value of the named fair task. Its vruntime so far
// is kept; only future dispatches are charged at the new weight.
func (d *Dispatcher) Renice(name string, nice int) (TaskSnapshot, error) {
	if nice < MinNice || nice > MaxNice {
		return TaskSnapshot{}, &ConfigError{Task: name, Field: "nice", Reason: fmt.Sprintf("%d outside [%d, %d]", nice, MinNice, MaxNice)}
	}
	id, err := d.reg.Lookup(name)
	if err != nil {
		return TaskSnapshot{}, fmt.Errorf("renice %q: %w", name, err)
	}
	t := d.reg.task(id)
	switch {
	case t.State.Kind == Finished:
		return TaskSnapshot{}, fmt.Errorf("renice %q: %w", name, ErrTaskFinished)
	case t.Policy != Fair:
		return TaskSnapshot{}, fmt.Errorf("renice %q (%s): %w", name, t.Policy, ErrNotFair)
	}
	d.reg.setNice(id, nice)
	return TaskSnapshot{ID: id, Task: *t}, nil
}

// Step advances the clock by one tick: wake sleepers, then dispatch at most one task.
func (d *Dispatcher) Step() TickResult {
	d.tick++
	res := TickResult{Tick: d.tick, Woken: d.advanceSleepers()}

	id, ok := d.pick()
	if !ok {
		return res
	}
	res.Ran = true
	res.Task = TaskSnapshot{ID: id, Task: *d.reg.task(id)}
	return res
}

// advanceSleepers counts every sleeping task down by one; a task at 1 wakes
// on this same tick, so Remaining is never observed at 0.
func (d *Dispatcher) advanceSleepers() []TaskSnapshot {
	var woken []TaskSnapshot
	for i := 0; i < d.reg.Len(); i++ {
		t := d.reg.task(TaskID(i))
		if t.State.Kind != Sleeping {
			continue
		}
		if t.State.Remaining > 1 {
			t.State.Remaining--
			continue
		}
		t.State = State{Kind: Ready}
		woken = append(woken, TaskSnapshot{ID: TaskID(i), Task: *t})
	}
	return woken
}

func (d *Dispatcher) pick() (TaskID, bool) {
	if id, ok := d.runFIFO(); ok {
		d.lastWasRT = true
		return id, true
	}

	order := [2]func() (TaskID, bool){d.runRR, d.runFair}
	if d.params.Mode == ModeAlternate && d.lastWasRT {
		order[0], order[1] = d.runFair, d.runRR
	}
	for _, run := range order {
		if id, ok := run(); ok {
			d.lastWasRT = d.reg.task(id).Policy.RealTime()
			return id, true
		}
	}
	return 0, false
}

// runFIFO runs the first ready FIFO task to completion. It leaves the
// real-time queue for good.
func (d *Dispatcher) runFIFO() (TaskID, bool) {
	idx, id, ok := d.reg.firstReadyRT(FIFO)
	if !ok {
		return 0, false
	}
	d.reg.removeRT(idx)
	t := d.reg.task(id)
	d.account(t)
	t.State = State{Kind: Finished}
	return id, true
}

// runRR runs the first ready RR task for one quantum and rotates it to the
// tail. Finishing a whole slice earns it a fixed sleep.
func (d *Dispatcher) runRR() (TaskID, bool) {
	idx, id, ok := d.reg.firstReadyRT(RoundRobin)
	if !ok {
		return 0, false
	}
	d.reg.removeRT(idx)
	t := d.reg.task(id)
	d.account(t)
	if t.TotalRuntime%t.TimeSlice == 0 {
		t.State = State{Kind: Sleeping, Remaining: d.params.RRSleepTicks}
	} else {
		t.State = State{Kind: Ready}
	}
	d.reg.pushRT(id)
	return id, true
}

// runFair runs the ready fair task with the least vruntime.
func (d *Dispatcher) runFair() (TaskID, bool) {
	id, ok := d.reg.minReadyFair()
	if !ok {
		return 0, false
	}
	t := d.reg.task(id)
	t.Vruntime += d.params.Quantum * (Nice0Weight / NiceToWeight(t.Nice))
	d.account(t)
	t.State = State{Kind: Ready}
	d.reg.requeueFair(id)
	return id, true
}

func (d *Dispatcher) account(t *Task) {
	t.State = State{Kind: Running}
	t.TotalRuntime += d.params.Quantum
	t.CPUUsage += d.params.Quantum
}
