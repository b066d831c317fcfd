// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusDispatch
	StatusPreempt // RR slice exhausted, task put to sleep
	StatusFinish
	StatusWake
	StatusSleep // externally injected sleep
	StatusTick
	StatusRenice
)

// StatusEvent is emitted every tick or on key actions
type StatusEvent struct {
	Time         time.Time
	Tick         uint64
	Kind         StatusKind
	TaskID       TaskID
	Name         string
	Policy       Policy
	Nice         int
	State        State
	TotalRuntime uint64
	Vruntime     uint64
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusFinish:
		return "Finish"
	case StatusWake:
		return "Wake"
	case StatusSleep:
		return "Sleep"
	case StatusTick:
		return "Tick"
	case StatusRenice:
		return "Renice"
	default:
		return "Unknown"
	}
}

func taskEvent(kind StatusKind, tick uint64, ts TaskSnapshot) StatusEvent {
	return StatusEvent{
		Time:         time.Now(),
		Tick:         tick,
		Kind:         kind,
		TaskID:       ts.ID,
		Name:         ts.Name,
		Policy:       ts.Policy,
		Nice:         ts.Nice,
		State:        ts.State,
		TotalRuntime: ts.TotalRuntime,
		Vruntime:     ts.Vruntime,
	}
}

// eventsFor expands one step into the events it produced, in order.
func eventsFor(res TickResult) []StatusEvent {
	evs := make([]StatusEvent, 0, len(res.Woken)+3)
	evs = append(evs, StatusEvent{Time: time.Now(), Tick: res.Tick, Kind: StatusTick})
	for _, w := range res.Woken {
		evs = append(evs, taskEvent(StatusWake, res.Tick, w))
	}
	if !res.Ran {
		return append(evs, StatusEvent{Time: time.Now(), Tick: res.Tick, Kind: StatusIdle})
	}
	evs = append(evs, taskEvent(StatusDispatch, res.Tick, res.Task))
	switch res.Task.State.Kind {
	case Finished:
		evs = append(evs, taskEvent(StatusFinish, res.Tick, res.Task))
	case Sleeping:
		evs = append(evs, taskEvent(StatusPreempt, res.Tick, res.Task))
	}
	return evs
}
