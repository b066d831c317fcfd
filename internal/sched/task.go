package sched

import (
	"fmt"
	"strings"
)

// TaskID is the arena slot a task occupies inside the registry.
type TaskID uint64

// Policy is the scheduling class of a task. It never changes after registration.
type Policy int

const (
	FIFO Policy = iota
	RoundRobin
	Fair
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "FIFO"
	case RoundRobin:
		return "RR"
	case Fair:
		return "Fair"
	default:
		return "Unknown"
	}
}

// RealTime reports whether tasks of this policy live in the real-time queue.
func (p Policy) RealTime() bool { return p == FIFO || p == RoundRobin }

// ParsePolicy accepts the names used in config files and on the HTTP API.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return FIFO, nil
	case "rr", "roundrobin", "round_robin", "round-robin":
		return RoundRobin, nil
	case "fair", "cfs":
		return Fair, nil
	}
	return 0, &ConfigError{Field: "policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// StateKind is the lifecycle position of a task.
type StateKind int

const (
	Ready StateKind = iota
	Running
	Sleeping
	Finished
)

func (k StateKind) String() string {
	switch k {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Sleeping:
		return "Sleeping"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// State carries the remaining tick countdown when Kind is Sleeping.
type State struct {
	Kind      StateKind
	Remaining uint32
}

func (s State) String() string {
	if s.Kind == Sleeping {
		return fmt.Sprintf("Sleeping(%d)", s.Remaining)
	}
	return s.Kind.String()
}

// Task represents one schedulable task unit.
type Task struct {
	Name         string
	Policy       Policy
	Priority     int    // informational only, never consulted by dispatch
	Vruntime     uint64 // Fair only
	TimeSlice    uint64 // RoundRobin only, must be > 0
	TotalRuntime uint64
	CPUUsage     uint64
	Nice         int    // Fair only, -20..19
	State        State
	Deadline     uint64 // absolute tick, 0 = none; carried but not enforced
}

// TaskSnapshot is a point-in-time copy of a registered task.
type TaskSnapshot struct {
	ID TaskID
	Task
}

// Eligible reports whether the task may be picked on this tick.
func (t *Task) Eligible() bool { return t.State.Kind == Ready }

const (
	MinNice     = -20
	MaxNice     = 19
	Nice0Weight = 1024
)

// niceToWeight is the Linux sched_prio_to_weight table; index 0 is nice -20.
var niceToWeight = [40]uint64{
	/* -20 */ 88761, 71755, 56483, 46273, 36291,
	/* -15 */ 29154, 23254, 18705, 14949, 11916,
	/* -10 */ 9548, 7620, 6100, 4904, 3906,
	/*  -5 */ 3121, 2501, 1991, 1586, 1277,
	/*   0 */ 1024, 820, 655, 526, 423,
	/*   5 */ 335, 272, 215, 172, 137,
	/*  10 */ 110, 87, 70, 56, 45,
	/*  15 */ 36, 29, 23, 18, 15,
}

// NiceToWeight maps a nice value to its load weight. Out of range values are clamped.
func NiceToWeight(nice int) uint64 {
	if nice < MinNice {
		nice = MinNice
	} else if nice > MaxNice {
		nice = MaxNice
	}
	return niceToWeight[nice-MinNice]
}

// validate rejects tasks the dispatcher could not handle.
func (t *Task) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &ConfigError{Field: "name", Reason: "must not be empty"}
	}
	switch t.Policy {
	case FIFO, Fair:
	case RoundRobin:
		if t.TimeSlice == 0 {
			return &ConfigError{Task: t.Name, Field: "time_slice", Reason: "must be > 0 for RR tasks"}
		}
	default:
		return &ConfigError{Task: t.Name, Field: "policy", Reason: fmt.Sprintf("invalid policy %d", int(t.Policy))}
	}
	if t.Nice < MinNice || t.Nice > MaxNice {
		return &ConfigError{Task: t.Name, Field: "nice", Reason: fmt.Sprintf("%d outside [%d, %d]", t.Nice, MinNice, MaxNice)}
	}
	return nil
}
