package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hybridsched/internal/logx"
	"hybridsched/internal/sched"
)

// Target is the part of the scheduler a script injects events into.
type Target interface {
	Register(t sched.Task) (sched.TaskID, error)
	MarkSleeping(name string, ticks uint32) error
	CurrentTick() uint64
}

// Script replays configured events in tick order.
type Script struct {
	events []sched.EventConfig
	next   int
	log    logx.Logger
}

func NewScript(events []sched.EventConfig, log logx.Logger) *Script {
	evs := append([]sched.EventConfig(nil), events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].AtTick < evs[j].AtTick })
	return &Script{events: evs, log: log}
}

// Pending reports how many events have not fired yet.
func (s *Script) Pending() int { return len(s.events) - s.next }

// Due pops every event scheduled at or before tick.
func (s *Script) Due(tick uint64) []sched.EventConfig {
	start := s.next
	for s.next < len(s.events) && s.events[s.next].AtTick <= tick {
		s.next++
	}
	return s.events[start:s.next]
}

// Fire applies every event due before tick runs. Unknown task names are
// logged and skipped.
func (s *Script) Fire(target Target, tick uint64) {
	for _, ev := range s.Due(tick) {
		if err := Apply(target, ev); err != nil {
			if errors.Is(err, sched.ErrNotFound) {
				s.log.Warn("event target not found", logx.String("task", ev.Task), logx.Uint64("at_tick", ev.AtTick))
				continue
			}
			s.log.Error("event failed", logx.String("action", ev.Action), logx.Uint64("at_tick", ev.AtTick), logx.Err(err))
			continue
		}
		s.log.Debug("event applied", logx.String("action", ev.Action), logx.Uint64("at_tick", ev.AtTick))
	}
}

// Play fires events from its own goroutine while the scheduler runs,
// polling the tick counter every poll interval. It returns once every event
// has fired or ctx is done.
func (s *Script) Play(ctx context.Context, target Target, poll time.Duration) error {
	if s.Pending() == 0 {
		return nil
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		// the upcoming tick is the one events must precede
		s.Fire(target, target.CurrentTick()+1)
		if s.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Apply performs one event against target.
func Apply(target Target, ev sched.EventConfig) error {
	switch ev.Action {
	case "sleep":
		return target.MarkSleeping(ev.Task, ev.Ticks)
	case "register":
		if ev.Spawn == nil {
			return fmt.Errorf("register event at tick %d has no spawn entry", ev.AtTick)
		}
		t, err := ev.Spawn.Task()
		if err != nil {
			return err
		}
		_, err = target.Register(t)
		return err
	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
}
