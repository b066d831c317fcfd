package sched

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("invalid task configuration")
	ErrNotFound      = errors.New("task not found")
	ErrTaskFinished  = errors.New("task already finished")
	ErrInvalidSleep  = errors.New("sleep ticks must be >= 1")
	ErrNotFair       = errors.New("task is not fair-scheduled")
)

// ConfigError describes a task rejected at registration time.
type ConfigError struct {
	Task   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: task %q: %s: %s", ErrConfiguration, e.Task, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
