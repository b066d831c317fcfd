package sched

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	TickMS       int           `yaml:"tick_ms"`        // 200 (by default)
	Quantum      uint64        `yaml:"quantum"`        // 10 (by default)
	RRSleepTicks uint32        `yaml:"rr_sleep_ticks"` // 3 (by default)
	Mode         string        `yaml:"mode"`           // alternate | strict
	MaxTicks     uint64        `yaml:"max_ticks"`      // 0 = run until cancelled
	CSVPath      string        `yaml:"csv_path"`
	LogLevel     string        `yaml:"log_level"`
	HTTPAddr     string        `yaml:"http_addr"`
	Tasks        []TaskConfig  `yaml:"tasks"`
	Events       []EventConfig `yaml:"events"`
}

// TaskConfig is one entry of the tasks list.
type TaskConfig struct {
	Name      string `yaml:"name" json:"name"`
	Policy    string `yaml:"policy" json:"policy"`
	Priority  int    `yaml:"priority" json:"priority"`
	Nice      int    `yaml:"nice" json:"nice"`
	TimeSlice uint64 `yaml:"time_slice" json:"time_slice"`
	Deadline  uint64 `yaml:"deadline" json:"deadline"`
}

// EventConfig is an externally injected event fired at a given tick.
type EventConfig struct {
	AtTick uint64      `yaml:"at_tick"`
	Action string      `yaml:"action"` // sleep | register
	Task   string      `yaml:"task"`
	Ticks  uint32      `yaml:"ticks"`
	Spawn  *TaskConfig `yaml:"spawn"`
}

func defaultConfig() Config {
	return Config{
		TickMS:       200,
		Quantum:      DefaultQuantum,
		RRSleepTicks: DefaultRRSleepTicks,
		Mode:         ModeAlternate.String(),
		LogLevel:     "info",
	}
}

// Default returns the configuration used when no file is given.
func Default() Config { return defaultConfig() }

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// sanity clamps
	if cfg.TickMS <= 0 {
		cfg.TickMS = 200
	}
	if cfg.Quantum == 0 {
		cfg.Quantum = DefaultQuantum
	}
	if cfg.RRSleepTicks == 0 {
		cfg.RRSleepTicks = DefaultRRSleepTicks
	}

	return cfg, cfg.Validate()
}

// Validate checks the mode, every task entry and every event entry.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	for i, tc := range c.Tasks {
		if _, err := tc.Task(); err != nil {
			errs = append(errs, fmt.Errorf("tasks[%d]: %w", i, err))
		}
	}
	for i, ev := range c.Events {
		switch ev.Action {
		case "sleep":
			if ev.Task == "" || ev.Ticks == 0 {
				errs = append(errs, fmt.Errorf("events[%d]: sleep needs task and ticks >= 1", i))
			}
		case "register":
			if ev.Spawn == nil {
				errs = append(errs, fmt.Errorf("events[%d]: register needs a spawn entry", i))
			} else if _, err := ev.Spawn.Task(); err != nil {
				errs = append(errs, fmt.Errorf("events[%d]: %w", i, err))
			}
		default:
			errs = append(errs, fmt.Errorf("events[%d]: unknown action %q", i, ev.Action))
		}
	}
	return errors.Join(errs...)
}

// TickInterval is the wall-clock length of one simulated tick.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// Params converts the dispatcher tunables.
func (c Config) Params() (Params, error) {
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return Params{}, err
	}
	return Params{Quantum: c.Quantum, RRSleepTicks: c.RRSleepTicks, Mode: mode}.withDefaults(), nil
}

// Task converts the entry into a validated Task.
func (tc TaskConfig) Task() (Task, error) {
	p, err := ParsePolicy(tc.Policy)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Task = tc.Name
		}
		return Task{}, err
	}
	t := Task{
		Name:      tc.Name,
		Policy:    p,
		Priority:  tc.Priority,
		Nice:      tc.Nice,
		TimeSlice: tc.TimeSlice,
		Deadline:  tc.Deadline,
	}
	if err := t.validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
