package job

import "hybridsched/internal/sched"

// Demo returns the workload the simulator runs when no tasks are configured:
// a background indexer, a video player and a live stream.
func Demo() []sched.TaskConfig {
	return []sched.TaskConfig{
		{Name: "background-indexer", Policy: "fair", Nice: 0},
		{Name: "video-player", Policy: "rr", Priority: 1, TimeSlice: 10},
		{Name: "live-stream", Policy: "fifo"},
	}
}

// DemoEvents pauses the video player once and adds a niced batch job later on.
func DemoEvents() []sched.EventConfig {
	return []sched.EventConfig{
		{AtTick: 8, Action: "sleep", Task: "video-player", Ticks: 2},
		{AtTick: 10, Action: "register", Spawn: &sched.TaskConfig{Name: "batch-report", Policy: "fair", Nice: 10}},
	}
}
