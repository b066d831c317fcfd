package sched

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"hybridsched/internal/logx"
)

var csvHeader = []string{"timestamp", "tick", "event", "task_id", "task", "policy", "state", "total_runtime", "vruntime"}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Run().
func (s *Scheduler) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	s.csvFile = f
	s.csvWriter = w
	return nil
}

func (s *Scheduler) writeCSV(ev StatusEvent) {
	if s.csvWriter == nil {
		return
	}
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		strconv.FormatUint(ev.Tick, 10),
		ev.Kind.String(),
		"",
		ev.Name,
		"",
		"",
		"",
		"",
	}
	if ev.Kind != StatusIdle {
		rec[3] = strconv.FormatUint(uint64(ev.TaskID), 10)
		rec[5] = ev.Policy.String()
		rec[6] = ev.State.String()
		rec[7] = strconv.FormatUint(ev.TotalRuntime, 10)
		rec[8] = strconv.FormatUint(ev.Vruntime, 10)
	}
	if err := s.csvWriter.Write(rec); err != nil {
		s.log.Warn("csv write failed", logx.Err(err))
		return
	}
	s.csvWriter.Flush()
}

func (s *Scheduler) closeCSV() error {
	if s.csvFile == nil {
		return nil
	}
	s.csvWriter.Flush()
	err := s.csvWriter.Error()
	if cerr := s.csvFile.Close(); err == nil {
		err = cerr
	}
	s.csvFile, s.csvWriter = nil, nil
	return err
}
