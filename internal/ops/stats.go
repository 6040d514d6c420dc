package ops

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// StatsFunc returns key/value pairs describing current process state
type StatsFunc func() []any

// StatsReporter logs a stats line on a cron schedule
type StatsReporter struct {
	cron     *cron.Cron
	schedule string
	collect  StatsFunc
	logger   *Logger

	mu      sync.Mutex
	running bool
}

// NewStatsReporter creates a reporter. schedule accepts standard cron
// expressions and descriptors such as "@every 5m".
func NewStatsReporter(schedule string, collect StatsFunc, logger *Logger) *StatsReporter {
	if logger == nil {
		logger = Default()
	}
	return &StatsReporter{
		cron:     cron.New(),
		schedule: schedule,
		collect:  collect,
		logger:   logger.WithComponent("stats"),
	}
}

// Start registers the job and starts the scheduler
func (s *StatsReporter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.Report); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("stats reporter started", "schedule", s.schedule)
	return nil
}

// Report logs one stats line immediately
func (s *StatsReporter) Report() {
	var fields []any
	if s.collect != nil {
		fields = s.collect()
	}
	s.logger.Info("stats", fields...)
}

// Stop stops the scheduler and waits for a running job to finish
func (s *StatsReporter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}
