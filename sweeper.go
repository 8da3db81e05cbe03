package platform

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sweeper drives periodic health sweeps on a cron schedule so operators
// get fresh per-module health without polling.
type Sweeper struct {
	runtime  *Runtime
	logger   Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper for the runtime. schedule accepts the
// robfig/cron syntax, including descriptors like "@every 30s".
func NewSweeper(runtime *Runtime, schedule string, logger Logger) *Sweeper {
	return &Sweeper{runtime: runtime, logger: logger, schedule: schedule}
}

// Start begins the schedule. The sweep runs with a background context;
// the per-hook deadline still bounds each module check.
func (s *Sweeper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		report := s.runtime.HealthSweep(context.Background())
		if report.Unhealthy > 0 {
			s.logger.Warn("Health sweep found unhealthy modules",
				"healthy", report.Healthy, "unhealthy", report.Unhealthy, "total", report.Total)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("Health sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
