// Package scheduler drives the periodic connection re-check for every
// enabled configuration: test each account, repair Microsoft tokens, persist
// status. Verification itself stays on-demand; only connection health runs
// on a cadence.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/go-co-op/gocron"
)

// RunFunc executes one re-check pass for a configuration.
type RunFunc func(cfg *types.Config)

type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	run       RunFunc
	jobs      map[string]*gocron.Job
	mu        sync.RWMutex
}

func NewScheduler(logger *slog.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
		run:       run,
		jobs:      make(map[string]*gocron.Job),
	}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// UpdateJob creates or replaces the re-check job for a configuration.
func (s *Scheduler) UpdateJob(cfg *types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[cfg.Meta.ID]; exists {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, cfg.Meta.ID)
	}

	if !cfg.Scheduling.Enabled {
		s.logger.Info("scheduling disabled for configuration", "id", cfg.Meta.ID)
		return nil
	}

	if cfg.Scheduling.StopAt != "" {
		stopTime, err := time.Parse(time.RFC3339, cfg.Scheduling.StopAt)
		if err != nil {
			return fmt.Errorf("invalid stop time: %w", err)
		}
		if stopTime.Before(time.Now().UTC()) {
			s.logger.Warn("skipping job schedule - stop time is in the past",
				"id", cfg.Meta.ID,
				"name", cfg.Meta.Name,
				"stop_at", cfg.Scheduling.StopAt,
			)
			return nil
		}
	}

	jobFunc := func() {
		s.logger.Info("executing scheduled connection re-check",
			"config_id", cfg.Meta.ID,
			"time", time.Now().UTC(),
		)
		s.run(cfg)
	}

	if cfg.Scheduling.StartNow {
		s.logger.Info("running re-check immediately", "config_id", cfg.Meta.ID)
		go jobFunc()
	}

	job := s.scheduler.Every(cfg.Scheduling.FrequencyAmount)

	switch cfg.Scheduling.FrequencyEvery {
	case "minute":
		job = job.Minutes()
	case "hour":
		job = job.Hours()
	case "day":
		job = job.Days()
	case "week":
		job = job.Weeks()
	default:
		return fmt.Errorf("invalid frequency: %s", cfg.Scheduling.FrequencyEvery)
	}

	scheduledJob, err := job.Do(jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	s.jobs[cfg.Meta.ID] = scheduledJob

	s.logger.Info("scheduled job updated",
		"id", cfg.Meta.ID,
		"frequency", fmt.Sprintf("every %d %s", cfg.Scheduling.FrequencyAmount, cfg.Scheduling.FrequencyEvery),
		"start_now", cfg.Scheduling.StartNow,
		"stop_at", cfg.Scheduling.StopAt,
	)
	return nil
}

// RemoveJob drops the job of a removed or disabled configuration.
func (s *Scheduler) RemoveJob(configID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.jobs[configID]; exists {
		s.scheduler.RemoveByReference(job)
		delete(s.jobs, configID)
		s.logger.Info("removed scheduled job", "id", configID)
	}
}
