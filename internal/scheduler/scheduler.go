// Package scheduler triggers batch candidate-generation runs on a cron
// schedule, for watchlists that should refresh automatically instead of
// waiting on an explicit API call.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/domain"
	"github.com/optionagent/agent/internal/run"
)

// BatchJob is one scheduled watchlist to run on a schedule.
type BatchJob struct {
	Name      string
	Schedule  string // standard 5-field cron expression
	IPSID     string
	UserID    string
	Watchlist []string
}

// Scheduler manages cron-triggered batch runs against the run.Controller.
type Scheduler struct {
	cron       *cron.Cron
	controller *run.Controller
	log        zerolog.Logger
}

// New builds a Scheduler bound to controller.
func New(controller *run.Controller, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		controller: controller,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers job to run on its cron schedule.
func (s *Scheduler) AddJob(job BatchJob) error {
	_, err := s.cron.AddFunc(job.Schedule, func() {
		s.log.Info().Str("job", job.Name).Msg("running scheduled batch")
		outcome := s.controller.Execute(context.Background(), run.StartRequest{
			Mode: domain.ModeBacktest, IPSID: job.IPSID, UserID: job.UserID, Watchlist: job.Watchlist,
		})
		if outcome.Run.Status == domain.StatusFailed {
			s.log.Error().Str("job", job.Name).Str("error_kind", string(outcome.Run.ErrorKind)).Msg("scheduled batch failed")
			return
		}
		s.log.Info().Str("job", job.Name).Int("selected", len(outcome.Selected)).Msg("scheduled batch completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job registered")
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for in-flight jobs to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}
