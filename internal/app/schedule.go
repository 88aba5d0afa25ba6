package app

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Schedule queues every repository waiting in needs_update.
func (s Service) Schedule(ctx context.Context) (ScheduleResult, error) {
	ctx = log.Logger.WithContext(ctx)
	jobs, err := s.scheduler().ScheduleAll(ctx)
	if err != nil {
		return ScheduleResult{Jobs: jobs}, err
	}
	if len(jobs) > 0 {
		log.Ctx(ctx).Info().Int("jobs", len(jobs)).Msg("repositories scheduled")
	}
	return ScheduleResult{Jobs: jobs}, nil
}
