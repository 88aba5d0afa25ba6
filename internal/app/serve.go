package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"repobuild/internal/types"
)

const (
	defaultServeWorkers      = 2
	defaultServePollInterval = 10 * time.Second
	dequeueRetryDelay        = time.Second
)

// Serve runs the scheduler loop and a pool of build workers until ctx is
// cancelled. Cancellation is a normal shutdown and returns nil.
func (s Service) Serve(ctx context.Context, req ServeRequest) error {
	ctx = log.Logger.WithContext(ctx)
	workers := req.Workers
	if workers <= 0 {
		workers = defaultServeWorkers
	}
	poll := req.PollInterval
	if poll <= 0 {
		poll = defaultServePollInterval
	}
	if err := s.recoverInterrupted(ctx, req.Recover, req.Recover || !s.DurableQueue); err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Int("workers", workers).
		Dur("poll_interval", poll).
		Dur("job_timeout", req.JobTimeout).
		Msg("build server started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.scheduleLoop(ctx, poll)
	}()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker, req.JobTimeout)
		}(i + 1)
	}
	wg.Wait()
	log.Ctx(ctx).Info().Msg("build server stopped")
	return nil
}

func (s Service) scheduleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Schedule(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Error().Err(err).Msg("scheduling failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s Service) work(ctx context.Context, worker int, timeout time.Duration) {
	for {
		job, err := s.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Ctx(ctx).Error().Err(err).Int("worker", worker).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		s.runJob(ctx, worker, job, timeout)
	}
}

// runJob builds one repository. A job is acked once the repository has
// left the queued state, since failed builds are rescheduled from
// needs_update; it is nacked only when the build never got to claim it.
func (s Service) runJob(ctx context.Context, worker int, job types.QueueJob, timeout time.Duration) {
	logger := log.Ctx(ctx).With().
		Int("worker", worker).
		Str("job", job.ID).
		Int64("repository", job.RepositoryID).
		Int("attempt", job.Attempt).
		Logger()
	jobCtx := logger.WithContext(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, timeout)
		defer cancel()
	}

	report, err := s.executor().Build(jobCtx, job.RepositoryID)
	settleCtx := context.WithoutCancel(jobCtx)
	if err != nil {
		logger.Error().Err(err).Msg("build failed")
		if s.stillQueued(settleCtx, logger, job.RepositoryID) {
			if nackErr := s.Queue.Nack(settleCtx, job); nackErr != nil {
				logger.Error().Err(nackErr).Msg("failed to nack job")
			}
			return
		}
	} else {
		logger.Debug().Str("outcome", string(report.Outcome)).Msg("job finished")
	}
	if ackErr := s.Queue.Ack(settleCtx, job); ackErr != nil {
		logger.Error().Err(ackErr).Msg("failed to ack job")
	}
}

func (s Service) stillQueued(ctx context.Context, logger zerolog.Logger, id int64) bool {
	repo, ok, err := s.Store.GetRepository(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("could not read repository state")
		return true
	}
	return ok && repo.State == types.RepoStateQueued
}

// recoverInterrupted returns interrupted work to needs_update so the
// scheduler picks it up again. Queued repositories are released when the
// queue lost their jobs, or on an explicit recover since a job read by a
// crashed server may have left the spool before its inflight record was
// written. A duplicate job for a repository is skipped by the claim.
func (s Service) recoverInterrupted(ctx context.Context, updating bool, queued bool) error {
	states := s.states()
	release := func(state types.RepoState, apply func(context.Context, int64) (types.Repository, error)) error {
		repos, err := s.Store.FindRepositories(ctx, types.RepositoryFilter{State: state})
		if err != nil {
			return err
		}
		for _, repo := range repos {
			if _, err := apply(ctx, repo.ID); err != nil {
				return err
			}
			log.Ctx(ctx).Warn().
				Int64("repository", repo.ID).
				Str("project", repo.Project).
				Str("state", string(state)).
				Msg("returning interrupted repository to needs_update")
		}
		return nil
	}
	if updating {
		if err := release(types.RepoStateUpdating, states.Fail); err != nil {
			return err
		}
	}
	if queued {
		if err := release(types.RepoStateQueued, states.Release); err != nil {
			return err
		}
	}
	return nil
}
