package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

// Scheduler hands repositories that need an update to the job queue.
// The needs_update -> queued claim happens before the enqueue so a
// repository is never queued twice.
type Scheduler struct {
	Repos  ports.RepositoryStorePort
	Queue  ports.QueuePort
	States StateMachine
}

func NewScheduler(repos ports.RepositoryStorePort, queue ports.QueuePort) Scheduler {
	return Scheduler{
		Repos:  repos,
		Queue:  queue,
		States: NewStateMachine(repos),
	}
}

func (s Scheduler) ScheduleAll(ctx context.Context) ([]types.QueueJob, error) {
	pending, err := s.Repos.FindRepositories(ctx, types.RepositoryFilter{State: types.RepoStateNeedsUpdate})
	if err != nil {
		return nil, err
	}
	var jobs []types.QueueJob
	for _, repo := range pending {
		job, queued, err := s.Schedule(ctx, repo.ID)
		if err != nil {
			return jobs, err
		}
		if queued {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Schedule claims one repository and enqueues it. It reports false when
// another scheduler claimed the repository first.
func (s Scheduler) Schedule(ctx context.Context, id int64) (types.QueueJob, bool, error) {
	_, claimed, err := s.States.ClaimForQueue(ctx, id)
	if err != nil || !claimed {
		return types.QueueJob{}, false, err
	}
	job, err := s.Queue.Enqueue(ctx, id)
	if err != nil {
		if _, releaseErr := s.States.Release(context.WithoutCancel(ctx), id); releaseErr != nil {
			log.Ctx(ctx).Error().Err(releaseErr).Int64("repository", id).Msg("failed to release repository after enqueue error")
		}
		return types.QueueJob{}, false, err
	}
	log.Ctx(ctx).Debug().Int64("repository", id).Str("job", job.ID).Msg("repository queued")
	return job, true, nil
}
