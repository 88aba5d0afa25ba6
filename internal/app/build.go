package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repobuild/internal/types"
)

// ErrRepositoryBusy is the cause of the error BuildRepository returns when
// the repository is neither waiting for a build nor forceable.
var ErrRepositoryBusy = errors.New("repository is not waiting for a build")

// BuildRepository runs one build inline, bypassing the job queue. The
// repository must be waiting in needs_update (or be forced there) so the
// usual claims still keep builds of one repository exclusive.
func (s Service) BuildRepository(ctx context.Context, req BuildRequest) (BuildResult, error) {
	ctx = log.Logger.WithContext(ctx)
	if req.RepositoryID <= 0 {
		return BuildResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repository id is required")
	}
	states := s.states()
	repo, ok, err := s.Store.GetRepository(ctx, req.RepositoryID)
	if err != nil {
		return BuildResult{}, err
	}
	if !ok {
		return BuildResult{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("repository %d not found", req.RepositoryID))
	}
	if req.Force && repo.State == types.RepoStateIdle {
		if _, err := states.Transition(ctx, repo.ID, types.RepoStateNeedsUpdate, nil); err != nil {
			return BuildResult{}, err
		}
	}
	if repo.State != types.RepoStateQueued {
		_, claimed, err := states.ClaimForQueue(ctx, repo.ID)
		if err != nil {
			return BuildResult{}, err
		}
		if !claimed {
			current, _, err := s.Store.GetRepository(ctx, repo.ID)
			if err != nil {
				return BuildResult{}, err
			}
			return BuildResult{Repository: current}, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("repository %d is %s, not waiting for a build", repo.ID, current.State)).
				WithCause(ErrRepositoryBusy)
		}
	}

	report, buildErr := s.executor().Build(ctx, repo.ID)
	current, _, err := s.Store.GetRepository(ctx, repo.ID)
	if err != nil && buildErr == nil {
		buildErr = err
	}
	return BuildResult{Report: report, Repository: current}, buildErr
}
