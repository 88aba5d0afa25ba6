package app

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"repobuild/internal/types"
)

func (s Service) Status(ctx context.Context, req StatusRequest) (StatusResult, error) {
	if req.State != "" && !req.State.Valid() {
		return StatusResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unknown repository state: %s", req.State))
	}
	repos, err := s.Store.FindRepositories(ctx, types.RepositoryFilter{
		Project: req.Project,
		Refs:    req.Refs,
		State:   req.State,
	})
	if err != nil {
		return StatusResult{}, err
	}
	depth, err := s.Queue.Depth(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Repositories: repos, QueueDepth: depth}, nil
}

// Projects lists every stored project with its build policy.
func (s Service) Projects(ctx context.Context) ([]ProjectStatus, error) {
	projects, err := s.Store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProjectStatus, 0, len(projects))
	for _, project := range projects {
		out = append(out, ProjectStatus{
			Project:   project,
			Automatic: s.Policy.IsAutomatic(project.Name),
			Disabled:  s.Policy.IsDisabled(project.Name),
		})
	}
	return out, nil
}
