package core

import (
	"context"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"

	"repobuild/internal/policies"
	"repobuild/internal/ports"
	"repobuild/internal/types"
)

// RelatedResolver decides which repositories an uploaded binary makes
// stale: the binary's own repository and every repository of a project
// that folds the binary's project into its own builds.
type RelatedResolver struct {
	Projects ports.ProjectStorePort
	Repos    ports.RepositoryStorePort
	Policy   ports.ProjectPolicyPort
}

func NewRelatedResolver(projects ports.ProjectStorePort, repos ports.RepositoryStorePort, policy ports.ProjectPolicyPort) RelatedResolver {
	return RelatedResolver{
		Projects: projects,
		Repos:    repos,
		Policy:   policy,
	}
}

// MarkOwn get-or-creates the repository the binary belongs to and flags
// it when its project rebuilds automatically.
func (r RelatedResolver) MarkOwn(ctx context.Context, binary types.Binary) (types.Repository, error) {
	assert.NotEmpty(ctx, binary.Project, "binary project must be set")
	if _, err := r.Projects.GetOrCreateProject(ctx, binary.Project); err != nil {
		return types.Repository{}, err
	}
	key := types.RepositoryKey{
		Project:       binary.Project,
		Ref:           binary.Ref,
		Hash:          binary.Hash,
		Distro:        binary.Distro,
		DistroVersion: binary.DistroVersion,
	}
	repo, _, err := r.Repos.GetOrCreateRepository(ctx, key, initRepository(binary))
	if err != nil {
		return types.Repository{}, err
	}
	return r.flag(ctx, repo, binary)
}

// MarkRelated flags the repositories of every project that declares the
// binary's project as related. Projects with no matching repository get
// one placeholder repository keyed by the binary's coordinates.
func (r RelatedResolver) MarkRelated(ctx context.Context, binary types.Binary) ([]types.Repository, error) {
	assert.NotEmpty(ctx, binary.Project, "binary project must be set")
	logger := log.Ctx(ctx).With().Str("trigger", binary.Project).Logger()

	seen := map[int64]struct{}{}
	var marked []types.Repository
	for _, dependent := range r.Policy.Dependents(binary.Project) {
		if !policies.ValidProjectName(dependent.Project) || dependent.Refs.IsEmpty() {
			logger.Warn().Str("related", dependent.Project).Msg("skipping misconfigured related project")
			continue
		}
		if _, err := r.Projects.GetOrCreateProject(ctx, dependent.Project); err != nil {
			return nil, err
		}
		repos, err := r.Repos.FindRepositories(ctx, types.RepositoryFilter{
			Project: dependent.Project,
			Refs:    dependent.Refs.List(),
		})
		if err != nil {
			return nil, err
		}
		if len(repos) == 0 {
			key := types.RepositoryKey{
				Project:       dependent.Project,
				Ref:           binary.Ref,
				Hash:          binary.Hash,
				Distro:        binary.Distro,
				DistroVersion: binary.DistroVersion,
			}
			placeholder, created, err := r.Repos.GetOrCreateRepository(ctx, key, initRepository(binary))
			if err != nil {
				return nil, err
			}
			if created {
				logger.Info().
					Str("project", dependent.Project).
					Str("ref", binary.Ref).
					Msg("created placeholder repository for related project")
			}
			repos = []types.Repository{placeholder}
		}
		for _, repo := range repos {
			if _, ok := seen[repo.ID]; ok {
				continue
			}
			seen[repo.ID] = struct{}{}
			updated, err := r.flag(ctx, repo, binary)
			if err != nil {
				return nil, err
			}
			marked = append(marked, updated)
		}
	}
	logger.Debug().Int("repositories", len(marked)).Msg("related repositories resolved")
	return marked, nil
}

func (r RelatedResolver) flag(ctx context.Context, repo types.Repository, binary types.Binary) (types.Repository, error) {
	automatic := r.Policy.IsAutomatic(repo.Project)
	repoType := InferRepoType(binary.Name)
	return r.Repos.UpdateRepository(ctx, repo.ID, func(current *types.Repository) error {
		if automatic {
			if err := RequestRebuild(current); err != nil {
				return err
			}
		}
		if current.Type == types.RepoTypeUnknown {
			current.Type = repoType
		}
		return nil
	})
}

func initRepository(binary types.Binary) func(*types.Repository) {
	return func(repo *types.Repository) {
		repo.State = types.RepoStateIdle
		repo.Type = InferRepoType(binary.Name)
	}
}
