package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

const collectionCheckpoint = "collection"

// BuildExecutor assembles one repository tree out of symlinks to stored
// binaries and runs the metadata generator over it.
type BuildExecutor struct {
	Repos     ports.RepositoryStorePort
	Binaries  ports.BinaryStorePort
	Policy    ports.ProjectPolicyPort
	Paths     PathResolver
	Generator ports.GeneratorPort
	Metrics   ports.MetricsPort
	States    StateMachine
	Clock     func() time.Time

	// Notifier is told when a build starts and when it published the
	// repository. Optional; delivery failures are only logged.
	Notifier ports.NotifierPort
}

func (e BuildExecutor) Build(ctx context.Context, id int64) (types.BuildReport, error) {
	report := types.BuildReport{RepositoryID: id}
	repo, ok, err := e.Repos.GetRepository(ctx, id)
	if err != nil {
		return report, err
	}
	if !ok {
		log.Ctx(ctx).Info().Int64("repository", id).Msg("repository no longer exists, nothing to build")
		report.Outcome = types.BuildOutcomeMissing
		return report, nil
	}
	logger := log.Ctx(ctx).With().
		Int64("repository", repo.ID).
		Str("project", repo.Project).
		Str("ref", repo.Ref).
		Str("distro", repo.Distro).
		Str("distro_version", repo.DistroVersion).
		Logger()
	ctx = logger.WithContext(ctx)

	if e.Policy.IsDisabled(repo.Project) {
		logger.Info().Msg("project is disabled, will not process repository")
		if _, err := e.States.Disable(ctx, id); err != nil {
			return report, err
		}
		report.Outcome = types.BuildOutcomeDisabled
		return report, nil
	}

	paths, err := e.Paths.RepoPaths(repo, repo.Type)
	if err != nil {
		if _, releaseErr := e.States.Release(context.WithoutCancel(ctx), id); releaseErr != nil && !IsIllegalTransition(releaseErr) {
			logger.Error().Err(releaseErr).Msg("failed to release repository after path error")
		}
		return report, err
	}

	repo, claimed, err := e.States.BeginUpdate(ctx, id, paths.Absolute)
	if err != nil {
		return report, err
	}
	if !claimed {
		logger.Info().Str("state", string(repo.State)).Msg("repository is not queued, skipping build")
		report.Outcome = types.BuildOutcomeSkipped
		return report, nil
	}
	started := e.now()
	logger.Info().Str("path", paths.Absolute).Msg("processing repository")
	report.Path = paths.Absolute
	e.notify(ctx, types.BuildEventBuilding, repo)

	repoType, err := e.assemble(ctx, repo, paths, started, &report)
	if err != nil {
		if _, failErr := e.States.Fail(context.WithoutCancel(ctx), id); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to revert repository to needs_update")
		}
		logger.Error().Err(err).Msg("repository build failed")
		return report, err
	}
	finished, err := e.States.Finish(context.WithoutCancel(ctx), id, repoType)
	if err != nil {
		return report, err
	}
	e.Metrics.Incr(MetricName(repo.Project, repoType), MetricTags(repo))
	e.notify(ctx, types.BuildEventReady, finished)
	report.Outcome = types.BuildOutcomeBuilt
	report.Duration = e.now().Sub(started)
	logger.Info().
		Int("linked", report.Linked).
		Int("skipped", len(report.Skipped)).
		Dur("duration", report.Duration).
		Msg("finished processing repository")
	return report, nil
}

// assemble links the collected binaries and generates metadata. The
// build timer is named after the repository type, which may only be
// known once the binaries are collected, so it is anchored at started.
func (e BuildExecutor) assemble(ctx context.Context, repo types.Repository, paths RepoPaths, started time.Time, report *types.BuildReport) (types.RepoType, error) {
	binaries, err := e.collect(ctx, repo)
	if err != nil {
		return repo.Type, err
	}
	repoType := repo.Type
	if repoType == types.RepoTypeUnknown {
		repoType = inferTypeFromBinaries(binaries)
	}
	timer := e.Metrics.Timer(MetricName(repo.Project, repoType), MetricTags(repo))
	timer.StartAt(started)
	defer timer.Stop()
	timer.Intermediate(collectionCheckpoint)

	if repoType == types.RepoTypeUnknown {
		log.Ctx(ctx).Warn().Msg("repository type is unknown and no binaries identify it, nothing to generate")
		return repoType, nil
	}
	paths.ArchDirs = ArchDirectories(repoType)

	if err := makeRepoDirs(paths); err != nil {
		return repoType, err
	}
	for _, binary := range binaries {
		linked, err := linkBinary(paths, repoType, binary)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("binary", binary.Name).Msg("could not link binary")
			report.Skipped = append(report.Skipped, binary.Name)
			continue
		}
		if linked {
			report.Linked++
		}
	}

	family := FamilyForDistro(repo.Distro)
	for _, dir := range GenerationTargets(family, paths) {
		if err := e.Generator.Generate(ctx, repoType, dir); err != nil {
			return repoType, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("metadata generation failed for %s", dir)).
				WithCause(err)
		}
		report.Generated = append(report.Generated, dir)
	}
	return repoType, nil
}

// collect returns the binaries of the repository itself followed by the
// binaries pulled in from configured related projects. The set is
// recomputed on every build.
func (e BuildExecutor) collect(ctx context.Context, repo types.Repository) ([]types.Binary, error) {
	own, err := e.Binaries.FindBinaries(ctx, types.BinaryFilter{
		Project:       repo.Project,
		Distro:        repo.Distro,
		DistroVersion: repo.DistroVersion,
		Ref:           repo.Ref,
		Hash:          repo.Hash,
	})
	if err != nil {
		return nil, err
	}
	all := append([]types.Binary{}, own...)
	for _, source := range e.Policy.ExtraSources(repo.Project) {
		filters := []types.BinaryFilter{}
		if source.Refs.IsAll() {
			filters = append(filters, types.BinaryFilter{
				Project:       source.Project,
				Distro:        repo.Distro,
				DistroVersion: repo.DistroVersion,
			})
		} else {
			for _, ref := range source.Refs.List() {
				filters = append(filters, types.BinaryFilter{
					Project:       source.Project,
					Distro:        repo.Distro,
					DistroVersion: repo.DistroVersion,
					Ref:           ref,
				})
			}
		}
		for _, filter := range filters {
			extra, err := e.Binaries.FindBinaries(ctx, filter)
			if err != nil {
				return nil, err
			}
			all = append(all, extra...)
		}
	}
	log.Ctx(ctx).Debug().
		Int("own", len(own)).
		Int("extra", len(all)-len(own)).
		Msg("binaries collected")
	return all, nil
}

func makeRepoDirs(paths RepoPaths) error {
	for _, dir := range append([]string{paths.Absolute}, paths.ArchPaths()...) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to create repository directory").
				WithCause(err)
		}
	}
	return nil
}

// linkBinary symlinks the stored artifact into its arch directory. An
// existing destination counts as already linked and reports false.
func linkBinary(paths RepoPaths, repoType types.RepoType, binary types.Binary) (bool, error) {
	if binary.Name == "" || filepath.Base(binary.Name) != binary.Name {
		return false, fmt.Errorf("invalid binary name %q", binary.Name)
	}
	archDir, err := InferArchDirectory(repoType, binary.Name)
	if err != nil {
		return false, err
	}
	destination := filepath.Join(paths.Absolute, archDir, binary.Name)
	if _, err := os.Lstat(destination); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.Symlink(binary.Path, destination); err != nil {
		return false, err
	}
	return true, nil
}

func inferTypeFromBinaries(binaries []types.Binary) types.RepoType {
	for _, binary := range binaries {
		if repoType := InferRepoType(binary.Name); repoType != types.RepoTypeUnknown {
			return repoType
		}
	}
	return types.RepoTypeUnknown
}

// MetricName is create.<type>.<project>, with dots in the project name
// replaced so they do not add metric path levels.
func MetricName(project string, repoType types.RepoType) string {
	name := string(repoType)
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("create.%s.%s", name, strings.ReplaceAll(project, ".", "_"))
}

func MetricTags(repo types.Repository) map[string]string {
	return map[string]string{
		"project":        repo.Project,
		"distro":         repo.Distro,
		"distro_version": repo.DistroVersion,
		"ref":            repo.Ref,
	}
}

func (e BuildExecutor) notify(ctx context.Context, kind types.BuildEventKind, repo types.Repository) {
	if e.Notifier == nil {
		return
	}
	event := types.BuildEvent{
		Kind:          kind,
		RepositoryID:  repo.ID,
		Project:       repo.Project,
		Ref:           repo.Ref,
		Hash:          repo.Hash,
		Distro:        repo.Distro,
		DistroVersion: repo.DistroVersion,
		Type:          repo.Type,
		Path:          repo.Path,
		At:            e.now(),
	}
	if err := e.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", string(kind)).Msg("build notification failed")
	}
}

func (e BuildExecutor) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}
