package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobuild/internal/types"
)

func registerFoo(t *testing.T, svc Service) RegisterResult {
	t.Helper()
	result, err := svc.RegisterBinary(t.Context(), RegisterRequest{
		Path:          writeArtifact(t, "foo-1.0-1.x86_64.rpm"),
		Project:       "foo",
		Distro:        "centos",
		DistroVersion: "8",
		Ref:           "main",
	})
	require.NoError(t, err)
	return result
}

func TestBuildRepositoryInline(t *testing.T) {
	svc, generator := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	registered := registerFoo(t, svc)

	result, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID})
	require.NoError(t, err)
	assert.Equal(t, types.BuildOutcomeBuilt, result.Report.Outcome)
	assert.Equal(t, types.RepoStateIdle, result.Repository.State)
	assert.Equal(t, 4, generator.calls())

	target, err := os.Readlink(filepath.Join(result.Repository.Path, "x86_64", "foo-1.0-1.x86_64.rpm"))
	require.NoError(t, err)
	assert.Equal(t, registered.Binary.Path, target)
}

func TestBuildRepositoryRequiresPendingWork(t *testing.T) {
	svc, generator := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: false}})
	registered := registerFoo(t, svc)
	require.Equal(t, types.RepoStateIdle, registered.Own.State)

	_, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.ErrorIs(t, err, ErrRepositoryBusy)
	assert.Zero(t, generator.calls())

	result, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID, Force: true})
	require.NoError(t, err)
	assert.Equal(t, types.BuildOutcomeBuilt, result.Report.Outcome)
	assert.Equal(t, types.RepoStateIdle, result.Repository.State)
}

func TestBuildRepositoryFailureReturnsToNeedsUpdate(t *testing.T) {
	svc, generator := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	generator.err = errors.New("createrepo failed")
	registered := registerFoo(t, svc)

	result, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID})
	require.Error(t, err)
	assert.Equal(t, types.RepoStateNeedsUpdate, result.Repository.State)
}

func TestBuildRepositoryUnknownID(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: 77})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = svc.BuildRepository(t.Context(), BuildRequest{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestBuildRepositoryWithSlashedRef(t *testing.T) {
	svc, generator := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	registered, err := svc.RegisterBinary(t.Context(), RegisterRequest{
		Path:          writeArtifact(t, "foo-1.0-1.x86_64.rpm"),
		Project:       "foo",
		Distro:        "centos",
		DistroVersion: "8",
		Ref:           "feature/x",
	})
	require.NoError(t, err)
	require.Equal(t, types.RepoStateNeedsUpdate, registered.Own.State)

	scheduled, err := svc.Schedule(t.Context())
	require.NoError(t, err)
	require.Len(t, scheduled.Jobs, 1)

	result, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID})
	require.NoError(t, err)
	assert.Equal(t, types.BuildOutcomeBuilt, result.Report.Outcome)
	assert.Equal(t, types.RepoStateIdle, result.Repository.State)
	assert.Equal(t, "feature%2Fx", filepath.Base(filepath.Dir(filepath.Dir(result.Repository.Path))))
	assert.Equal(t, 4, generator.calls())

	_, err = os.Readlink(filepath.Join(result.Repository.Path, "x86_64", "foo-1.0-1.x86_64.rpm"))
	require.NoError(t, err)

	again, err := svc.Schedule(t.Context())
	require.NoError(t, err)
	assert.Empty(t, again.Jobs)
}

type eventLog struct {
	mu     sync.Mutex
	events []types.BuildEvent
}

func (l *eventLog) Notify(_ context.Context, event types.BuildEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func TestBuildRepositoryAnnouncesReadyRepository(t *testing.T) {
	svc, _ := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	events := &eventLog{}
	svc.Notifier = events
	registered := registerFoo(t, svc)

	result, err := svc.BuildRepository(t.Context(), BuildRequest{RepositoryID: registered.Own.ID})
	require.NoError(t, err)
	require.Len(t, events.events, 2)
	assert.Equal(t, types.BuildEventBuilding, events.events[0].Kind)
	assert.Equal(t, types.BuildEventReady, events.events[1].Kind)
	assert.Equal(t, result.Repository.Path, events.events[1].Path)
}
