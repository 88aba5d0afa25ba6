package app

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobuild/internal/types"
)

func TestStatusFilters(t *testing.T) {
	svc, _ := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	registerFoo(t, svc)
	_, _, err := svc.Store.GetOrCreateRepository(t.Context(), types.RepositoryKey{Project: "bar", Ref: "main", Distro: "centos", DistroVersion: "8"}, nil)
	require.NoError(t, err)

	all, err := svc.Status(t.Context(), StatusRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Repositories, 2)

	pending, err := svc.Status(t.Context(), StatusRequest{State: types.RepoStateNeedsUpdate})
	require.NoError(t, err)
	require.Len(t, pending.Repositories, 1)
	assert.Equal(t, "foo", pending.Repositories[0].Project)

	bar, err := svc.Status(t.Context(), StatusRequest{Project: "bar", Refs: []string{"main"}})
	require.NoError(t, err)
	assert.Len(t, bar.Repositories, 1)

	_, err = svc.Status(t.Context(), StatusRequest{State: "broken"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestStatusReportsQueueDepth(t *testing.T) {
	svc, _ := newTestService(t, map[string]types.ProjectConfig{"foo": {Automatic: true}})
	registerFoo(t, svc)

	before, err := svc.Status(t.Context(), StatusRequest{})
	require.NoError(t, err)
	assert.Zero(t, before.QueueDepth)

	_, err = svc.Schedule(t.Context())
	require.NoError(t, err)
	after, err := svc.Status(t.Context(), StatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, after.QueueDepth)
}

func TestProjectsListsPolicy(t *testing.T) {
	svc, _ := newTestService(t, map[string]types.ProjectConfig{
		"foo": {Automatic: true},
		"bar": {Disabled: true},
	})
	registerFoo(t, svc)
	_, _, err := svc.Store.GetOrCreateRepository(t.Context(), types.RepositoryKey{Project: "bar", Ref: "main", Distro: "centos", DistroVersion: "8"}, nil)
	require.NoError(t, err)

	projects, err := svc.Projects(t.Context())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "bar", projects[0].Project.Name)
	assert.True(t, projects[0].Disabled)
	assert.False(t, projects[0].Automatic)
	assert.Equal(t, "foo", projects[1].Project.Name)
	assert.True(t, projects[1].Automatic)
	assert.False(t, projects[1].Disabled)
}
