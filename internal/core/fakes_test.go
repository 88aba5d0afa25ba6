package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repobuild/internal/adapters"
	"repobuild/internal/policies"
	"repobuild/internal/ports"
	"repobuild/internal/types"
)

func queueDepth(t *testing.T, queue ports.QueuePort) int {
	t.Helper()
	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	return depth
}

type generatorCall struct {
	Type types.RepoType
	Dir  string
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generatorCall
	err   error
	hook  func(ctx context.Context, dir string)
}

func (g *fakeGenerator) Generate(ctx context.Context, repoType types.RepoType, dir string) error {
	g.mu.Lock()
	g.calls = append(g.calls, generatorCall{Type: repoType, Dir: dir})
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		hook(ctx, dir)
	}
	return g.err
}

func (g *fakeGenerator) dirs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, call := range g.calls {
		out = append(out, call.Dir)
	}
	return out
}

type fakeMetrics struct {
	mu            sync.Mutex
	timers        []string
	intermediates []string
	starts        []time.Time
	stops         int
	counters      []string
}

func (m *fakeMetrics) Timer(name string, _ map[string]string) ports.TimerPort {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, name)
	return &fakeTimer{metrics: m}
}

func (m *fakeMetrics) Incr(name string, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, name)
}

type fakeTimer struct {
	metrics *fakeMetrics
}

func (t *fakeTimer) StartAt(at time.Time) {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	t.metrics.starts = append(t.metrics.starts, at)
}

func (t *fakeTimer) Intermediate(checkpoint string) {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	t.metrics.intermediates = append(t.metrics.intermediates, checkpoint)
}

func (t *fakeTimer) Stop() {
	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()
	t.metrics.stops++
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.BuildEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event types.BuildEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) kinds() []types.BuildEventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.BuildEventKind, 0, len(n.events))
	for _, event := range n.events {
		out = append(out, event.Kind)
	}
	return out
}

type buildFixture struct {
	root      string
	store     *adapters.MemoryStoreAdapter
	policy    policies.ProjectPolicy
	generator *fakeGenerator
	metrics   *fakeMetrics
	notifier  *recordingNotifier
	executor  BuildExecutor
	resolver  RelatedResolver
}

func newBuildFixture(t *testing.T, projects map[string]types.ProjectConfig) *buildFixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "repos")
	store := adapters.NewMemoryStoreAdapter()
	policy := policies.NewProjectPolicy(projects)
	generator := &fakeGenerator{}
	metrics := &fakeMetrics{}
	notifier := &recordingNotifier{}
	return &buildFixture{
		root:      root,
		store:     store,
		policy:    policy,
		generator: generator,
		metrics:   metrics,
		notifier:  notifier,
		executor: BuildExecutor{
			Repos:     store,
			Binaries:  store,
			Policy:    policy,
			Paths:     NewPathResolver(root),
			Generator: generator,
			Metrics:   metrics,
			States:    NewStateMachine(store),
			Notifier:  notifier,
		},
		resolver: NewRelatedResolver(store, store, policy),
	}
}

// storeBinary writes a payload for binary under a scratch directory and
// records it in the store.
func (f *buildFixture) storeBinary(t *testing.T, binary types.Binary) types.Binary {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "binaries")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	binary.Path = filepath.Join(dir, binary.Name)
	require.NoError(t, os.WriteFile(binary.Path, []byte(binary.Name), 0o644))
	stored, _, err := f.store.UpsertBinary(t.Context(), binary)
	require.NoError(t, err)
	return stored
}

func (f *buildFixture) queuedRepo(t *testing.T, key types.RepositoryKey, repoType types.RepoType) types.Repository {
	t.Helper()
	repo, _, err := f.store.GetOrCreateRepository(t.Context(), key, func(repo *types.Repository) {
		repo.State = types.RepoStateQueued
		repo.Type = repoType
	})
	require.NoError(t, err)
	return repo
}

func (f *buildFixture) repo(t *testing.T, id int64) types.Repository {
	t.Helper()
	repo, ok, err := f.store.GetRepository(t.Context(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return repo
}

func (f *buildFixture) requeue(t *testing.T, id int64) {
	t.Helper()
	_, err := f.store.UpdateRepository(t.Context(), id, func(repo *types.Repository) error {
		repo.State = types.RepoStateQueued
		return nil
	})
	require.NoError(t, err)
}

func fooBinary() types.Binary {
	return types.Binary{
		Name:          "foo-1.0-1.x86_64.rpm",
		Project:       "foo",
		Arch:          "x86_64",
		Distro:        "centos",
		DistroVersion: "8",
		Ref:           "main",
	}
}

func fooKey() types.RepositoryKey {
	return types.RepositoryKey{Project: "foo", Ref: "main", Distro: "centos", DistroVersion: "8"}
}
