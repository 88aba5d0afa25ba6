package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobuild/internal/adapters"
	"repobuild/internal/core"
	"repobuild/internal/policies"
	"repobuild/internal/types"
)

type recordingGenerator struct {
	mu   sync.Mutex
	dirs []string
	err  error
}

func (g *recordingGenerator) Generate(_ context.Context, _ types.RepoType, dir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirs = append(g.dirs, dir)
	return g.err
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dirs)
}

func newTestService(t *testing.T, projects map[string]types.ProjectConfig) (Service, *recordingGenerator) {
	t.Helper()
	generator := &recordingGenerator{}
	return Service{
		Store:     adapters.NewMemoryStoreAdapter(),
		Policy:    policies.NewProjectPolicy(projects),
		Generator: generator,
		Metrics:   adapters.MetricsNopAdapter{},
		Queue:     adapters.NewMemoryQueueAdapter(),
		Paths:     core.NewPathResolver(filepath.Join(t.TempDir(), "repos")),
		Clock:     time.Now,
	}, generator
}

func writeArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("payload of "+name), 0o644))
	return path
}

func TestNewServiceDefaults(t *testing.T) {
	svc, err := NewService(t.Context(), Config{ReposRoot: t.TempDir()})
	require.NoError(t, err)
	defer svc.Close()

	assert.IsType(t, &adapters.MemoryStoreAdapter{}, svc.Store)
	assert.IsType(t, &adapters.MemoryQueueAdapter{}, svc.Queue)
	assert.IsType(t, adapters.MetricsLogAdapter{}, svc.Metrics)
	assert.IsType(t, adapters.NotifierLogAdapter{}, svc.Notifier)
	assert.False(t, svc.DurableQueue)
	generator, ok := svc.Generator.(adapters.GeneratorExecAdapter)
	require.True(t, ok)
	assert.Equal(t, adapters.DefaultRPMGenerator, generator.RPMCommand)
}

func TestNewServiceSpoolQueueAndProjects(t *testing.T) {
	dir := t.TempDir()
	projectsFile := filepath.Join(dir, "projects.yaml")
	require.NoError(t, os.WriteFile(projectsFile, []byte("projects:\n  foo:\n    automatic: true\n"), 0o644))

	svc, err := NewService(t.Context(), Config{
		ReposRoot:    filepath.Join(dir, "repos"),
		Queue:        "spool",
		QueueDir:     filepath.Join(dir, "queue"),
		ProjectsFile: projectsFile,
		Metrics:      "none",
		GeneratorRPM: "createrepo_c --no-database",
	})
	require.NoError(t, err)
	defer svc.Close()

	assert.IsType(t, &adapters.SpoolQueueAdapter{}, svc.Queue)
	assert.True(t, svc.DurableQueue)
	assert.True(t, svc.Policy.IsAutomatic("foo"))
	generator := svc.Generator.(adapters.GeneratorExecAdapter)
	assert.Equal(t, []string{"createrepo_c", "--no-database"}, generator.RPMCommand)
}

func TestNewServiceWebhookNotifier(t *testing.T) {
	svc, err := NewService(t.Context(), Config{ReposRoot: t.TempDir(), NotifyURL: "https://hooks.example.com/repos"})
	require.NoError(t, err)
	defer svc.Close()

	webhook, ok := svc.Notifier.(adapters.NotifierWebhookAdapter)
	require.True(t, ok)
	assert.Equal(t, "https://hooks.example.com/repos", webhook.URL)
	assert.Equal(t, svc.Notifier, svc.executor().Notifier)
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing root", cfg: Config{}},
		{name: "unknown store", cfg: Config{ReposRoot: "/srv/repos", Store: "sqlite"}},
		{name: "postgres without url", cfg: Config{ReposRoot: "/srv/repos", Store: "postgres"}},
		{name: "unknown queue", cfg: Config{ReposRoot: "/srv/repos", Queue: "kafka"}},
		{name: "unknown metrics", cfg: Config{ReposRoot: "/srv/repos", Metrics: "prometheus"}},
		{name: "statsd without address", cfg: Config{ReposRoot: "/srv/repos", Metrics: "statsd"}},
		{name: "unknown notify", cfg: Config{ReposRoot: "/srv/repos", Notify: "smtp"}},
		{name: "webhook without url", cfg: Config{ReposRoot: "/srv/repos", Notify: "webhook"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(t.Context(), tt.cfg)
			require.Error(t, err)
			assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
		})
	}
}
