package app

import (
	"time"

	"repobuild/internal/types"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueMemory = "memory"
	QueueSpool  = "spool"

	MetricsLog    = "log"
	MetricsStatsd = "statsd"
	MetricsNone   = "none"

	NotifyLog     = "log"
	NotifyWebhook = "webhook"
	NotifyNone    = "none"
)

// Config selects and parameterizes the adapters behind a Service.
type Config struct {
	ReposRoot    string
	Store        string
	DatabaseURL  string
	Queue        string
	QueueDir     string
	ProjectsFile string
	Metrics      string
	StatsdAddr   string
	StatsdPrefix string
	StatsdTagged bool
	GeneratorRPM string
	GeneratorDeb string
	Notify       string
	NotifyURL    string
}

type RegisterRequest struct {
	Path          string
	Name          string
	Project       string
	Arch          string
	Distro        string
	DistroVersion string
	Ref           string
	Hash          string
}

type RegisterResult struct {
	Binary  types.Binary
	Created bool
	Own     types.Repository
	Related []types.Repository
}

type ScheduleResult struct {
	Jobs []types.QueueJob
}

type BuildRequest struct {
	RepositoryID int64
	// Force flags the repository even when its project is not automatic.
	Force bool
}

type BuildResult struct {
	Report     types.BuildReport
	Repository types.Repository
}

type ServeRequest struct {
	Workers      int
	JobTimeout   time.Duration
	PollInterval time.Duration
	// Recover returns repositories left updating or queued by a previous
	// process to needs_update before workers start. Only safe with a
	// single server.
	Recover bool
}

type StatusRequest struct {
	Project string
	Refs    []string
	State   types.RepoState
}

type StatusResult struct {
	Repositories []types.Repository
	// QueueDepth counts jobs waiting for a worker.
	QueueDepth int
}

type ProjectStatus struct {
	Project   types.Project
	Automatic bool
	Disabled  bool
}
