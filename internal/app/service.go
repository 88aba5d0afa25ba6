package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"repobuild/internal/adapters"
	"repobuild/internal/core"
	"repobuild/internal/policies"
	"repobuild/internal/ports"
)

type Service struct {
	Store     ports.StorePort
	Policy    ports.ProjectPolicyPort
	Generator ports.GeneratorPort
	Metrics   ports.MetricsPort
	Queue     ports.QueuePort
	Notifier  ports.NotifierPort
	Paths     core.PathResolver
	// DurableQueue is false when queued jobs do not survive a restart.
	DurableQueue bool
	Clock        func() time.Time

	closers []io.Closer
}

func NewService(ctx context.Context, cfg Config) (Service, error) {
	root := strings.TrimSpace(cfg.ReposRoot)
	if root == "" {
		return Service{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("repos root is required")
	}
	svc := Service{
		Paths:     core.NewPathResolver(root),
		Generator: adapters.NewGeneratorExecAdapter(adapters.ParseGeneratorCommand(cfg.GeneratorRPM), adapters.ParseGeneratorCommand(cfg.GeneratorDeb)),
		Clock:     time.Now,
	}

	projects, err := adapters.NewProjectPolicyFileAdapter().Load(cfg.ProjectsFile)
	if err != nil {
		return Service{}, err
	}
	svc.Policy = policies.NewProjectPolicy(projects.Projects)

	store, err := newStore(ctx, cfg)
	if err != nil {
		return Service{}, err
	}
	svc.Store = store
	svc.closers = append(svc.closers, store)

	switch queue := normalizeChoice(cfg.Queue, QueueMemory); queue {
	case QueueMemory:
		svc.Queue = adapters.NewMemoryQueueAdapter()
	case QueueSpool:
		spool, err := adapters.NewSpoolQueueAdapter(cfg.QueueDir)
		if err != nil {
			_ = svc.Close()
			return Service{}, err
		}
		svc.Queue = spool
		svc.closers = append(svc.closers, spool)
		svc.DurableQueue = true
	default:
		_ = svc.Close()
		return Service{}, unsupportedChoice("queue", queue)
	}

	switch metrics := normalizeChoice(cfg.Metrics, MetricsLog); metrics {
	case MetricsLog:
		svc.Metrics = adapters.NewMetricsLogAdapter()
	case MetricsStatsd:
		statsd, err := adapters.NewMetricsStatsdAdapter(cfg.StatsdAddr, cfg.StatsdPrefix, cfg.StatsdTagged)
		if err != nil {
			_ = svc.Close()
			return Service{}, err
		}
		svc.Metrics = statsd
		svc.closers = append(svc.closers, statsd)
	case MetricsNone:
		svc.Metrics = adapters.MetricsNopAdapter{}
	default:
		_ = svc.Close()
		return Service{}, unsupportedChoice("metrics", metrics)
	}

	fallback := NotifyLog
	if strings.TrimSpace(cfg.NotifyURL) != "" {
		fallback = NotifyWebhook
	}
	switch notify := normalizeChoice(cfg.Notify, fallback); notify {
	case NotifyLog:
		svc.Notifier = adapters.NotifierLogAdapter{}
	case NotifyWebhook:
		webhook, err := adapters.NewNotifierWebhookAdapter(cfg.NotifyURL)
		if err != nil {
			_ = svc.Close()
			return Service{}, err
		}
		svc.Notifier = webhook
	case NotifyNone:
		svc.Notifier = adapters.NotifierNopAdapter{}
	default:
		_ = svc.Close()
		return Service{}, unsupportedChoice("notify", notify)
	}
	return svc, nil
}

// newStore picks postgres when a database url is configured and no
// store is named explicitly.
func newStore(ctx context.Context, cfg Config) (ports.StorePort, error) {
	fallback := StoreMemory
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		fallback = StorePostgres
	}
	switch store := normalizeChoice(cfg.Store, fallback); store {
	case StoreMemory:
		return adapters.NewMemoryStoreAdapter(), nil
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("database url is required for the postgres store")
		}
		return adapters.NewPostgresStoreAdapter(ctx, cfg.DatabaseURL)
	default:
		return nil, unsupportedChoice("store", store)
	}
}

func (s Service) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s Service) resolver() core.RelatedResolver {
	return core.NewRelatedResolver(s.Store, s.Store, s.Policy)
}

func (s Service) states() core.StateMachine {
	return core.NewStateMachine(s.Store)
}

func (s Service) scheduler() core.Scheduler {
	return core.NewScheduler(s.Store, s.Queue)
}

func (s Service) executor() core.BuildExecutor {
	return core.BuildExecutor{
		Repos:     s.Store,
		Binaries:  s.Store,
		Policy:    s.Policy,
		Paths:     s.Paths,
		Generator: s.Generator,
		Metrics:   s.Metrics,
		States:    s.states(),
		Clock:     s.Clock,
		Notifier:  s.Notifier,
	}
}

func normalizeChoice(value string, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func unsupportedChoice(kind string, value string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("unsupported %s backend: %s", kind, value))
}
