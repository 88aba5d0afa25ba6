package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/shared"
)

// MetricsStatsdAdapter publishes timers and counters through a DogStatsD
// client. Tags are only sent when Tagged is set, so plain statsd servers
// keep receiving untagged lines. Send failures are logged and dropped.
type MetricsStatsdAdapter struct {
	Client statsd.ClientInterface
	Tagged bool
	Clock  func() time.Time
}

func NewMetricsStatsdAdapter(addr string, prefix string, tagged bool) (*MetricsStatsdAdapter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("statsd address is required")
	}
	options := []statsd.Option{statsd.WithoutTelemetry()}
	if prefix = strings.Trim(strings.TrimSpace(prefix), "."); prefix != "" {
		options = append(options, statsd.WithNamespace(prefix+"."))
	}
	client, err := statsd.New(addr, options...)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to open statsd client for %s", addr)).
			WithCause(err)
	}
	return &MetricsStatsdAdapter{Client: client, Tagged: tagged, Clock: time.Now}, nil
}

func (a *MetricsStatsdAdapter) Timer(name string, tags map[string]string) ports.TimerPort {
	clock := a.Clock
	if clock == nil {
		clock = time.Now
	}
	return &statsdTimer{sink: a, name: name, tags: tags, clock: clock}
}

func (a *MetricsStatsdAdapter) Incr(name string, tags map[string]string) {
	if err := a.Client.Incr(name, a.tagList(tags), 1); err != nil {
		log.Debug().Err(err).Str("metric", name).Msg("statsd counter dropped")
	}
}

// Close flushes buffered metrics.
func (a *MetricsStatsdAdapter) Close() error {
	return a.Client.Close()
}

func (a *MetricsStatsdAdapter) timing(name string, elapsed time.Duration, tags map[string]string) {
	if err := a.Client.Timing(name, elapsed, a.tagList(tags), 1); err != nil {
		log.Debug().Err(err).Str("metric", name).Msg("statsd timing dropped")
	}
}

func (a *MetricsStatsdAdapter) tagList(tags map[string]string) []string {
	if !a.Tagged || len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, key := range shared.SortedKeys(tags) {
		out = append(out, key+":"+tags[key])
	}
	return out
}

type statsdTimer struct {
	sink    *MetricsStatsdAdapter
	name    string
	tags    map[string]string
	clock   func() time.Time
	started time.Time
	last    time.Time
	stopped bool
}

func (t *statsdTimer) StartAt(at time.Time) {
	t.started = at
	t.last = at
}

func (t *statsdTimer) Intermediate(checkpoint string) {
	if t.started.IsZero() || t.stopped {
		return
	}
	now := t.clock()
	t.sink.timing(t.name+"."+checkpoint, now.Sub(t.last), t.tags)
	t.last = now
}

func (t *statsdTimer) Stop() {
	if t.started.IsZero() || t.stopped {
		return
	}
	t.stopped = true
	t.sink.timing(t.name, t.clock().Sub(t.started), t.tags)
}

var _ ports.MetricsPort = (*MetricsStatsdAdapter)(nil)
