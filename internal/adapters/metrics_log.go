package adapters

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/shared"
)

// MetricsLogAdapter writes timers and counters as structured log events.
type MetricsLogAdapter struct {
	Logger *zerolog.Logger
	Clock  func() time.Time
}

func NewMetricsLogAdapter() MetricsLogAdapter {
	return MetricsLogAdapter{Clock: time.Now}
}

func (a MetricsLogAdapter) Timer(name string, tags map[string]string) ports.TimerPort {
	clock := a.Clock
	if clock == nil {
		clock = time.Now
	}
	return &logTimer{logger: a.logger(), name: name, tags: tags, clock: clock}
}

func (a MetricsLogAdapter) Incr(name string, tags map[string]string) {
	event := a.logger().Info().Str("metric", name).Str("kind", "counter").Int("value", 1)
	withTags(event, tags).Msg("metric")
}

func (a MetricsLogAdapter) logger() *zerolog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return &log.Logger
}

type logTimer struct {
	logger  *zerolog.Logger
	name    string
	tags    map[string]string
	clock   func() time.Time
	started time.Time
	last    time.Time
	stopped bool
}

func (t *logTimer) StartAt(at time.Time) {
	t.started = at
	t.last = at
}

func (t *logTimer) Intermediate(checkpoint string) {
	if t.started.IsZero() || t.stopped {
		return
	}
	now := t.clock()
	event := t.logger.Info().
		Str("metric", t.name+"."+checkpoint).
		Str("kind", "timer").
		Dur("elapsed", now.Sub(t.last))
	withTags(event, t.tags).Msg("metric")
	t.last = now
}

func (t *logTimer) Stop() {
	if t.started.IsZero() || t.stopped {
		return
	}
	t.stopped = true
	event := t.logger.Info().
		Str("metric", t.name).
		Str("kind", "timer").
		Dur("elapsed", t.clock().Sub(t.started))
	withTags(event, t.tags).Msg("metric")
}

func withTags(event *zerolog.Event, tags map[string]string) *zerolog.Event {
	for _, key := range shared.SortedKeys(tags) {
		event = event.Str(key, tags[key])
	}
	return event
}

// MetricsNopAdapter discards all telemetry.
type MetricsNopAdapter struct{}

func (MetricsNopAdapter) Timer(string, map[string]string) ports.TimerPort { return nopTimer{} }

func (MetricsNopAdapter) Incr(string, map[string]string) {}

type nopTimer struct{}

func (nopTimer) StartAt(time.Time)   {}
func (nopTimer) Intermediate(string) {}
func (nopTimer) Stop()               {}

var (
	_ ports.MetricsPort = MetricsLogAdapter{}
	_ ports.MetricsPort = MetricsNopAdapter{}
)
