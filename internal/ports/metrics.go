package ports

import "time"

// MetricsPort publishes build telemetry. Implementations must not
// block builds or surface errors to callers.
type MetricsPort interface {
	Timer(name string, tags map[string]string) TimerPort
	Incr(name string, tags map[string]string)
}

// TimerPort measures one build. StartAt anchors the timer at an
// instant that may lie in the past; a timer never started stays silent.
type TimerPort interface {
	StartAt(at time.Time)
	Intermediate(checkpoint string)
	Stop()
}
