package adapters

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestMetricsLogTimerAndCounter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	clock := &steppingClock{now: time.Unix(0, 0), step: time.Second}
	metrics := MetricsLogAdapter{Logger: &logger, Clock: clock.Now}
	tags := map[string]string{"project": "foo", "distro": "centos"}

	timer := metrics.Timer("create.rpm.foo", tags)
	timer.StartAt(clock.Now())
	timer.Intermediate("collection")
	timer.Stop()
	timer.Stop()
	metrics.Incr("create.rpm.foo", tags)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"metric":"create.rpm.foo.collection"`)
	assert.Contains(t, lines[0], `"project":"foo"`)
	assert.Contains(t, lines[1], `"metric":"create.rpm.foo"`)
	assert.Contains(t, lines[1], `"kind":"timer"`)
	assert.Contains(t, lines[2], `"kind":"counter"`)
}

func TestMetricsLogTimerWithoutStartIsSilent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	timer := MetricsLogAdapter{Logger: &logger}.Timer("create.deb.bar", nil)
	timer.Intermediate("collection")
	timer.Stop()
	assert.Empty(t, buf.String())
}

type statsdCall struct {
	kind  string
	name  string
	value time.Duration
	tags  []string
}

type recordingStatsd struct {
	*statsd.NoOpClient
	calls []statsdCall
	err   error
}

func (r *recordingStatsd) Timing(name string, value time.Duration, tags []string, _ float64) error {
	r.calls = append(r.calls, statsdCall{kind: "timing", name: name, value: value, tags: tags})
	return r.err
}

func (r *recordingStatsd) Incr(name string, tags []string, _ float64) error {
	r.calls = append(r.calls, statsdCall{kind: "incr", name: name, tags: tags})
	return r.err
}

func TestMetricsStatsdTimerAndCounter(t *testing.T) {
	client := &recordingStatsd{NoOpClient: &statsd.NoOpClient{}}
	clock := &steppingClock{now: time.Unix(0, 0), step: 250 * time.Millisecond}
	metrics := &MetricsStatsdAdapter{Client: client, Tagged: true, Clock: clock.Now}

	timer := metrics.Timer("create.rpm.foo", map[string]string{"ref": "main", "distro": "centos"})
	timer.StartAt(clock.Now())
	timer.Intermediate("collection")
	timer.Stop()
	timer.Stop()
	metrics.Incr("create.rpm.foo", nil)

	want := []statsdCall{
		{kind: "timing", name: "create.rpm.foo.collection", value: 250 * time.Millisecond, tags: []string{"distro:centos", "ref:main"}},
		{kind: "timing", name: "create.rpm.foo", value: 500 * time.Millisecond, tags: []string{"distro:centos", "ref:main"}},
		{kind: "incr", name: "create.rpm.foo"},
	}
	if diff := cmp.Diff(want, client.calls, cmp.AllowUnexported(statsdCall{})); diff != "" {
		t.Fatalf("unexpected statsd calls (-want +got):\n%s", diff)
	}
}

func TestMetricsStatsdUntaggedAndFailuresDropped(t *testing.T) {
	client := &recordingStatsd{NoOpClient: &statsd.NoOpClient{}, err: errors.New("socket closed")}
	metrics := &MetricsStatsdAdapter{Client: client}

	timer := metrics.Timer("create.deb.bar", map[string]string{"ref": "main"})
	timer.StartAt(time.Now())
	timer.Stop()
	metrics.Incr("create.deb.bar", map[string]string{"ref": "main"})

	require.Len(t, client.calls, 2)
	assert.Nil(t, client.calls[0].tags)
	assert.Nil(t, client.calls[1].tags)
}

func TestMetricsStatsdSendsOverUDP(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	metrics, err := NewMetricsStatsdAdapter(listener.LocalAddr().String(), "repobuild", false)
	require.NoError(t, err)
	metrics.Incr("create.rpm.foo", nil)
	require.NoError(t, metrics.Close())

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "repobuild.create.rpm.foo:1|c")
}

func TestMetricsStatsdRequiresAddress(t *testing.T) {
	_, err := NewMetricsStatsdAdapter("", "", false)
	require.Error(t, err)
}

func TestMetricsNop(t *testing.T) {
	timer := MetricsNopAdapter{}.Timer("x", nil)
	timer.StartAt(time.Now())
	timer.Intermediate("collection")
	timer.Stop()
	MetricsNopAdapter{}.Incr("x", nil)
}
