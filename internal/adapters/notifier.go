package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"repobuild/internal/ports"
	"repobuild/internal/shared"
	"repobuild/internal/types"
)

const (
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookRetries  = 3
	defaultWebhookInterval = 500 * time.Millisecond
	webhookErrorBodyLimit  = 512
)

// NotifierLogAdapter records build events as structured log lines.
type NotifierLogAdapter struct {
	Logger *zerolog.Logger
}

func (a NotifierLogAdapter) Notify(ctx context.Context, event types.BuildEvent) error {
	logger := a.Logger
	if logger == nil {
		logger = log.Ctx(ctx)
	}
	logger.Info().
		Str("event", string(event.Kind)).
		Int64("repository", event.RepositoryID).
		Str("project", event.Project).
		Str("ref", event.Ref).
		Str("distro", event.Distro).
		Str("distro_version", event.DistroVersion).
		Str("path", event.Path).
		Msg("repository event")
	return nil
}

// NotifierWebhookAdapter POSTs each event as JSON. Server errors and
// transport failures are retried with exponential backoff; a 4xx answer
// is final.
type NotifierWebhookAdapter struct {
	URL           string
	Client        *http.Client
	Retries       uint64
	RetryInterval time.Duration
}

func NewNotifierWebhookAdapter(url string) (NotifierWebhookAdapter, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return NotifierWebhookAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("notify url must be http or https: %q", url))
	}
	return NotifierWebhookAdapter{
		URL:           url,
		Client:        &http.Client{Timeout: defaultWebhookTimeout},
		Retries:       defaultWebhookRetries,
		RetryInterval: defaultWebhookInterval,
	}, nil
}

func (a NotifierWebhookAdapter) Notify(ctx context.Context, event types.BuildEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode build event").
			WithCause(err)
	}
	policy := backoff.NewExponentialBackOff()
	if a.RetryInterval > 0 {
		policy.InitialInterval = a.RetryInterval
	}
	err = backoff.Retry(func() error {
		return a.post(ctx, body)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, a.Retries), ctx))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to deliver %s event for repository %d", event.Kind, event.RepositoryID)).
			WithCause(err)
	}
	return nil
}

func (a NotifierWebhookAdapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	answer, _ := io.ReadAll(io.LimitReader(resp.Body, webhookErrorBodyLimit))
	statusErr := shared.HTTPStatusErrorWithBody(resp.StatusCode, a.URL, string(answer))
	if resp.StatusCode >= 500 {
		return statusErr
	}
	return backoff.Permanent(statusErr)
}

// NotifierNopAdapter drops every event.
type NotifierNopAdapter struct{}

func (NotifierNopAdapter) Notify(context.Context, types.BuildEvent) error { return nil }

var (
	_ ports.NotifierPort = NotifierLogAdapter{}
	_ ports.NotifierPort = NotifierWebhookAdapter{}
	_ ports.NotifierPort = NotifierNopAdapter{}
)
