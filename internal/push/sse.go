package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

// Channel is a push connection. Run blocks until the stream ends or ctx is
// cancelled and calls handle for every decoded event, in receipt order.
// Run never returns nil.
type Channel interface {
	Run(ctx context.Context, handle func(Event)) error
}

// SSEChannel reads the upstream server-sent event stream.
type SSEChannel struct {
	url  string
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

// NewSSEChannel builds a channel for url. httpClient must not carry an overall
// timeout since the stream is long lived.
func NewSSEChannel(url string, httpClient *http.Client, log *zap.Logger) *SSEChannel {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SSEChannel{url: url, http: httpClient, log: log, now: time.Now}
}

func (c *SSEChannel) Run(ctx context.Context, handle func(Event)) error {
	client := sse.NewClient(c.url)
	client.Connection = c.http
	// Reconnect policy belongs to the caller; one attempt per Run.
	client.ReconnectStrategy = &backoff.StopBackOff{}

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		c.dispatch(msg, handle)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("sse %s: %w", c.url, err)
	}
	return ErrChannelClosed
}

func (c *SSEChannel) dispatch(msg *sse.Event, handle func(Event)) {
	name := string(msg.Event)
	ev, err := Decode(name, msg.Data, c.now())
	if errors.Is(err, ErrUnknownEvent) {
		c.log.Debug("ignoring push event", zap.String("event", name))
		return
	}
	if err != nil {
		c.log.Warn("dropping push event", zap.String("event", name), zap.Error(err))
		return
	}
	handle(ev)
}
