// Package notify delivers operator notifications. Sinks are fire-and-forget:
// Notify never blocks the caller on the network and never reports failure.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"memberpay/internal/platform/secrets"
)

type Sink interface {
	Notify(ctx context.Context, message string)
}

type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Log writes notifications to the structured log only.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(_ context.Context, message string) {
	l.Logger.Info().Str("notification", message).Msg("notify")
}

// Discord posts to a Discord webhook whose URL is resolved from secrets on
// every send. Delivery runs in the background.
type Discord struct {
	client     *resty.Client
	secrets    secrets.Provider
	secretName string
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewDiscord(sp secrets.Provider, secretName string, timeout time.Duration) *Discord {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Discord{
		client:     resty.New().SetTimeout(timeout),
		secrets:    sp,
		secretName: secretName,
		timeout:    timeout,
	}
}

func (d *Discord) Notify(ctx context.Context, message string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Detached from the caller: the request that triggered the
		// notification is usually finished before delivery.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.send(sendCtx, message)
	}()
}

func (d *Discord) send(ctx context.Context, message string) {
	hookURL, err := d.secrets.GetSecret(ctx, d.secretName)
	if err != nil {
		log.Debug().Err(err).Msg("discord webhook not configured, notification dropped")
		return
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": truncate(message, 2000)}).
		Post(hookURL)
	if err != nil {
		log.Warn().Err(err).Msg("discord notification failed")
		return
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Msg("discord notification rejected")
	}
}

// Wait blocks until in-flight deliveries finish. Called on shutdown.
func (d *Discord) Wait() {
	d.wg.Wait()
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, message string) {
	for _, s := range m {
		s.Notify(ctx, message)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
