// Package poller fetches device commands for an account in the background.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/account"
	"github.com/telekom/account-client/pkg/metrics"
)

// DefaultInterval is the delay between two polls.
const DefaultInterval = time.Second

// Source is the part of *account.Account the poller needs.
type Source interface {
	FetchMissedCommands(ctx context.Context) ([]account.DeviceCommand, error)
}

// Handler receives every fetched command in index order.
type Handler func(ctx context.Context, cmd account.DeviceCommand)

type Poller struct {
	source   Source
	interval time.Duration
	handler  Handler
	log      *zap.SugaredLogger
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithHandler(h Handler) Option {
	return func(p *Poller) {
		p.handler = h
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

func New(source Source, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "CommandPoller")
	return p
}

// Run polls until ctx is done and returns ctx.Err(). Each cycle waits one
// interval before fetching. Fetch failures are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Infow("Starting command poller", "interval", p.interval.String())
	for {
		select {
		case <-ctx.Done():
			p.log.Infow("Command poller stopping (context done)")
			return ctx.Err()
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	commands, err := p.source.FetchMissedCommands(ctx)
	switch {
	case err == nil:
		metrics.CommandPolls.WithLabelValues("success").Inc()
	case ctx.Err() != nil:
		// cancelled mid-fetch; Run reports it
		return
	case errors.Is(err, account.ErrNotFound):
		metrics.CommandPolls.WithLabelValues("empty").Inc()
		p.log.Debugw("No device command queue", "error", err)
		return
	case errors.Is(err, account.ErrNotAuthenticated):
		metrics.CommandPolls.WithLabelValues("unauthenticated").Inc()
		p.log.Debugw("Skipping command poll", "error", err)
		return
	default:
		metrics.CommandPolls.WithLabelValues("error").Inc()
		p.log.Warnw("Failed to fetch device commands", "error", err)
		if len(commands) == 0 {
			return
		}
	}
	for _, cmd := range commands {
		metrics.DeviceCommandsReceived.WithLabelValues(cmd.Name).Inc()
		p.log.Infow("Device command received", "command", cmd.Name, "index", cmd.Index)
		if p.handler != nil {
			p.handler(ctx, cmd)
		}
	}
}

// Start runs the poller in its own goroutine. The returned function cancels it
// and waits for the loop to exit; it is safe to call more than once.
func (p *Poller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Run(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
