package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/account-client/pkg/account"
	"github.com/telekom/account-client/pkg/account/poller"
	"github.com/telekom/account-client/pkg/acctl/output"
	"github.com/telekom/account-client/pkg/audit"
	"github.com/telekom/account-client/pkg/metrics"
)

func NewPollCommand() *cobra.Command {
	var (
		interval    time.Duration
		once        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Receive device commands sent to this device",
		Long: `Poll the account server for device commands addressed to this device and
print each one as it arrives. Runs until interrupted unless --once is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if interval == 0 && rt.cfg != nil && rt.cfg.Settings.PollInterval != "" {
				interval, err = time.ParseDuration(rt.cfg.Settings.PollInterval)
				if err != nil {
					return fmt.Errorf("invalid poll-interval setting: %w", err)
				}
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if once {
				commands, err := s.account.FetchMissedCommands(cmd.Context())
				if err != nil && !errors.Is(err, account.ErrNotFound) {
					return err
				}
				if commands == nil {
					commands = []account.DeviceCommand{}
				}
				for _, c := range commands {
					s.record(cmd.Context(), audit.EventCommandReceived, commandDetails(c))
				}
				if format == output.FormatTable {
					output.WriteCommandTable(rt.Writer(), commands)
					return nil
				}
				return output.WriteObject(rt.Writer(), format, commands)
			}

			if s.account.Phase() != account.PhaseAuthenticated {
				return fmt.Errorf("%w: run 'acctl login' first", account.ErrNotAuthenticated)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				addr, shutdown, err := serveMetrics(ctx, metricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
				s.log.Infow("Serving metrics", "addr", addr)
			}

			handler := func(ctx context.Context, c account.DeviceCommand) {
				s.record(ctx, audit.EventCommandReceived, commandDetails(c))
				if format == output.FormatTable {
					_, _ = fmt.Fprintf(rt.Writer(), "%d\t%s\t%s\t%s\n", c.Index, c.Name, c.Sender, string(c.Payload))
					return
				}
				_ = output.WriteObject(rt.Writer(), format, c)
			}
			p := poller.New(s.account,
				poller.WithInterval(interval),
				poller.WithHandler(handler),
				poller.WithLogger(s.log),
			)
			s.log.Infow("Polling for device commands", "interval", interval.String())
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between polls (default from settings, else 1s)")
	cmd.Flags().BoolVar(&once, "once", false, "Fetch missed commands once and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func commandDetails(c account.DeviceCommand) map[string]any {
	return map[string]any{"index": c.Index, "command": c.Name, "sender": c.Sender}
}

// serveMetrics exposes /metrics until the returned function is called and
// reports the address it is bound to.
func serveMetrics(ctx context.Context, addr string) (string, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.MetricsHandler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.Serve(listener)
	}()
	return listener.Addr().String(), func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}
