package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/metrics"
)

// daemonOptions holds dependencies for the daemon command.
type daemonOptions struct {
	open func(cmd *cobra.Command, opts sessionOptions) (*session, error)
	in   io.Reader
	// onListen is called with the metrics listener address.
	onListen func(addr string)
}

// newDaemonCmd creates the daemon command with the given options.
func newDaemonCmd(opts daemonOptions) *cobra.Command {
	var flagMetricsAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the stored tokens renewed in the foreground",
		Long: `Load the stored credentials, renew them as needed and keep renewing
them until interrupted. Logs in interactively if there are no credentials.

With --metrics-addr, Prometheus metrics are served on /metrics.

Examples:
  tda daemon
  tda daemon --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts, flagMetricsAddr)
		},
	}

	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default from config)")
	cmd.SilenceUsage = true

	return cmd
}

func runDaemon(cmd *cobra.Command, opts daemonOptions, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	s, err := opts.open(cmd, sessionOptions{
		authorizer: &auth.PasteAuthorizer{In: opts.in, Out: cmd.OutOrStdout()},
		metrics:    recorder,
	})
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = s.cfg.MetricsAddr
	}

	status, err := s.manager.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize credentials: %w", err)
	}

	if metricsAddr != "" {
		shutdown, err := serveMetrics(ctx, reg, metricsAddr, opts.onListen)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	scheduler := auth.NewScheduler(s.manager)
	scheduler.OnError = func(err error) {
		var exErr *auth.ExchangeError
		if errors.As(err, &exErr) && exErr.StatusCode >= 400 && exErr.StatusCode < 500 {
			s.logger.Error(ctx, "renewal rejected, run 'tda login' if this persists", "error", err)
		}
	}
	if err := scheduler.Start(ctx, status); err != nil {
		return err
	}
	defer scheduler.Stop()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Renewing credentials in the background. Press Ctrl+C to stop.")
	<-ctx.Done()
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopping.")
	return nil
}

// serveMetrics starts the /metrics listener. The returned function shuts
// it down.
func serveMetrics(ctx context.Context, reg *prometheus.Registry, addr string, onListen func(string)) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()

	if onListen != nil {
		onListen(ln.Addr().String())
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

func init() {
	rootCmd.AddCommand(newDaemonCmd(daemonOptions{
		open: func(cmd *cobra.Command, opts sessionOptions) (*session, error) {
			return openSession(cmdContext(cmd), cmd, opts)
		},
		in: os.Stdin,
	}))
}
