// Package main provides the posture CLI: the live monitor with its HTTP API
// and offline queries against stored history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/okian/posture/internal/adapters/http/api"
	"github.com/okian/posture/internal/adapters/http/swagger"
	"github.com/okian/posture/internal/adapters/sink"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/ranking"
	"github.com/okian/posture/internal/domain/types"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFD7"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
)

var (
	configPath string

	runUser string
	runAddr string

	reportUser string

	leaderboardLimit int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "posture",
		Short:         "Webcam posture monitor",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: $POSTURE_CONFIG)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor posture and serve the HTTP API until interrupted",
		RunE:  runMonitorCmd,
	}
	cmd.Flags().StringVar(&runUser, "user", "", "monitored user name")
	cmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address, overrides config addr")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a user's stored posture report",
		RunE:  runReportCmd,
	}
	cmd.Flags().StringVar(&reportUser, "user", "", "user to report on")
	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the stored leaderboard",
		RunE:  runLeaderboardCmd,
	}
	cmd.Flags().IntVar(&leaderboardLimit, "limit", api.DefaultLeaderboardLimit, "number of users to show")
	return cmd
}

// setup loads configuration and initializes the global logger on stderr so
// stdout only carries command output.
func setup(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.WithFile(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

func runMonitorCmd(cmd *cobra.Command, _ []string) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if runAddr != "" {
		cfg.Addr = runAddr
	}
	log := logger.Named("main")

	opts := []service.Option{
		service.WithConfig(cfg),
		service.WithLogger(logger.Named("service")),
	}
	if runUser != "" {
		opts = append(opts, service.WithUser(runUser))
	}
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		svc.Stop()
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	go startMetricsUpdater(ctx, svc, cfg.MetricsInterval)

	var srv *http.Server
	if cfg.Addr != "" {
		srv = newHTTPServer(ctx, cfg, svc)
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
				stop()
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		cancel()
	}
	svc.Stop()

	report, err := svc.Report(context.WithoutCancel(ctx))
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), reportErrorText(err))
		return nil
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func newHTTPServer(ctx context.Context, cfg *config.Config, svc *service.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, cfg.Ranking.MaxLeaderboardLimit).Register(ctx, mux)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startMetricsUpdater refreshes process and queue gauges until ctx ends.
func startMetricsUpdater(ctx context.Context, svc *service.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	sampler := metrics.NewProcessSampler()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sampler.Sample(ctx); err != nil && !warned {
				logger.Named("metrics").Warn(ctx, "process metrics unavailable", logger.Error(err))
				warned = true
			}
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if n, ok := stats["queue_length"].(int); ok {
		metrics.UpdateQueueSize(n)
	}
	if n, ok := stats["queue_capacity"].(int); ok {
		metrics.UpdateQueueCapacity(n)
	}
}

// offline builds a service that is never started; queries read the store
// directly and Stop closes it.
func offline(ctx context.Context, user string) (*service.Service, error) {
	cfg, err := setup(ctx)
	if err != nil {
		return nil, err
	}
	opts := []service.Option{
		service.WithConfig(cfg),
		service.WithLogger(logger.Named("service")),
		// Messages go to the log only; the report text is printed below.
		service.WithSink(sink.NewLogSink(logger.Named("events"))),
	}
	if user != "" {
		opts = append(opts, service.WithUser(user))
	}
	return service.New(opts...), nil
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := offline(ctx, reportUser)
	if err != nil {
		return err
	}
	defer svc.Stop()

	report, err := svc.Report(ctx)
	if err != nil {
		if errors.Is(err, ranking.ErrNoData) || errors.Is(err, ranking.ErrUserNotFound) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reportErrorText(err))
			return nil
		}
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func runLeaderboardCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svc, err := offline(ctx, "")
	if err != nil {
		return err
	}
	defer svc.Stop()

	entries, err := svc.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		return err
	}
	printLeaderboard(cmd.OutOrStdout(), entries)
	return nil
}

func reportErrorText(err error) string {
	switch {
	case errors.Is(err, ranking.ErrNoData):
		return "No data available for report."
	case errors.Is(err, ranking.ErrUserNotFound):
		return "No data for current user."
	default:
		return "Report unavailable: " + err.Error()
	}
}

func printReport(w io.Writer, r ranking.Report) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("--- Report ---"))
	row := func(label, value string) {
		_, _ = fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
	}
	row("User", r.User)
	if r.Session.ID != "" {
		row("Session Good Posture Ratio", fmt.Sprintf("%.2f%%", r.Session.Ratio*100))
	}
	row("Good Posture Ratio", fmt.Sprintf("%.2f%%", r.Ratio*100))
	row("Rank", fmt.Sprintf("%d of %d", r.Rank, r.TotalUsers))
	row("Your ranking percentile", fmt.Sprintf("%.2f%%", r.Percentile))
}

func printLeaderboard(w io.Writer, entries []types.Entry) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("--- Leaderboard ---"))
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No data available for report.")
		return
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%3d. %-20s %6.2f%%  %s\n",
			e.Rank, e.User, e.Ratio*100,
			labelStyle.Render(fmt.Sprintf("percentile %.2f", e.Percentile)))
	}
}
