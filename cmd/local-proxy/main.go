// Command local-proxy runs the Local Proxy daemon: the user-facing half of
// the task broker, owning the Task Store and fronting the CLI over
// loopback HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lcpu-club/ailabber/internal/bridge"
	"github.com/lcpu-club/ailabber/internal/config"
	"github.com/lcpu-club/ailabber/internal/httpapi"
	"github.com/lcpu-club/ailabber/internal/logging"
	"github.com/lcpu-club/ailabber/internal/metrics"
	"github.com/lcpu-club/ailabber/internal/packager"
	"github.com/lcpu-club/ailabber/internal/reconciler"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
	"github.com/lcpu-club/ailabber/internal/submitter"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "local-proxy",
	Short: "Run the ailabber Local Proxy daemon",
	Long: `The Local Proxy owns the Task Store and exposes submit/status/list/
logs/fetch/cancel over loopback HTTP. It runs the Slurm CLI directly for
local-target tasks and forwards remote-target tasks to a Remote Server over
an externally-maintained SSH tunnel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ailabber/local-proxy.yml",
		"config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	log := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		FileEnabled: cfg.Log.FileEnabled,
		FilePath:    filepath.Join(cfg.Paths.LogsDir(), "local-proxy.log"),
		Component:   "local-proxy",
	})
	log.WithField("config", configFile).Info("starting local proxy")

	st, err := store.Open(cfg.Paths.DBPath())
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer st.Close()

	commandTimeout := parseDurationOr(cfg.Slurm.CommandTimeout, 30*time.Second)
	adapter := slurm.NewAdapter(slurm.BinaryPaths{
		Sbatch:  cfg.Slurm.SbatchPath,
		Sacct:   cfg.Slurm.SacctPath,
		Squeue:  cfg.Slurm.SqueuePath,
		Scancel: cfg.Slurm.ScancelPath,
	}, commandTimeout)

	sub := submitter.New(st, adapter, log.WithField("subcomponent", "submitter"))
	br := bridge.New(cfg, st, log.WithField("subcomponent", "bridge"))
	pkg := packager.New(br)

	pollInterval := parseDurationOr(cfg.Reconciler.PollInterval, 5*time.Second)
	rec := reconciler.New(st, sub, br, pollInterval, log.WithField("subcomponent", "reconciler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)
	defer rec.Stop()

	srv := httpapi.New(cfg.LocalProxy.Listen, st, sub, br, pkg, rec, log.WithField("subcomponent", "httpapi"))
	srv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.WithError(err).Error("http server shutdown error")
		}
	}()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, log.WithField("subcomponent", "metrics"))
		if err := metricsServer.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start metrics server")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	log.WithField("addr", cfg.LocalProxy.Listen).Info("local proxy started, waiting for signals")
	waitForShutdown(log)
	return nil
}

func waitForShutdown(log *logrus.Entry) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.WithField("signal", sig).Info("received signal, shutting down")
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
