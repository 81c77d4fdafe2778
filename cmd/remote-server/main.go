// Command remote-server runs the Remote Server daemon: the cluster-side
// half of the task broker, fronting the local Slurm controller over HTTP
// for the Local Proxy's Remote Bridge.
//
// It carries no Task Store of its own: every request is self-contained,
// since the Remote Bridge is its only caller and already owns the durable
// task record.
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

	"github.com/lcpu-club/ailabber/internal/config"
	"github.com/lcpu-club/ailabber/internal/logging"
	"github.com/lcpu-club/ailabber/internal/metrics"
	"github.com/lcpu-club/ailabber/internal/remoteapi"
	"github.com/lcpu-club/ailabber/internal/slurm"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "remote-server",
	Short: "Run the ailabber Remote Server daemon",
	Long: `The Remote Server runs on the cluster's login/submit node and exposes
submit/status/cancel/logs/fetch over HTTP, structurally identical to the
Local Submitter: same script contract, same state parsing. It is reached by
the Local Proxy's Remote Bridge through an externally-maintained SSH
tunnel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ailabber/remote-server.yml",
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

	if err := os.MkdirAll(cfg.Paths.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	log := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		FileEnabled: cfg.Log.FileEnabled,
		FilePath:    filepath.Join(cfg.Paths.LogsDir(), "remote-server.log"),
		Component:   "remote-server",
	})
	log.WithField("config", configFile).Info("starting remote server")

	commandTimeout := parseDurationOr(cfg.Slurm.CommandTimeout, 30*time.Second)
	adapter := slurm.NewAdapter(slurm.BinaryPaths{
		Sbatch:  cfg.Slurm.SbatchPath,
		Sacct:   cfg.Slurm.SacctPath,
		Squeue:  cfg.Slurm.SqueuePath,
		Scancel: cfg.Slurm.ScancelPath,
	}, commandTimeout)

	srv := remoteapi.New(cfg.RemoteServer.Listen, adapter, log.WithField("subcomponent", "remoteapi"))
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
		metricsCtx, metricsCancel := context.WithCancel(context.Background())
		defer metricsCancel()
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, log.WithField("subcomponent", "metrics"))
		if err := metricsServer.Start(metricsCtx); err != nil {
			log.WithError(err).Error("failed to start metrics server")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	log.WithField("addr", cfg.RemoteServer.Listen).Info("remote server started, waiting for signals")
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
