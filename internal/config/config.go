// Package config loads the static process configuration shared by the
// Local Proxy and the Remote Server: listener addresses, reconciler poll
// interval, SSH/remote settings, filesystem layout, Slurm binary paths and
// timeouts, metrics, and logging. Values are read once at process start and
// never hot-reloaded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level static configuration for both daemons.
type Config struct {
	LocalProxy   HTTPConfig   `mapstructure:"local_proxy"`
	RemoteServer HTTPConfig   `mapstructure:"remote_server"`
	Reconciler   Reconciler   `mapstructure:"reconciler"`
	SSH          SSH          `mapstructure:"ssh"`
	Paths        Paths        `mapstructure:"paths"`
	Slurm        Slurm        `mapstructure:"slurm"`
	Metrics      Metrics      `mapstructure:"metrics"`
	Log          Log          `mapstructure:"log"`
}

// HTTPConfig configures one daemon's HTTP listener.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"` // host:port, loopback-only by convention
}

// Reconciler configures the background poller.
type Reconciler struct {
	PollInterval string `mapstructure:"poll_interval"` // e.g. "5s"
}

// SSH describes how the Remote Bridge reaches the remote host. The tunnel
// itself is assumed maintained externally; these fields are what rsync/ssh
// and the Remote Server HTTP client need.
type SSH struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	RemoteBaseDir  string `mapstructure:"remote_base_dir"`
	// RemoteServerURL is the loopback URL an external SSH tunnel maps onto
	// the Remote Server's HTTP API.
	RemoteServerURL string `mapstructure:"remote_server_url"`
}

// Paths describes on-disk layout for the Local Proxy.
type Paths struct {
	DataDir string `mapstructure:"data_dir"` // $HOME/.ailabber by default
}

// DBPath returns the path to the SQLite database file.
func (p Paths) DBPath() string { return filepath.Join(p.DataDir, "local_proxy.db") }

// StagingDir returns the root of the per-user staging trees.
func (p Paths) StagingDir() string { return filepath.Join(p.DataDir, "tmp") }

// LogsDir returns the directory for daemon log files.
func (p Paths) LogsDir() string { return filepath.Join(p.DataDir, "logs") }

// Slurm names the exact binaries invoked and their timeouts.
type Slurm struct {
	SbatchPath       string `mapstructure:"sbatch_path"`
	SacctPath        string `mapstructure:"sacct_path"`
	SqueuePath       string `mapstructure:"squeue_path"`
	ScancelPath      string `mapstructure:"scancel_path"`
	CommandTimeout   string `mapstructure:"command_timeout"`   // sbatch/sacct/squeue/scancel, 10-30s
	RsyncTimeout     string `mapstructure:"rsync_timeout"`      // 1h
	RemoteControlTimeout string `mapstructure:"remote_control_timeout"` // 10s
	RemoteSubmitTimeout  string `mapstructure:"remote_submit_timeout"`  // 30s
	RemoteFetchTimeout   string `mapstructure:"remote_fetch_timeout"`   // 300s
}

// Metrics configures the Prometheus exposition endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Log configures the logging stack (internal/logging).
type Log struct {
	Level       string `mapstructure:"level"`
	FileEnabled bool   `mapstructure:"file_enabled"`
}

// configRoot wraps Config under a single top-level key so the YAML file
// reads cleanly.
type configRoot struct {
	Ailabber Config `mapstructure:"ailabber"`
}

// Load reads configuration from the YAML file at path (if it exists),
// layers AILABBER_-prefixed environment overrides on top, fills in the
// defaults listed in setDefaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %q: %w", path, err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Ailabber

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ailabber.local_proxy.listen", "127.0.0.1:8080")
	v.SetDefault("ailabber.remote_server.listen", "127.0.0.1:8080")
	v.SetDefault("ailabber.reconciler.poll_interval", "5s")

	v.SetDefault("ailabber.ssh.port", 22)
	v.SetDefault("ailabber.ssh.remote_base_dir", "/remote/home")
	v.SetDefault("ailabber.ssh.remote_server_url", "http://127.0.0.1:8080")

	v.SetDefault("ailabber.paths.data_dir", "$HOME/.ailabber")

	v.SetDefault("ailabber.slurm.sbatch_path", "sbatch")
	v.SetDefault("ailabber.slurm.sacct_path", "sacct")
	v.SetDefault("ailabber.slurm.squeue_path", "squeue")
	v.SetDefault("ailabber.slurm.scancel_path", "scancel")
	v.SetDefault("ailabber.slurm.command_timeout", "30s")
	v.SetDefault("ailabber.slurm.rsync_timeout", "1h")
	v.SetDefault("ailabber.slurm.remote_control_timeout", "10s")
	v.SetDefault("ailabber.slurm.remote_submit_timeout", "30s")
	v.SetDefault("ailabber.slurm.remote_fetch_timeout", "300s")

	v.SetDefault("ailabber.metrics.enabled", true)
	v.SetDefault("ailabber.metrics.listen", "127.0.0.1:9090")
	v.SetDefault("ailabber.metrics.path", "/metrics")

	v.SetDefault("ailabber.log.level", "info")
	v.SetDefault("ailabber.log.file_enabled", true)
}

func (cfg *Config) expandPaths() error {
	cfg.Paths.DataDir = os.ExpandEnv(cfg.Paths.DataDir)
	if cfg.Paths.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve data dir: %w", err)
		}
		cfg.Paths.DataDir = filepath.Join(home, ".ailabber")
	}
	return nil
}

func (cfg *Config) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level %q", cfg.Log.Level)
	}
	if cfg.SSH.Host == "" {
		// Local-only deployments never submit to the remote target, so an
		// empty SSH host does not fail startup. The Remote Bridge does not
		// check for it either: a remote submit without one fails at the
		// rsync push.
		return nil
	}
	return nil
}
