/*
config.go defines the environment-derived configuration for vllmfleet.
All options can be set in a .env file in the working directory or in the
process environment; the .env file is loaded once by the root command.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Environment variable names recognized by the tool.
const (
	EnvLogDir         = "LOG_DIR"
	EnvSlurmPartition = "SLURM_PARTITION"
	EnvStartPort      = "START_PORT"
	EnvTimeoutSeconds = "TIMEOUT_SECONDS"
	EnvGPUsPerNode    = "GPUS_PER_NODE"
)

// NoTimeout is the sentinel for TIMEOUT_SECONDS meaning "wait forever".
// It is also the value used when the variable is absent.
const NoTimeout = -1

// Defaults
const (
	// DefaultStartPort is the first port a node's serving instances bind,
	// one port per tensor-parallel group.
	DefaultStartPort = 8000

	// DefaultGPUsPerNode matches the gpus-per-task the batch template requests.
	DefaultGPUsPerNode = 8

	// DefaultPollInterval is how often the readiness watcher re-reads the job log.
	DefaultPollInterval = 1 * time.Second

	// DefaultProbeInterval is how long the reachability check waits between rounds.
	DefaultProbeInterval = 1 * time.Minute
)

// Config holds the environment-derived options.
type Config struct {
	LogDir         string
	SlurmPartition string
	StartPort      int
	TimeoutSeconds int
	GPUsPerNode    int
}

// Load reads the configuration from the environment. LOG_DIR is the only
// required option; everything else has a default.
func Load() (*Config, error) {
	logDir := os.Getenv(EnvLogDir)
	if logDir == "" {
		return nil, fmt.Errorf("%s is not set (set it in the environment or a .env file)", EnvLogDir)
	}

	cfg := &Config{
		LogDir:         logDir,
		SlurmPartition: os.Getenv(EnvSlurmPartition),
		StartPort:      DefaultStartPort,
		TimeoutSeconds: NoTimeout,
		GPUsPerNode:    DefaultGPUsPerNode,
	}

	if v := os.Getenv(EnvStartPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvStartPort, v, err)
		}
		cfg.StartPort = port
	}

	if v := os.Getenv(EnvTimeoutSeconds); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvTimeoutSeconds, v, err)
		}
		cfg.TimeoutSeconds = secs
	}

	if v := os.Getenv(EnvGPUsPerNode); v != "" {
		gpus, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvGPUsPerNode, v, err)
		}
		cfg.GPUsPerNode = gpus
	}

	return cfg, nil
}

// Timeout converts TIMEOUT_SECONDS to a duration. A zero duration means no
// timeout was configured.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScriptsDir is where rendered batch runfiles are written.
func (c *Config) ScriptsDir() string { return filepath.Join(c.LogDir, "scripts") }

// LogsDir is where job logs land.
func (c *Config) LogsDir() string { return filepath.Join(c.LogDir, "logs") }

// AccessInfoDir holds the published endpoint inventory files, one per model.
func (c *Config) AccessInfoDir() string { return filepath.Join(c.LogDir, "access_info") }

// AccessInfoPath is the endpoint inventory file for one model.
func (c *Config) AccessInfoPath(model string) string {
	return filepath.Join(c.AccessInfoDir(), model+".json")
}
