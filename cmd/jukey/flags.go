package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	RunFor          time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("JUKEY_CONFIG", "configs/audio-rtp.yaml"),
		"Path to pipeline definition (env: JUKEY_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("JUKEY_CONFIG", "configs/audio-rtp.yaml"),
		"Path to pipeline definition (env: JUKEY_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("JUKEY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: JUKEY_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("JUKEY_LOG_FORMAT", "json"),
		"Log format: json, text (env: JUKEY_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("JUKEY_DEBUG", false),
		"Enable debug mode (env: JUKEY_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("JUKEY_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: JUKEY_SHUTDOWN_TIMEOUT)")

	fs.DurationVar(&cfg.RunFor, "run-for",
		getEnvDuration("JUKEY_RUN_FOR", 0),
		"Stop the pipeline after this long, 0 to run until signalled (env: JUKEY_RUN_FOR)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate the pipeline definition and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	if cfg.RunFor < 0 {
		return fmt.Errorf("invalid run duration: %s", cfg.RunFor)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - media dataflow engine

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Endpoints (when metrics are enabled in the definition):
  <metrics.path>  Prometheus metrics
  /health         pipeline health as JSON, 503 when unhealthy

Examples:
  # Run a pipeline definition
  %s --config=/path/to/pipeline.yaml

  # Run with debug logging for ten seconds
  %s --log-level=debug --log-format=text --run-for=10s

  # Run with environment variables
  export JUKEY_CONFIG=/etc/jukey/pipeline.yaml
  export JUKEY_NATS_URLS=nats://localhost:4222
  %s

  # Validate the definition only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
