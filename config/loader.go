package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Defaults
const (
	DefaultMetricsAddr   = ":9090"
	DefaultMetricsPath   = "/metrics"
	DefaultSubjectPrefix = "jukey"
	DefaultSendTimeout   = 5 * time.Second
)

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: false,
		envPrefix:  "JUKEY",
	}
}

// LoadFile loads and validates a single definition file
func LoadFile(path string) (*Config, error) {
	l := NewLoader()
	l.EnableValidation(true)
	return l.LoadFile(path)
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers. Later layers override earlier
// ones key by key; lists are replaced whole.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(l.getDefaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "defaults encoding")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "Load", "merge encoding")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "Load", "decode")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			SendTimeout: DefaultSendTimeout,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
			Path: DefaultMetricsPath,
		},
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			SubjectPrefix: DefaultSubjectPrefix,
		},
	}
}

// loadRaw reads a YAML or JSON file, chosen by extension, into a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "loadRaw", "YAML decode")
		}
	default:
		// Validate JSON depth to prevent DoS
		if err := validateJSONDepth(data); err != nil {
			return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "loadRaw", "JSON structure check")
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "loadRaw", "JSON decode")
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrParsingFailed, err), "Loader", "loadRaw", "duration parsing")
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	convert := func(section, key string) error {
		m, ok := data[section].(map[string]any)
		if !ok {
			return nil
		}
		s, ok := m[key].(string)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", section, key, err)
		}
		m[key] = d.Nanoseconds()
		return nil
	}

	if err := convert("pipeline", "send_timeout"); err != nil {
		return err
	}
	return convert("nats", "reconnect_wait")
}

func toMap(c *Config) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(suffix string) (string, error) {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapInvalid(errors.Join(errors.ErrInvalidConfig, err), "Loader", "applyEnvOverrides", key)
		}
		return val, nil
	}

	overrides := []struct {
		suffix string
		apply  func(string) error
	}{
		{"PIPELINE_NAME", func(v string) error { cfg.Pipeline.Name = v; return nil }},
		{"SEND_TIMEOUT", func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			cfg.Pipeline.SendTimeout = d
			return nil
		}},
		{"METRICS_ADDR", func(v string) error { cfg.Metrics.Addr = v; return nil }},
		{"NATS_URLS", func(v string) error { cfg.NATS.URLs = strings.Split(v, ","); return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
	}

	for _, o := range overrides {
		val, err := get(o.suffix)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(errors.Join(errors.ErrInvalidConfig, err),
				"Loader", "applyEnvOverrides", l.envPrefix+"_"+o.suffix)
		}
	}
	return nil
}
