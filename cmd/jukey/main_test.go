package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/componentregistry"
	"github.com/ivgotcrazy/jukey-sub001/metric"
	"github.com/ivgotcrazy/jukey-sub001/output/player"
	"github.com/ivgotcrazy/jukey-sub001/pipeline"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("JUKEY_LOG_FORMAT", "text")

	cfg, err := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError),
		[]string{"-c", "testdata/pipeline.yaml", "--debug", "--run-for=2s"})
	require.NoError(t, err)

	assert.Equal(t, "testdata/pipeline.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel, "debug overrides the level")
	assert.Equal(t, "text", cfg.LogFormat, "environment fallback")
	assert.Equal(t, 2*time.Second, cfg.RunFor)
	assert.NoError(t, validateFlags(cfg))
}

func TestValidateFlags(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{
			ConfigPath:      "testdata/pipeline.yaml",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*CLIConfig)
	}{
		{"missing config", func(c *CLIConfig) { c.ConfigPath = "testdata/none.yaml" }},
		{"log level", func(c *CLIConfig) { c.LogLevel = "trace" }},
		{"log format", func(c *CLIConfig) { c.LogFormat = "xml" }},
		{"shutdown timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
		{"run duration", func(c *CLIConfig) { c.RunFor = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, validateFlags(cfg))
		})
	}

	cfg := valid()
	cfg.ConfigPath = "testdata/none.yaml"
	cfg.ShowVersion = true
	assert.NoError(t, validateFlags(cfg), "version needs no config")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "element", "screen")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, "screen", entry["element"])
}

func newRegistry(t *testing.T) *component.Registry {
	t.Helper()
	r := component.NewRegistry()
	require.NoError(t, componentregistry.Register(r))
	return r
}

func TestBuildPipeline(t *testing.T) {
	cfg, err := loadConfig("testdata/pipeline.yaml")
	require.NoError(t, err)

	p, err := buildPipeline(cfg, newRegistry(t), component.Dependencies{})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "cli-test", p.Name())
	assert.Len(t, p.Elements(), 3, "auto link inserts a converter")
	assert.Len(t, p.Links(), 2)
}

func TestBuildPipeline_LinkFailure(t *testing.T) {
	cfg, err := loadConfig("testdata/bad-link.yaml")
	require.NoError(t, err)

	_, err = buildPipeline(cfg, newRegistry(t), component.Dependencies{})
	assert.Error(t, err, "audio cannot feed a video player")
}

func TestServe_RunsUntilCancelled(t *testing.T) {
	cfg, err := loadConfig("testdata/pipeline.yaml")
	require.NoError(t, err)

	registry := metric.NewMetricsRegistry()
	p, err := buildPipeline(cfg, newRegistry(t), component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, serve(ctx, cfg, p, registry, 2*time.Second))

	assert.Equal(t, pipeline.StateStopped, p.State())
	screen, err := p.GetElementByName("screen")
	require.NoError(t, err)
	rendered, _ := screen.(*player.Player).Stats()
	assert.NotZero(t, rendered)
}
