package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	MaxRunners   int           `env:"TENANTCORE_TEST_MAX_RUNNERS" envDefault:"8"`
	PollInterval time.Duration `env:"TENANTCORE_TEST_POLL_INTERVAL" envDefault:"2s"`
}

type validatedEnvConfig struct {
	Backend string `env:"TENANTCORE_TEST_BACKEND" envDefault:"sqlite"`
}

func (c *validatedEnvConfig) Validate() error {
	if c.Backend != "sqlite" && c.Backend != "postgres" {
		return errors.New("unsupported backend")
	}
	return nil
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.MaxRunners != 8 {
		t.Fatalf("max runners = %d, want 8", cfg.MaxRunners)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %s, want 2s", cfg.PollInterval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TENANTCORE_TEST_MAX_RUNNERS", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvRunsValidate(t *testing.T) {
	var cfg validatedEnvConfig
	t.Setenv("TENANTCORE_TEST_BACKEND", "mysql")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validate env:") {
		t.Fatalf("expected validate env prefix, got %v", err)
	}
}
