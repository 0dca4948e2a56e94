package config

import (
	"errors"
	"os"
	"testing"
)

func stubEnv(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load(WithEnv(stubEnv(nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	cfg, err := Load(WithEnv(stubEnv(map[string]string{
		"MARCUS_RECONCILER_INTERVAL_SECONDS": "120",
	})))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Reconciler.IntervalSeconds != 120 {
		t.Fatalf("expected env override to apply, got %d", cfg.Reconciler.IntervalSeconds)
	}
}

func TestLoadFileOverridesDefault(t *testing.T) {
	yamlDoc := []byte("project:\n  cache_capacity: 16\n")
	cfg, err := Load(
		WithEnv(stubEnv(nil)),
		WithConfigPath("config.yaml"),
		WithFileReader(func(path string) ([]byte, error) {
			if path != "config.yaml" {
				t.Fatalf("unexpected path %q", path)
			}
			return yamlDoc, nil
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Project.CacheCapacity != 16 {
		t.Fatalf("expected file override to apply, got %d", cfg.Project.CacheCapacity)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load(
		WithEnv(stubEnv(nil)),
		WithConfigPath("missing.yaml"),
		WithFileReader(func(path string) ([]byte, error) {
			return nil, os.ErrNotExist
		}),
	)
	if err != nil {
		t.Fatalf("expected missing config file to be tolerated, got %v", err)
	}
}

func TestLoadRejectsInvalidEnvValue(t *testing.T) {
	_, err := Load(WithEnv(stubEnv(map[string]string{
		"MARCUS_RECONCILER_INTERVAL_SECONDS": "not-a-number",
	})))
	if err == nil {
		t.Fatalf("expected error for invalid env value")
	}
	var target error
	if errors.As(err, &target) && target == nil {
		t.Fatalf("expected a non-nil wrapped error")
	}
}
