package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`

	validateErr error
}

func (c *testConfig) Validate() error { return c.validateErr }

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CONFIG_TOKEN", "from-env")
	path := writeFile(t, "name: panel\ntoken: ${TEST_CONFIG_TOKEN}\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "panel" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Token != "from-env" {
		t.Errorf("token = %q", cfg.Token)
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeFile(t, "name: panel\n")

	cfg := testConfig{validateErr: errors.New("bad config")}
	err := Load(path, &cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg := testConfig{Name: "defaults"}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Name != "defaults" {
		t.Errorf("defaults clobbered: %q", cfg.Name)
	}
}
