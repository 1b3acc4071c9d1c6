package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("bus_address: unix:path=/tmp/x\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/gdbus.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "gdbus.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_SearchPathHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdbus.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	orig := searchPathsFunc
	searchPathsFunc = func() []string { return []string{path} }
	defer func() { searchPathsFunc = orig }()

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != path {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdbus.yaml")
	if err := os.WriteFile(path, []byte("bus_address: \"unix:path=/tmp/gdbus-test\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.TimeoutSec != 25 {
		t.Errorf("TimeoutSec = %d, want 25", cfg.TimeoutSec)
	}
	if cfg.BusAddress != "unix:path=/tmp/gdbus-test" {
		t.Errorf("BusAddress = %q", cfg.BusAddress)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("GDBUS_TEST_ADDR", "unix:path=/tmp/from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "gdbus.yaml")
	if err := os.WriteFile(path, []byte("bus_address: \"${GDBUS_TEST_ADDR}\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BusAddress != "unix:path=/tmp/from-env" {
		t.Errorf("BusAddress = %q, want expanded env value", cfg.BusAddress)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdbus.yaml")
	if err := os.WriteFile(path, []byte("log_level: nonsense\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() with invalid log_level should error")
	} else if !strings.Contains(err.Error(), "log level") {
		t.Errorf("error %q should mention log level", err)
	}
}

func TestLoad_NegativeTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdbus.yaml")
	if err := os.WriteFile(path, []byte("timeout_sec: -1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() with negative timeout_sec should error")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]bool{
		"":       true,
		"info":   true,
		"trace":  true,
		"debug":  true,
		"warn":   true,
		"error":  true,
		"bogus":  false,
	}
	for in, ok := range cases {
		_, err := ParseLogLevel(in)
		if (err == nil) != ok {
			t.Errorf("ParseLogLevel(%q) error = %v, want ok=%v", in, err, ok)
		}
	}
}
