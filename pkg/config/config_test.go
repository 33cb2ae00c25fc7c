package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, dir)
	t.Setenv(EnvSlurmPartition, "gpu")
	t.Setenv(EnvStartPort, "")
	t.Setenv(EnvTimeoutSeconds, "")
	t.Setenv(EnvGPUsPerNode, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StartPort != DefaultStartPort {
		t.Errorf("StartPort = %d, want %d", cfg.StartPort, DefaultStartPort)
	}
	if cfg.GPUsPerNode != DefaultGPUsPerNode {
		t.Errorf("GPUsPerNode = %d, want %d", cfg.GPUsPerNode, DefaultGPUsPerNode)
	}
	// Absent TIMEOUT_SECONDS means wait forever.
	if cfg.TimeoutSeconds != NoTimeout {
		t.Errorf("TimeoutSeconds = %d, want %d", cfg.TimeoutSeconds, NoTimeout)
	}
	if cfg.Timeout() != 0 {
		t.Errorf("Timeout() = %v, want 0", cfg.Timeout())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	t.Setenv(EnvLogDir, t.TempDir())
	t.Setenv(EnvStartPort, "9100")
	t.Setenv(EnvTimeoutSeconds, "600")
	t.Setenv(EnvGPUsPerNode, "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StartPort != 9100 || cfg.GPUsPerNode != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Timeout() != 10*time.Minute {
		t.Errorf("Timeout() = %v, want 10m", cfg.Timeout())
	}
}

func TestLoadRequiresLogDir(t *testing.T) {
	t.Setenv(EnvLogDir, "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without LOG_DIR")
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv(EnvLogDir, t.TempDir())
	t.Setenv(EnvTimeoutSeconds, "soon")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a non-numeric TIMEOUT_SECONDS")
	}
}

func TestAccessInfoPath(t *testing.T) {
	cfg := &Config{LogDir: "/var/llm"}
	got := cfg.AccessInfoPath("upstage/solar-pro")
	want := filepath.Join("/var/llm", "access_info", "upstage/solar-pro.json")
	if got != want {
		t.Errorf("AccessInfoPath = %q, want %q", got, want)
	}
}
