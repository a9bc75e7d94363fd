package gc

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fen.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
[runtime]
heap-capacity = 65536
telemetry = "gc.db"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HeapCapacity != 65536 {
		t.Errorf("HeapCapacity = %d, want 65536", cfg.HeapCapacity)
	}
	if cfg.Telemetry != "gc.db" {
		t.Errorf("Telemetry = %q, want %q", cfg.Telemetry, "gc.db")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "[runtime]\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HeapCapacity != DefaultHeapCapacity {
		t.Errorf("HeapCapacity = %d, want default %d", cfg.HeapCapacity, DefaultHeapCapacity)
	}
}

func TestLoadConfigRejectsMisalignedCapacity(t *testing.T) {
	path := writeConfigFile(t, `
[runtime]
heap-capacity = 1001
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("misaligned capacity accepted")
	}
}

func TestValidateRejectsOversizedCapacity(t *testing.T) {
	cfg := Config{HeapCapacity: MaxHeapCapacity + 8}
	if err := cfg.Validate(); err == nil {
		t.Error("capacity beyond the addressable maximum accepted")
	}
	cfg = Config{HeapCapacity: MaxHeapCapacity}
	if err := cfg.Validate(); err != nil {
		t.Errorf("maximum capacity rejected: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestMemorySize(t *testing.T) {
	cfg := Config{HeapCapacity: 1024}
	want := uint32(OffloadSize + 2*1024)
	if got := cfg.MemorySize(); got != want {
		t.Errorf("MemorySize() = %d, want %d", got, want)
	}
}
