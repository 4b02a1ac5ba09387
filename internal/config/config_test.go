package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/autocue/internal/config"
	"github.com/MrWong99/autocue/pkg/provider/stt"
	sttmock "github.com/MrWong99/autocue/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
provider:
  stt:
    name: deepgram
    api_key: test-key
    model: nova-2
script:
  path: testdata/script.txt
viewport:
  height_px: 1080
  px_per_word: 28
tuning:
  confidence_threshold: 0.8
  hold_timeout: 3s
  correction_gain: 2.5
  max_correction_speed_px: 450
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Provider.STT.Name != "deepgram" {
		t.Errorf("STT.Name = %q, want deepgram", cfg.Provider.STT.Name)
	}
	if cfg.Tuning.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold = %v, want 0.8", cfg.Tuning.ConfidenceThreshold)
	}
	if cfg.Tuning.HoldTimeout != 3*time.Second {
		t.Errorf("HoldTimeout = %v, want 3s", cfg.Tuning.HoldTimeout)
	}
	if cfg.Tuning.CorrectionGain != 2.5 {
		t.Errorf("CorrectionGain = %v, want 2.5", cfg.Tuning.CorrectionGain)
	}
	if cfg.Tuning.MaxCorrectionSpeedPx != 450 {
		t.Errorf("MaxCorrectionSpeedPx = %v, want 450", cfg.Tuning.MaxCorrectionSpeedPx)
	}
	// Unset tuning fields are filled with defaults.
	if cfg.Tuning.WindowSize != 3 {
		t.Errorf("WindowSize = %d, want default 3", cfg.Tuning.WindowSize)
	}
	if cfg.Tuning.MinInterimInterval != 150*time.Millisecond {
		t.Errorf("MinInterimInterval = %v, want default 150ms", cfg.Tuning.MinInterimInterval)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("serverr:\n  listen_addr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoadFromReader_EmptyGetsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Tuning.Radius != 50 {
		t.Errorf("Radius = %d, want default 50", cfg.Tuning.Radius)
	}
	if cfg.Tuning.CaretPercent != 0.33 {
		t.Errorf("CaretPercent = %v, want default 0.33", cfg.Tuning.CaretPercent)
	}
	if cfg.Tuning.CorrectionGain != 1.5 {
		t.Errorf("CorrectionGain = %v, want default 1.5", cfg.Tuning.CorrectionGain)
	}
	if cfg.Tuning.MaxCorrectionSpeedPx != 300 {
		t.Errorf("MaxCorrectionSpeedPx = %v, want default 300", cfg.Tuning.MaxCorrectionSpeedPx)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "verbose"
	cfg.Tuning.ConfidenceThreshold = 1.5
	cfg.Tuning.CaretPercent = 1.0
	cfg.Tuning.CorrectionGain = -1
	cfg.Script.Path = "a.txt"
	cfg.Script.ID = "a"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "confidence_threshold", "caret_percent", "correction_gain", "mutually exclusive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestValidate_ScriptIDNeedsStore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Script.ID = "keynote"
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error when script.id is set without a store")
	}

	cfg.Store.PostgresDSN = "postgres://localhost/autocue"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("unexpected error with store configured: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("provider is nil")
	}

	_, err = reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tuning:\n  radius: 40\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, next *config.Config) {
		changed <- next
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Tuning.Radius; got != 40 {
		t.Fatalf("initial Radius = %d, want 40", got)
	}

	// Rewrite with a different value and a bumped mtime.
	if err := os.WriteFile(path, []byte("tuning:\n  radius: 80\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case next := <-changed:
		if next.Tuning.Radius != 80 {
			t.Errorf("reloaded Radius = %d, want 80", next.Tuning.Radius)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatcher_KeepsPreviousConfigOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tuning:\n  radius: 40\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("tuning:\n  confidence_threshold: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	// Give the watcher several poll cycles to (not) pick up the bad config.
	time.Sleep(200 * time.Millisecond)

	if got := w.Current().Tuning.Radius; got != 40 {
		t.Errorf("Current().Tuning.Radius = %d, want previous 40", got)
	}
}
