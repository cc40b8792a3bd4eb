package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grainway/batchgate/errors"
)

const watcherConfigTOML = `[tracker]
api_url = "https://tracker.example.com/v2"
api_token = "file-token"
page_size = 25

[boards]
dependency_board_id = 1111
dependent_board_id = 2222
dependent_relation_column = "connect_boards4"
dependency_relation_column = "connect_boards7"
`

// watcherFixture writes a config file into its own temp directory and chdirs
// there so the reload path resolves it as the project config. HOME is moved
// aside so no user config leaks in.
func watcherFixture(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "batchgate.toml")
	if err := os.WriteFile(path, []byte(content), DefaultFilePermissions); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("HOME", filepath.Join(dir, "home"))

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(oldWd)
		Reset()
	})

	return path
}

func TestWatcherReload_CallsCallbacks(t *testing.T) {
	path := watcherFixture(t, watcherConfigTOML)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	var got *Config
	calls := 0
	w.OnReload(func(cfg *Config) error {
		calls++
		got = cfg
		return nil
	})

	if err := w.reload(); err != nil {
		t.Fatalf("reload() failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback call, got %d", calls)
	}
	if got.Tracker.PageSize != 25 {
		t.Errorf("callback config page_size = %d, want 25", got.Tracker.PageSize)
	}
}

func TestWatcherReload_RejectsInvalidConfig(t *testing.T) {
	// URL without a scheme fails validation, so the running config must stay
	path := watcherFixture(t, "[tracker]\napi_url = \"tracker.example.com\"\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	calls := 0
	w.OnReload(func(cfg *Config) error {
		calls++
		return nil
	})

	if err := w.reload(); err == nil {
		t.Fatal("expected reload of invalid config to fail")
	}
	if calls != 0 {
		t.Errorf("callbacks ran %d times for an invalid config, want 0", calls)
	}
}

func TestWatcherReload_CallbackErrorDoesNotStopOthers(t *testing.T) {
	path := watcherFixture(t, watcherConfigTOML)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	w.OnReload(func(cfg *Config) error {
		return errors.New("first callback failed")
	})
	secondRan := false
	w.OnReload(func(cfg *Config) error {
		secondRan = true
		return nil
	})

	if err := w.reload(); err != nil {
		t.Fatalf("reload() failed: %v", err)
	}
	if !secondRan {
		t.Error("second callback should run even when the first fails")
	}
}

func TestWatcherDetectsFileChange(t *testing.T) {
	path := watcherFixture(t, watcherConfigTOML)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 4)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	w.Start()

	updated := strings.Replace(watcherConfigTOML, "page_size = 25", "page_size = 50", 1)
	if err := os.WriteFile(path, []byte(updated), DefaultFilePermissions); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Tracker.PageSize != 50 {
			t.Errorf("reloaded page_size = %d, want 50", cfg.Tracker.PageSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not detected within 5s")
	}
}

func TestWatcherOwnWriteFlag(t *testing.T) {
	w := &Watcher{}

	if w.checkOwnWrite() {
		t.Error("flag should start clear")
	}
	w.MarkOwnWrite()
	if !w.checkOwnWrite() {
		t.Error("MarkOwnWrite should arm the flag")
	}
	if w.checkOwnWrite() {
		t.Error("flag should clear after a single check")
	}
}

func TestIsBackupFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/.batchgate/config.toml.back1", true},
		{"/home/user/.batchgate/config.toml.back3", true},
		{"/home/user/.batchgate/config.toml", false},
		{"batchgate.toml", false},
	}

	for _, tt := range tests {
		if got := isBackupFile(tt.path); got != tt.want {
			t.Errorf("isBackupFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
