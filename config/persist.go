package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/grainway/batchgate/errors"
)

// starterHeader is prepended to files written by WriteStarter.
const starterHeader = `# batchgate configuration.
# Required before first run: tracker.api_url, tracker.api_token (or
# BATCHGATE_TRACKER_API_TOKEN), both board ids and both relation columns.
# Any key can be overridden with BATCHGATE_<SECTION>_<KEY> environment variables.

`

// DefaultConfig returns a Config populated with defaults only.
// Deployment-specific fields (credentials, board ids, relation columns) are zero.
func DefaultConfig() *Config {
	v := newDefaultViper()
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal into Config; a failure here is a programming error
		panic(errors.Wrap(err, "default config failed to unmarshal"))
	}
	return cfg
}

// WriteStarter writes a starter config file with all defaults spelled out.
// Refuses to overwrite an existing file unless force is set; with force the
// existing file is rotated into .back1 first.
func WriteStarter(path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return errors.Newf("%s already exists (use --force to overwrite)", path)
		}
		if err := createBackup(path); err != nil {
			return errors.Wrap(err, "failed to back up existing config")
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", path)
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return errors.Wrap(err, "failed to marshal starter config")
	}

	markOwnWrite()

	content := append([]byte(starterHeader), data...)
	if err := os.WriteFile(path, content, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}

// newDefaultViper returns an isolated viper instance carrying only defaults
func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// markOwnWrite flags the next config file write as ours so the watcher does not
// treat it as an external edit
func markOwnWrite() {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
}
