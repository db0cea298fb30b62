package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/spoolworks/printfarm/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before
// modifying the config file.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
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

	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// loadOrInitializeFile reads the user config file as a raw TOML map,
// or returns an empty map if it does not exist yet.
func loadOrInitializeFile(configPath string) (map[string]interface{}, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}

	var raw map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	} else {
		raw = make(map[string]interface{})
	}

	return raw, nil
}

// saveFile writes the raw config map back to disk with backup rotation.
// The global watcher (if any) is told to ignore this write.
func saveFile(raw map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// updateSection updates one key inside a named TOML table of the user config
func updateSection(section, key string, value interface{}) error {
	configPath := UserConfigPath()

	raw, err := loadOrInitializeFile(configPath)
	if err != nil {
		return err
	}

	var table map[string]interface{}
	if existing, ok := raw[section].(map[string]interface{}); ok {
		table = existing
	} else {
		table = make(map[string]interface{})
	}

	table[key] = value
	raw[section] = table

	return saveFile(raw, configPath)
}

// UpdateBlackoutWindow persists a new blackout window to the user config
func UpdateBlackoutWindow(start, end string) error {
	if err := updateSection("scheduler", "blackout_start", start); err != nil {
		return err
	}
	return updateSection("scheduler", "blackout_end", end)
}

// UpdateDefaultQuota persists new default quota limits to the user config.
// Zero means unlimited.
func UpdateDefaultQuota(maxJobs int, maxGrams, maxHours float64) error {
	if err := updateSection("quota", "default_max_jobs", maxJobs); err != nil {
		return err
	}
	if err := updateSection("quota", "default_max_grams", maxGrams); err != nil {
		return err
	}
	return updateSection("quota", "default_max_hours", maxHours)
}

// UpdateRequireApproval persists the global approval policy switch
func UpdateRequireApproval(enabled bool) error {
	return updateSection("approval", "require_approval", enabled)
}
