package config

import "path/filepath"

// SettingsDir is the project-local directory holding settings, logs and
// session state
const SettingsDir = ".tidewatch"

// BuildSettingsPath resolves a filename relative to the settings directory
func BuildSettingsPath(filename string) string {
	return filepath.Join(SettingsDir, filename)
}
