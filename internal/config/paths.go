// Package config provides configuration management for scenefetch.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir is the configuration directory name under the user config root.
const ConfigDir = "scenefetch"

// getConfigDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\scenefetch
//   - Unix: ~/.config/scenefetch (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ConfigDir)
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", ConfigDir)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config.csv path, or "config.csv"
// in the working directory when no home directory can be determined.
func GetDefaultConfigPath() string {
	dir := getConfigDir()
	if dir == "" {
		return "config.csv"
	}
	return filepath.Join(dir, "config.csv")
}

// GetDefaultCredentialsPath returns the default credentials INI path.
func GetDefaultCredentialsPath() string {
	dir := getConfigDir()
	if dir == "" {
		return "credentials"
	}
	return filepath.Join(dir, "credentials")
}
