package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"
)

// Credentials holds the M2M identity persisted between runs.
//
// INI format:
//
//	[m2m]
//	username = jdoe
//	token = <application token>
//
// Passwords are never persisted; only the username and an application token are.
type Credentials struct {
	Username string `ini:"username"`
	Token    string `ini:"token"`
}

// ErrMissingUsername is returned when no username is available from any source.
var ErrMissingUsername = errors.New("M2M username is required (use 'scenefetch login', M2M_USERNAME, or the credentials file)")

// LoadCredentials loads credentials from an INI file.
// A missing file yields empty credentials and no error.
func LoadCredentials(path string) (*Credentials, error) {
	creds := &Credentials{}

	if path == "" {
		path = GetDefaultCredentialsPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return creds, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	section := iniFile.Section("m2m")
	creds.Username = strings.TrimSpace(section.Key("username").String())
	creds.Token = strings.TrimSpace(section.Key("token").String())

	return creds, nil
}

// SaveCredentials writes credentials to an INI file readable only by the owner.
func SaveCredentials(creds *Credentials, path string) error {
	if path == "" {
		path = GetDefaultCredentialsPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	section, err := iniFile.NewSection("m2m")
	if err != nil {
		return fmt.Errorf("failed to create m2m section: %w", err)
	}
	section.Key("username").SetValue(creds.Username)
	section.Key("token").SetValue(creds.Token)

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set credentials permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// DeleteCredentials removes the credentials file. A missing file is not an error.
func DeleteCredentials(path string) error {
	if path == "" {
		path = GetDefaultCredentialsPath()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// ApplyCredentials fills empty identity fields of c from creds.
func (c *Config) ApplyCredentials(creds *Credentials) {
	if creds == nil {
		return
	}
	if c.Username == "" {
		c.Username = creds.Username
	}
	if c.Token == "" {
		c.Token = creds.Token
	}
}

// ValidateForLogin checks that a username and at least one secret are present.
func (c *Config) ValidateForLogin() error {
	if strings.TrimSpace(c.Username) == "" {
		return ErrMissingUsername
	}
	if c.Password == "" && c.Token == "" {
		return errors.New("M2M password or application token is required (M2M_PASSWORD, M2M_TOKEN, or 'scenefetch login')")
	}
	return nil
}
