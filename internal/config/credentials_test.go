package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSaveAndLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenefetch", "credentials")

	if err := SaveCredentials(&Credentials{Username: "jdoe", Token: "tok-123"}, path); err != nil {
		t.Fatalf("SaveCredentials failed: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("permissions = %o, want 600", perm)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Username != "jdoe" || creds.Token != "tok-123" {
		t.Errorf("loaded %+v", creds)
	}
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	creds, err := LoadCredentials(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Username != "" || creds.Token != "" {
		t.Errorf("expected empty credentials, got %+v", creds)
	}
}

func TestDeleteCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	if err := SaveCredentials(&Credentials{Username: "a", Token: "b"}, path); err != nil {
		t.Fatalf("SaveCredentials failed: %v", err)
	}
	if err := DeleteCredentials(path); err != nil {
		t.Fatalf("DeleteCredentials failed: %v", err)
	}
	if err := DeleteCredentials(path); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestApplyCredentialsKeepsExplicitValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Username = "flaguser"

	cfg.ApplyCredentials(&Credentials{Username: "fileuser", Token: "filetoken"})

	if cfg.Username != "flaguser" {
		t.Errorf("Username = %q, want flaguser", cfg.Username)
	}
	if cfg.Token != "filetoken" {
		t.Errorf("Token = %q, want filetoken", cfg.Token)
	}
	if err := cfg.ValidateForLogin(); err != nil {
		t.Errorf("ValidateForLogin() = %v", err)
	}

	empty := DefaultConfig()
	if err := empty.ValidateForLogin(); err != ErrMissingUsername {
		t.Errorf("ValidateForLogin() = %v, want ErrMissingUsername", err)
	}
}
