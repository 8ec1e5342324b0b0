package diskspace

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckAvailableSpace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "LC08_ST_B10.TIF")

	t.Run("SmallFile", func(t *testing.T) {
		if err := CheckAvailableSpace(target, 1024, 1.1); err != nil {
			t.Errorf("Expected no error for small file, got: %v", err)
		}
	})

	t.Run("UnknownSize", func(t *testing.T) {
		if err := CheckAvailableSpace(target, -1, 1.1); err != nil {
			t.Errorf("Expected unknown size to pass, got: %v", err)
		}
	})

	t.Run("VeryLargeFile", func(t *testing.T) {
		// 100 PiB exceeds any test machine
		err := CheckAvailableSpace(target, 100<<50, 1.1)
		if err == nil {
			t.Skip("could not determine available space")
		}
		if !IsInsufficientSpaceError(err) {
			t.Errorf("Expected InsufficientSpaceError, got: %T", err)
		}
	})

	t.Run("MissingDirectoryPasses", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "no", "such", "dir", "f.TIF")
		if err := CheckAvailableSpace(missing, 100<<50, 1.1); err != nil {
			t.Errorf("Expected unknown filesystem to pass, got: %v", err)
		}
	})
}

func TestGetAvailableSpace(t *testing.T) {
	available := GetAvailableSpace(filepath.Join(t.TempDir(), "x"))
	if available == 0 {
		t.Error("Expected non-zero available space for the temp dir")
	}
}

func TestIsInsufficientSpaceError(t *testing.T) {
	err := &InsufficientSpaceError{Path: "/data/x.TIF", RequiredBytes: 1000, AvailableBytes: 500}
	if !IsInsufficientSpaceError(err) {
		t.Error("Expected IsInsufficientSpaceError to return true")
	}
	if !IsInsufficientSpaceError(fmt.Errorf("persist: %w", err)) {
		t.Error("Expected wrapped error to match")
	}
	if IsInsufficientSpaceError(fmt.Errorf("some other error")) {
		t.Error("Expected false for non-disk-space error")
	}
	if IsInsufficientSpaceError(nil) {
		t.Error("Expected false for nil")
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:           "/data/x.TIF",
		RequiredBytes:  1024 * 1024 * 100,
		AvailableBytes: 1024 * 1024 * 50,
	}
	msg := err.Error()
	for _, want := range []string{"/data/x.TIF", "100.00", "50.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
}
