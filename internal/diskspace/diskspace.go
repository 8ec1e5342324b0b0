// Package diskspace checks free space on the filesystem that will receive a
// fetched product before its body is streamed to disk.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// InsufficientSpaceError indicates that a file will not fit on its target filesystem.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMiB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMiB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MiB, have %.2f MiB available",
		e.Path, requiredMiB, availableMiB)
}

// CheckAvailableSpace returns an *InsufficientSpaceError when requiredBytes
// times safetyMargin does not fit on the filesystem holding targetPath.
// targetPath itself need not exist, but its directory must. When free space
// cannot be determined the check passes and the write fails on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	if requiredBytes <= 0 {
		return nil
	}
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the free bytes on the filesystem holding path,
// or 0 when unknown.
func GetAvailableSpace(path string) int64 {
	available, _ := availableBytes(filepath.Dir(path))
	return available
}

// IsInsufficientSpaceError reports whether err wraps an *InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var spaceErr *InsufficientSpaceError
	return errors.As(err, &spaceErr)
}
