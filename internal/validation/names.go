// Package validation checks names received from the M2M service and from users
// before they reach the filesystem or the wire.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// ValidateFilename validates a server-provided filename (not a path).
// Download hosts choose the name through Content-Disposition, so the value is
// untrusted and must not be able to leave the output directory.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}
	// Only the literal names are rejected; "LC08..TIF" stays legal.
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be %q", filename)
	}
	if filepath.VolumeName(filename) != "" {
		return fmt.Errorf("filename cannot carry a volume name: %s", filename)
	}
	return nil
}

// SafeJoin joins a validated filename onto dir and verifies the result stays inside dir.
func SafeJoin(dir, filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}

	base, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}
	full := filepath.Join(base, filename)

	rel, err := filepath.Rel(base, full)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes output directory: %s (base: %s)", filename, dir)
	}
	return full, nil
}

// ValidateEntityID rejects ids that cannot be a scene or product entity id.
func ValidateEntityID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("entity id cannot be empty")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("entity id contains whitespace or control characters: %q", id)
		}
	}
	return nil
}

// ValidateListID checks a working list id. The service accepts free text, but
// labels are derived from it so separators and whitespace are kept out.
func ValidateListID(id string) error {
	if id == "" {
		return fmt.Errorf("list id cannot be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("list id too long (%d > 64)", len(id))
	}
	for _, r := range id {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return fmt.Errorf("list id contains invalid character %q", r)
		}
	}
	return nil
}
