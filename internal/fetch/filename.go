package fetch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/scenefetch/scenefetch/internal/constants"
)

// ErrMissingFilename is returned when a response carries no usable filename.
var ErrMissingFilename = errors.New("response has no filename in Content-Disposition")

var (
	quotedFilenamePattern = regexp.MustCompile(`(?i)filename\*?\s*=\s*"([^"]*)"`)
	bareFilenamePattern   = regexp.MustCompile(`(?i)filename\*?\s*=\s*([^;]+)`)
)

// ParseFilename extracts the filename parameter of a Content-Disposition
// header value. The parameter name is case-insensitive. A quoted value is
// taken whole, semicolons included; an unquoted value ends at the next ';'.
// An RFC 5987 encoded value (filename*=UTF-8''name) is accepted with its
// charset prefix removed.
func ParseFilename(contentDisposition string) (string, error) {
	var name string
	if m := quotedFilenamePattern.FindStringSubmatch(contentDisposition); m != nil {
		name = strings.TrimSpace(m[1])
	} else if m := bareFilenamePattern.FindStringSubmatch(contentDisposition); m != nil {
		name = strings.TrimSpace(m[1])
		if i := strings.Index(name, "''"); i >= 0 {
			name = name[i+2:]
		}
		name = strings.Trim(name, `"`)
	} else {
		return "", ErrMissingFilename
	}
	if name == "" {
		return "", ErrMissingFilename
	}
	return name, nil
}

// DeriveEntityID maps a downloaded filename back to the band entity id it
// was requested under: "L2ST_" + name up to the first '.' + "_TIF".
func DeriveEntityID(filename string) string {
	stem := filename
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		stem = filename[:i]
	}
	return constants.EntityIDPrefix + stem + constants.EntityIDSuffix
}

// FetchError describes a failed attempt at one URL.
type FetchError struct {
	URL string
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
