// Package storage copies fetched product files to cloud object storage.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/scenefetch/scenefetch/internal/config"
	ihttp "github.com/scenefetch/scenefetch/internal/http"
)

// Mirror uploads a local file and returns the remote location.
// Implementations are safe for concurrent use.
type Mirror interface {
	Name() string
	Upload(ctx context.Context, localPath string) (string, error)
}

// NewMirror builds the mirror selected by cfg.MirrorMode, or nil for "none".
func NewMirror(ctx context.Context, cfg *config.Config) (Mirror, error) {
	switch cfg.MirrorMode {
	case "", config.MirrorNone:
		return nil, nil
	}

	httpClient, err := ihttp.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client for mirror: %w", err)
	}

	switch cfg.MirrorMode {
	case config.MirrorS3:
		return NewS3Mirror(ctx, S3Options{
			Bucket:     cfg.MirrorBucket,
			Region:     cfg.MirrorRegion,
			Endpoint:   cfg.MirrorEndpoint,
			Prefix:     cfg.MirrorPrefix,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			HTTPClient: httpClient,
		})
	case config.MirrorAzure:
		return NewAzureMirror(cfg.MirrorSASURL, cfg.MirrorPrefix, httpClient)
	default:
		return nil, fmt.Errorf("unknown mirror mode %q", cfg.MirrorMode)
	}
}

// objectKey joins prefix and the file's base name with forward slashes.
func objectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// httpDoer is satisfied by *http.Client and by the azcore transport.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}
