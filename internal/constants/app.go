package constants

import (
	"time"
)

// M2M service defaults
const (
	// DefaultServiceURL - base URL of the M2M JSON API (stable channel)
	DefaultServiceURL = "https://m2m.cr.usgs.gov/api/api/json/stable/"

	// DefaultDataset - Landsat 8-9 OLI/TIRS Collection 2 Level-2
	DefaultDataset = "landsat_ot_c2_l2"

	// DefaultDownloadMode - per-band selection
	DefaultDownloadMode = "band"

	// DefaultSuffixFilter - surface temperature band
	DefaultSuffixFilter = "ST_B10_TIF"

	// AuthHeader - request header carrying the session token
	AuthHeader = "X-Auth-Token"
)

// Fulfillment polling
const (
	// PollInterval - fixed sleep between download-retrieve calls (30 seconds)
	PollInterval = 30 * time.Second

	// MaxPollWait - accumulated polling budget before pending tickets are abandoned (5 minutes)
	MaxPollWait = 300 * time.Second
)

// Entity id derivation for fetched files.
// A fetched "LC08_..._ST_B10.TIF" maps back to the band entity "L2ST_LC08_..._ST_B10_TIF".
const (
	EntityIDPrefix = "L2ST_"
	EntityIDSuffix = "_TIF"
)

// Retry configuration
const (
	// MaxRetries - maximum number of attempts for one fetch URL
	MaxRetries = 10

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second

	// APIMaxRetries - retryablehttp attempts for M2M calls (5xx and connection errors only)
	APIMaxRetries = 3
)

// CLI Concurrency Limits
const (
	// DefaultMaxConcurrent - default concurrent fetches per batch
	DefaultMaxConcurrent = 5

	// MinMaxConcurrent - minimum concurrent operations (sequential mode)
	MinMaxConcurrent = 1

	// MaxMaxConcurrent - maximum concurrent fetches allowed
	MaxMaxConcurrent = 10
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar updates (300ms)
	ProgressUpdateInterval = 300 * time.Millisecond
)

// Rate limiting for M2M calls
const (
	// APIRatePerSecond - sustained M2M request rate
	APIRatePerSecond = 2.0

	// APIBurst - bucket capacity for bursts of M2M calls
	APIBurst = 10

	// RateLimitWarningThreshold - delay threshold to log a warning (2 seconds)
	RateLimitWarningThreshold = 2 * time.Second
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for short API operations such as logout (30 seconds)
	APIContextTimeout = 30 * time.Second

	// FetchTimeout - absolute limit for one file fetch attempt (30 minutes)
	FetchTimeout = 30 * time.Minute
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPResponseHeaderTimeout - time to wait for response headers (2 minutes)
	// Large product downloads can take a while to start streaming.
	HTTPResponseHeaderTimeout = 2 * time.Minute
)

// Storage mirrors
const (
	// MirrorUploadTimeout - timeout for mirroring a single fetched file (30 minutes)
	MirrorUploadTimeout = 30 * time.Minute

	// DiskSpaceSafetyMargin - free space required per fetched file, as a multiple of its Content-Length
	DiskSpaceSafetyMargin = 1.05
)
