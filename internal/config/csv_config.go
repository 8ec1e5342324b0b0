package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scenefetch/scenefetch/internal/constants"
)

// Proxy modes accepted by proxy_mode.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Mirror modes accepted by mirror_mode.
const (
	MirrorNone  = "none"
	MirrorS3    = "s3"
	MirrorAzure = "azure"
)

// Validation errors
var (
	ErrMissingServiceURL = errors.New("service_url is required")
	ErrMissingDataset    = errors.New("dataset is required")
	ErrInvalidMode       = errors.New("download_mode must be one of bundle, band, both")
	ErrMissingBucket     = errors.New("mirror_bucket is required when mirror_mode is s3")
	ErrMissingSASURL     = errors.New("SCENEFETCH_AZURE_SAS_URL is required when mirror_mode is azure")
)

// Config represents the scenefetch configuration.
type Config struct {
	// M2M service
	ServiceURL string
	Dataset    string

	// Session credentials. Never read from or written to config.csv;
	// see LoadCredentials and ApplyEnv.
	Username string
	Password string
	Token    string

	// Selection
	DownloadMode  string   // "bundle", "band", "both"
	SuffixFilters []string // band entity id suffixes, caller order

	// Orchestration
	OutputDir     string
	MaxConcurrent int
	PollInterval  time.Duration
	MaxWait       time.Duration

	// Fetch retry
	MaxRetries        int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Mirror settings. Fetched files are copied to S3 or Azure Blob after local persist.
	MirrorMode     string // "none", "s3", "azure"
	MirrorBucket   string // S3 bucket
	MirrorRegion   string // S3 region
	MirrorEndpoint string // optional S3-compatible endpoint
	MirrorPrefix   string // key/blob prefix
	MirrorSASURL   string // Azure container SAS URL (env only)
	S3AccessKey    string // env only
	S3SecretKey    string // env only
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceURL:        constants.DefaultServiceURL,
		Dataset:           constants.DefaultDataset,
		DownloadMode:      constants.DefaultDownloadMode,
		SuffixFilters:     []string{constants.DefaultSuffixFilter},
		OutputDir:         ".",
		MaxConcurrent:     constants.DefaultMaxConcurrent,
		PollInterval:      constants.PollInterval,
		MaxWait:           constants.MaxPollWait,
		MaxRetries:        constants.MaxRetries,
		RetryInitialDelay: constants.RetryInitialDelay,
		RetryMaxDelay:     constants.RetryMaxDelay,
		ProxyMode:         ProxyModeNone,
		MirrorMode:        MirrorNone,
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	// Return defaults if config doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "service_url":
			cfg.ServiceURL = value
		case "dataset":
			cfg.Dataset = value
		case "username":
			cfg.Username = value
		case "password", "token", "proxy_password", "azure_sas_url", "s3_secret_key":
			// SECURITY: secrets belong in the credentials file or environment
			if value != "" {
				log.Warn().Str("key", key).Msg("secret in config file is ignored; use the credentials file or environment")
			}
		case "download_mode":
			cfg.DownloadMode = strings.ToLower(value)
		case "suffix_filters":
			cfg.SuffixFilters = splitList(value)
		case "output_dir":
			cfg.OutputDir = value
		case "max_concurrent":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.MaxConcurrent = v
			}
		case "poll_interval":
			if d, ok := parseDuration(value); ok {
				cfg.PollInterval = d
			}
		case "max_wait":
			if d, ok := parseDuration(value); ok {
				cfg.MaxWait = d
			}
		case "max_retries":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.MaxRetries = v
			}
		case "retry_initial_delay":
			if d, ok := parseDuration(value); ok {
				cfg.RetryInitialDelay = d
			}
		case "retry_max_delay":
			if d, ok := parseDuration(value); ok {
				cfg.RetryMaxDelay = d
			}
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "no_proxy":
			cfg.NoProxy = value
		case "proxy_warmup":
			cfg.ProxyWarmup = parseBool(value)
		case "mirror_mode":
			cfg.MirrorMode = strings.ToLower(value)
		case "mirror_bucket":
			cfg.MirrorBucket = value
		case "mirror_region":
			cfg.MirrorRegion = value
		case "mirror_endpoint":
			cfg.MirrorEndpoint = value
		case "mirror_prefix":
			cfg.MirrorPrefix = value
		}
	}

	return cfg, nil
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// SECURITY: password, token, proxy_password and mirror secrets are never written here
	records := [][]string{
		{"service_url", cfg.ServiceURL},
		{"dataset", cfg.Dataset},
		{"username", cfg.Username},
		{"download_mode", cfg.DownloadMode},
		{"suffix_filters", strings.Join(cfg.SuffixFilters, ";")},
		{"output_dir", cfg.OutputDir},
		{"max_concurrent", strconv.Itoa(cfg.MaxConcurrent)},
		{"poll_interval", cfg.PollInterval.String()},
		{"max_wait", cfg.MaxWait.String()},
		{"max_retries", strconv.Itoa(cfg.MaxRetries)},
		{"retry_initial_delay", cfg.RetryInitialDelay.String()},
		{"retry_max_delay", cfg.RetryMaxDelay.String()},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"proxy_warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		{"mirror_mode", cfg.MirrorMode},
		{"mirror_bucket", cfg.MirrorBucket},
		{"mirror_region", cfg.MirrorRegion},
		{"mirror_endpoint", cfg.MirrorEndpoint},
		{"mirror_prefix", cfg.MirrorPrefix},
	}

	for _, record := range records {
		// Only write non-empty values to keep file clean
		if record[1] != "" && record[1] != "0" && record[1] != "false" {
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	return nil
}

// ApplyEnv merges environment overrides into the config.
// Priority: environment > credentials file > config file > defaults.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("M2M_SERVICE_URL"); v != "" {
		c.ServiceURL = v
	}
	if v := os.Getenv("M2M_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("M2M_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("M2M_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("SCENEFETCH_AZURE_SAS_URL"); v != "" {
		c.MirrorSASURL = v
	}
	if v := os.Getenv("SCENEFETCH_S3_ACCESS_KEY"); v != "" {
		c.S3AccessKey = v
	}
	if v := os.Getenv("SCENEFETCH_S3_SECRET_KEY"); v != "" {
		c.S3SecretKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && c.ProxyHost == "" {
		c.parseProxyURL(v)
	}

	if c.ServiceURL != "" && !strings.HasPrefix(c.ServiceURL, "http") {
		c.ServiceURL = "https://" + c.ServiceURL
	}
	if c.ServiceURL != "" && !strings.HasSuffix(c.ServiceURL, "/") {
		c.ServiceURL += "/"
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")
	proxyURL = strings.TrimSuffix(proxyURL, "/")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && c.ProxyMode == ProxyModeNone {
		c.ProxyMode = ProxyModeSystem
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceURL) == "" {
		return ErrMissingServiceURL
	}
	if strings.TrimSpace(c.Dataset) == "" {
		return ErrMissingDataset
	}
	switch c.DownloadMode {
	case "bundle", "band", "both":
	default:
		return ErrInvalidMode
	}
	if c.MaxConcurrent < constants.MinMaxConcurrent || c.MaxConcurrent > constants.MaxMaxConcurrent {
		return fmt.Errorf("max_concurrent must be between %d and %d", constants.MinMaxConcurrent, constants.MaxMaxConcurrent)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("max_wait must not be negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	switch c.ProxyMode {
	case "", ProxyModeNone, ProxyModeSystem, ProxyModeBasic, ProxyModeNTLM:
	default:
		return fmt.Errorf("unknown proxy_mode %q", c.ProxyMode)
	}
	switch c.MirrorMode {
	case "", MirrorNone:
	case MirrorS3:
		if c.MirrorBucket == "" {
			return ErrMissingBucket
		}
	case MirrorAzure:
		if c.MirrorSASURL == "" {
			return ErrMissingSASURL
		}
	default:
		return fmt.Errorf("unknown mirror_mode %q", c.MirrorMode)
	}
	return nil
}

// splitList splits a semicolon- or comma-separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ';' || r == ',' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration accepts Go durations ("30s", "5m") or bare seconds ("30").
func parseDuration(value string) (time.Duration, bool) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func parseBool(value string) bool {
	return strings.ToLower(value) == "true" || value == "1"
}
