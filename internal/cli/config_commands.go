package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/selector"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage scenefetch configuration",
		Long: `Configuration management commands for scenefetch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for scenefetch.

Secrets (password, application token, proxy password, cloud keys) are never
written to config.csv. Use 'scenefetch login' or environment variables.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := promptConfig(bufio.NewReader(cmd.InOrStdin()), out, config.DefaultConfig())
			if err != nil {
				return err
			}
			// The SAS URL is env only and may be set later
			if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrMissingSASURL) {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\n✓ Configuration saved to %s\n", path)
			fmt.Fprintln(out, "Next: run 'scenefetch login' to store your M2M credentials.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// promptConfig asks for each setting, keeping the default on an empty answer.
func promptConfig(reader *bufio.Reader, out io.Writer, cfg *config.Config) (*config.Config, error) {
	ask := func(label, def string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return def
		}
		return input
	}
	askDuration := func(label string, def time.Duration) time.Duration {
		v := ask(label, def.String())
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
		fmt.Fprintf(out, "  Invalid duration %q, keeping %s\n", v, def)
		return def
	}

	fmt.Fprintln(out, "scenefetch Configuration Setup")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	cfg.ServiceURL = ask("M2M service URL", cfg.ServiceURL)
	cfg.Dataset = ask("Dataset", cfg.Dataset)
	cfg.Username = ask("M2M username", cfg.Username)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Selection (press Enter for defaults)")
	fmt.Fprintln(out, "------------------------------------")
	mode := ask("Download mode (bundle, band, both)", cfg.DownloadMode)
	parsed, err := selector.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	cfg.DownloadMode = string(parsed)
	filters := ask("Band suffix filters (comma separated)", strings.Join(cfg.SuffixFilters, ","))
	cfg.SuffixFilters = nil
	for _, f := range strings.Split(filters, ",") {
		if f = strings.TrimSpace(f); f != "" {
			cfg.SuffixFilters = append(cfg.SuffixFilters, f)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Downloads")
	fmt.Fprintln(out, "---------")
	cfg.OutputDir = ask("Output directory", cfg.OutputDir)
	if v, err := strconv.Atoi(ask("Concurrent fetches", strconv.Itoa(cfg.MaxConcurrent))); err == nil {
		cfg.MaxConcurrent = v
	}
	cfg.PollInterval = askDuration("Poll interval", cfg.PollInterval)
	cfg.MaxWait = askDuration("Maximum wait for preparing downloads", cfg.MaxWait)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Network")
	fmt.Fprintln(out, "-------")
	cfg.ProxyMode = ask("Proxy mode (no-proxy, system, basic, ntlm)", cfg.ProxyMode)
	if cfg.ProxyMode == config.ProxyModeBasic || cfg.ProxyMode == config.ProxyModeNTLM {
		cfg.ProxyHost = ask("Proxy host", cfg.ProxyHost)
		if v, err := strconv.Atoi(ask("Proxy port", "8080")); err == nil {
			cfg.ProxyPort = v
		}
		cfg.ProxyUser = ask("Proxy user", cfg.ProxyUser)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Mirror")
	fmt.Fprintln(out, "------")
	cfg.MirrorMode = strings.ToLower(ask("Mirror fetched files to (none, s3, azure)", cfg.MirrorMode))
	switch cfg.MirrorMode {
	case config.MirrorS3:
		cfg.MirrorBucket = ask("S3 bucket", cfg.MirrorBucket)
		cfg.MirrorRegion = ask("S3 region", "us-west-2")
		cfg.MirrorEndpoint = ask("S3 endpoint (blank for AWS)", "")
		cfg.MirrorPrefix = ask("Key prefix", cfg.MirrorPrefix)
	case config.MirrorAzure:
		cfg.MirrorPrefix = ask("Blob prefix", cfg.MirrorPrefix)
		fmt.Fprintln(out, "  Set SCENEFETCH_AZURE_SAS_URL to the container SAS URL before downloading.")
	}

	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (config.csv)
  2. Credentials file (username, application token)
  3. Environment variables (M2M_USERNAME, M2M_PASSWORD, M2M_TOKEN, ...)

Priority: environment > credentials file > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "M2M Settings:")
	fmt.Fprintf(w, "  Service URL: %s\n", cfg.ServiceURL)
	fmt.Fprintf(w, "  Dataset:     %s\n", cfg.Dataset)
	fmt.Fprintf(w, "  Username:    %s\n", orNotSet(cfg.Username))
	// Never display any portion of a secret
	fmt.Fprintf(w, "  Password:    %s\n", secretState(cfg.Password))
	fmt.Fprintf(w, "  App token:   %s\n", secretState(cfg.Token))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Selection:")
	fmt.Fprintf(w, "  Mode:    %s\n", cfg.DownloadMode)
	fmt.Fprintf(w, "  Filters: %s\n", strings.Join(cfg.SuffixFilters, ", "))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Downloads:")
	fmt.Fprintf(w, "  Output directory: %s\n", cfg.OutputDir)
	fmt.Fprintf(w, "  Concurrency:      %d\n", cfg.MaxConcurrent)
	fmt.Fprintf(w, "  Poll interval:    %s\n", cfg.PollInterval)
	fmt.Fprintf(w, "  Max wait:         %s\n", cfg.MaxWait)
	fmt.Fprintf(w, "  Max attempts:     %d (%s - %s backoff)\n", cfg.MaxRetries, cfg.RetryInitialDelay, cfg.RetryMaxDelay)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	if cfg.NoProxy != "" {
		fmt.Fprintf(w, "  No Proxy:   %s\n", cfg.NoProxy)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Mirror:")
	fmt.Fprintf(w, "  Mode: %s\n", cfg.MirrorMode)
	switch cfg.MirrorMode {
	case config.MirrorS3:
		fmt.Fprintf(w, "  Bucket: %s (%s)\n", cfg.MirrorBucket, orNotSet(cfg.MirrorRegion))
		if cfg.MirrorEndpoint != "" {
			fmt.Fprintf(w, "  Endpoint: %s\n", cfg.MirrorEndpoint)
		}
	case config.MirrorAzure:
		fmt.Fprintf(w, "  SAS URL: %s\n", secretState(cfg.MirrorSASURL))
	}
	if cfg.MirrorPrefix != "" {
		fmt.Fprintf(w, "  Prefix: %s\n", cfg.MirrorPrefix)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", configPath())
	if _, err := os.Stat(configPath()); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
	fmt.Fprintf(w, "Credentials file:   %s\n", credentialsPath())
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			fmt.Fprintf(out, "  %s\n", path)
			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: scenefetch config init")
			}
			return nil
		},
	}
}

func secretState(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(s))
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}
