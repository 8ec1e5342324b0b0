package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/scenefetch/scenefetch/internal/api"
	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/core"
	"github.com/scenefetch/scenefetch/internal/validation"
)

// configPath returns the --config path or the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// credentialsPath returns the --credentials path or the default location.
func credentialsPath() string {
	if credsFile != "" {
		return credsFile
	}
	return config.GetDefaultCredentialsPath()
}

// loadConfig builds the effective configuration.
// Priority: environment > credentials file > config file > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigCSV(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	creds, err := config.LoadCredentials(credentialsPath())
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	cfg.ApplyCredentials(creds)
	return cfg, nil
}

// withSession creates an engine for cfg, logs in, runs fn and logs out.
func withSession(ctx context.Context, cfg *config.Config, opts core.Options, fn func(ctx context.Context, engine *core.Engine) error) error {
	if opts.Logger == nil {
		opts.Logger = GetLogger()
	}
	engine, err := core.NewEngine(cfg, opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Login(ctx); err != nil {
		return err
	}
	defer func() {
		// Logout runs even after Ctrl+C
		logoutCtx, cancel := context.WithTimeout(context.Background(), constants.APIContextTimeout)
		defer cancel()
		if err := engine.Logout(logoutCtx); err != nil {
			GetLogger().Warn().Err(err).Msg("Logout failed")
		}
	}()

	return fn(ctx, engine)
}

// readEntityIDs collects scene ids from args and, when path is set, from a
// file with one id per line. "-" reads stdin. Blank lines and #-comments are skipped.
func readEntityIDs(args []string, path string) ([]string, error) {
	ids := make([]string, 0, len(args))
	ids = append(ids, args...)

	if path != "" {
		var r io.Reader
		if path == "-" {
			r = os.Stdin
		} else {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open id file: %w", err)
			}
			defer f.Close()
			r = f
		}
		fileIDs, err := parseIDList(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read id file %s: %w", path, err)
		}
		ids = append(ids, fileIDs...)
	}

	for i, id := range ids {
		ids[i] = strings.TrimSpace(id)
		if err := validation.ValidateEntityID(ids[i]); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no scene ids given (pass them as arguments or with --ids-file)")
	}
	return ids, nil
}

func parseIDList(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			ids = append(ids, field)
		}
	}
	return ids, scanner.Err()
}

// describeError prints a transport failure with its endpoint, status and
// service message.
func describeError(w io.Writer, err error) {
	te, ok := api.AsTransportError(err)
	if !ok {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "M2M call failed: %s\n", te.Endpoint)
	fmt.Fprintf(w, "  Kind:    %s\n", te.Kind)
	if te.StatusCode != 0 {
		fmt.Fprintf(w, "  Status:  HTTP %d\n", te.StatusCode)
	}
	if te.Code != "" {
		fmt.Fprintf(w, "  Code:    %s\n", te.Code)
	}
	if te.Message != "" {
		fmt.Fprintf(w, "  Message: %s\n", te.Message)
	}
	if te.Err != nil {
		fmt.Fprintf(w, "  Cause:   %v\n", te.Err)
	}
	if te.Kind == api.KindAuthError {
		fmt.Fprintln(w, "  Run 'scenefetch login' to refresh stored credentials.")
	}
}
