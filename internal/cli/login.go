package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/core"
)

func newLoginCmd() *cobra.Command {
	var (
		username  string
		tokenFlag bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify M2M credentials and store them for later runs",
		Long: `Open an M2M session to verify credentials, then store the username.

With --token the secret is an M2M application token and is stored in the
credentials file (mode 0600). Passwords are verified but never stored; pass
them through M2M_PASSWORD for unattended runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reader := bufio.NewReader(os.Stdin)
			if username != "" {
				cfg.Username = username
			}
			if cfg.Username == "" {
				cfg.Username, err = promptLine(reader, cmd.OutOrStdout(), "M2M username: ")
				if err != nil {
					return err
				}
			}

			label := "Password"
			if tokenFlag {
				label = "Application token"
			}
			secret, err := promptSecret(reader, cmd.OutOrStdout(), label+": ")
			if err != nil {
				return err
			}
			if tokenFlag {
				cfg.Token, cfg.Password = secret, ""
			} else {
				cfg.Token, cfg.Password = "", secret
			}

			engine, err := core.NewEngine(cfg, core.Options{Logger: GetLogger()})
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx := GetContext()
			if err := engine.Login(ctx); err != nil {
				describeError(cmd.ErrOrStderr(), err)
				return err
			}
			_ = engine.Logout(ctx)

			creds := &config.Credentials{Username: cfg.Username}
			if tokenFlag {
				creds.Token = cfg.Token
			}
			if err := config.SaveCredentials(creds, credentialsPath()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s\n", cfg.Username)
			fmt.Fprintf(cmd.OutOrStdout(), "  Credentials saved to %s\n", credentialsPath())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "M2M username")
	cmd.Flags().BoolVar(&tokenFlag, "token", false, "Authenticate with an application token instead of a password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored M2M credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteCredentials(credentialsPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", credentialsPath())
			return nil
		},
	}
}

func promptLine(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("input cannot be empty")
	}
	return line, nil
}

// promptSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptSecret(reader *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(reader, out, prompt)
	}
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", fmt.Errorf("input cannot be empty")
	}
	return secret, nil
}
