package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/scenefetch/scenefetch/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scenefetch %s\n", version.Version)
			fmt.Fprintf(out, "  Built:      %s\n", version.BuildTime)
			fmt.Fprintf(out, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  User-Agent: %s\n", version.UserAgent())
		},
	}
}
