// scenefetch - bulk scene downloads from the USGS M2M service.
package main

import (
	"os"

	"github.com/scenefetch/scenefetch/internal/cli"
	"github.com/scenefetch/scenefetch/internal/version"
)

// Version information, overridden by ldflags in release builds.
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
