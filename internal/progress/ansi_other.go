//go:build !windows

package progress

import "os"

func enableANSIOnWindows(f *os.File) {}
