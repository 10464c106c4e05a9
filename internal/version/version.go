// Package version reports build information for coinsync.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set at build time with -ldflags "-X github.com/mrz1836/coinsync/internal/version.Version=...".
//
//nolint:gochecknoglobals // populated by the linker
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information, with unknown fields filled in.
func Get() Info {
	return Info{
		Version:   orDefault(Version, "dev"),
		Commit:    orDefault(Commit, "unknown"),
		Date:      orDefault(Date, "unknown"),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build information on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}

// UserAgent identifies coinsync in HTTP requests to the node.
func UserAgent() string {
	v := strings.TrimPrefix(orDefault(Version, "dev"), "v")
	return fmt.Sprintf("coinsync/%s (%s/%s)", v, runtime.GOOS, runtime.GOARCH)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
