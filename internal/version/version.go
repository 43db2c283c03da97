// Package version carries build metadata for the ratelimiter binary. The
// variables are overridden with -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Name is the service name reported in logs, traces and the CLI.
const Name = "ratelimiter"

var (
	// Set via: -ldflags "-X ratelimiter/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"

	GitCommit = "unknown"
)

// Info is build metadata plus a per-process instance identity.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the process Info. The instance ID is generated once.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

// LogAttrs returns the fields attached to every log record.
func (i Info) LogAttrs() []any {
	return []any{
		"service", Name,
		"version", i.Version,
		"instance_id", i.InstanceID,
		"hostname", i.Hostname,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s version %s (commit: %s, built: %s)", Name, i.Version, i.GitCommit, i.BuildDate)
}
