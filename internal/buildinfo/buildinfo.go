// Package buildinfo exposes what was built and when the process started.
package buildinfo

import "time"

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

var startedAt = time.Now().UTC()

// Info is reported by the health endpoint.
type Info struct {
	Commit    string    `json:"commit,omitempty"`
	BuiltAt   string    `json:"built_at,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

// Current returns the build metadata as of now.
func Current(now time.Time) Info {
	return Info{
		Commit:    CommitHash,
		BuiltAt:   BuildTime,
		StartedAt: startedAt,
		Uptime:    now.Sub(startedAt).Truncate(time.Second).String(),
	}
}
