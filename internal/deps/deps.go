// Package deps reports whether the external tools vidbot drives are usable.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency vidbot relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if path, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
				status.Detail = path
			}
		}
		results = append(results, status)
	}
	return results
}

// HardwareProber answers whether the hardware encoder is usable.
type HardwareProber interface {
	HardwareAvailable(ctx context.Context) bool
}

// CheckHardwareEncoder reports NVENC availability. Its absence is not fatal;
// encodes fall back to software.
func CheckHardwareEncoder(ctx context.Context, prober HardwareProber, encoder string) Status {
	status := Status{
		Name:        "Hardware encoder",
		Command:     encoder,
		Description: "GPU H.264 encoding",
		Optional:    true,
	}
	if prober.HardwareAvailable(ctx) {
		status.Available = true
		status.Detail = "listed by ffmpeg"
	} else {
		status.Detail = "not listed by ffmpeg, software encoding will be used"
	}
	return status
}

// Tools returns the requirements for the download and encode tools.
func Tools(ytdlp, ffmpeg string) []Requirement {
	return []Requirement{
		{Name: "yt-dlp", Command: ytdlp, Description: "video download"},
		{Name: "ffmpeg", Command: ffmpeg, Description: "video encoding"},
	}
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
