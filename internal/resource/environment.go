package resource

import (
	"os"
	"strings"
)

const constrainedMemoryBytes = 2 << 30

// Environment classifies the host.
type Environment struct {
	Constrained bool   `json:"constrained"`
	Reason      string `json:"reason"`
}

// DetectEnvironment classifies the host from an optional override and a
// memory sample.
func DetectEnvironment(override *bool, s Sample) Environment {
	return detectEnvironment(override, s, os.Getenv)
}

func detectEnvironment(override *bool, s Sample, getenv func(string) string) Environment {
	if override != nil {
		return Environment{Constrained: *override, Reason: "configured"}
	}
	if getenv("TERMUX_VERSION") != "" || strings.Contains(getenv("PREFIX"), "com.termux") {
		return Environment{Constrained: true, Reason: "termux"}
	}
	if s.CPUs > 0 && s.CPUs <= 2 {
		return Environment{Constrained: true, Reason: "low cpu count"}
	}
	if s.HeadroomKnown && s.TotalBytes < constrainedMemoryBytes {
		return Environment{Constrained: true, Reason: "low total memory"}
	}
	return Environment{Constrained: false, Reason: "default"}
}

// Thresholds is one memory profile.
type Thresholds struct {
	// CeilingBytes is the resident size above which refreshes are refused.
	CeilingBytes uint64 `json:"ceiling_bytes"`

	// FullHeadroomBytes is the available memory the full tier needs.
	FullHeadroomBytes uint64 `json:"full_headroom_bytes"`

	// DegradedHeadroomBytes is the available memory below which a
	// constrained host refuses refreshes.
	DegradedHeadroomBytes uint64 `json:"degraded_headroom_bytes"`
}

// ThresholdsFromMB builds a profile from megabyte values.
func ThresholdsFromMB(ceiling, full, degraded int) Thresholds {
	return Thresholds{
		CeilingBytes:          mb(ceiling),
		FullHeadroomBytes:     mb(full),
		DegradedHeadroomBytes: mb(degraded),
	}
}

func mb(v int) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(v) << 20
}
