// Package risk implements the Risk Classifier: a pure, total function
// from Clear-Name to RiskLevel. It is deliberately a small ordered table
// of predicates rather than virtual dispatch, keeping the decision path
// easy to audit and free of dynamic method lookups.
package risk

import (
	"strings"
	"time"
)

// Level is the risk classification of a Clear-Name. Total order
// Low < Medium < High < Critical.
type Level int

const (
	Low Level = iota
	Medium
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// DefaultLifetime returns the default JIT grant lifetime for this risk
// level. Critical returns zero, meaning single-use: the grant is
// consumed and tombstoned on first successful delegation rather than
// carrying any time-bounded lifetime at all.
func (l Level) DefaultLifetime() time.Duration {
	switch l {
	case Low:
		return 3600 * time.Second
	case Medium:
		return 300 * time.Second
	case High:
		return 60 * time.Second
	case Critical:
		return 0
	default:
		return 300 * time.Second
	}
}

// SingleUse reports whether a grant at this risk level must be
// tombstoned immediately after its first successful delegation.
func (l Level) SingleUse() bool { return l == Critical }

// rule is one entry in the classification table: if match returns true
// for a Clear-Name, level is the classification and evaluation stops.
// Rules are evaluated in order; the first match wins.
type rule struct {
	match func(name string) bool
	level Level
}

var rules = []rule{
	{
		level: Critical,
		match: func(n string) bool {
			return strings.HasPrefix(n, "system.") ||
				strings.HasPrefix(n, "disk.") ||
				strings.HasPrefix(n, "admin.") ||
				strings.Contains(n, "restore") ||
				strings.Contains(n, "configure")
		},
	},
	{
		level: High,
		match: func(n string) bool {
			return strings.HasPrefix(n, "camera.") ||
				strings.HasPrefix(n, "microphone.") ||
				strings.HasPrefix(n, "location.") ||
				strings.HasPrefix(n, "biometric.")
		},
	},
	{
		level: High,
		match: func(n string) bool {
			return strings.HasPrefix(n, "network.") && (strings.Contains(n, "local") || strings.Contains(n, "lan"))
		},
	},
	{
		level: Medium,
		match: func(n string) bool { return strings.HasPrefix(n, "network.") },
	},
	{
		level: High,
		match: func(n string) bool {
			return strings.HasPrefix(n, "files.") && (strings.Contains(n, "system") || strings.Contains(n, "etc"))
		},
	},
	{
		level: Medium,
		match: func(n string) bool {
			return strings.HasPrefix(n, "files.") && (strings.Contains(n, "home") || strings.Contains(n, "documents"))
		},
	},
	{
		level: Low,
		match: func(n string) bool {
			return strings.HasPrefix(n, "files.") && (strings.Contains(n, "download") || strings.Contains(n, "temp"))
		},
	},
	{
		level: Medium,
		match: func(n string) bool { return strings.HasPrefix(n, "files.") },
	},
	{
		level: High,
		match: func(n string) bool {
			return strings.HasPrefix(n, "process.") && (strings.Contains(n, "kill") || strings.Contains(n, "debug"))
		},
	},
	{
		level: Medium,
		match: func(n string) bool { return strings.HasPrefix(n, "process.") },
	},
	{
		level: Medium,
		match: func(n string) bool { return strings.HasPrefix(n, "graphics.") || strings.HasPrefix(n, "gpu.") },
	},
	{
		level: High,
		match: func(n string) bool { return strings.HasPrefix(n, "audio.in") },
	},
	{
		level: Low,
		match: func(n string) bool { return strings.HasPrefix(n, "audio.out") },
	},
}

// Classify maps a Clear-Name to a RiskLevel. It is total (never panics)
// and deterministic: the same input always yields the same output.
func Classify(name string) Level {
	for _, r := range rules {
		if r.match(name) {
			return r.level
		}
	}
	return Medium
}
