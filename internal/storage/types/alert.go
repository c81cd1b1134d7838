package types

import (
	"strings"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
)

// AlertKind identifies the resource an alert rule watches.
type AlertKind int

const (
	AlertCPU AlertKind = iota
	AlertMemory
	AlertDisk
)

// String returns the persisted form of the kind.
func (k AlertKind) String() string {
	switch k {
	case AlertCPU:
		return "cpu"
	case AlertMemory:
		return "memory"
	case AlertDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// ParseAlertKind parses the persisted form of a kind. Unknown kinds are
// rejected, never coerced.
func ParseAlertKind(s string) (AlertKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return AlertCPU, nil
	case "memory":
		return AlertMemory, nil
	case "disk":
		return AlertDisk, nil
	default:
		return AlertCPU, errors.Wrapf(errors.ErrUnknownAlertKind, "alert kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k AlertKind) MarshalText() ([]byte, error) {
	if k < AlertCPU || k > AlertDisk {
		return nil, errors.Wrapf(errors.ErrUnknownAlertKind, "alert kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AlertKind) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AllAlertKinds returns every kind in display order.
func AllAlertKinds() []AlertKind {
	return []AlertKind{AlertCPU, AlertMemory, AlertDisk}
}

// AlertThreshold is one alert rule.
type AlertThreshold struct {
	Kind    AlertKind `yaml:"kind" json:"kind"`
	Percent float64   `yaml:"percent" json:"percent"`
	Enabled bool      `yaml:"enabled" json:"enabled"`
}

// Observe extracts the value this rule compares against from a sample.
// ok is false when the value is undefined (memory with zero total).
func (t AlertThreshold) Observe(s *Sample) (value float64, ok bool) {
	switch t.Kind {
	case AlertCPU:
		return s.CPU.UsagePercent, true
	case AlertMemory:
		return s.Memory.UsagePercent()
	case AlertDisk:
		return s.Disk.UsagePercent, true
	default:
		return 0, false
	}
}

// AlertRecord is one persisted alert firing.
type AlertRecord struct {
	ID           int64     `json:"id"`
	Target       string    `json:"target"`
	Kind         AlertKind `json:"kind"`
	Threshold    float64   `json:"threshold"`
	Actual       float64   `json:"actual"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}
