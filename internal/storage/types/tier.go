package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
)

// Tier represents a storage tier with specific resolution and retention.
type Tier int

const (
	// TierRaw stores one row per collected sample.
	// Retention: 1 hour
	TierRaw Tier = iota

	// TierMinute stores 1-minute aggregates.
	// Retention: 24 hours
	TierMinute
)

// RawTierWindow is the query tier boundary. Ranges up to and including it
// are served from TierRaw, longer ranges from TierMinute.
const RawTierWindow = time.Hour

// String returns the granularity label of the tier.
func (t Tier) String() string {
	switch t {
	case TierRaw:
		return "raw"
	case TierMinute:
		return "1m"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// TruncateToBucket truncates a timestamp to the start of its bucket.
func (t Tier) TruncateToBucket(ts time.Time) time.Time {
	switch t {
	case TierMinute:
		return ts.UTC().Truncate(time.Minute)
	default:
		return ts.UTC()
	}
}

// ParseTier parses a granularity label.
func ParseTier(s string) (Tier, error) {
	labels := make([]string, 0, len(AllTiers()))
	for _, t := range AllTiers() {
		if t.String() == s {
			return t, nil
		}
		labels = append(labels, t.String())
	}
	return TierRaw, errors.NewInvalidValue("tier", s, "want one of "+strings.Join(labels, ", "))
}

// AllTiers returns all available tiers in order.
func AllTiers() []Tier {
	return []Tier{TierRaw, TierMinute}
}

// SelectTierForRange returns the tier that serves a history query.
func SelectTierForRange(start, end time.Time) Tier {
	return SelectTierForRangeWithWindow(start, end, RawTierWindow)
}

// SelectTierForRangeWithWindow is SelectTierForRange with a configurable
// raw window.
func SelectTierForRangeWithWindow(start, end time.Time, rawWindow time.Duration) Tier {
	if end.Sub(start) <= rawWindow {
		return TierRaw
	}
	return TierMinute
}

// MarshalText renders the granularity label.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a granularity label.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
