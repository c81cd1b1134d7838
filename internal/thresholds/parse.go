package thresholds

import (
	"math"
	"strconv"
	"strings"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

// ParseRule parses the command line form of a rule: "kind=percent",
// optionally suffixed with ":off" to disable it, e.g. "cpu=85" or
// "disk=95:off".
func ParseRule(s string) (types.AlertThreshold, error) {
	kindStr, rest, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return types.AlertThreshold{}, errors.NewInvalidValue("rule", s, "want kind=percent")
	}

	kind, err := types.ParseAlertKind(kindStr)
	if err != nil {
		return types.AlertThreshold{}, err
	}

	enabled := true
	if pct, flag, found := strings.Cut(rest, ":"); found {
		switch strings.ToLower(flag) {
		case "off", "disabled":
			enabled = false
		case "on", "enabled":
		default:
			return types.AlertThreshold{}, errors.NewInvalidValue("rule", s, "flag must be on or off")
		}
		rest = pct
	}

	percent, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil || math.IsNaN(percent) || math.IsInf(percent, 0) {
		return types.AlertThreshold{}, errors.NewInvalidValue("rule", s, "percent is not a number")
	}

	return types.AlertThreshold{Kind: kind, Percent: percent, Enabled: enabled}, nil
}

// ParseRules parses several rules and validates the resulting set.
func ParseRules(args []string) ([]types.AlertThreshold, error) {
	out := make([]types.AlertThreshold, 0, len(args))
	for _, arg := range args {
		rule, err := ParseRule(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}
