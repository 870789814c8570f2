package config

import (
	"fmt"
	"strings"
	"time"
)

// parseDuration parses a Go duration string from the config field named by
// field. Empty means "unset" and parses to 0; negative values are rejected.
func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// durationOrDefault is parseDuration with a fallback for unset fields.
func durationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDuration(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
