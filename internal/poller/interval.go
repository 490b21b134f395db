// Package poller runs one goroutine per configured chain, polling it at
// an adaptive interval with consecutive-failure backoff, and owns the
// fleet of such goroutines across config reloads (spec.md §4.6/§4.7).
package poller

import (
	"regexp"
	"strconv"
	"strings"
)

var durationPattern = regexp.MustCompile(`^\s*(\d+)\s*([smhSMH]?)\s*$`)

// ParseDurationSeconds parses strings like "5m", "10s", "1h", or a bare
// integer (seconds), returning (0, false) if value doesn't match.
func ParseDurationSeconds(value string) (int, bool) {
	match := durationPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, false
	}

	amount, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}

	multiplier := 1
	switch strings.ToLower(match[2]) {
	case "m":
		multiplier = 60
	case "h":
		multiplier = 3600
	}

	return amount * multiplier, true
}

// DetermineIntervalSeconds resolves a chain's configured poll_interval,
// falling back to defaultSeconds if unset or invalid.
func DetermineIntervalSeconds(pollInterval string, defaultSeconds int) int {
	raw := strings.TrimSpace(pollInterval)
	if raw == "" {
		return defaultSeconds
	}

	seconds, ok := ParseDurationSeconds(raw)
	if !ok || seconds <= 0 {
		return defaultSeconds
	}
	return seconds
}
