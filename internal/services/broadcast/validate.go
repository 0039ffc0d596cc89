package broadcast

import (
	"fmt"
	"strconv"
	"strings"

	"blastbot/internal/pacing"
)

// Operator-input parsers. Unlike the self-healing load path, these reject
// out-of-policy values with messages fit to show verbatim.

// ParseCount validates a message-count entry against the product ceiling.
func ParseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("expected a number")
	}
	if n < MinCount || n > MaxCount {
		return 0, fmt.Errorf("count must be between %d and %d", MinCount, MaxCount)
	}
	return n, nil
}

// ParseInterval validates a minutes interval entry ("15" or "10-30").
func ParseInterval(raw string) (pacing.Range, error) {
	return pacing.ParseDualBounded(raw, MinIntervalMinutes, MaxIntervalMinutes)
}

// ParseChatPause validates a seconds chat-pause entry.
func ParseChatPause(raw string) (pacing.Range, error) {
	return pacing.ParseDualBounded(raw, MinChatPauseSeconds, MaxChatPauseSeconds)
}
