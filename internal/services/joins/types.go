package joins

import (
	"fmt"
	"sort"
	"strings"

	"blastbot/internal/pacing"
)

// Request is one batch of join candidates, usually everything extracted from
// a single observed message.
type Request struct {
	ChatID    int64
	Links     []string
	Usernames []string
}

func (r Request) Empty() bool {
	return r.ChatID == 0 && len(r.Links) == 0 && len(r.Usernames) == 0
}

// key is the dedup identity of a request. Candidate order does not matter:
// two messages carrying the same links in a different order are the same work.
func (r Request) key() string {
	// Invite hashes are case-sensitive, so link casing is kept as-is.
	links := append([]string(nil), r.Links...)
	users := append([]string(nil), r.Usernames...)
	for i := range users {
		users[i] = strings.ToLower(strings.TrimPrefix(users[i], "@"))
	}
	sort.Strings(links)
	sort.Strings(users)
	return fmt.Sprintf("%d|%s|%s", r.ChatID, strings.Join(links, ","), strings.Join(users, ","))
}

// Delay ceilings for operator-entered pacing, in seconds.
const (
	MaxPerTargetDelaySeconds = 600
	MaxBetweenDelaySeconds   = 3600
)

// Settings is a user's persisted auto-join configuration.
type Settings struct {
	Enabled bool `json:"enabled"`
	// TargetAccounts restricts which sub-accounts perform joins; empty means
	// every connected account.
	TargetAccounts []int `json:"target_accounts"`
	// PerTargetDelay is seconds between one request's join attempts when it
	// fans out over several accounts ("10-15" or a bare number).
	PerTargetDelay string `json:"per_target_delay"`
	// BetweenDelay is seconds between draining consecutive queue entries.
	BetweenDelay string `json:"between_delay"`
}

func (s *Settings) ApplyDefaults() {
	if s.PerTargetDelay == "" {
		s.PerTargetDelay = "10-15"
	}
	if s.BetweenDelay == "" {
		s.BetweenDelay = "5-10"
	}
}

// PerTargetRange resolves the per-account delay, self-healing to 10-15s.
func (s Settings) PerTargetRange() pacing.Range {
	r, err := pacing.ParseDual(s.PerTargetDelay)
	if err != nil {
		return pacing.Range{Min: 10, Max: 15}
	}
	return pacing.Normalize(r.Min, r.Max, 10, 15)
}

// BetweenRange resolves the between-requests delay, self-healing to 5-10s.
func (s Settings) BetweenRange() pacing.Range {
	r, err := pacing.ParseDual(s.BetweenDelay)
	if err != nil {
		return pacing.Range{Min: 5, Max: 10}
	}
	return pacing.Normalize(r.Min, r.Max, 5, 10)
}

// ParsePerTargetDelay validates an operator entry against the ceiling.
func ParsePerTargetDelay(raw string) (pacing.Range, error) {
	return pacing.ParseDualBounded(raw, 1, MaxPerTargetDelaySeconds)
}

// ParseBetweenDelay validates an operator entry against the ceiling.
func ParseBetweenDelay(raw string) (pacing.Range, error) {
	return pacing.ParseDualBounded(raw, 1, MaxBetweenDelaySeconds)
}
