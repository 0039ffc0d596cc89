package broadcast

import (
	"time"

	"blastbot/internal/pacing"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further scheduling progress is possible.
// Cancelled is terminal for callers, but the scheduler still converts it to
// stopped when it observes the flag mid-flight.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusStopped, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Error kinds recorded on a job when it fails as a whole.
const (
	ErrKindSendFailed   = "send_failed"
	ErrKindDisconnected = "account_disconnected"
)

// Job is one broadcast execution. The registry owns the canonical copy;
// reads hand out value copies.
type Job struct {
	ID          int
	UserID      int64
	Account     int
	AccountName string
	// GroupID links jobs created together by a fan-out launch; 0 for solo jobs.
	GroupID int

	TotalChats   int
	SentChats    int
	PlannedCount int
	Count        int
	// IntervalDisplay is the operator's interval setting captured at launch,
	// display-only.
	IntervalDisplay string

	StartTime time.Time
	Status    Status

	ErrorMessage string
	ErrorKind    string
}

// Numeric policy ceilings. Product policy, enforced at parse time with a
// user-facing rejection.
const (
	MinCount = 1
	MaxCount = 1000

	MinIntervalMinutes = 1
	MaxIntervalMinutes = 480

	MinChatPauseSeconds = 1
	MaxChatPauseSeconds = 30
)

// warmupOffset delays the very first scheduled send so the plan never lands
// in the past by the time the server accepts it.
const warmupOffset = 10 * time.Second

// Config is an operator's working broadcast configuration, persisted per user
// independently of any job.
type Config struct {
	Texts     []string `json:"texts"`
	TextMode  string   `json:"text_mode"`  // "random" | "sequence"
	TextIndex int      `json:"text_index"` // cursor, sequence mode only
	Count     int      `json:"count"`
	// Interval is minutes between re-sends to the same chat, either a bare
	// number or a "min-max" range.
	Interval string `json:"interval"`
	// ChatPause is seconds between distinct chats' first sends, same dual
	// encoding.
	ChatPause string `json:"chat_pause"`
	ParseMode string `json:"parse_mode"` // "HTML" | "Markdown"
	// PlanLimitCount/PlanLimitRest throttle by volume: after scheduling N
	// messages, rest for PlanLimitRest minutes. 0/0 disables.
	PlanLimitCount int `json:"plan_limit_count"`
	PlanLimitRest  int `json:"plan_limit_rest"`

	// Text is the legacy single-message field from older configs; migrated
	// into Texts by ApplyDefaults.
	Text string `json:"text,omitempty"`
}

const (
	TextModeRandom   = "random"
	TextModeSequence = "sequence"
)

// ApplyDefaults fills unset fields and migrates the legacy single-text field.
// Every config passes through here after load so persisted documents from
// older versions stay usable.
func (c *Config) ApplyDefaults() {
	if c.Text != "" && len(c.Texts) == 0 {
		c.Texts = []string{c.Text}
	}
	c.Text = ""
	if c.TextMode != TextModeSequence {
		c.TextMode = TextModeRandom
	}
	if c.Count < MinCount {
		c.Count = MinCount
	}
	if c.Count > MaxCount {
		c.Count = MaxCount
	}
	if c.Interval == "" {
		c.Interval = "1"
	}
	if c.ChatPause == "" {
		c.ChatPause = "1-3"
	}
	if c.ParseMode != "Markdown" {
		c.ParseMode = "HTML"
	}
	if c.PlanLimitCount < 0 {
		c.PlanLimitCount = 0
	}
	if c.PlanLimitRest < 0 {
		c.PlanLimitRest = 0
	}
}

// IntervalRange resolves the interval field, falling back to one minute on
// malformed persisted data.
func (c *Config) IntervalRange() pacing.Range {
	r, err := pacing.ParseDual(c.Interval)
	if err != nil {
		return pacing.Range{Min: 1, Max: 1}
	}
	return pacing.Normalize(r.Min, r.Max, 1, 1)
}

// ChatPauseRange resolves the chat pause field, defaulting to 1-3 seconds.
func (c *Config) ChatPauseRange() pacing.Range {
	r, err := pacing.ParseDual(c.ChatPause)
	if err != nil {
		return pacing.Range{Min: 1, Max: 3}
	}
	return pacing.Normalize(r.Min, r.Max, 1, 3)
}
