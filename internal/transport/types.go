// Package transport defines the behavioral contracts between the automation
// core and the two Telegram sides it talks to: the logged-in user accounts
// (Client) and the controlling bot (Notifier).
//
// The core never implements the wire protocol and never authenticates.
// Handles arrive already connected via the session hub.
package transport

import (
	"context"
	"errors"
	"time"
)

// ParseMode selects message formatting on send.
type ParseMode string

const (
	ParseHTML     ParseMode = "HTML"
	ParseMarkdown ParseMode = "Markdown"
)

// ErrAlreadyParticipant is returned by Client.Join when the account is already
// a member of the target chat. Callers treat it as a success-equivalent outcome.
var ErrAlreadyParticipant = errors.New("already a participant")

// Account identifies a logged-in user account.
type Account struct {
	ID       int64
	Username string
	Name     string
}

// JoinTarget identifies a chat to join. Exactly one field is set per candidate:
// a private invite hash, a public username, or a raw chat id.
type JoinTarget struct {
	InviteHash string
	Username   string
	ChatID     int64
}

// Message is one inbound message observed on a user account's event stream.
type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	ChatUsername string
	SenderID     int64
	SenderName   string
	Text         string
	Date         time.Time

	// Mentioned is the transport-level mention flag, when the backend sets one.
	Mentioned bool
	// ReplyToSenderID is the author of the replied-to message, 0 if none.
	ReplyToSenderID int64
	// MentionIDs carries user ids referenced by explicit mention entities.
	MentionIDs []int64
	// ButtonURLs lists URLs attached to the message's inline buttons.
	ButtonURLs []string
}

// Client is a live, already-authenticated user-session handle.
type Client interface {
	Self() Account
	Connected() bool

	// SendScheduled issues a server-side scheduled send: the message is
	// delivered by Telegram at the given future timestamp, so callers can
	// plan a whole schedule up front without sleeping between sends.
	SendScheduled(ctx context.Context, chatID int64, text string, at time.Time, mode ParseMode) error

	Join(ctx context.Context, target JoinTarget) error
	IsMember(ctx context.Context, target JoinTarget) (bool, error)

	// Updates subscribes to the account's live message stream. The channel
	// closes when the underlying connection drops; callers resubscribe.
	Updates(ctx context.Context) (<-chan Message, error)
}

// Button is one inline URL button attached to an operator notification.
type Button struct {
	Text string
	URL  string
}

// Notifier delivers formatted messages to an operator through the controlling bot.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string, buttons [][]Button) error
}
