package mentions

import (
	"strconv"
	"strings"

	"blastbot/internal/transport"
)

// NormalizeChatID maps a transport-level chat id to its bare form so ids from
// different sources compare equal: channel/supergroup peers carry a -100
// prefix, legacy group ids are plain negatives.
func NormalizeChatID(id int64) int64 {
	const channelBase = 1_000_000_000_000
	if id <= -channelBase {
		return -id - channelBase
	}
	if id < 0 {
		return -id
	}
	return id
}

// isMention reports whether the message addresses the given account. The
// transport flag is authoritative when set; the fallbacks cover backends and
// edge cases where it is not.
func isMention(self transport.Account, m transport.Message) bool {
	if m.SenderID == self.ID {
		return false
	}
	if m.Mentioned {
		return true
	}
	if m.ReplyToSenderID != 0 && m.ReplyToSenderID == self.ID {
		return true
	}
	for _, id := range m.MentionIDs {
		if id == self.ID {
			return true
		}
	}
	text := strings.ToLower(m.Text)
	if self.Username != "" {
		if strings.Contains(text, "@"+strings.ToLower(self.Username)) {
			return true
		}
	}
	// Accounts without a username are still addressable as "user<id>".
	if self.ID != 0 && strings.Contains(text, "user"+strconv.FormatInt(self.ID, 10)) {
		return true
	}
	return false
}
