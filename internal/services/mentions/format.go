package mentions

import (
	"fmt"
	"html"
	"strings"

	"blastbot/internal/transport"
)

const excerptLimit = 200

// formatNotification renders an operator-facing mention alert in HTML with
// deep-link buttons to the message and the sender.
func formatNotification(account int, self transport.Account, msg transport.Message) (string, [][]transport.Button) {
	who := self.Name
	if who == "" {
		who = self.Username
	}
	if who == "" {
		who = fmt.Sprintf("Account %d", account)
	}

	chat := msg.ChatTitle
	if chat == "" && msg.ChatUsername != "" {
		chat = "@" + msg.ChatUsername
	}
	if chat == "" {
		chat = fmt.Sprintf("chat %d", msg.ChatID)
	}

	sender := msg.SenderName
	if sender == "" {
		sender = fmt.Sprintf("user %d", msg.SenderID)
	}

	var b strings.Builder
	b.WriteString("🔔 <b>You were mentioned</b>\n")
	fmt.Fprintf(&b, "Account: <b>%s</b>\n", html.EscapeString(who))
	fmt.Fprintf(&b, "Chat: <b>%s</b>\n", html.EscapeString(chat))
	fmt.Fprintf(&b, "From: %s", html.EscapeString(sender))
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "\nTime: %s", msg.Date.Format("15:04:05"))
	}
	if excerpt := truncate(msg.Text, excerptLimit); excerpt != "" {
		b.WriteString("\n\n<i>")
		b.WriteString(html.EscapeString(excerpt))
		b.WriteString("</i>")
	}

	var row []transport.Button
	if url := messageLink(msg); url != "" {
		row = append(row, transport.Button{Text: "Open message", URL: url})
	}
	if msg.SenderID != 0 {
		row = append(row, transport.Button{Text: "Sender", URL: fmt.Sprintf("tg://user?id=%d", msg.SenderID)})
	}
	var buttons [][]transport.Button
	if len(row) > 0 {
		buttons = [][]transport.Button{row}
	}
	return b.String(), buttons
}

// messageLink builds a t.me deep link to the message: the public form for
// chats with a username, the /c/ form for private channels and supergroups.
// Legacy private groups have no linkable form.
func messageLink(msg transport.Message) string {
	if msg.ID == 0 {
		return ""
	}
	if msg.ChatUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", msg.ChatUsername, msg.ID)
	}
	const channelBase = 1_000_000_000_000
	if msg.ChatID <= -channelBase {
		return fmt.Sprintf("https://t.me/c/%d/%d", NormalizeChatID(msg.ChatID), msg.ID)
	}
	return ""
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
