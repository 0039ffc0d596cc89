// Package telebot adapts the controlling bot to the transport.Notifier
// contract used by the mention detector and the broadcast lifecycle
// forwarder.
package telebot

import (
	"context"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

// NewBot constructs the controlling bot with a long poller. The bot is used
// for outbound sends only; starting the poller is the UI layer's business.
func NewBot(token string, pollTimeout time.Duration) (*tele.Bot, error) {
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
}

// Notifier sends HTML-formatted alerts to operators, rate-limited per
// operator so a mention storm cannot trip Telegram's bot limits.
type Notifier struct {
	bot *tele.Bot
	log logx.Logger

	perSec rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func NewNotifier(bot *tele.Bot, perSec float64, log logx.Logger) *Notifier {
	if perSec <= 0 {
		perSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		bot:      bot,
		log:      log,
		perSec:   rate.Limit(perSec),
		burst:    3,
		limiters: map[int64]*rate.Limiter{},
	}
}

func (n *Notifier) limiter(userID int64) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	lim := n.limiters[userID]
	if lim == nil {
		lim = rate.NewLimiter(n.perSec, n.burst)
		n.limiters[userID] = lim
	}
	return lim
}

// Notify implements transport.Notifier.
func (n *Notifier) Notify(ctx context.Context, userID int64, text string, buttons [][]transport.Button) error {
	if err := n.limiter(userID).Wait(ctx); err != nil {
		return err
	}

	opts := []any{&tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	}}
	if markup := toMarkup(buttons); markup != nil {
		opts = append(opts, markup)
	}

	_, err := n.bot.Send(&tele.User{ID: userID}, text, opts...)
	if err != nil {
		n.log.Warn("notification send failed", logx.Int64("user", userID), logx.Err(err))
	}
	return err
}

func toMarkup(buttons [][]transport.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(buttons))
	for _, row := range buttons {
		if len(row) == 0 {
			continue
		}
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, URL: b.URL})
		}
		rows = append(rows, btns)
	}
	if len(rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
