package mentions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/services/joins"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type monitorKey struct {
	userID  int64
	account int
}

type monitor struct {
	stop     chan struct{}
	stopOnce sync.Once
}

func (m *monitor) halt() { m.stopOnce.Do(func() { close(m.stop) }) }

// Service runs one listener per (user, account) pair over the account's
// update stream.
type Service struct {
	hub      *session.Hub
	notifier transport.Notifier
	joins    *joins.Service
	sup      *supervisor.Supervisor
	log      logx.Logger

	mu       sync.Mutex
	monitors map[monitorKey]*monitor
	keywords []string
	// tracked restricts mention notifications to the listed chats per user
	// (normalized ids); an absent or empty set means every chat.
	tracked map[int64]map[int64]struct{}
}

func New(hub *session.Hub, notifier transport.Notifier, joinsSvc *joins.Service, sup *supervisor.Supervisor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		hub:      hub,
		notifier: notifier,
		joins:    joinsSvc,
		sup:      sup,
		log:      log,
		monitors: map[monitorKey]*monitor{},
		tracked:  map[int64]map[int64]struct{}{},
	}
}

// SetKeywords replaces the watch keywords used for join discovery.
func (s *Service) SetKeywords(keywords []string) {
	s.mu.Lock()
	s.keywords = append([]string(nil), keywords...)
	s.mu.Unlock()
}

func (s *Service) keywordList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keywords
}

// SetTrackedChats limits a user's mention notifications to the given chats.
// An empty list removes the restriction.
func (s *Service) SetTrackedChats(userID int64, chats []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(chats) == 0 {
		delete(s.tracked, userID)
		return
	}
	set := make(map[int64]struct{}, len(chats))
	for _, c := range chats {
		set[NormalizeChatID(c)] = struct{}{}
	}
	s.tracked[userID] = set
}

func (s *Service) chatTracked(userID, chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.tracked[userID]
	if len(set) == 0 {
		return true
	}
	_, ok := set[NormalizeChatID(chatID)]
	return ok
}

// StartMonitor begins watching one account's stream. Restarting an already
// watched account is a no-op.
func (s *Service) StartMonitor(userID int64, account int) error {
	client := s.hub.User(userID).Client(account)
	if client == nil {
		return fmt.Errorf("account %d is not connected", account)
	}

	key := monitorKey{userID: userID, account: account}
	s.mu.Lock()
	if s.monitors[key] != nil {
		s.mu.Unlock()
		return nil
	}
	m := &monitor{stop: make(chan struct{})}
	s.monitors[key] = m
	s.mu.Unlock()

	name := fmt.Sprintf("mentions.%d.%d", userID, account)
	s.sup.GoRestart(name, func(ctx context.Context) error {
		select {
		case <-m.stop:
			return nil
		default:
		}
		err := s.listen(ctx, m, userID, account, client)
		select {
		case <-m.stop:
			return nil // stopped deliberately, do not restart
		default:
			return err
		}
	})
	s.log.Info("mention monitor started", logx.Int64("user", userID), logx.Int("account", account))
	return nil
}

// StopMonitor halts one account's listener.
func (s *Service) StopMonitor(userID int64, account int) {
	key := monitorKey{userID: userID, account: account}
	s.mu.Lock()
	m := s.monitors[key]
	delete(s.monitors, key)
	s.mu.Unlock()
	if m != nil {
		m.halt()
		s.log.Info("mention monitor stopped", logx.Int64("user", userID), logx.Int("account", account))
	}
}

// StartUser starts monitors for every connected account; it returns the
// account numbers now being watched.
func (s *Service) StartUser(userID int64) []int {
	var started []int
	for _, acc := range s.hub.User(userID).Connected() {
		if err := s.StartMonitor(userID, acc); err == nil {
			started = append(started, acc)
		}
	}
	return started
}

// StopUser halts all of a user's monitors.
func (s *Service) StopUser(userID int64) {
	s.mu.Lock()
	var keys []monitorKey
	for key := range s.monitors {
		if key.userID == userID {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	for _, key := range keys {
		s.StopMonitor(key.userID, key.account)
	}
}

// Running lists the account numbers currently being watched for a user.
func (s *Service) Running(userID int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accs []int
	for key := range s.monitors {
		if key.userID == userID {
			accs = append(accs, key.account)
		}
	}
	return accs
}

var errStreamClosed = errors.New("update stream closed")

// listen consumes one account's update stream until the monitor is stopped,
// the stream drops (restarted with backoff by the supervisor), or the handle
// was replaced by a relogin (clean exit; the new handle gets its own monitor).
func (s *Service) listen(ctx context.Context, m *monitor, userID int64, account int, client transport.Client) error {
	if current := s.hub.User(userID).Client(account); current != client {
		return nil
	}

	msgs, err := client.Updates(ctx)
	if err != nil {
		return err
	}
	self := client.Self()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stop:
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errStreamClosed
			}
			s.handle(ctx, userID, account, self, msg)
		}
	}
}

func (s *Service) handle(ctx context.Context, userID int64, account int, self transport.Account, msg transport.Message) {
	if msg.SenderID == self.ID {
		return
	}
	if !isMention(self, msg) || !s.chatTracked(userID, msg.ChatID) {
		return
	}

	// Join discovery only runs on messages that mention the account: a bare
	// keyword in passing traffic is not an invitation.
	if kws := s.keywordList(); joins.MatchesKeyword(msg.Text, kws) && s.joins != nil {
		links, usernames := joins.ExtractTargets(msg.Text, msg.ButtonURLs)
		req := joins.Request{ChatID: msg.ChatID, Links: links, Usernames: usernames}
		if s.joins.Enqueue(userID, req) {
			s.log.Debug("keyword hit queued for joining",
				logx.Int64("user", userID),
				logx.Int64("chat", msg.ChatID))
		}
	}

	if s.notifier == nil {
		return
	}
	text, buttons := formatNotification(account, self, msg)
	if err := s.notifier.Notify(ctx, userID, text, buttons); err != nil {
		s.log.Warn("mention notification failed",
			logx.Int64("user", userID),
			logx.Int("account", account),
			logx.Err(err))
	}
}
