package mentions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/services/joins"
	"blastbot/internal/session"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

type streamClient struct {
	self transport.Account
	msgs chan transport.Message

	mu     sync.Mutex
	joined []transport.JoinTarget
}

func (c *streamClient) Self() transport.Account { return c.self }
func (c *streamClient) Connected() bool         { return true }

func (c *streamClient) SendScheduled(context.Context, int64, string, time.Time, transport.ParseMode) error {
	return nil
}

func (c *streamClient) Join(_ context.Context, target transport.JoinTarget) error {
	c.mu.Lock()
	c.joined = append(c.joined, target)
	c.mu.Unlock()
	return nil
}

func (c *streamClient) joinedTargets() []transport.JoinTarget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.JoinTarget(nil), c.joined...)
}

func (c *streamClient) IsMember(context.Context, transport.JoinTarget) (bool, error) {
	return false, nil
}

func (c *streamClient) Updates(context.Context) (<-chan transport.Message, error) {
	return c.msgs, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
	rows  [][][]transport.Button
}

func (n *captureNotifier) Notify(_ context.Context, _ int64, text string, buttons [][]transport.Button) error {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.rows = append(n.rows, buttons)
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

func (n *captureNotifier) last() (string, [][]transport.Button) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.texts) == 0 {
		return "", nil
	}
	return n.texts[len(n.texts)-1], n.rows[len(n.rows)-1]
}

type testEnv struct {
	svc      *Service
	hub      *session.Hub
	notifier *captureNotifier
	joins    *joins.Service
	sup      *supervisor.Supervisor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	hub := session.NewHub()
	notifier := &captureNotifier{}
	joinsSvc := joins.New(hub, nil, sup, logx.Nop())
	return &testEnv{
		svc:      New(hub, notifier, joinsSvc, sup, logx.Nop()),
		hub:      hub,
		notifier: notifier,
		joins:    joinsSvc,
		sup:      sup,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestIsMention(t *testing.T) {
	t.Parallel()
	self := transport.Account{ID: 111, Username: "My_Account"}
	tests := []struct {
		name string
		msg  transport.Message
		want bool
	}{
		{"transport flag", transport.Message{SenderID: 5, Mentioned: true}, true},
		{"reply to self", transport.Message{SenderID: 5, ReplyToSenderID: 111}, true},
		{"reply to other", transport.Message{SenderID: 5, ReplyToSenderID: 42}, false},
		{"mention entity", transport.Message{SenderID: 5, MentionIDs: []int64{9, 111}}, true},
		{"username in text", transport.Message{SenderID: 5, Text: "hey @my_account look"}, true},
		{"username case insensitive", transport.Message{SenderID: 5, Text: "HEY @MY_ACCOUNT"}, true},
		{"other username", transport.Message{SenderID: 5, Text: "hey @someone_else"}, false},
		{"user id in text", transport.Message{SenderID: 5, Text: "hey user111 look"}, true},
		{"other user id", transport.Message{SenderID: 5, Text: "ping user222"}, false},
		{"plain message", transport.Message{SenderID: 5, Text: "nothing here"}, false},
		{"own message never counts", transport.Message{SenderID: 111, Mentioned: true, Text: "@my_account"}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isMention(self, tt.msg); got != tt.want {
				t.Fatalf("isMention = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMentionWithoutUsername(t *testing.T) {
	t.Parallel()
	self := transport.Account{ID: 111}
	if isMention(self, transport.Message{SenderID: 5, Text: "random @handle"}) {
		t.Fatal("a foreign handle must not fire without a username to match")
	}
	// Accounts without a username are still addressable as "user<id>".
	if !isMention(self, transport.Message{SenderID: 5, Text: "cc user111 please"}) {
		t.Fatal("user<id> form must count as a mention")
	}
	if !isMention(self, transport.Message{SenderID: 5, Mentioned: true}) {
		t.Fatal("transport flag must still work without a username")
	}
}

func TestNormalizeChatID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want int64
	}{
		{-1001234567890, 1234567890},
		{-1000000000555, 555},
		{-987654, 987654},
		{42, 42},
		{0, 0},
	}
	for _, tt := range tests {
		if got := NormalizeChatID(tt.in); got != tt.want {
			t.Fatalf("NormalizeChatID(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMessageLink(t *testing.T) {
	t.Parallel()
	if got := messageLink(transport.Message{ID: 9, ChatUsername: "some_chat"}); got != "https://t.me/some_chat/9" {
		t.Fatalf("public link = %q", got)
	}
	if got := messageLink(transport.Message{ID: 9, ChatID: -1001234567890}); got != "https://t.me/c/1234567890/9" {
		t.Fatalf("private link = %q", got)
	}
	if got := messageLink(transport.Message{ID: 9, ChatID: -987654}); got != "" {
		t.Fatalf("legacy group link = %q, want none", got)
	}
	if got := messageLink(transport.Message{ChatUsername: "x"}); got != "" {
		t.Fatalf("zero message id link = %q, want none", got)
	}
}

func TestMonitorNotifiesOnMention(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	fc := &streamClient{
		self: transport.Account{ID: 111, Username: "my_account", Name: "Main"},
		msgs: make(chan transport.Message, 8),
	}
	env.hub.User(7).Attach(1, fc, "Main")

	if err := env.svc.StartMonitor(7, 1); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	fc.msgs <- transport.Message{
		ID:           42,
		ChatID:       -1001234567890,
		ChatTitle:    "Some <Chat>",
		SenderID:     5,
		SenderName:   "Alice",
		Text:         "ping @my_account",
		Mentioned:    true,
		ChatUsername: "",
	}

	waitFor(t, "notification", func() bool { return env.notifier.count() == 1 })
	text, buttons := env.notifier.last()
	if !strings.Contains(text, "Some &lt;Chat&gt;") {
		t.Fatalf("chat title not escaped in %q", text)
	}
	if !strings.Contains(text, "Main") || !strings.Contains(text, "Alice") {
		t.Fatalf("notification missing account/sender: %q", text)
	}
	if len(buttons) != 1 || len(buttons[0]) != 2 {
		t.Fatalf("buttons = %+v, want one row with message and sender links", buttons)
	}
	if buttons[0][0].URL != "https://t.me/c/1234567890/42" {
		t.Fatalf("message button = %q", buttons[0][0].URL)
	}

	// Non-mentions and the account's own messages stay silent.
	fc.msgs <- transport.Message{ID: 43, ChatID: -1001234567890, SenderID: 5, Text: "nothing"}
	fc.msgs <- transport.Message{ID: 44, ChatID: -1001234567890, SenderID: 111, Text: "@my_account"}
	time.Sleep(50 * time.Millisecond)
	if env.notifier.count() != 1 {
		t.Fatalf("notification count = %d, want still 1", env.notifier.count())
	}
}

func TestMonitorRespectsTrackedChats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	fc := &streamClient{
		self: transport.Account{ID: 111, Username: "my_account"},
		msgs: make(chan transport.Message, 8),
	}
	env.hub.User(7).Attach(1, fc, "Main")
	env.svc.SetTrackedChats(7, []int64{-1001234567890})

	if err := env.svc.StartMonitor(7, 1); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	fc.msgs <- transport.Message{ID: 1, ChatID: -1009999999999, SenderID: 5, Mentioned: true}
	fc.msgs <- transport.Message{ID: 2, ChatID: -1001234567890, SenderID: 5, Mentioned: true}

	waitFor(t, "tracked-chat notification", func() bool { return env.notifier.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	if env.notifier.count() != 1 {
		t.Fatalf("notification count = %d, want only the tracked chat", env.notifier.count())
	}
}

func TestKeywordHitFeedsJoinQueue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	fc := &streamClient{
		self: transport.Account{ID: 111, Username: "my_account"},
		msgs: make(chan transport.Message, 8),
	}
	env.hub.User(7).Attach(1, fc, "Main")
	env.svc.SetKeywords([]string{"airdrop"})
	_ = env.joins.SetEnabled(context.Background(), 7, true)

	if err := env.svc.StartMonitor(7, 1); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	// A keyword in passing traffic is not an invitation: without a mention
	// the message must not feed the join queue.
	fc.msgs <- transport.Message{
		ID:         1,
		ChatID:     -1001234567890,
		SenderID:   5,
		Text:       "Huge AIRDROP, join https://t.me/+SecretHash now",
		ButtonURLs: []string{"https://t.me/public_chan"},
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(fc.joinedTargets()); n != 0 {
		t.Fatalf("join targets without a mention = %d, want 0", n)
	}

	fc.msgs <- transport.Message{
		ID:         2,
		ChatID:     -1001234567890,
		SenderID:   5,
		Text:       "Huge AIRDROP, join https://t.me/+SecretHash now",
		ButtonURLs: []string{"https://t.me/public_chan"},
		Mentioned:  true,
	}

	// The queued request drains through the join worker into the account's
	// own client. All candidates point at the same chat, so the invite hash
	// settles it and the button chat is never attempted.
	waitFor(t, "keyword target to be joined", func() bool { return len(fc.joinedTargets()) == 1 })
	got := fc.joinedTargets()
	if got[0].InviteHash != "SecretHash" {
		t.Fatalf("join target = %+v, want the invite hash", got[0])
	}

	// The same message again is duplicate work and must not re-queue.
	fc.msgs <- transport.Message{
		ID:         3,
		ChatID:     -1001234567890,
		SenderID:   5,
		Text:       "Huge AIRDROP, join https://t.me/+SecretHash now",
		ButtonURLs: []string{"https://t.me/public_chan"},
		Mentioned:  true,
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(fc.joinedTargets()); n != 1 {
		t.Fatalf("join targets after duplicate = %d, want still 1", n)
	}
}

func TestStopMonitorHaltsStream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	fc := &streamClient{
		self: transport.Account{ID: 111, Username: "my_account"},
		msgs: make(chan transport.Message, 8),
	}
	env.hub.User(7).Attach(1, fc, "Main")

	if err := env.svc.StartMonitor(7, 1); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}
	if got := env.svc.Running(7); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Running = %v, want [1]", got)
	}
	// Starting again is a no-op, not a second listener.
	if err := env.svc.StartMonitor(7, 1); err != nil {
		t.Fatalf("StartMonitor again: %v", err)
	}
	if got := env.svc.Running(7); len(got) != 1 {
		t.Fatalf("Running after double start = %v", got)
	}

	env.svc.StopMonitor(7, 1)
	if got := env.svc.Running(7); len(got) != 0 {
		t.Fatalf("Running after stop = %v", got)
	}
	// The listener goroutine itself winds down before any further traffic.
	waitFor(t, "listener to exit", func() bool { return env.sup.Active() == 0 })

	fc.msgs <- transport.Message{ID: 1, ChatID: 5, SenderID: 5, Mentioned: true}
	time.Sleep(50 * time.Millisecond)
	if env.notifier.count() != 0 {
		t.Fatalf("stopped monitor still notified %d times", env.notifier.count())
	}
}

func TestStartMonitorRequiresConnection(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	if err := env.svc.StartMonitor(7, 1); err == nil {
		t.Fatal("expected error for an unattached account")
	}
}
