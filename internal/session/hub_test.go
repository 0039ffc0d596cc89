package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"blastbot/internal/transport"
)

type stubClient struct {
	mu        sync.Mutex
	connected bool
}

func (c *stubClient) Self() transport.Account { return transport.Account{ID: 1} }

func (c *stubClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stubClient) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *stubClient) SendScheduled(context.Context, int64, string, time.Time, transport.ParseMode) error {
	return nil
}

func (c *stubClient) Join(context.Context, transport.JoinTarget) error { return nil }

func (c *stubClient) IsMember(context.Context, transport.JoinTarget) (bool, error) {
	return false, nil
}

func (c *stubClient) Updates(context.Context) (<-chan transport.Message, error) {
	return make(chan transport.Message), nil
}

func TestHubCreatesUserOnFirstAccess(t *testing.T) {
	t.Parallel()
	h := NewHub()
	u := h.User(7)
	if u == nil || u.ID() != 7 {
		t.Fatalf("User(7) = %+v", u)
	}
	if again := h.User(7); again != u {
		t.Fatal("same user id must return the same object")
	}
	ids := h.UserIDs()
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("UserIDs = %v", ids)
	}
}

func TestUserAttachDetach(t *testing.T) {
	t.Parallel()
	u := NewHub().User(7)
	c := &stubClient{connected: true}
	u.Attach(2, c, "Work")

	if got := u.Client(2); got != transport.Client(c) {
		t.Fatal("Client must return the attached handle")
	}
	if name := u.AccountName(2); name != "Work" {
		t.Fatalf("AccountName = %q", name)
	}

	u.Detach(2)
	if u.Client(2) != nil {
		t.Fatal("detached account must resolve to nil")
	}
	if u.AccountName(2) != "" {
		t.Fatal("detached account must lose its name")
	}
}

func TestUserClientHidesDroppedConnections(t *testing.T) {
	t.Parallel()
	u := NewHub().User(7)
	c := &stubClient{connected: true}
	u.Attach(1, c, "Main")

	if u.Client(1) == nil {
		t.Fatal("connected client must resolve")
	}
	c.setConnected(false)
	if u.Client(1) != nil {
		t.Fatal("dropped connection must resolve to nil without detaching")
	}
	c.setConnected(true)
	if u.Client(1) == nil {
		t.Fatal("recovered connection must resolve again")
	}
}

func TestUserConnectedSorted(t *testing.T) {
	t.Parallel()
	u := NewHub().User(7)
	u.Attach(3, &stubClient{connected: true}, "C")
	u.Attach(1, &stubClient{connected: true}, "A")
	u.Attach(2, &stubClient{connected: false}, "B")

	got := u.Connected()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("Connected = %v, want [1 3]", got)
	}
}

func TestUserReattachReplacesHandle(t *testing.T) {
	t.Parallel()
	u := NewHub().User(7)
	old := &stubClient{connected: true}
	u.Attach(1, old, "Old")
	fresh := &stubClient{connected: true}
	u.Attach(1, fresh, "Fresh")

	if got := u.Client(1); got != transport.Client(fresh) {
		t.Fatal("relogin must replace the handle")
	}
	if name := u.AccountName(1); name != "Fresh" {
		t.Fatalf("AccountName = %q", name)
	}
}
