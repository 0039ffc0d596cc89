// Package session is the process-wide registry of per-user runtime state.
//
// The login flow (external to this core) attaches connected client handles
// here; the broadcast scheduler, join worker, and mention detector resolve
// them on demand. One User object per operator replaces the scattered
// per-concern maps the system would otherwise need.
package session

import (
	"sort"
	"sync"

	"blastbot/internal/transport"
)

type Hub struct {
	mu    sync.RWMutex
	users map[int64]*User
}

func NewHub() *Hub {
	return &Hub{users: map[int64]*User{}}
}

// User returns the session object for an operator, creating it on first access.
func (h *Hub) User(userID int64) *User {
	h.mu.RLock()
	u := h.users[userID]
	h.mu.RUnlock()
	if u != nil {
		return u
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if u = h.users[userID]; u == nil {
		u = &User{id: userID, accounts: map[int]transport.Client{}, names: map[int]string{}}
		h.users[userID] = u
	}
	return u
}

// UserIDs returns a snapshot of all known operator ids.
func (h *Hub) UserIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int64, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// User holds one operator's connected sub-accounts.
type User struct {
	mu       sync.RWMutex
	id       int64
	accounts map[int]transport.Client
	names    map[int]string
}

func (u *User) ID() int64 { return u.id }

// Attach registers a connected client handle under an account number.
// Re-attaching replaces the previous handle (relogin).
func (u *User) Attach(account int, c transport.Client, name string) {
	u.mu.Lock()
	u.accounts[account] = c
	u.names[account] = name
	u.mu.Unlock()
}

// Detach drops the handle for an account (logout/disconnect).
func (u *User) Detach(account int) {
	u.mu.Lock()
	delete(u.accounts, account)
	delete(u.names, account)
	u.mu.Unlock()
}

// Client resolves the live handle for an account number, nil if the account
// is not attached or its connection has dropped.
func (u *User) Client(account int) transport.Client {
	u.mu.RLock()
	c := u.accounts[account]
	u.mu.RUnlock()
	if c == nil || !c.Connected() {
		return nil
	}
	return c
}

// AccountName returns the display label captured at attach time.
func (u *User) AccountName(account int) string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.names[account]
}

// Connected returns the currently connected account numbers, ascending.
// Recomputed fresh on every call since connections come and go.
func (u *User) Connected() []int {
	u.mu.RLock()
	nums := make([]int, 0, len(u.accounts))
	for n, c := range u.accounts {
		if c != nil && c.Connected() {
			nums = append(nums, n)
		}
	}
	u.mu.RUnlock()
	sort.Ints(nums)
	return nums
}
