package broadcast

import (
	"context"
	"sync"

	"blastbot/internal/storage"
)

const (
	configKind = "broadcast_config"
	chatsKind  = "broadcast_chats"
)

type chatsDoc struct {
	Chats []int64 `json:"chats"`
}

// Prefs is each operator's working broadcast setup: the message configuration
// and the target chat list, persisted independently of any job. Documents
// load lazily on first access and every mutation writes through.
type Prefs struct {
	store storage.Store

	mu    sync.Mutex
	cache map[int64]*userPrefs
}

type userPrefs struct {
	cfg       Config
	cfgLoaded bool

	chats       []int64
	chatsLoaded bool
}

func NewPrefs(store storage.Store) *Prefs {
	return &Prefs{store: store, cache: map[int64]*userPrefs{}}
}

func (p *Prefs) user(userID int64) *userPrefs {
	up := p.cache[userID]
	if up == nil {
		up = &userPrefs{}
		p.cache[userID] = up
	}
	return up
}

// Config returns the user's broadcast configuration with defaults applied.
func (p *Prefs) Config(ctx context.Context, userID int64) (Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	up := p.user(userID)
	if !up.cfgLoaded {
		if p.store != nil {
			if _, err := p.store.LoadDoc(ctx, userID, configKind, &up.cfg); err != nil {
				return Config{}, err
			}
		}
		up.cfg.ApplyDefaults()
		up.cfgLoaded = true
	}
	cfg := up.cfg
	cfg.Texts = append([]string(nil), up.cfg.Texts...)
	return cfg, nil
}

// UpdateConfig applies a mutation to the user's configuration and persists
// the result. Defaults re-apply after the mutation, so a mutator can clear
// fields back to their baseline.
func (p *Prefs) UpdateConfig(ctx context.Context, userID int64, fn func(*Config)) (Config, error) {
	if _, err := p.Config(ctx, userID); err != nil {
		return Config{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	up := p.user(userID)
	fn(&up.cfg)
	up.cfg.ApplyDefaults()
	if p.store != nil {
		if err := p.store.SaveDoc(ctx, userID, configKind, up.cfg); err != nil {
			return Config{}, err
		}
	}
	return up.cfg, nil
}

// Chats returns the user's target chat list.
func (p *Prefs) Chats(ctx context.Context, userID int64) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	up := p.user(userID)
	if !up.chatsLoaded {
		if p.store != nil {
			var doc chatsDoc
			if _, err := p.store.LoadDoc(ctx, userID, chatsKind, &doc); err != nil {
				return nil, err
			}
			up.chats = doc.Chats
		}
		up.chatsLoaded = true
	}
	return append([]int64(nil), up.chats...), nil
}

// SetChats replaces the target chat list.
func (p *Prefs) SetChats(ctx context.Context, userID int64, chats []int64) error {
	return p.storeChats(ctx, userID, dedupeChats(chats))
}

// AddChats appends chats to the list, skipping ones already present.
func (p *Prefs) AddChats(ctx context.Context, userID int64, chats ...int64) error {
	existing, err := p.Chats(ctx, userID)
	if err != nil {
		return err
	}
	return p.storeChats(ctx, userID, dedupeChats(append(existing, chats...)))
}

func (p *Prefs) storeChats(ctx context.Context, userID int64, chats []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	up := p.user(userID)
	up.chats = chats
	up.chatsLoaded = true
	if p.store == nil {
		return nil
	}
	return p.store.SaveDoc(ctx, userID, chatsKind, chatsDoc{Chats: chats})
}

func dedupeChats(chats []int64) []int64 {
	seen := make(map[int64]struct{}, len(chats))
	out := make([]int64, 0, len(chats))
	for _, c := range chats {
		if c == 0 {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
