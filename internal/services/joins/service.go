package joins

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/session"
	"blastbot/internal/storage"
	"blastbot/pkg/logx"
)

const settingsKind = "joins_settings"

// seenCap bounds the per-user dedup set. When it fills up, the set resets:
// very old requests become repeatable, which beats unbounded growth on a
// long-lived process.
const seenCap = 4096

// Service owns every user's join queue, settings, and worker.
type Service struct {
	hub   *session.Hub
	store storage.Store
	sup   *supervisor.Supervisor
	log   logx.Logger

	mu    sync.Mutex
	users map[int64]*userState
	// defaults seed the settings of users who have never saved any.
	defaultPerTarget string
	defaultBetween   string

	rngMu sync.Mutex
	rng   *rand.Rand
}

type userState struct {
	settings Settings
	queue    []Request
	seen     map[string]struct{}
	running  bool
}

func New(hub *session.Hub, store storage.Store, sup *supervisor.Supervisor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		hub:   hub,
		store: store,
		sup:   sup,
		log:   log,
		users: map[int64]*userState{},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetDefaultDelays overrides the built-in pacing defaults for users without
// saved settings. Malformed values are ignored in favor of the built-ins.
func (s *Service) SetDefaultDelays(perTarget, between string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := ParsePerTargetDelay(perTarget); err == nil {
		s.defaultPerTarget = perTarget
	}
	if _, err := ParseBetweenDelay(between); err == nil {
		s.defaultBetween = between
	}
}

func (s *Service) state(userID int64) *userState {
	st := s.users[userID]
	if st == nil {
		st = &userState{seen: map[string]struct{}{}}
		st.settings.PerTargetDelay = s.defaultPerTarget
		st.settings.BetweenDelay = s.defaultBetween
		st.settings.ApplyDefaults()
		s.users[userID] = st
	}
	return st
}

// LoadAll restores persisted settings for every known user and restarts
// workers for users whose auto-join was left enabled.
func (s *Service) LoadAll(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ids, err := s.store.Users(ctx)
	if err != nil {
		return err
	}
	for _, userID := range ids {
		var set Settings
		found, err := s.store.LoadDoc(ctx, userID, settingsKind, &set)
		if err != nil {
			s.log.Warn("join settings load failed", logx.Int64("user", userID), logx.Err(err))
			continue
		}
		if !found {
			continue
		}
		set.ApplyDefaults()

		s.mu.Lock()
		st := s.state(userID)
		st.settings = set
		if set.Enabled {
			s.ensureWorkerLocked(userID, st)
		}
		s.mu.Unlock()
	}
	return nil
}

// SetEnabled flips the master switch. Enabling starts the user's worker;
// disabling lets the worker drain out on its next poll. The queue survives a
// disable so a re-enable picks up where it left off.
func (s *Service) SetEnabled(ctx context.Context, userID int64, enabled bool) error {
	s.mu.Lock()
	st := s.state(userID)
	st.settings.Enabled = enabled
	if enabled {
		s.ensureWorkerLocked(userID, st)
	}
	set := st.settings
	s.mu.Unlock()
	return s.persist(ctx, userID, set)
}

func (s *Service) Enabled(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(userID).settings.Enabled
}

// SetTargets restricts joining to specific sub-accounts; nil or empty means
// all connected accounts.
func (s *Service) SetTargets(ctx context.Context, userID int64, accounts []int) error {
	s.mu.Lock()
	st := s.state(userID)
	st.settings.TargetAccounts = append([]int(nil), accounts...)
	set := st.settings
	s.mu.Unlock()
	return s.persist(ctx, userID, set)
}

// SetDelays updates the pacing settings, rejecting out-of-policy values.
func (s *Service) SetDelays(ctx context.Context, userID int64, perTarget, between string) error {
	if _, err := ParsePerTargetDelay(perTarget); err != nil {
		return err
	}
	if _, err := ParseBetweenDelay(between); err != nil {
		return err
	}
	s.mu.Lock()
	st := s.state(userID)
	st.settings.PerTargetDelay = perTarget
	st.settings.BetweenDelay = between
	set := st.settings
	s.mu.Unlock()
	return s.persist(ctx, userID, set)
}

// Settings returns a copy of the user's current settings.
func (s *Service) Settings(userID int64) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.state(userID).settings
	set.TargetAccounts = append([]int(nil), set.TargetAccounts...)
	return set
}

// QueueLen reports how many requests are waiting for the user.
func (s *Service) QueueLen(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state(userID).queue)
}

// Enqueue adds a request to the user's queue. It reports false when the
// master switch is off, the request is empty, or the same request was already
// queued before. Accepting a request also makes sure the worker is running.
func (s *Service) Enqueue(userID int64, req Request) bool {
	if req.Empty() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	if !st.settings.Enabled {
		return false
	}
	k := req.key()
	if _, dup := st.seen[k]; dup {
		return false
	}
	if len(st.seen) >= seenCap {
		st.seen = map[string]struct{}{}
	}
	st.seen[k] = struct{}{}
	st.queue = append(st.queue, req)
	s.ensureWorkerLocked(userID, st)
	s.log.Debug("join request queued",
		logx.Int64("user", userID),
		logx.Int("links", len(req.Links)),
		logx.Int("usernames", len(req.Usernames)),
		logx.Int64("chat", req.ChatID))
	return true
}

// EnqueueChat queues a bare chat-id join, the broadcast scheduler's
// self-healing path.
func (s *Service) EnqueueChat(userID int64, chatID int64) {
	s.Enqueue(userID, Request{ChatID: chatID})
}

func (s *Service) pop(userID int64) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	if len(st.queue) == 0 {
		return Request{}, false
	}
	req := st.queue[0]
	st.queue = st.queue[1:]
	return req, true
}

func (s *Service) persist(ctx context.Context, userID int64, set Settings) error {
	if s.store == nil {
		return nil
	}
	return s.store.SaveDoc(ctx, userID, settingsKind, set)
}
