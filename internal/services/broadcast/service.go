package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"blastbot/internal/eventbus"
	"blastbot/internal/pacing"
	"blastbot/internal/runtime/supervisor"
	"blastbot/internal/session"
	"blastbot/pkg/logx"
)

// JoinQueue is the hook into the auto-join pipeline. Sends that fail with a
// membership-style error push their chat here for self-healing on a future
// run; enqueueing is fire-and-forget.
type JoinQueue interface {
	EnqueueChat(userID int64, chatID int64)
}

// Event types published on the bus when a job reaches a terminal state.
const (
	EventFinished = "broadcast.finished"
	EventError    = "broadcast.error"
)

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	JobID       int
	UserID      int64
	Account     int
	AccountName string
	Status      Status
	Sent        int
	Failed      int
	Error       string
}

var (
	ErrNoChats    = errors.New("broadcast: chat list is empty")
	ErrNoTexts    = errors.New("broadcast: text pool is empty")
	ErrNoAccounts = errors.New("broadcast: no connected accounts")
)

// Service couples the registry with the scheduling engine and owns the
// per-job scheduling goroutines.
type Service struct {
	reg   *Registry
	hub   *session.Hub
	joins JoinQueue
	bus   eventbus.Bus
	sup   *supervisor.Supervisor
	log   logx.Logger

	// mu guards parked. Pause/resume/cancel and the runner's park decision
	// all take it, so a parked cursor always has exactly one owner.
	mu     sync.Mutex
	parked map[int]*runState

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(reg *Registry, hub *session.Hub, joins JoinQueue, bus eventbus.Bus, sup *supervisor.Supervisor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		reg:    reg,
		hub:    hub,
		joins:  joins,
		bus:    bus,
		sup:    sup,
		log:    log,
		parked: map[int]*runState{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) Registry() *Registry { return s.reg }

// Job returns a snapshot of one job.
func (s *Service) Job(id int) (Job, bool) { return s.reg.Get(id) }

// List returns a user's jobs, optionally filtered by status.
func (s *Service) List(userID int64, statuses ...Status) []Job {
	return s.reg.ListForUser(userID, statuses...)
}

// Launch creates one job for one account and starts its scheduling run.
// groupID is 0 for solo launches. The chat list and text pool must be
// non-empty; that is the caller's precondition and is rejected here rather
// than deep inside the run.
func (s *Service) Launch(userID int64, account int, cfg Config, chatIDs []int64, groupID int) (int, error) {
	cfg.ApplyDefaults()
	if len(chatIDs) == 0 {
		return 0, ErrNoChats
	}
	if len(cfg.Texts) == 0 {
		return 0, ErrNoTexts
	}

	u := s.hub.User(userID)
	name := u.AccountName(account)
	if name == "" {
		name = fmt.Sprintf("Account %d", account)
	}

	id := s.reg.NextID()
	s.reg.Create(id, Job{
		UserID:          userID,
		Account:         account,
		AccountName:     name,
		GroupID:         groupID,
		TotalChats:      len(chatIDs),
		PlannedCount:    len(chatIDs) * cfg.Count,
		Count:           cfg.Count,
		IntervalDisplay: cfg.Interval,
		StartTime:       time.Now().UTC(),
		Status:          StatusRunning,
	})

	st := newRunState(userID, account, cfg, chatIDs)
	s.spawn(id, st)
	s.log.Info("broadcast launched",
		logx.Int("job", id),
		logx.Int64("user", userID),
		logx.Int("account", account),
		logx.Int("chats", len(chatIDs)),
		logx.Int("rounds", cfg.Count))
	return id, nil
}

// LaunchAll fans one launch out to every currently connected account. The
// jobs share a fresh group id and respond to group-level control as a unit.
func (s *Service) LaunchAll(userID int64, cfg Config, chatIDs []int64) ([]int, error) {
	accounts := s.hub.User(userID).Connected()
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	groupID := s.reg.NextID()
	ids := make([]int, 0, len(accounts))
	for _, acc := range accounts {
		id, err := s.Launch(userID, acc, cfg, chatIDs, groupID)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Pause stops further scheduling progress for a running job. The run parks
// its cursor; Resume re-enters scheduling from the parked state.
func (s *Service) Pause(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.reg.StatusOf(id)
	if !ok || st != StatusRunning {
		return false
	}
	return s.reg.SetStatus(id, StatusPaused)
}

// Resume flips a paused job back to running and, when the run had already
// parked, re-spawns it from the parked cursor.
func (s *Service) Resume(id int) bool {
	s.mu.Lock()
	st := s.parked[id]
	delete(s.parked, id)
	ok := s.reg.SetStatus(id, StatusRunning)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if st != nil {
		s.spawn(id, st)
	}
	return true
}

// Cancel requests termination. A live run observes the flag before its next
// send and acknowledges with stopped; a parked (paused) job has no live run,
// so it is stopped right here.
func (s *Service) Cancel(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.parked[id]; st != nil {
		delete(s.parked, id)
		if s.reg.SetStatus(id, StatusCancelled) {
			s.reg.SetStatus(id, StatusStopped)
			return true
		}
		return false
	}
	return s.reg.SetStatus(id, StatusCancelled)
}

// Group control applies the same transition to every job sharing the group
// id, each independently; a refusal on one sibling does not affect the rest.

func (s *Service) PauseGroup(userID int64, groupID int) int {
	return s.eachInGroup(userID, groupID, s.Pause)
}

func (s *Service) ResumeGroup(userID int64, groupID int) int {
	return s.eachInGroup(userID, groupID, s.Resume)
}

func (s *Service) CancelGroup(userID int64, groupID int) int {
	return s.eachInGroup(userID, groupID, s.Cancel)
}

func (s *Service) eachInGroup(userID int64, groupID int, op func(int) bool) int {
	n := 0
	for _, j := range s.reg.ListGroup(userID, groupID) {
		if op(j.ID) {
			n++
		}
	}
	return n
}

// Sweep removes terminal jobs older than maxAge, dropping any parked cursor
// along with the registry row.
func (s *Service) Sweep(maxAge time.Duration) int {
	removed := s.reg.Sweep(maxAge)
	if removed > 0 {
		s.mu.Lock()
		for id := range s.parked {
			if _, ok := s.reg.Get(id); !ok {
				delete(s.parked, id)
			}
		}
		s.mu.Unlock()
		s.log.Debug("broadcast sweep", logx.Int("removed", removed))
	}
	return removed
}

func (s *Service) spawn(id int, st *runState) {
	s.sup.Go0(fmt.Sprintf("broadcast.job.%d", id), func(ctx context.Context) {
		// A panicking client must not take the whole process down; the job
		// lands in the error state and the operator gets the usual event.
		defer func() {
			if r := recover(); r != nil {
				msg := fmt.Sprintf("broadcast run panicked: %v", r)
				s.reg.MarkError(id, msg, ErrKindSendFailed)
				s.log.Error("broadcast run panicked", logx.Int("job", id), logx.Any("panic", r))
				s.finish(id, st, StatusError, s.log.With(logx.Int("job", id)))
			}
		}()
		s.run(ctx, id, st)
	})
}

func (s *Service) pick(r pacing.Range, unit time.Duration) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return pacing.Pick(s.rng, r, unit)
}

func (s *Service) publish(evType string, id int, j JobEvent) {
	if s.bus == nil {
		return
	}
	j.JobID = id
	s.bus.Publish(eventbus.Event{Type: evType, Data: j})
}
