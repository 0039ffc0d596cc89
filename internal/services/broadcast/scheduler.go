package broadcast

import (
	"context"
	"strings"
	"time"

	"blastbot/internal/pacing"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

// runState is the scheduling cursor of one job. It lives on the run goroutine
// and is handed over through Service.parked when the job pauses, so a resume
// continues exactly where the run left off: same per-chat send times, same
// per-chat intervals, same text cursor.
type runState struct {
	userID  int64
	account int

	chats     []int64
	texts     []string
	textMode  string
	textIndex int
	parseMode transport.ParseMode

	rounds    int
	chatPause pacing.Range
	interval  pacing.Range

	planLimitCount int
	planRest       time.Duration

	// Filled on first entry: one fixed interval per chat, drawn once and
	// reused for every round, and the staggered next-send time per chat.
	next      map[int64]time.Time
	intervals map[int64]time.Duration

	round     int
	chatIdx   int
	sinceRest int
	sent      int
	failed    int
}

func newRunState(userID int64, account int, cfg Config, chatIDs []int64) *runState {
	mode := transport.ParseHTML
	if cfg.ParseMode == "Markdown" {
		mode = transport.ParseMarkdown
	}
	st := &runState{
		userID:         userID,
		account:        account,
		chats:          append([]int64(nil), chatIDs...),
		texts:          append([]string(nil), cfg.Texts...),
		textMode:       cfg.TextMode,
		textIndex:      cfg.TextIndex,
		parseMode:      mode,
		rounds:         cfg.Count,
		chatPause:      cfg.ChatPauseRange(),
		interval:       cfg.IntervalRange(),
		planLimitCount: cfg.PlanLimitCount,
		planRest:       time.Duration(cfg.PlanLimitRest) * time.Minute,
	}
	return st
}

// initPlan draws the per-chat send plan: first-send times staggered by random
// chat-pause gaps starting after the warm-up offset, and one random interval
// per chat that every later round reuses.
func (s *Service) initPlan(st *runState) {
	st.next = make(map[int64]time.Time, len(st.chats))
	st.intervals = make(map[int64]time.Duration, len(st.chats))
	cursor := time.Now().Add(warmupOffset)
	for _, chat := range st.chats {
		st.next[chat] = cursor
		cursor = cursor.Add(s.pick(st.chatPause, time.Second))
		st.intervals[chat] = s.pick(st.interval, time.Minute)
	}
}

// run drives one job to a terminal state. It checks the registry before every
// send so pause and cancel take effect mid-round, and it parks its cursor
// instead of exiting dead when paused.
func (s *Service) run(ctx context.Context, id int, st *runState) {
	log := s.log.With(logx.Int("job", id), logx.Int64("user", st.userID), logx.Int("account", st.account))

	client := s.hub.User(st.userID).Client(st.account)
	if client == nil {
		s.reg.MarkError(id, "account is not connected", ErrKindDisconnected)
		s.publish(EventError, id, JobEvent{
			UserID:  st.userID,
			Account: st.account,
			Status:  StatusError,
			Error:   "account is not connected",
		})
		log.Warn("broadcast aborted, account disconnected")
		return
	}

	if st.next == nil {
		s.initPlan(st)
	}

	for ; st.round < st.rounds; st.round++ {
		for ; st.chatIdx < len(st.chats); st.chatIdx++ {
			chat := st.chats[st.chatIdx]

			status, ok := s.reg.StatusOf(id)
			if !ok {
				// Swept out from under us; nothing left to report to.
				return
			}
			switch status {
			case StatusCancelled:
				s.reg.SetStatus(id, StatusStopped)
				s.finish(id, st, StatusStopped, log)
				return
			case StatusPaused:
				// Snapshot before parking: once the cursor is handed over, a
				// resumed run may already be mutating it.
				round, sent := st.round, st.sent
				if s.park(id, st) {
					log.Info("broadcast parked", logx.Int("round", round), logx.Int("sent", sent))
					return
				}
				// Resumed before we could park, keep going.
			}

			if ctx.Err() != nil {
				return
			}

			err := client.SendScheduled(ctx, chat, s.pickText(st), st.next[chat], st.parseMode)
			if err != nil {
				st.failed++
				log.Debug("scheduled send failed", logx.Int64("chat", chat), logx.Err(err))
				if joinWorthy(err) {
					s.enqueueJoin(st.userID, chat)
				}
			} else {
				st.sent++
				s.reg.UpdateProgress(id, st.sent)
			}

			st.next[chat] = st.next[chat].Add(st.intervals[chat])

			st.sinceRest++
			if st.planLimitCount > 0 && st.planRest > 0 && st.sinceRest >= st.planLimitCount {
				st.sinceRest = 0
				log.Debug("plan limit reached, resting", logx.Duration("rest", st.planRest))
				select {
				case <-ctx.Done():
					return
				case <-time.After(st.planRest):
				}
			}
		}
		st.chatIdx = 0
	}

	s.reg.SetStatus(id, StatusCompleted)
	s.finish(id, st, StatusCompleted, log)
}

// park hands the cursor to the service if the job is still paused. The
// decision races Resume/Cancel, so it re-checks status under the same mutex
// those take: whoever holds the lock first wins, and the cursor ends up with
// exactly one owner.
func (s *Service) park(id int, st *runState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.reg.StatusOf(id)
	if !ok {
		return true
	}
	if status != StatusPaused {
		return false
	}
	s.parked[id] = st
	return true
}

func (s *Service) pickText(st *runState) string {
	if len(st.texts) == 1 {
		return st.texts[0]
	}
	if st.textMode == TextModeSequence {
		t := st.texts[st.textIndex%len(st.texts)]
		st.textIndex++
		return t
	}
	s.rngMu.Lock()
	i := s.rng.Intn(len(st.texts))
	s.rngMu.Unlock()
	return st.texts[i]
}

func (s *Service) finish(id int, st *runState, status Status, log logx.Logger) {
	j, _ := s.reg.Get(id)
	evType := EventFinished
	if status == StatusError {
		evType = EventError
	}
	s.publish(evType, id, JobEvent{
		UserID:      st.userID,
		Account:     st.account,
		AccountName: j.AccountName,
		Status:      status,
		Sent:        st.sent,
		Failed:      st.failed,
		Error:       j.ErrorMessage,
	})
	log.Info("broadcast finished",
		logx.String("status", string(status)),
		logx.Int("sent", st.sent),
		logx.Int("failed", st.failed))
}

func (s *Service) enqueueJoin(userID int64, chat int64) {
	if s.joins == nil {
		return
	}
	s.joins.EnqueueChat(userID, chat)
}

// joinWorthy reports whether a send error looks like a membership problem
// that joining the chat could fix. Everything else (flood waits, slow mode,
// malformed peers) is not self-healable and is just skipped.
func joinWorthy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range []string{
		"usernotparticipant",
		"not a participant",
		"chatwriteforbidden",
		"forbidden",
		"join",
		"participant",
	} {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}
