package joins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blastbot/internal/pacing"
	"blastbot/internal/transport"
	"blastbot/pkg/logx"
)

// idlePoll is how often an idle worker re-checks its queue and master switch.
const idlePoll = 2 * time.Second

func (s *Service) ensureWorkerLocked(userID int64, st *userState) {
	if st.running {
		return
	}
	st.running = true
	s.sup.Go0(fmt.Sprintf("joins.worker.%d", userID), func(ctx context.Context) {
		s.runWorker(ctx, userID)
	})
}

// runWorker drains one user's queue until auto-join is disabled or the
// process shuts down.
func (s *Service) runWorker(ctx context.Context, userID int64) {
	log := s.log.With(logx.Int64("user", userID))
	defer func() {
		s.mu.Lock()
		s.state(userID).running = false
		s.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if !s.Enabled(userID) {
			log.Debug("join worker stopping, auto-join disabled")
			return
		}

		req, ok := s.pop(userID)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		s.process(ctx, userID, req, log)

		if s.QueueLen(userID) > 0 {
			if !s.sleep(ctx, s.Settings(userID).BetweenRange()) {
				return
			}
		}
	}
}

// process fans one request out over the join-capable accounts, pausing
// between accounts but not after the last one.
func (s *Service) process(ctx context.Context, userID int64, req Request, log logx.Logger) {
	set := s.Settings(userID)
	u := s.hub.User(userID)

	targets := set.TargetAccounts
	if len(targets) == 0 {
		targets = u.Connected()
	}
	if len(targets) == 0 {
		log.Debug("join request dropped, no connected accounts")
		return
	}

	per := set.PerTargetRange()
	for i, acc := range targets {
		client := u.Client(acc)
		if client == nil {
			continue
		}
		s.joinAll(ctx, client, req, log.With(logx.Int("account", acc)))
		if i < len(targets)-1 {
			if !s.sleep(ctx, per) {
				return
			}
		}
	}
}

// joinAll works through a request's candidates in preference order — invite
// links, then usernames, then the raw chat id — and stops at the first one
// that lands (or turns out to be already joined): the candidates are the same
// chat expressed different ways. Errors are logged and swallowed; a failed
// candidate just means trying the next form.
func (s *Service) joinAll(ctx context.Context, client transport.Client, req Request, log logx.Logger) {
	for _, link := range req.Links {
		hash, ok := ExtractInviteHash(link)
		if !ok {
			log.Debug("unrecognized invite link", logx.String("link", link))
			continue
		}
		if s.joinOne(ctx, client, transport.JoinTarget{InviteHash: hash}, log) {
			return
		}
	}
	for _, username := range req.Usernames {
		username = strings.TrimPrefix(username, "@")
		if username == "" {
			continue
		}
		if s.joinOne(ctx, client, transport.JoinTarget{Username: username}, log) {
			return
		}
	}
	if req.ChatID != 0 {
		s.joinOne(ctx, client, transport.JoinTarget{ChatID: req.ChatID}, log)
	}
}

// joinOne reports whether the target is settled: joined now, or already a
// member either way of finding out.
func (s *Service) joinOne(ctx context.Context, client transport.Client, target transport.JoinTarget, log logx.Logger) bool {
	if member, err := client.IsMember(ctx, target); err == nil && member {
		log.Debug("already a member", logx.Any("target", target))
		return true
	}
	err := client.Join(ctx, target)
	switch {
	case err == nil:
		log.Info("joined chat", logx.Any("target", target))
		return true
	case errors.Is(err, transport.ErrAlreadyParticipant):
		log.Debug("already a participant", logx.Any("target", target))
		return true
	default:
		log.Debug("join attempt failed", logx.Any("target", target), logx.Err(err))
		return false
	}
}

// sleep waits a random duration from the range, reporting false on shutdown.
func (s *Service) sleep(ctx context.Context, r pacing.Range) bool {
	s.rngMu.Lock()
	d := pacing.Pick(s.rng, r, time.Second)
	s.rngMu.Unlock()
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
