// Package broadcast runs the recurring send jobs: at most one per
// owner, first firing a few seconds after start, then every interval.
// Firings for one owner are serialized by construction (a single
// goroutine per job runs cycles back to back), so a slow cycle can
// never overlap the next one; it delays it instead.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/userbot"
)

// ErrBadInterval rejects intervals under one minute.
var ErrBadInterval = errors.New("interval must be at least 1 minute")

// TargetSource resolves the ordered handles a cycle sends to.
type TargetSource interface {
	Targets(ownerID int64) ([]string, error)
}

// AccountSource resolves the owner's linked account.
type AccountSource interface {
	Account(ownerID int64) (*models.LinkedAccount, error)
}

// Events receives per-cycle outcomes; the bot layer turns them into
// messages to the owner.
type Events interface {
	CycleFinished(ownerID int64, sent, failed int)
	AccountUnlinked(ownerID int64)
	SessionFailed(ownerID int64, err error)
}

// Job is one owner's active recurring broadcast.
type Job struct {
	ID       uuid.UUID
	OwnerID  int64
	Message  string
	Interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	dialer   userbot.Dialer
	targets  TargetSource
	accounts AccountSource
	events   Events
	log      zerolog.Logger

	// Fallback app credentials for accounts linked before per-user
	// credentials were collected.
	defaultAppID   int32
	defaultAppHash string

	// Tunable for tests; production uses the defaults from NewScheduler.
	firstDelay   time.Duration
	sendDelay    time.Duration
	cycleTimeout time.Duration

	mu   sync.Mutex
	jobs map[int64]*Job
}

func NewScheduler(d userbot.Dialer, t TargetSource, a AccountSource, ev Events, defaultAppID int32, defaultAppHash string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		dialer:         d,
		targets:        t,
		accounts:       a,
		events:         ev,
		log:            log.With().Str("component", "broadcast").Logger(),
		defaultAppID:   defaultAppID,
		defaultAppHash: defaultAppHash,
		firstDelay:     5 * time.Second,
		sendDelay:      time.Second,
		cycleTimeout:   5 * time.Minute,
		jobs:           make(map[int64]*Job),
	}
}

// Start installs a recurring job for the owner, replacing (and fully
// stopping) any existing one first. Interval is in whole minutes.
func (s *Scheduler) Start(ownerID int64, message string, intervalMinutes int) (*Job, error) {
	if intervalMinutes < 1 {
		return nil, ErrBadInterval
	}
	// Cancel-before-replace: the old job's goroutine must be gone
	// before the new one is installed.
	s.Stop(ownerID)

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Message:  message,
		Interval: time.Duration(intervalMinutes) * time.Minute,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[ownerID] = job
	s.mu.Unlock()

	go s.run(ctx, job)
	s.log.Info().Str("job", job.ID.String()).Int64("owner", ownerID).
		Int("interval_min", intervalMinutes).Msg("broadcast started")
	return job, nil
}

// Stop cancels and removes the owner's job if present; a no-op
// otherwise. When Stop returns, no further firing will start.
func (s *Scheduler) Stop(ownerID int64) {
	s.mu.Lock()
	job := s.jobs[ownerID]
	delete(s.jobs, ownerID)
	s.mu.Unlock()

	if job == nil {
		return
	}
	job.cancel()
	<-job.done
	s.log.Info().Str("job", job.ID.String()).Int64("owner", ownerID).Msg("broadcast stopped")
}

// StopAll shuts every job down; used on process exit.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	owners := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		owners = append(owners, id)
	}
	s.mu.Unlock()
	for _, id := range owners {
		s.Stop(id)
	}
}

// Active returns the owner's job, if any.
func (s *Scheduler) Active(ownerID int64) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[ownerID]
	return job, ok
}

// Count reports the number of active jobs.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	defer close(job.done)

	first := time.NewTimer(s.firstDelay)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-first.C:
	}
	s.fire(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, job)
		}
	}
}

// fire runs one cycle: resolve the account, open a session, send to
// every target in order with a pause between sends, then report the
// aggregate. Per-target failures are logged and skipped.
func (s *Scheduler) fire(ctx context.Context, job *Job) {
	acct, err := s.accounts.Account(job.OwnerID)
	if err != nil || !acct.Usable() {
		s.events.AccountUnlinked(job.OwnerID)
		return
	}
	appID, appHash := acct.AppID, acct.AppHash
	if appID == 0 || appHash == "" {
		appID, appHash = s.defaultAppID, s.defaultAppHash
	}

	// One stuck session must not starve the scheduler.
	cctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	sess, err := s.dialer.DialSession(cctx, appID, appHash, *acct.Session)
	if err != nil {
		s.log.Error().Err(err).Int64("owner", job.OwnerID).Msg("session dial failed")
		s.events.SessionFailed(job.OwnerID, err)
		return
	}
	defer sess.Close()

	targets, err := s.targets.Targets(job.OwnerID)
	if err != nil {
		s.log.Error().Err(err).Int64("owner", job.OwnerID).Msg("resolving targets failed")
		s.events.SessionFailed(job.OwnerID, err)
		return
	}

	sent, failed := 0, 0
	for i, handle := range targets {
		if cctx.Err() != nil {
			break
		}
		if err := sess.SendMessage(cctx, "@"+handle, job.Message); err != nil {
			s.log.Warn().Err(err).Int64("owner", job.OwnerID).Str("group", handle).Msg("send failed")
			failed++
		} else {
			sent++
		}
		if i < len(targets)-1 {
			select {
			case <-cctx.Done():
			case <-time.After(s.sendDelay):
			}
		}
	}
	s.events.CycleFinished(job.OwnerID, sent, failed)
}
