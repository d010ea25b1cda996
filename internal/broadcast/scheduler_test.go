package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/userbot"
)

type fakeSession struct {
	mu     sync.Mutex
	sent   []string
	failOn map[string]bool
	closed bool
}

func (f *fakeSession) SendMessage(ctx context.Context, peer, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[peer] {
		return errors.New("simulated network error")
	}
	f.sent = append(f.sent, peer)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeDialer struct {
	sess    *fakeSession
	dialErr error
}

func (d *fakeDialer) DialAuth(ctx context.Context, appID int32, appHash string) (userbot.Authenticator, error) {
	return nil, errors.New("not used")
}

func (d *fakeDialer) DialSession(ctx context.Context, appID int32, appHash, session string) (userbot.Session, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.sess, nil
}

type fakeTargets struct{ handles []string }

func (f *fakeTargets) Targets(ownerID int64) ([]string, error) { return f.handles, nil }

type fakeAccounts struct{ acct *models.LinkedAccount }

func (f *fakeAccounts) Account(ownerID int64) (*models.LinkedAccount, error) {
	if f.acct == nil {
		return nil, errors.New("not found")
	}
	return f.acct, nil
}

type recordedCycle struct{ sent, failed int }

type fakeEvents struct {
	mu       sync.Mutex
	cycles   []recordedCycle
	unlinked int
	failures int
	notify   chan struct{}
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{notify: make(chan struct{}, 16)}
}

func (f *fakeEvents) CycleFinished(ownerID int64, sent, failed int) {
	f.mu.Lock()
	f.cycles = append(f.cycles, recordedCycle{sent, failed})
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeEvents) AccountUnlinked(ownerID int64) {
	f.mu.Lock()
	f.unlinked++
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeEvents) SessionFailed(ownerID int64, err error) {
	f.mu.Lock()
	f.failures++
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func linkedAccount() *models.LinkedAccount {
	sess := "session-string"
	return &models.LinkedAccount{UserID: 1, AppID: 1, AppHash: "h", Session: &sess}
}

func newTestScheduler(d *fakeDialer, targets []string, acct *models.LinkedAccount, ev Events) *Scheduler {
	s := NewScheduler(d, &fakeTargets{handles: targets}, &fakeAccounts{acct: acct}, ev, 999, "fallback", zerolog.Nop())
	s.firstDelay = 10 * time.Millisecond
	s.sendDelay = time.Millisecond
	return s
}

func waitEvent(t *testing.T, ev *fakeEvents) {
	t.Helper()
	select {
	case <-ev.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduler event")
	}
}

func TestStartRejectsBadInterval(t *testing.T) {
	s := newTestScheduler(&fakeDialer{sess: &fakeSession{}}, nil, linkedAccount(), newFakeEvents())
	defer s.StopAll()

	if _, err := s.Start(1, "hi", 0); !errors.Is(err, ErrBadInterval) {
		t.Errorf("want ErrBadInterval, got %v", err)
	}
}

func TestFirstFiringIsDelayedNotImmediate(t *testing.T) {
	sess := &fakeSession{}
	ev := newFakeEvents()
	s := newTestScheduler(&fakeDialer{sess: sess}, []string{"a", "b"}, linkedAccount(), ev)
	defer s.StopAll()

	start := time.Now()
	if _, err := s.Start(1, "hello", 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEvent(t, ev)
	elapsed := time.Since(start)

	if elapsed < s.firstDelay {
		t.Errorf("first firing before the initial delay: %s", elapsed)
	}
	if elapsed > time.Minute {
		t.Errorf("first firing waited a full interval: %s", elapsed)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if len(ev.cycles) != 1 || ev.cycles[0].sent != 2 || ev.cycles[0].failed != 0 {
		t.Errorf("cycle report: %+v", ev.cycles)
	}
}

func TestCycleCountsFailuresIndependently(t *testing.T) {
	sess := &fakeSession{failOn: map[string]bool{"@a": true}}
	ev := newFakeEvents()
	s := newTestScheduler(&fakeDialer{sess: sess}, []string{"a", "b"}, linkedAccount(), ev)
	defer s.StopAll()

	if _, err := s.Start(1, "hello", 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEvent(t, ev)

	ev.mu.Lock()
	c := ev.cycles[0]
	ev.mu.Unlock()
	if c.sent != 1 || c.failed != 1 {
		t.Errorf("want 1 sent / 1 failed, got %+v", c)
	}

	// Per-group failure does not unschedule the job.
	if _, ok := s.Active(1); !ok {
		t.Error("job must remain scheduled after a partial failure")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.sent) != 1 || sess.sent[0] != "@b" {
		t.Errorf("failed target must be skipped, not abort: %v", sess.sent)
	}
	if !sess.closed {
		t.Error("session must be closed after the cycle")
	}
}

func TestUnlinkedAccountSkipsFiring(t *testing.T) {
	ev := newFakeEvents()
	s := newTestScheduler(&fakeDialer{sess: &fakeSession{}}, []string{"a"}, nil, ev)
	defer s.StopAll()

	if _, err := s.Start(1, "hello", 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitEvent(t, ev)

	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.unlinked != 1 {
		t.Errorf("want AccountUnlinked, got %+v", ev)
	}
	if len(ev.cycles) != 0 {
		t.Errorf("no cycle should be reported: %+v", ev.cycles)
	}
	if _, ok := s.Active(1); !ok {
		t.Error("job remains scheduled even when the account is unlinked")
	}
}

func TestStartReplacesExistingJob(t *testing.T) {
	ev := newFakeEvents()
	s := newTestScheduler(&fakeDialer{sess: &fakeSession{}}, []string{"a"}, linkedAccount(), ev)
	defer s.StopAll()

	j1, err := s.Start(1, "first", 5)
	if err != nil {
		t.Fatalf("start 1: %v", err)
	}
	j2, err := s.Start(1, "second", 10)
	if err != nil {
		t.Fatalf("start 2: %v", err)
	}
	if j1.ID == j2.ID {
		t.Error("replacement must be a fresh job")
	}

	// The old job's goroutine is fully gone before Start returned.
	select {
	case <-j1.done:
	default:
		t.Error("previous job still running after replacement")
	}

	active, ok := s.Active(1)
	if !ok || active.ID != j2.ID || active.Message != "second" {
		t.Errorf("active job: %+v ok=%v", active, ok)
	}
	if s.Count() != 1 {
		t.Errorf("exactly one job per owner, got %d", s.Count())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestScheduler(&fakeDialer{sess: &fakeSession{}}, nil, linkedAccount(), newFakeEvents())

	s.Stop(99) // never started: no panic, no-op

	if _, err := s.Start(1, "x", 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop(1)
	s.Stop(1)
	if s.Count() != 0 {
		t.Errorf("jobs left after stop: %d", s.Count())
	}
}

func TestStopPreventsFurtherFirings(t *testing.T) {
	ev := newFakeEvents()
	s := newTestScheduler(&fakeDialer{sess: &fakeSession{}}, []string{"a"}, linkedAccount(), ev)
	s.firstDelay = 500 * time.Millisecond // Stop lands before the first firing

	job, err := s.Start(1, "x", 5)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop(1)

	select {
	case <-job.done:
	default:
		t.Fatal("Stop must not return before the job goroutine exits")
	}

	// No firing may start after Stop has returned.
	select {
	case <-ev.notify:
		t.Error("firing observed after Stop returned")
	case <-time.After(50 * time.Millisecond):
	}
}
