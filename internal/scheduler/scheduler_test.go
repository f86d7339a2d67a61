package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fired chan string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fired: make(chan string, 16)}
}

func (f *fakeSender) Send(recipient, subject, body, attachmentPath string) error {
	f.mu.Lock()
	f.sent = append(f.sent, recipient)
	f.mu.Unlock()
	f.fired <- recipient
	return nil
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func futureJob(recipient string, in time.Duration) Job {
	return Job{
		Recipient:     recipient,
		Subject:       "Subject",
		Body:          "<p>body</p>",
		ScheduledTime: time.Now().Add(in),
	}
}

func TestScheduleRejectsPastTime(t *testing.T) {
	s := New(newFakeSender(), testLogger())

	_, err := s.Schedule(futureJob("a@example.org", -time.Minute))
	if !errors.Is(err, ErrPastSchedule) {
		t.Errorf("expected ErrPastSchedule, got: %v", err)
	}
	if pending := s.ListPending(); len(pending) != 0 {
		t.Errorf("rejected job ended up in registry: %v", pending)
	}
}

func TestScheduleAndFire(t *testing.T) {
	sender := newFakeSender()
	s := New(sender, testLogger())
	defer s.Stop()

	if _, err := s.Schedule(futureJob("a@example.org", 20*time.Millisecond)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case got := <-sender.fired:
		if got != "a@example.org" {
			t.Errorf("dispatched to %q, want a@example.org", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}

	// fired jobs are purged from the registry
	deadline := time.Now().Add(time.Second)
	for len(s.ListPending()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("fired job still pending: %v", s.ListPending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJobsAreIndependent(t *testing.T) {
	sender := newFakeSender()
	s := New(sender, testLogger())
	defer s.Stop()

	idA, err := s.Schedule(futureJob("a@example.org", 30*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule a: %v", err)
	}
	idB, err := s.Schedule(futureJob("b@example.org", time.Hour))
	if err != nil {
		t.Fatalf("Schedule b: %v", err)
	}
	if idA == idB {
		t.Fatalf("ids collide: %s", idA)
	}

	// firing A must not disturb B's registry entry
	select {
	case <-sender.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job a never fired")
	}

	pending := s.ListPending()
	if len(pending) != 1 || pending[0].ID != idB {
		t.Fatalf("expected only job b pending, got: %v", pending)
	}
	if err := s.Cancel(idB); err != nil {
		t.Errorf("Cancel b after a fired: %v", err)
	}
}

func TestCancelRemovesJob(t *testing.T) {
	sender := newFakeSender()
	s := New(sender, testLogger())

	id, err := s.Schedule(futureJob("a@example.org", 30*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if pending := s.ListPending(); len(pending) != 0 {
		t.Errorf("cancelled job still pending: %v", pending)
	}

	// well past the original fire time: nothing may have been sent
	time.Sleep(100 * time.Millisecond)
	if sent := sender.sentTo(); len(sent) != 0 {
		t.Errorf("cancelled job dispatched anyway: %v", sent)
	}
}

func TestCancelUnknownID(t *testing.T) {
	s := New(newFakeSender(), testLogger())

	if err := s.Cancel("no-such-id"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got: %v", err)
	}
}

func TestMissedGraceWindowDropsJob(t *testing.T) {
	sender := newFakeSender()
	s := New(sender, testLogger())
	// negative grace: any fire is past the window
	s.grace = -time.Hour

	if _, err := s.Schedule(futureJob("a@example.org", 10*time.Millisecond)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if sent := sender.sentTo(); len(sent) != 0 {
		t.Errorf("job past grace window was dispatched: %v", sent)
	}
	if pending := s.ListPending(); len(pending) != 0 {
		t.Errorf("dropped job still pending: %v", pending)
	}
}

func TestListPendingOrderedByFireTime(t *testing.T) {
	s := New(newFakeSender(), testLogger())
	defer s.Stop()

	if _, err := s.Schedule(futureJob("later@example.org", 2*time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.Schedule(futureJob("sooner@example.org", time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	pending := s.ListPending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(pending))
	}
	if pending[0].Recipient != "sooner@example.org" {
		t.Errorf("pending[0] = %q, want the earlier job first", pending[0].Recipient)
	}
	if pending[0].Status != "Pending" {
		t.Errorf("status = %q, want Pending", pending[0].Status)
	}
}
