package scheduler

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPastSchedule rejects jobs whose fire time is not strictly future.
	ErrPastSchedule = errors.New("schedule time must be in the future")

	// ErrJobNotFound is returned by Cancel for unknown or already-fired ids.
	ErrJobNotFound = errors.New("scheduled email not found")
)

// GraceWindow is how far past its fire time a late timer may still dispatch
// before the job is treated as missed.
const GraceWindow = 5 * time.Minute

// Sender dispatches a single email.
type Sender interface {
	Send(recipient, subject, body, attachmentPath string) error
}

// Job is a deferred single-recipient send.
type Job struct {
	Recipient      string
	Subject        string
	Body           string
	ScheduledTime  time.Time
	AttachmentPath string
}

// PendingJob is the display form of a registered job.
type PendingJob struct {
	ID            string `json:"id"`
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	ScheduledTime string `json:"scheduled_time"`
	Status        string `json:"status"`
}

type entry struct {
	job   Job
	timer *time.Timer
}

// Scheduler is the process-wide registry of deferred sends. Jobs are held in
// memory only and are lost on restart. Fired jobs are purged from the
// registry, so ListPending only ever shows jobs that can still be cancelled.
type Scheduler struct {
	mu     sync.Mutex
	sender Sender
	logger *slog.Logger
	jobs   map[string]*entry
	now    func() time.Time
	grace  time.Duration
}

func New(sender Sender, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sender: sender,
		logger: logger,
		jobs:   make(map[string]*entry),
		now:    time.Now,
		grace:  GraceWindow,
	}
}

// Schedule registers job under a fresh id and arms its timer. The fire time
// must be strictly in the future.
func (s *Scheduler) Schedule(job Job) (string, error) {
	now := s.now()
	if !job.ScheduledTime.After(now) {
		return "", ErrPastSchedule
	}

	id := uuid.NewString()

	s.mu.Lock()
	e := &entry{job: job}
	e.timer = time.AfterFunc(job.ScheduledTime.Sub(now), func() { s.fire(id) })
	s.jobs[id] = e
	s.mu.Unlock()

	s.logger.Info("email scheduled", "id", id, "recipient", job.Recipient, "at", job.ScheduledTime)
	return id, nil
}

// Cancel stops the timer and removes the registry entry.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	e.timer.Stop()
	delete(s.jobs, id)
	s.logger.Info("scheduled email cancelled", "id", id, "recipient", e.job.Recipient)
	return nil
}

// ListPending returns registered jobs ordered by fire time.
func (s *Scheduler) ListPending() []PendingJob {
	s.mu.Lock()
	type idJob struct {
		id  string
		job Job
	}
	all := make([]idJob, 0, len(s.jobs))
	for id, e := range s.jobs {
		all = append(all, idJob{id: id, job: e.job})
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].job.ScheduledTime.Before(all[j].job.ScheduledTime)
	})

	pending := make([]PendingJob, 0, len(all))
	for _, ij := range all {
		pending = append(pending, PendingJob{
			ID:            ij.id,
			Recipient:     ij.job.Recipient,
			Subject:       ij.job.Subject,
			ScheduledTime: ij.job.ScheduledTime.Format("2006-01-02 15:04"),
			Status:        "Pending",
		})
	}
	return pending
}

// Stop cancels all armed timers. Pending jobs are discarded; there is no
// persistence across restarts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.jobs {
		e.timer.Stop()
		delete(s.jobs, id)
	}
}

// fire runs on the timer goroutine. The entry is removed before dispatch so
// cancellation races resolve cleanly: a Cancel that wins the lock first stops
// the send, one that loses gets ErrJobNotFound.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	overdue := s.now().Sub(e.job.ScheduledTime)
	if overdue > s.grace {
		s.logger.Warn("scheduled email missed grace window, dropped",
			"id", id, "recipient", e.job.Recipient, "overdue", overdue)
		return
	}

	if err := s.sender.Send(e.job.Recipient, e.job.Subject, e.job.Body, e.job.AttachmentPath); err != nil {
		s.logger.Error("scheduled email failed", "id", id, "recipient", e.job.Recipient, "err", err)
		return
	}
	s.logger.Info("scheduled email sent", "id", id, "recipient", e.job.Recipient)
}
