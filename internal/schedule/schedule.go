// Package schedule runs named jobs on a cooperative single-loop cadence.
// Jobs run to completion one at a time in registration order; a slow job
// simply delays the others until the next tick. There is no overlap
// protection because there is no overlap: one loop, one job at a time.

package schedule

import (
	"context"
	"time"

	"github.com/tealdesk/aide/internal/logging"
)

// Trigger computes when a job is next due.
type Trigger interface {
	Next(after time.Time) time.Time
}

// Every fires on a fixed interval measured from the previous firing.
func Every(d time.Duration) Trigger {
	return every(d)
}

type every time.Duration

func (e every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// DailyAt fires once per day at the given local wall-clock time.
func DailyAt(hour, minute int) Trigger {
	return daily{hour: hour, minute: minute}
}

type daily struct {
	hour, minute int
}

func (d daily) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), d.hour, d.minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// WeeklyAt fires once per week on the given weekday and wall-clock time.
func WeeklyAt(day time.Weekday, hour, minute int) Trigger {
	return weekly{day: day, hour: hour, minute: minute}
}

type weekly struct {
	day          time.Weekday
	hour, minute int
}

func (w weekly) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), w.hour, w.minute, 0, 0, after.Location())
	offset := (int(w.day) - int(candidate.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, offset)
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

type job struct {
	name string
	trig Trigger
	run  func(ctx context.Context) error
	next time.Time
}

// Scheduler holds the job table and drives the loop.
type Scheduler struct {
	jobs []*job
	log  logging.Printer
	now  func() time.Time
	tick time.Duration
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used for due checks.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.now = clock }
}

// WithTick overrides the loop's poll granularity.
func WithTick(tick time.Duration) Option {
	return func(s *Scheduler) { s.tick = tick }
}

// New builds an empty scheduler.
func New(log logging.Printer, opts ...Option) *Scheduler {
	s := &Scheduler{log: log, now: time.Now, tick: time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. The first firing is trigger.Next of registration
// time, so an Every job waits one full interval before its first run.
func (s *Scheduler) Add(name string, trig Trigger, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, &job{
		name: name,
		trig: trig,
		run:  run,
		next: trig.Next(s.now()),
	})
	s.log.Printf("schedule: registered %s, first run %s", name, s.jobs[len(s.jobs)-1].next.Format(time.RFC3339))
}

// RunPending executes every due job to completion and returns how many
// ran. A job error is logged and the job reschedules normally; one
// failing job never starves the table.
func (s *Scheduler) RunPending(ctx context.Context) int {
	ran := 0
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return ran
		}
		now := s.now()
		if now.Before(j.next) {
			continue
		}
		s.runJob(ctx, j)
		j.next = j.trig.Next(s.now())
		ran++
	}
	return ran
}

// RunAll executes every registered job once, regardless of schedule.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j)
		j.next = j.trig.Next(s.now())
	}
}

// Run drives the loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunPending(ctx)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if err := j.run(ctx); err != nil {
		s.log.Printf("schedule: %s: %v", j.name, err)
		return
	}
	s.log.Printf("schedule: %s completed", j.name)
}
