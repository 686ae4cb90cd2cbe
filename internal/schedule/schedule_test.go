package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tealdesk/aide/internal/logging"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }
func (c *fakeClock) set(t time.Time)         { c.at = t }

func TestEveryWaitsOneIntervalThenFires(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	runs := 0
	s.Add("poll", Every(30*time.Second), func(context.Context) error {
		runs++
		return nil
	})

	if ran := s.RunPending(context.Background()); ran != 0 {
		t.Fatalf("ran immediately: %d", ran)
	}
	clock.advance(29 * time.Second)
	if ran := s.RunPending(context.Background()); ran != 0 {
		t.Fatalf("ran early: %d", ran)
	}
	clock.advance(time.Second)
	if ran := s.RunPending(context.Background()); ran != 1 {
		t.Fatalf("ran = %d", ran)
	}
	// The next firing is measured from completion, not from the original slot.
	clock.advance(30 * time.Second)
	s.RunPending(context.Background())
	if runs != 2 {
		t.Fatalf("runs = %d", runs)
	}
}

func TestDailyAtFiresOncePerDay(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 2, 3, 7, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	runs := 0
	s.Add("daily-briefing", DailyAt(8, 0), func(context.Context) error {
		runs++
		return nil
	})

	clock.set(time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC))
	s.RunPending(context.Background())
	clock.advance(time.Minute)
	s.RunPending(context.Background())
	if runs != 1 {
		t.Fatalf("runs same day = %d", runs)
	}

	clock.set(time.Date(2026, 2, 4, 8, 0, 0, 0, time.UTC))
	s.RunPending(context.Background())
	if runs != 2 {
		t.Fatalf("runs next day = %d", runs)
	}
}

func TestWeeklyAtFiresOnConfiguredDay(t *testing.T) {
	// 2026-02-03 is a Tuesday.
	clock := &fakeClock{at: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	runs := 0
	s.Add("weekly-audit", WeeklyAt(time.Sunday, 21, 0), func(context.Context) error {
		runs++
		return nil
	})

	clock.set(time.Date(2026, 2, 7, 21, 0, 0, 0, time.UTC)) // Saturday
	s.RunPending(context.Background())
	if runs != 0 {
		t.Fatalf("fired on Saturday")
	}
	clock.set(time.Date(2026, 2, 8, 21, 0, 0, 0, time.UTC)) // Sunday
	s.RunPending(context.Background())
	if runs != 1 {
		t.Fatalf("runs = %d", runs)
	}
	clock.set(time.Date(2026, 2, 15, 21, 0, 30, 0, time.UTC)) // next Sunday
	s.RunPending(context.Background())
	if runs != 2 {
		t.Fatalf("runs = %d", runs)
	}
}

func TestFailingJobReschedulesAndOthersStillRun(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	failures, successes := 0, 0
	s.Add("flaky", Every(10*time.Second), func(context.Context) error {
		failures++
		return errors.New("transient")
	})
	s.Add("steady", Every(10*time.Second), func(context.Context) error {
		successes++
		return nil
	})

	for i := 0; i < 3; i++ {
		clock.advance(10 * time.Second)
		s.RunPending(context.Background())
	}
	if failures != 3 || successes != 3 {
		t.Fatalf("failures = %d successes = %d", failures, successes)
	}
}

func TestRunAllIgnoresSchedule(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	runs := 0
	s.Add("a", DailyAt(23, 0), func(context.Context) error { runs++; return nil })
	s.Add("b", Every(time.Hour), func(context.Context) error { runs++; return nil })

	s.RunAll(context.Background())
	if runs != 2 {
		t.Fatalf("runs = %d", runs)
	}
}

func TestJobsRunSequentiallyInRegistrationOrder(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)}
	s := New(logging.Discard{}, WithClock(clock.now))

	var order []string
	s.Add("first", Every(time.Second), func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	s.Add("second", Every(time.Second), func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	clock.advance(time.Second)
	s.RunPending(context.Background())
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}
