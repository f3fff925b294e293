package reminder_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/reminder"
)

var dueT = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestDueSoonSentAtOffset(t *testing.T) {
	f := newFixture(t, reminder.DefaultConfig(), dueT.Add(-72*time.Hour))
	ana := f.user(t, "ana@example.com", "Europe/Lisbon")
	c := f.card(t, ana, tp(dueT), ana)

	f.refresh(t, c.ID)
	jobs := f.jobs(t, c.ID)
	if len(jobs) != 2 {
		t.Fatalf("planned %d jobs, want 2", len(jobs))
	}
	soon := jobOf(t, jobs, reminder.TypeDueSoon, reminder.StatusPending)
	if !soon.RunAt.Equal(dueT.Add(-1440 * time.Minute)) {
		t.Fatalf("due_soon RunAt = %v", soon.RunAt)
	}
	over := jobOf(t, jobs, reminder.TypeOverdue, reminder.StatusPending)
	if !over.RunAt.Equal(dueT) {
		t.Fatalf("overdue RunAt = %v", over.RunAt)
	}

	f.clock.Set(dueT.Add(-1440 * time.Minute))
	sum := f.process(t)
	if sum.Selected != 1 || sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if f.sink.count() != 1 {
		t.Fatalf("sends = %d, want 1", f.sink.count())
	}
	got := f.sink.calls[0]
	if got.To != "ana@example.com" || got.Type != reminder.TypeDueSoon || got.TimeZone != "Europe/Lisbon" ||
		got.CardName != "Ship release" || got.ReminderMinutes == nil || *got.ReminderMinutes != 1440 {
		t.Fatalf("sent %+v", got)
	}

	jobs = f.jobs(t, c.ID)
	jobOf(t, jobs, reminder.TypeDueSoon, reminder.StatusSent)
	jobOf(t, jobs, reminder.TypeOverdue, reminder.StatusPending)
}

func TestMovedDueDateNeverFiresAgainstOldDate(t *testing.T) {
	f := newFixture(t, reminder.DefaultConfig(), dueT.Add(-72*time.Hour))
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)
	f.refresh(t, c.ID)

	moved := dueT.Add(60 * time.Minute)
	must(t, f.db.Model(&board.Card{}).Where("id = ?", c.ID).Update("due_at", moved).Error)
	f.refresh(t, c.ID)

	jobs := f.jobs(t, c.ID)
	if len(jobs) != 2 {
		t.Fatalf("jobs after replan = %d, want 2", len(jobs))
	}
	for _, j := range jobs {
		if !j.DueAtSnapshot.Equal(moved) {
			t.Fatalf("job %d still references %v", j.ID, j.DueAtSnapshot)
		}
	}

	for _, at := range []time.Time{dueT.Add(-1440 * time.Minute), dueT, moved.Add(-1440 * time.Minute), moved} {
		f.clock.Set(at)
		f.process(t)
	}
	if f.sink.count() != 2 {
		t.Fatalf("sends = %d, want 2", f.sink.count())
	}
	for _, call := range f.sink.calls {
		if !call.DueAt.Equal(moved) {
			t.Fatalf("reminder fired against %v", call.DueAt)
		}
	}
}

func TestDedupRecordMarksLeftoverJobSent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reminder.DefaultConfig(), dueT)
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)

	_, err := f.store.InsertSentIfAbsent(ctx, reminder.SentRecord{
		CardID: c.ID, UserID: ana.ID, ReminderType: reminder.TypeOverdue,
		DueAtSnapshot: dueT, SentAt: dueT,
	})
	must(t, err)
	_, err = f.store.Replan(ctx, c.ID, []reminder.Job{{
		CardID: c.ID, BoardID: 1, UserID: ana.ID, ReminderType: reminder.TypeOverdue,
		DueAtSnapshot: dueT, RunAt: dueT, Status: reminder.StatusPending, MaxAttempts: 5,
		CreatedAt: dueT, UpdatedAt: dueT,
	}})
	must(t, err)

	sum := f.process(t)
	if sum.Deduped != 1 || f.sink.count() != 0 {
		t.Fatalf("summary = %+v, sends = %d", sum, f.sink.count())
	}
	jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusSent)
}

func TestDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reminder.DefaultConfig(), dueT)
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)
	f.refresh(t, c.ID)

	for i := 0; i < 3; i++ {
		f.process(t)
	}

	// a second job for the same delivery, e.g. from a concurrent replan
	_, err := f.store.Replan(ctx, c.ID, []reminder.Job{{
		CardID: c.ID, BoardID: 1, UserID: ana.ID, ReminderType: reminder.TypeOverdue,
		DueAtSnapshot: dueT, RunAt: dueT, Status: reminder.StatusPending, MaxAttempts: 5,
		CreatedAt: dueT, UpdatedAt: dueT,
	}})
	must(t, err)
	for i := 0; i < 3; i++ {
		f.process(t)
	}

	overdue := 0
	for _, call := range f.sink.calls {
		if call.Type == reminder.TypeOverdue {
			overdue++
		}
	}
	if overdue != 1 {
		t.Fatalf("overdue sends = %d, want 1", overdue)
	}
}

func TestBackoffGrowthUntilFailed(t *testing.T) {
	ctx := context.Background()
	cfg := reminder.DefaultConfig()
	cfg.MaxAttempts = 4
	cfg.BaseBackoff = time.Minute
	cfg.DefaultReminderMinutes = 0

	f := newFixture(t, cfg, dueT)
	f.sink.fail = errSMTPDown
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)
	f.refresh(t, c.ID)

	now := dueT
	for attempt := 1; attempt < cfg.MaxAttempts; attempt++ {
		f.clock.Set(now)
		if sum := f.process(t); sum.Retried != 1 {
			t.Fatalf("attempt %d: summary = %+v", attempt, sum)
		}
		j := jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusPending)
		if j.Attempts != attempt {
			t.Fatalf("Attempts = %d, want %d", j.Attempts, attempt)
		}
		want := now.Add(time.Minute << (attempt - 1))
		if !j.RunAt.Equal(want) {
			t.Fatalf("attempt %d: RunAt = %v, want %v", attempt, j.RunAt, want)
		}
		if j.LastError == nil || !strings.Contains(*j.LastError, "connection refused") {
			t.Fatalf("LastError = %v", j.LastError)
		}
		now = j.RunAt
	}

	f.clock.Set(now)
	if sum := f.process(t); sum.Failed != 1 {
		t.Fatalf("final summary = %+v", sum)
	}
	j := jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusFailed)
	if j.Attempts != cfg.MaxAttempts {
		t.Fatalf("Attempts = %d, want %d", j.Attempts, cfg.MaxAttempts)
	}

	f.sink.fail = nil
	f.clock.Set(now.Add(24 * time.Hour))
	if sum := f.process(t); sum.Selected != 0 {
		t.Fatalf("failed job selected again: %+v", sum)
	}
	due, err := f.store.Due(ctx, now.Add(24*time.Hour), 10)
	must(t, err)
	if len(due) != 0 {
		t.Fatalf("Due = %d jobs", len(due))
	}
}

func TestDueSoonSkippedAfterDeadline(t *testing.T) {
	f := newFixture(t, reminder.DefaultConfig(), dueT.Add(-72*time.Hour))
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)
	f.refresh(t, c.ID)

	// scheduler was down across both run times
	f.clock.Set(dueT.Add(time.Minute))
	sum := f.process(t)
	if sum.Selected != 2 || sum.Skipped != 1 || sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if f.sink.count() != 1 || f.sink.calls[0].Type != reminder.TypeOverdue {
		t.Fatalf("sends = %+v", f.sink.calls)
	}

	skipped := jobOf(t, f.jobs(t, c.ID), reminder.TypeDueSoon, reminder.StatusSkipped)
	if skipped.LastError == nil || *skipped.LastError != "due date already passed" {
		t.Fatalf("skip reason = %v", skipped.LastError)
	}
}

func TestStaleJobsSkipped(t *testing.T) {
	cfg := reminder.DefaultConfig()
	cfg.DefaultReminderMinutes = 0

	cases := []struct {
		name   string
		mutate func(f *fixture, c board.Card, memberID uint64)
		reason string
	}{
		{"card deleted", func(f *fixture, c board.Card, _ uint64) {
			f.db.Delete(&board.Card{}, c.ID)
		}, "card deleted"},
		{"card completed", func(f *fixture, c board.Card, _ uint64) {
			f.db.Model(&board.Card{}).Where("id = ?", c.ID).Update("completed", true)
		}, "card completed"},
		{"due cleared", func(f *fixture, c board.Card, _ uint64) {
			f.db.Model(&board.Card{}).Where("id = ?", c.ID).Update("due_at", nil)
		}, "due date cleared"},
		{"member removed", func(f *fixture, c board.Card, memberID uint64) {
			f.db.Where("user_id = ?", memberID).Delete(&board.BoardMember{})
		}, "recipient no longer a board member"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, cfg, dueT)
			owner := f.user(t, "owner@example.com", "UTC")
			bo := f.user(t, "bo@example.com", "UTC")
			c := f.card(t, owner, tp(dueT), bo)
			f.refresh(t, c.ID)

			// mutation bypasses the planner, as if it raced the tick
			tc.mutate(f, c, bo.ID)

			sum := f.process(t)
			if sum.Skipped != 1 || f.sink.count() != 0 {
				t.Fatalf("summary = %+v, sends = %d", sum, f.sink.count())
			}
			j := jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusSkipped)
			if j.LastError == nil || *j.LastError != tc.reason {
				t.Fatalf("reason = %v, want %q", j.LastError, tc.reason)
			}
		})
	}
}

func TestSendTimeoutCountsAsFailure(t *testing.T) {
	cfg := reminder.DefaultConfig()
	cfg.DefaultReminderMinutes = 0
	cfg.SendTimeout = 20 * time.Millisecond

	gdb := newTestDB(t)
	store := reminder.NewGormStore(gdb)
	f := &fixture{db: gdb, store: store, cards: &reminder.GormCards{DB: gdb}, clock: &clock{t: dueT}}
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)

	planner := reminder.NewPlanner(store, f.cards, cfg)
	reminder.SetPlannerClock(planner, f.clock.Now)
	must(t, planner.Refresh(context.Background(), c.ID))

	hang := reminder.NotifierFunc(func(ctx context.Context, _ reminder.Reminder) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := reminder.NewDispatcher(store, f.cards, hang, cfg)
	reminder.SetDispatcherClock(d, f.clock.Now)

	sum, err := d.Process(context.Background())
	must(t, err)
	if sum.Retried != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	j := jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusPending)
	if j.Attempts != 1 || j.LastError == nil || !strings.Contains(*j.LastError, "deadline exceeded") {
		t.Fatalf("job = %+v", j)
	}
}

func TestFailureOfOneJobDoesNotAbortBatch(t *testing.T) {
	cfg := reminder.DefaultConfig()
	cfg.DefaultReminderMinutes = 0

	gdb := newTestDB(t)
	f := &fixture{db: gdb, store: reminder.NewGormStore(gdb), cards: &reminder.GormCards{DB: gdb}, clock: &clock{t: dueT}}
	ana := f.user(t, "ana@example.com", "UTC")
	bo := f.user(t, "bo@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana, bo)

	planner := reminder.NewPlanner(f.store, f.cards, cfg)
	reminder.SetPlannerClock(planner, f.clock.Now)
	must(t, planner.Refresh(context.Background(), c.ID))

	var sent []string
	sink := reminder.NotifierFunc(func(_ context.Context, r reminder.Reminder) error {
		if r.To == "ana@example.com" {
			return errSMTPDown
		}
		sent = append(sent, r.To)
		return nil
	})
	d := reminder.NewDispatcher(f.store, f.cards, sink, cfg)
	reminder.SetDispatcherClock(d, f.clock.Now)

	sum, err := d.Process(context.Background())
	must(t, err)
	if sum.Selected != 2 || sum.Retried != 1 || sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sent) != 1 || sent[0] != "bo@example.com" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestStaleRunningJobIsRequeued(t *testing.T) {
	ctx := context.Background()
	cfg := reminder.DefaultConfig()
	cfg.DefaultReminderMinutes = 0
	cfg.RunningLease = time.Minute

	f := newFixture(t, cfg, dueT)
	ana := f.user(t, "ana@example.com", "UTC")
	c := f.card(t, ana, tp(dueT), ana)
	f.refresh(t, c.ID)

	// a replica claimed the job and died
	j := jobOf(t, f.jobs(t, c.ID), reminder.TypeOverdue, reminder.StatusPending)
	ok, err := f.store.Claim(ctx, j.ID, dueT)
	must(t, err)
	if !ok {
		t.Fatal("claim failed")
	}
	if sum := f.process(t); sum.Selected != 0 {
		t.Fatalf("running job selected: %+v", sum)
	}

	f.clock.Set(dueT.Add(2 * time.Minute))
	if sum := f.process(t); sum.Sent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}
