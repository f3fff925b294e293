package reminder_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/db"
	"taskboard/internal/reminder"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Connect("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// recorder is a notifier that remembers every call and fails while fail is set.
type recorder struct {
	mu    sync.Mutex
	calls []reminder.Reminder
	fail  error
}

func (r *recorder) Send(_ context.Context, rem reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.calls = append(r.calls, rem)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var errSMTPDown = errors.New("smtp: connection refused")

type fixture struct {
	db         *gorm.DB
	store      *reminder.GormStore
	cards      *reminder.GormCards
	clock      *clock
	sink       *recorder
	cfg        reminder.Config
	planner    *reminder.Planner
	dispatcher *reminder.Dispatcher
}

func newFixture(t *testing.T, cfg reminder.Config, start time.Time) *fixture {
	t.Helper()
	gdb := newTestDB(t)
	f := &fixture{
		db:    gdb,
		store: reminder.NewGormStore(gdb),
		cards: &reminder.GormCards{DB: gdb},
		clock: &clock{t: start},
		sink:  &recorder{},
		cfg:   cfg,
	}
	f.planner = reminder.NewPlanner(f.store, f.cards, cfg)
	reminder.SetPlannerClock(f.planner, f.clock.Now)
	f.dispatcher = reminder.NewDispatcher(f.store, f.cards, f.sink, cfg)
	reminder.SetDispatcherClock(f.dispatcher, f.clock.Now)
	return f
}

func (f *fixture) user(t *testing.T, email, tz string) auth.User {
	t.Helper()
	u := auth.User{Email: email, Name: strings.Split(email, "@")[0], Timezone: tz, PasswordHash: "x"}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// card creates a board owned by owner with every assignee as a board
// member, and a card on it assigned to them in order.
func (f *fixture) card(t *testing.T, owner auth.User, dueAt *time.Time, assignees ...auth.User) board.Card {
	t.Helper()
	b := board.Board{Name: "Roadmap", OwnerID: owner.ID}
	must(t, f.db.Create(&b).Error)
	must(t, f.db.Create(&board.BoardMember{BoardID: b.ID, UserID: owner.ID, Role: board.RoleOwner}).Error)
	for _, a := range assignees {
		if a.ID == owner.ID {
			continue
		}
		must(t, f.db.Create(&board.BoardMember{BoardID: b.ID, UserID: a.ID, Role: board.RoleMember}).Error)
	}

	l := board.List{BoardID: b.ID, Name: "Todo"}
	must(t, f.db.Create(&l).Error)

	c := board.Card{ListID: l.ID, Name: "Ship release", DueAt: dueAt}
	must(t, f.db.Create(&c).Error)
	for _, a := range assignees {
		must(t, f.db.Create(&board.CardMember{CardID: c.ID, UserID: a.ID}).Error)
	}
	return c
}

func (f *fixture) refresh(t *testing.T, cardID uint64) {
	t.Helper()
	if err := f.planner.Refresh(context.Background(), cardID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func (f *fixture) process(t *testing.T) reminder.Summary {
	t.Helper()
	sum, err := f.dispatcher.Process(context.Background())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return sum
}

func (f *fixture) jobs(t *testing.T, cardID uint64) []reminder.Job {
	t.Helper()
	jobs, err := f.store.ListByCard(context.Background(), cardID)
	if err != nil {
		t.Fatalf("ListByCard: %v", err)
	}
	return jobs
}

func jobOf(t *testing.T, jobs []reminder.Job, typ reminder.Type, status reminder.Status) reminder.Job {
	t.Helper()
	for _, j := range jobs {
		if j.ReminderType == typ && j.Status == status {
			return j
		}
	}
	t.Fatalf("no %s job in status %s among %d jobs", typ, status, len(jobs))
	return reminder.Job{}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func tp(t time.Time) *time.Time { return &t }
