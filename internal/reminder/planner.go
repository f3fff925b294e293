package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"taskboard/internal/observability"
)

// Planner keeps a card's pending reminder jobs in line with the card.
type Planner struct {
	store Store
	cards CardReader
	cfg   Config
	now   func() time.Time
}

func NewPlanner(store Store, cards CardReader, cfg Config) *Planner {
	return &Planner{store: store, cards: cards, cfg: cfg.withDefaults(), now: time.Now}
}

// Refresh replans all reminder jobs for one card. Call it after any change
// to the card's due date, reminder offset, completion flags or members.
// A card that no longer exists is a no-op.
func (p *Planner) Refresh(ctx context.Context, cardID uint64) error {
	card, err := p.cards.Card(ctx, cardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil
		}
		return fmt.Errorf("load card %d: %w", cardID, err)
	}

	var jobs []Job
	if !card.Closed() {
		recipients, err := Recipients(ctx, p.cards, card.ID, card.BoardID)
		if err != nil {
			// old jobs may target users who were just unassigned; drop them anyway
			if _, rerr := p.store.Replan(ctx, card.ID, nil); rerr != nil {
				log.Error().Err(rerr).Uint64("card_id", card.ID).Msg("clear reminder jobs")
			}
			return fmt.Errorf("resolve recipients for card %d: %w", cardID, err)
		}
		jobs = Plan(card, recipients, p.cfg, p.now())
	}

	// the delete runs even when nothing is planned, so stale jobs never survive
	inserted, err := p.store.Replan(ctx, card.ID, jobs)
	if err != nil {
		return fmt.Errorf("replan card %d: %w", cardID, err)
	}

	for _, j := range jobs {
		observability.RemindersPlanned.WithLabelValues(string(j.ReminderType)).Inc()
	}
	observability.RemindersInserted.Add(float64(inserted))
	log.Debug().
		Uint64("card_id", card.ID).
		Int("planned", len(jobs)).
		Int("inserted", inserted).
		Msg("reminders replanned")
	return nil
}

// Plan builds the candidate jobs for an open card: an optional due-soon job
// and an overdue job per recipient. Run times already in the past are kept.
func Plan(card CardState, recipients []Recipient, cfg Config, now time.Time) []Job {
	if card.Closed() || len(recipients) == 0 {
		return nil
	}

	dueAt := normalize(*card.DueAt)
	now = normalize(now)

	type candidate struct {
		typ     Type
		runAt   time.Time
		minutes *int
	}
	var candidates []candidate

	if minutes, ok := reminderOffset(card, cfg); ok {
		m := minutes
		candidates = append(candidates, candidate{
			typ:     TypeDueSoon,
			runAt:   dueAt.Add(-time.Duration(minutes) * time.Minute),
			minutes: &m,
		})
	}
	candidates = append(candidates, candidate{
		typ:   TypeOverdue,
		runAt: dueAt.Add(time.Duration(cfg.OverdueGraceMinutes) * time.Minute),
	})

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().MaxAttempts
	}

	jobs := make([]Job, 0, len(candidates)*len(recipients))
	for _, c := range candidates {
		for _, r := range recipients {
			jobs = append(jobs, Job{
				CardID:          card.ID,
				BoardID:         card.BoardID,
				UserID:          r.UserID,
				ReminderType:    c.typ,
				DueAtSnapshot:   dueAt,
				ReminderMinutes: c.minutes,
				RunAt:           c.runAt,
				Status:          StatusPending,
				Attempts:        0,
				MaxAttempts:     maxAttempts,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}
	return jobs
}

// reminderOffset picks the card's own offset, else the configured default.
// An explicit zero on the card turns the due-soon reminder off.
func reminderOffset(card CardState, cfg Config) (int, bool) {
	if card.ReminderMinutes != nil {
		return *card.ReminderMinutes, *card.ReminderMinutes > 0
	}
	return cfg.DefaultReminderMinutes, cfg.DefaultReminderMinutes > 0
}
