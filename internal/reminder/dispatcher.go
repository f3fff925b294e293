package reminder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskboard/internal/observability"
)

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeDeduped outcome = "deduped"
	outcomeSkipped outcome = "skipped"
	outcomeRetried outcome = "retried"
	outcomeFailed  outcome = "failed"
	outcomeLost    outcome = "lost" // claimed elsewhere or replanned away
)

// Summary counts what one Process call did.
type Summary struct {
	Selected int
	Sent     int
	Deduped  int
	Skipped  int
	Retried  int
	Failed   int
	Lost     int
}

func (s *Summary) add(o outcome) {
	switch o {
	case outcomeSent:
		s.Sent++
	case outcomeDeduped:
		s.Deduped++
	case outcomeSkipped:
		s.Skipped++
	case outcomeRetried:
		s.Retried++
	case outcomeFailed:
		s.Failed++
	case outcomeLost:
		s.Lost++
	}
}

type Dispatcher struct {
	store    Store
	cards    CardReader
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewDispatcher(store Store, cards CardReader, notifier Notifier, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		cards:    cards,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Process runs one dispatcher tick over at most BatchSize due jobs. Job
// failures are recorded on the job rows; only a failure to select jobs is
// returned.
func (d *Dispatcher) Process(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() { observability.TickDuration.Observe(time.Since(start).Seconds()) }()

	now := d.now()
	if n, err := d.store.RequeueStale(ctx, now.Add(-d.cfg.RunningLease), now); err != nil {
		log.Warn().Err(err).Msg("requeue stale reminder jobs")
	} else if n > 0 {
		log.Info().Int("requeued", n).Msg("requeued stale reminder jobs")
	}

	jobs, err := d.store.Due(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("select due reminder jobs: %w", err)
	}

	sum := Summary{Selected: len(jobs)}
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		o := d.processJob(ctx, j)
		sum.add(o)
		observability.RemindersProcessed.WithLabelValues(string(j.ReminderType), string(o)).Inc()
	}
	return sum, nil
}

func (d *Dispatcher) processJob(ctx context.Context, job Job) outcome {
	l := log.With().
		Uint64("job_id", job.ID).
		Uint64("card_id", job.CardID).
		Uint64("user_id", job.UserID).
		Str("reminder_type", string(job.ReminderType)).
		Logger()

	claimed, err := d.store.Claim(ctx, job.ID, d.now())
	if err != nil {
		l.Error().Err(err).Msg("claim reminder job")
		return outcomeLost
	}
	if !claimed {
		return outcomeLost
	}

	o, err := d.deliver(ctx, job, l)
	if err != nil {
		return d.handleFailure(ctx, job, err, l)
	}
	return o
}

// deliver runs dedup, re-validation and send for a claimed job. Skip and
// dedup branches are terminal and return a nil error.
func (d *Dispatcher) deliver(ctx context.Context, job Job, l zerolog.Logger) (outcome, error) {
	key := job.Key()

	exists, err := d.store.SentExists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check sent record: %w", err)
	}
	if exists {
		l.Info().Msg("reminder already delivered")
		return outcomeDeduped, d.store.MarkSent(ctx, job.ID, d.now())
	}

	card, err := d.cards.Card(ctx, job.CardID)
	if errors.Is(err, ErrCardNotFound) {
		return d.skip(ctx, job, "card deleted", l)
	}
	if err != nil {
		return "", fmt.Errorf("load card: %w", err)
	}
	if reason := staleReason(card, job, d.now()); reason != "" {
		return d.skip(ctx, job, reason, l)
	}

	member, err := d.cards.Member(ctx, card.BoardID, job.UserID)
	if errors.Is(err, ErrMemberNotFound) {
		return d.skip(ctx, job, "recipient no longer a board member", l)
	}
	if err != nil {
		return "", fmt.Errorf("load member: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err = d.notifier.Send(sendCtx, Reminder{
		To:              member.Email,
		RecipientName:   member.Name,
		CardName:        card.Name,
		DueAt:           job.DueAtSnapshot,
		ReminderMinutes: job.ReminderMinutes,
		Type:            job.ReminderType,
		TimeZone:        member.Timezone,
	})
	observability.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("send reminder: %w", err)
	}

	now := d.now()
	if _, err := d.store.InsertSentIfAbsent(ctx, SentRecord{
		CardID:        key.CardID,
		UserID:        key.UserID,
		ReminderType:  key.ReminderType,
		DueAtSnapshot: key.DueAtSnapshot,
		SentAt:        now,
	}); err != nil {
		return "", fmt.Errorf("record sent reminder: %w", err)
	}
	if err := d.store.MarkSent(ctx, job.ID, now); err != nil {
		return "", fmt.Errorf("mark sent: %w", err)
	}

	l.Info().Str("to", member.Email).Msg("reminder sent")
	return outcomeSent, nil
}

// staleReason explains why a job no longer matches its card, or returns "".
func staleReason(card CardState, job Job, now time.Time) string {
	switch {
	case card.DueAt == nil:
		return "due date cleared"
	case card.Completed:
		return "card completed"
	case card.DueComplete:
		return "due date marked complete"
	case !normalize(*card.DueAt).Equal(normalize(job.DueAtSnapshot)):
		return "due date changed"
	case job.ReminderType == TypeDueSoon && !card.DueAt.After(now):
		return "due date already passed"
	}
	return ""
}

func (d *Dispatcher) skip(ctx context.Context, job Job, reason string, l zerolog.Logger) (outcome, error) {
	if err := d.store.MarkSkipped(ctx, job.ID, reason, d.now()); err != nil {
		return "", fmt.Errorf("mark skipped: %w", err)
	}
	l.Info().Str("reason", reason).Msg("reminder skipped")
	return outcomeSkipped, nil
}

// handleFailure re-reads the job so attempts reflect the stored row, then
// either schedules a retry or marks the job failed for good.
func (d *Dispatcher) handleFailure(ctx context.Context, job Job, cause error, l zerolog.Logger) outcome {
	current, err := d.store.Get(ctx, job.ID)
	if err != nil {
		l.Error().Err(err).AnErr("cause", cause).Msg("reload reminder job after failure")
		return outcomeLost
	}

	now := d.now()
	attempts := current.Attempts + 1
	msg := cause.Error()

	if attempts >= current.MaxAttempts {
		if err := d.store.MarkFailed(ctx, current.ID, attempts, msg, now); err != nil {
			l.Error().Err(err).Msg("mark reminder job failed")
		}
		l.Warn().Err(cause).Int("attempts", attempts).Msg("reminder job failed permanently")
		return outcomeFailed
	}

	next := now.Add(Backoff(d.cfg.BaseBackoff, attempts))
	if err := d.store.RetryLater(ctx, current.ID, attempts, next, msg, now); err != nil {
		l.Error().Err(err).Msg("schedule reminder retry")
	}
	l.Warn().Err(cause).Int("attempts", attempts).Time("run_at", next).Msg("reminder job retry scheduled")
	return outcomeRetried
}

const maxBackoff = time.Duration(math.MaxInt64)

// Backoff returns base * 2^(attempts-1), saturating instead of overflowing.
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift >= 62 || base > maxBackoff>>shift {
		return maxBackoff
	}
	return base << shift
}
