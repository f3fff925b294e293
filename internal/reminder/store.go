package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrJobNotFound = errors.New("reminder job not found")

// Store persists reminder jobs and delivery records.
type Store interface {
	// Replan deletes the card's pending/running/failed jobs and inserts jobs
	// in one transaction. Inserts are insert-if-absent; the count of rows
	// actually written is returned.
	Replan(ctx context.Context, cardID uint64, jobs []Job) (int, error)

	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// Claim moves a pending job to running. False means someone else got it
	// or it was replanned away.
	Claim(ctx context.Context, id uint64, now time.Time) (bool, error)
	Get(ctx context.Context, id uint64) (Job, error)

	MarkSent(ctx context.Context, id uint64, now time.Time) error
	MarkSkipped(ctx context.Context, id uint64, reason string, now time.Time) error
	MarkFailed(ctx context.Context, id uint64, attempts int, errMsg string, now time.Time) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string, now time.Time) error
	RequeueStale(ctx context.Context, olderThan, now time.Time) (int, error)

	SentExists(ctx context.Context, key Key) (bool, error)
	InsertSentIfAbsent(ctx context.Context, rec SentRecord) (bool, error)

	ListByCard(ctx context.Context, cardID uint64) ([]Job, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

var replannable = []string{string(StatusPending), string(StatusRunning), string(StatusFailed)}

func (s *GormStore) Replan(ctx context.Context, cardID uint64, jobs []Job) (int, error) {
	inserted := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("card_id = ? AND status IN ?", cardID, replannable).
			Delete(&Job{}).Error; err != nil {
			return fmt.Errorf("delete planned jobs: %w", err)
		}

		// one row per statement so a skipped duplicate never shifts returned ids
		for i := range jobs {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&jobs[i])
			if res.Error != nil {
				return fmt.Errorf("insert job: %w", res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *GormStore) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	var out []Job
	err := s.DB.WithContext(ctx).
		Where("status = ? AND run_at <= ? AND attempts < max_attempts", StatusPending, normalize(now)).
		Order("run_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *GormStore) Claim(ctx context.Context, id uint64, now time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":     StatusRunning,
			"updated_at": normalize(now),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Get(ctx context.Context, id uint64) (Job, error) {
	var j Job
	if err := s.DB.WithContext(ctx).First(&j, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (s *GormStore) MarkSent(ctx context.Context, id uint64, now time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":     StatusSent,
		"updated_at": normalize(now),
	})
}

func (s *GormStore) MarkSkipped(ctx context.Context, id uint64, reason string, now time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":     StatusSkipped,
		"last_error": reason,
		"updated_at": normalize(now),
	})
}

func (s *GormStore) MarkFailed(ctx context.Context, id uint64, attempts int, errMsg string, now time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":     StatusFailed,
		"attempts":   attempts,
		"last_error": errMsg,
		"updated_at": normalize(now),
	})
}

func (s *GormStore) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string, now time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":     StatusPending,
		"attempts":   attempts,
		"run_at":     normalize(runAt),
		"last_error": errMsg,
		"updated_at": normalize(now),
	})
}

// RequeueStale returns running jobs whose claimer went away to pending.
func (s *GormStore) RequeueStale(ctx context.Context, olderThan, now time.Time) (int, error) {
	res := s.DB.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND updated_at < ?", StatusRunning, normalize(olderThan)).
		Updates(map[string]any{
			"status":     StatusPending,
			"updated_at": normalize(now),
		})
	return int(res.RowsAffected), res.Error
}

func (s *GormStore) update(ctx context.Context, id uint64, fields map[string]any) error {
	return s.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormStore) SentExists(ctx context.Context, key Key) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&SentRecord{}).
		Where("card_id = ? AND user_id = ? AND reminder_type = ? AND due_at_snapshot = ?",
			key.CardID, key.UserID, key.ReminderType, normalize(key.DueAtSnapshot)).
		Count(&n).Error
	return n > 0, err
}

func (s *GormStore) InsertSentIfAbsent(ctx context.Context, rec SentRecord) (bool, error) {
	rec.DueAtSnapshot = normalize(rec.DueAtSnapshot)
	rec.SentAt = normalize(rec.SentAt)
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListByCard(ctx context.Context, cardID uint64) ([]Job, error) {
	var out []Job
	err := s.DB.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *GormStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		N      int64
	}
	if err := s.DB.WithContext(ctx).Model(&Job{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
