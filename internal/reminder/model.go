package reminder

import "time"

type Type string

const (
	TypeDueSoon Type = "due_soon"
	TypeOverdue Type = "overdue"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Job is one planned notification for one recipient.
// Several rows may share (card, user, type, snapshot) across replans; delivery
// is deduplicated through SentRecord, not through job uniqueness.
type Job struct {
	ID      uint64 `gorm:"primaryKey"`
	CardID  uint64 `gorm:"index;not null"`
	BoardID uint64 `gorm:"index;not null"`
	UserID  uint64 `gorm:"index;not null"`

	ReminderType    Type      `gorm:"type:text;not null"`
	DueAtSnapshot   time.Time `gorm:"not null"`
	ReminderMinutes *int

	RunAt  time.Time `gorm:"index;not null"`
	Status Status    `gorm:"type:text;index;not null;default:'pending'"`

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:5"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Job) TableName() string { return "reminder_jobs" }

func (j Job) Key() Key {
	return Key{CardID: j.CardID, UserID: j.UserID, ReminderType: j.ReminderType, DueAtSnapshot: j.DueAtSnapshot}
}

// SentRecord proves a reminder was delivered. First writer wins; rows are
// never updated or deleted.
type SentRecord struct {
	ID            uint64    `gorm:"primaryKey"`
	CardID        uint64    `gorm:"not null;uniqueIndex:uq_reminder_sent_key,priority:1"`
	UserID        uint64    `gorm:"not null;uniqueIndex:uq_reminder_sent_key,priority:2"`
	ReminderType  Type      `gorm:"type:text;not null;uniqueIndex:uq_reminder_sent_key,priority:3"`
	DueAtSnapshot time.Time `gorm:"not null;uniqueIndex:uq_reminder_sent_key,priority:4"`
	SentAt        time.Time `gorm:"not null"`
}

func (SentRecord) TableName() string { return "email_reminders_sent" }

// Key identifies a deliverable reminder.
type Key struct {
	CardID        uint64
	UserID        uint64
	ReminderType  Type
	DueAtSnapshot time.Time
}

// normalize keeps stored instants comparable across drivers: UTC at
// microsecond precision, which is what Postgres timestamptz keeps.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
