package reminder

import (
	"context"
	"time"
)

// Reminder is everything a sink needs to render one notification.
type Reminder struct {
	To              string
	RecipientName   string
	CardName        string
	DueAt           time.Time
	ReminderMinutes *int
	Type            Type
	TimeZone        string
}

// Notifier delivers a reminder. A non-nil error means not delivered.
type Notifier interface {
	Send(ctx context.Context, r Reminder) error
}

type NotifierFunc func(ctx context.Context, r Reminder) error

func (f NotifierFunc) Send(ctx context.Context, r Reminder) error { return f(ctx, r) }
