package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"taskboard/internal/reminder"
)

// Log writes reminders to the application log instead of sending them.
type Log struct{}

func (Log) Send(_ context.Context, r reminder.Reminder) error {
	msg, err := Render(r, time.Now())
	if err != nil {
		return err
	}
	log.Info().
		Str("to", r.To).
		Str("reminder_type", string(r.Type)).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("[REMINDER]")
	return nil
}
