package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"

	"taskboard/internal/reminder"
)

// Message is a rendered reminder.
type Message struct {
	Subject string
	Body    string
}

const dueLayout = "Mon, 02 Jan 2006 15:04 MST"

var bodyTmpl = template.Must(template.New("reminder").Parse(`Hi {{.Name}},

{{if .Overdue}}The card "{{.Card}}" is overdue. It was due {{.Due}} ({{.Relative}}).{{else}}The card "{{.Card}}" is due {{.Due}} ({{.Relative}}).{{end}}
{{if .Lead}}
You asked to be reminded {{.Lead}} before the deadline.
{{end}}
-- taskboard
`))

// Render formats r for the recipient's timezone. Unknown timezones fall
// back to UTC.
func Render(r reminder.Reminder, now time.Time) (Message, error) {
	loc := location(r.TimeZone)
	due := r.DueAt.In(loc)

	name := r.RecipientName
	if name == "" {
		name = r.To
	}

	data := struct {
		Name     string
		Card     string
		Due      string
		Relative string
		Lead     string
		Overdue  bool
	}{
		Name:     name,
		Card:     r.CardName,
		Due:      due.Format(dueLayout),
		Relative: humanize.RelTime(due, now.In(loc), "ago", "from now"),
		Overdue:  r.Type == reminder.TypeOverdue,
	}
	if r.Type == reminder.TypeDueSoon && r.ReminderMinutes != nil {
		data.Lead = leadTime(*r.ReminderMinutes)
	}

	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render reminder: %w", err)
	}

	subject := fmt.Sprintf("Reminder: %q is due soon", r.CardName)
	if data.Overdue {
		subject = fmt.Sprintf("Overdue: %q", r.CardName)
	}
	return Message{Subject: subject, Body: buf.String()}, nil
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func leadTime(minutes int) string {
	switch {
	case minutes%1440 == 0:
		return plural(minutes/1440, "day")
	case minutes%60 == 0:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
