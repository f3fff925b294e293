package reminder

import "time"

// Config is passed to the planner, dispatcher and runner at construction.
type Config struct {
	// DefaultReminderMinutes is the due-soon offset for cards without their
	// own. Zero or less disables the default due-soon reminder.
	DefaultReminderMinutes int
	OverdueGraceMinutes    int

	PollInterval time.Duration
	BatchSize    int
	BaseBackoff  time.Duration
	MaxAttempts  int
	SendTimeout  time.Duration
	// RunningLease bounds how long a claimed job may stay running before the
	// next tick hands it back to pending.
	RunningLease time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultReminderMinutes: 1440,
		OverdueGraceMinutes:    0,
		PollInterval:           time.Minute,
		BatchSize:              50,
		BaseBackoff:            time.Minute,
		MaxAttempts:            5,
		SendTimeout:            30 * time.Second,
		RunningLease:           5 * time.Minute,
	}
}

// withDefaults fills operational knobs left at zero. The two minute offsets
// are taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.RunningLease <= 0 {
		c.RunningLease = d.RunningLease
	}
	if c.OverdueGraceMinutes < 0 {
		c.OverdueGraceMinutes = 0
	}
	return c
}
