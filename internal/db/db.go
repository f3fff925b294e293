package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/reminder"
)

// gormWriter sends gorm's slow-query and error lines to zerolog. gorm only
// writes at Warn and above with the config used here.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Connect opens the database. driver is "postgres" or "sqlite".
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "", "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.New(
			gormWriter{},
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1) // SQLite single writer
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&board.Board{},
		&board.BoardMember{},
		&board.List{},
		&board.Card{},
		&board.CardMember{},
		&reminder.Job{},
		&reminder.SentRecord{},
	); err != nil {
		return err
	}

	// Plain SQL that both postgres and sqlite accept.
	stmts := []string{
		// dispatcher candidate scan
		`create index if not exists idx_reminder_jobs_due on reminder_jobs(status, run_at);`,
		// replan delete
		`create index if not exists idx_reminder_jobs_card_status on reminder_jobs(card_id, status);`,
		// a racing replan cannot leave two pending rows for the same delivery
		`create unique index if not exists uq_reminder_jobs_pending
on reminder_jobs(card_id, user_id, reminder_type, due_at_snapshot)
where status = 'pending';`,
		`create index if not exists idx_lists_board on lists(board_id, position);`,
		`create index if not exists idx_cards_list on cards(list_id, position);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
