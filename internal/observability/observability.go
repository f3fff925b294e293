package observability

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	RemindersPlanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_jobs_planned_total",
		Help: "Candidate reminder jobs produced by the planner.",
	}, []string{"type"})

	RemindersInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminder_jobs_inserted_total",
		Help: "Reminder jobs written by the planner; candidates skipped as duplicates are not counted.",
	})

	RemindersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_jobs_processed_total",
		Help: "Reminder jobs handled by the dispatcher.",
	}, []string{"type", "outcome"}) // outcome: sent, deduped, skipped, retried, failed, lost

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminder_send_duration_seconds",
		Help:    "Time spent in the notification sink per reminder.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminder_tick_duration_seconds",
		Help:    "Duration of one dispatcher tick.",
		Buckets: prometheus.LinearBuckets(0.1, 0.5, 10),
	})
)

// SetupLogger configures the global zerolog logger.
func SetupLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
