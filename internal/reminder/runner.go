package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"taskboard/internal/lock"
)

const tickLockKey = "taskboard:reminders:tick"

// Processor is what the runner triggers; *Dispatcher satisfies it.
type Processor interface {
	Process(ctx context.Context) (Summary, error)
}

// Runner triggers the dispatcher on a fixed interval. Ticks never overlap:
// a tick still running when the next is due causes that next one to be skipped.
type Runner struct {
	proc     Processor
	interval time.Duration
	locker   lock.Locker
	cron     *cron.Cron
	first    sync.WaitGroup
}

func NewRunner(proc Processor, interval time.Duration, locker lock.Locker) *Runner {
	if locker == nil {
		locker = lock.Noop{}
	}
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	logger := cronLogger{}
	return &Runner{
		proc:     proc,
		interval: interval,
		locker:   locker,
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
	}
}

// Start schedules ticks and runs the first one right away. Ticks use ctx, so
// cancelling it aborts an in-flight tick between jobs.
func (r *Runner) Start(ctx context.Context) error {
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule reminder dispatcher: %w", err)
	}
	r.cron.Start()

	r.first.Add(1)
	go func() {
		defer r.first.Done()
		r.cron.Entry(id).WrappedJob.Run()
	}()

	log.Info().Dur("interval", r.interval).Msg("reminder runner started")
	return nil
}

// Stop prevents new ticks. The returned context is done once a running tick
// has finished.
func (r *Runner) Stop() context.Context {
	cronDone := r.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		r.first.Wait()
		cancel()
	}()
	return ctx
}

// Tick runs one guarded dispatcher pass.
func (r *Runner) Tick(ctx context.Context) {
	unlock, ok, err := r.locker.TryLock(ctx, tickLockKey, r.interval)
	if err != nil {
		log.Warn().Err(err).Msg("reminder tick lock")
		return
	}
	if !ok {
		log.Debug().Msg("reminder tick held by another replica")
		return
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("release reminder tick lock")
		}
	}()

	sum, err := r.proc.Process(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reminder tick failed")
		return
	}
	if sum.Selected == 0 {
		return
	}
	log.Info().
		Int("selected", sum.Selected).
		Int("sent", sum.Sent).
		Int("deduped", sum.Deduped).
		Int("skipped", sum.Skipped).
		Int("retried", sum.Retried).
		Int("failed", sum.Failed).
		Int("lost", sum.Lost).
		Msg("reminder tick")
}

// cronLogger adapts cron's logger to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
