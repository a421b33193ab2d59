package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Retention purges expired chat logs on a daily schedule.
type Retention struct {
	store  *Store
	keep   time.Duration
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRetention creates a retention job keeping chat logs for the given
// number of days. A non-positive value disables purging.
func NewRetention(store *Store, days int, logger zerolog.Logger) *Retention {
	return &Retention{
		store:  store,
		keep:   time.Duration(days) * 24 * time.Hour,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the daily purge. It returns immediately; the cron
// scheduler runs on its own goroutine.
func (r *Retention) Start() error {
	if r.keep <= 0 {
		r.logger.Debug().Msg("Chat log retention disabled")
		return nil
	}

	_, err := r.cron.AddFunc("0 3 * * *", r.purge)
	if err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}

	r.cron.Start()
	r.logger.Info().Dur("keep", r.keep).Msg("Chat log retention scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish.
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Retention) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.store.PurgeChatLogs(ctx, r.keep)
	if err != nil {
		r.logger.Error().Err(err).Msg("Chat log purge failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int64("deleted", n).Msg("Expired chat logs purged")
	}
}
