// Package scheduler runs the periodic jobs: the vote-deadline sweep and the
// nightly history cleanup.
package scheduler

import (
	"context"
	"time"

	log "github.com/inconshreveable/log15/v3"
	"github.com/robfig/cron/v3"
)

// DeadlineSweeper is implemented by the Telegram gateway.
type DeadlineSweeper interface {
	SweepDeadlines(now time.Time)
}

// HistoryTrimmer is implemented by the session manager.
type HistoryTrimmer interface {
	TrimHistory(ctx context.Context, retention time.Duration) error
}

// historyRetention keeps roughly a quarter of estimation history around for
// day summaries before the nightly job drops it.
const historyRetention = 90 * 24 * time.Hour

type Scheduler struct {
	cron *cron.Cron
	log  log.Logger
}

func New(sweeper DeadlineSweeper, trimmer HistoryTrimmer) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.New("module", "scheduler"),
	}

	if _, err := s.cron.AddFunc("* * * * * *", func() {
		sweeper.SweepDeadlines(time.Now())
	}); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc("0 0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := trimmer.TrimHistory(ctx, historyRetention); err != nil {
			s.log.Error("history cleanup failed", "err", err)
		} else {
			s.log.Info("history cleanup done")
		}
	}); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
