package quota

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/githubbzxs/codex-switch/pkg/logger"
)

// Scheduler periodically refreshes every account's quota in the background.
type Scheduler struct {
	refresher *Refresher
	cron      *cron.Cron
	log       *logger.Logger
}

// NewScheduler wires a cron expression to a background full refresh.
// The expression uses the standard five-field cron syntax.
func NewScheduler(spec string, refresher *Refresher, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		refresher: refresher,
		cron:      cron.New(),
		log:       log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid quota refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	snapshots, err := s.refresher.Refresh(context.Background(), "", false)
	if err != nil {
		if s.log != nil {
			s.log.Warn("scheduled quota refresh failed", "error", err.Error())
		}
		return
	}
	if s.log != nil {
		s.log.Info("scheduled quota refresh finished", "snapshots", len(snapshots))
	}
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for an in-flight run and stops the schedule.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
