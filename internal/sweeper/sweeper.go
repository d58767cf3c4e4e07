// Package sweeper owns recurrence: it periodically walks every plan and
// reopens whatever the cadence thresholds say should reopen. It also
// subscribes to the store's change feed so a plan that was just touched is
// re-swept immediately instead of waiting for the next tick.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/plan"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// Sweeper runs the recurrence sweep loop.
type Sweeper struct {
	store    store.Store
	plans    *plan.Service
	logger   *logrus.Logger
	interval time.Duration
}

// New creates a Sweeper that ticks at the given interval.
func New(st store.Store, plans *plan.Service, logger *logrus.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: st, plans: plans, logger: logger, interval: interval}
}

// Run blocks until ctx is cancelled. One full sweep happens immediately at
// startup so restarts do not delay overdue resets by a whole interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Infof("Recurrence sweeper started (interval=%s)", s.interval)

	events, err := s.store.Watch(ctx, store.CollectionPlans, store.Filter{})
	if err != nil {
		s.logger.WithError(err).Warn("Change feed unavailable, sweeping on ticks only")
		events = nil
	}

	s.sweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Recurrence sweeper stopped")
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Deleted {
				continue
			}
			if _, err := s.plans.SweepPlan(ctx, ev.ID); err != nil {
				s.logger.WithError(err).Warnf("Sweep failed for plan %s", ev.ID)
			}
		}
	}
}

// sweepAll sweeps every plan in the store. Per-plan failures are logged and
// skipped so one bad document cannot stall the loop.
func (s *Sweeper) sweepAll(ctx context.Context) {
	var plans []models.Plan
	if err := s.store.Find(ctx, store.CollectionPlans, store.Filter{}, &plans); err != nil {
		s.logger.WithError(err).Error("Failed to list plans for sweep")
		return
	}

	resets := 0
	for i := range plans {
		changed, err := s.plans.SweepPlan(ctx, plans[i].ID)
		if err != nil {
			s.logger.WithError(err).Warnf("Sweep failed for plan %s", plans[i].ID)
			continue
		}
		if changed {
			resets++
		}
	}
	if resets > 0 {
		s.logger.Infof("Sweep pass reset %d plan(s) of %d", resets, len(plans))
	}
}
