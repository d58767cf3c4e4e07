package plan

import (
	"context"
	"errors"
	"time"

	"github.com/RobinAyzit/share-plans-done-together/internal/metrics"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// SweepPlan applies recurrence resets to one plan: recurring items checked
// longer ago than their cadence threshold reopen, and a recurring plan that
// has been completed past its threshold reopens entirely. Nothing is written
// when no reset fires, which makes back-to-back sweeps idempotent.
func (s *Service) SweepPlan(ctx context.Context, planID string) (bool, error) {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	itemResets, planReset := applyRecurrence(p, s.now())
	if itemResets == 0 && !planReset {
		return false, nil
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"items":        p.Items,
		"completed":    p.Completed,
		"completedAt":  nil,
		"lastModified": s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if planReset {
		metrics.SweepResetsTotal.WithLabelValues("plan").Inc()
		s.logger.Infof("Recurrence reopened plan %q (id=%s)", p.Name, p.ID)
	}
	if itemResets > 0 {
		metrics.SweepResetsTotal.WithLabelValues("item").Add(float64(itemResets))
		s.logger.Infof("Recurrence reset %d item(s) (plan=%s)", itemResets, p.ID)
	}
	return true, nil
}

// applyRecurrence mutates the plan in place and reports what fired. A
// plan-level reset supersedes item-level resets: every item ends up
// unchecked either way.
func applyRecurrence(p *models.Plan, now time.Time) (itemResets int, planReset bool) {
	if interval, ok := p.Recurring.Interval(); ok && p.Completed && p.CompletedAt != nil {
		if now.Sub(*p.CompletedAt) > interval {
			for i := range p.Items {
				if p.Items[i].Checked {
					p.Items[i].ResetRecurring()
				}
			}
			p.Completed = false
			p.CompletedAt = nil
			return 0, true
		}
	}

	for i := range p.Items {
		item := &p.Items[i]
		interval, ok := item.Recurring.Interval()
		if !ok || !item.Checked || item.CheckedAt == nil {
			continue
		}
		if now.Sub(*item.CheckedAt) > interval {
			item.ResetRecurring()
			itemResets++
		}
	}
	if itemResets > 0 {
		p.Completed = false
		p.CompletedAt = nil
	}
	return itemResets, false
}
