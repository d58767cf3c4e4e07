package plan

import (
	"context"
	"testing"
	"time"

	"github.com/RobinAyzit/share-plans-done-together/internal/models"
)

func TestSweepResetsRecurringItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	p, err := svc.CreatePlan(ctx, alice, "Morning routine", "", models.RecurrenceNone)
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	if err := svc.AddItem(ctx, alice, p.ID, AddItemInput{Text: "Feed the cat", Recurring: models.RecurrenceDaily}); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	itemID := mustGetPlan(t, svc, p.ID).Items[0].ID
	if err := svc.ToggleItemChecked(ctx, alice, p.ID, itemID, "https://img.example/proof.jpg"); err != nil {
		t.Fatalf("failed to check: %v", err)
	}
	if cur := mustGetPlan(t, svc, p.ID); !cur.Completed {
		t.Fatal("plan should be completed before the sweep")
	}

	// 23 hours later nothing is due yet.
	svc.now = func() time.Time { return base.Add(23 * time.Hour) }
	changed, err := svc.SweepPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if changed {
		t.Fatal("sweep before the threshold must not write")
	}

	// Past 24 hours the item reopens and loses its attribution and photo.
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	changed, err = svc.SweepPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !changed {
		t.Fatal("sweep past the threshold must reset the item")
	}

	cur := mustGetPlan(t, svc, p.ID)
	it := cur.Item(itemID)
	if it.Checked || it.CheckedByUID != "" || it.CheckedAt != nil || it.ImageURL != "" {
		t.Errorf("item not fully reset: %+v", it)
	}
	if cur.Completed || cur.CompletedAt != nil {
		t.Errorf("plan must reopen with its item: completed=%v completedAt=%v", cur.Completed, cur.CompletedAt)
	}

	// A second sweep at the same instant finds nothing to do.
	changed, err = svc.SweepPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if changed {
		t.Error("second sweep must be a no-op")
	}
}

func TestSweepPlanRecurrenceSupersedesItems(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	p, err := svc.CreatePlan(ctx, alice, "Weekly shop", "", models.RecurrenceWeekly)
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	svc.AddItem(ctx, alice, p.ID, AddItemInput{Text: "Milk", Recurring: models.RecurrenceDaily})
	svc.AddItem(ctx, alice, p.ID, AddItemInput{Text: "Bread"})
	for _, it := range mustGetPlan(t, svc, p.ID).Items {
		if err := svc.ToggleItemChecked(ctx, alice, p.ID, it.ID, ""); err != nil {
			t.Fatalf("failed to check %q: %v", it.Text, err)
		}
	}
	if cur := mustGetPlan(t, svc, p.ID); !cur.Completed || cur.CompletedAt == nil {
		t.Fatal("plan should be completed")
	}

	// Six days in, the daily item alone would reopen, but the weekly plan
	// cadence has not elapsed. Item resets still fire.
	svc.now = func() time.Time { return base.Add(6 * 24 * time.Hour) }
	changed, err := svc.SweepPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !changed {
		t.Fatal("daily item should have reset")
	}
	cur := mustGetPlan(t, svc, p.ID)
	if len(cur.Items) != 2 {
		t.Fatalf("items lost in sweep: %+v", cur.Items)
	}
	if cur.Completed {
		t.Error("plan must reopen when an item resets")
	}

	// Re-complete, then cross the plan threshold: everything reopens at once.
	for _, it := range cur.Items {
		if !it.Checked {
			if err := svc.ToggleItemChecked(ctx, alice, p.ID, it.ID, ""); err != nil {
				t.Fatalf("failed to re-check: %v", err)
			}
		}
	}
	svc.now = func() time.Time { return base.Add(14 * 24 * time.Hour) }
	changed, err = svc.SweepPlan(ctx, p.ID)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !changed {
		t.Fatal("plan-level reset should have fired")
	}
	cur = mustGetPlan(t, svc, p.ID)
	for _, it := range cur.Items {
		if it.Checked {
			t.Errorf("item %q still checked after plan reset", it.Text)
		}
	}
	if cur.Completed || cur.CompletedAt != nil {
		t.Errorf("plan still completed after reset: %+v", cur)
	}
}

func TestSweepMissingPlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	changed, err := svc.SweepPlan(context.Background(), "no-such-plan")
	if err != nil {
		t.Fatalf("sweep of missing plan: %v", err)
	}
	if changed {
		t.Error("sweep of missing plan reported a change")
	}
}

func TestApplyRecurrenceIgnoresNonRecurring(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	p := &models.Plan{
		Completed:   true,
		CompletedAt: &old,
		Items: []models.Item{
			{ID: "a", Text: "static", Checked: true, CheckedAt: &old},
		},
	}

	itemResets, planReset := applyRecurrence(p, now)
	if itemResets != 0 || planReset {
		t.Fatalf("non-recurring plan swept: itemResets=%d planReset=%v", itemResets, planReset)
	}
	if !p.Items[0].Checked || !p.Completed {
		t.Error("plan without cadence must be left alone")
	}
}
