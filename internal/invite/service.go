// Package invite turns shareable codes into plan memberships. Invite
// creation is idempotent per plan, and expiry/usage caps are enforced at
// lookup time only.
package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

var (
	// ErrInvalidOrExpired covers every unusable-code case: unknown code,
	// past expiry, or exhausted usage cap. Callers cannot distinguish them,
	// deliberately.
	ErrInvalidOrExpired = errors.New("invite is invalid or expired")

	// ErrNotMember is returned when a non-member tries to share a plan.
	ErrNotMember = errors.New("only members can share a plan")
)

// Options are the caller-supplied invite limits. The default policy is
// unlimited.
type Options struct {
	ExpiresAt *time.Time
	MaxUses   *int
}

// Service implements the invite/membership gate.
type Service struct {
	store   store.Store
	logger  *logrus.Logger
	now     func() time.Time
	newCode func() string
}

// New creates an invite Service.
func New(st store.Store, logger *logrus.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now, newCode: models.NewInviteCode}
}

// GetOrCreate returns the plan's existing usable invite, or creates one.
// Calling it twice for the same plan yields the same code.
func (s *Service) GetOrCreate(ctx context.Context, sess auth.Session, planID string, opts Options) (*models.PlanInvite, error) {
	if !sess.Valid() {
		return nil, auth.ErrNotAuthenticated
	}

	var p models.Plan
	if err := s.store.Get(ctx, store.CollectionPlans, planID, &p); err != nil {
		return nil, err
	}
	if !p.IsMember(sess.UID) {
		return nil, ErrNotMember
	}

	var existing []models.PlanInvite
	filter := store.Filter{Eq: map[string]any{"planId": planID}}
	if err := s.store.Find(ctx, store.CollectionInvites, filter, &existing); err != nil {
		return nil, fmt.Errorf("failed to look up invites for plan %s: %w", planID, err)
	}
	now := s.now()
	for i := range existing {
		if existing[i].Usable(now) {
			return &existing[i], nil
		}
	}

	inv := models.PlanInvite{
		ID:            s.newCode(),
		PlanID:        planID,
		PlanName:      p.Name,
		CreatedBy:     sess.UID,
		CreatedByName: sess.DisplayName,
		CreatedAt:     now,
		ExpiresAt:     opts.ExpiresAt,
		MaxUses:       opts.MaxUses,
		UseCount:      0,
	}
	if err := s.store.Insert(ctx, store.CollectionInvites, inv.ID, inv); err != nil {
		return nil, fmt.Errorf("failed to create invite for plan %s: %w", planID, err)
	}
	s.logger.Infof("Created invite %s for plan %q (by=%s)", inv.ID, p.Name, sess.UID)
	return &inv, nil
}

// Resolve maps a code to its invite, or fails with ErrInvalidOrExpired.
func (s *Service) Resolve(ctx context.Context, code string) (*models.PlanInvite, error) {
	var inv models.PlanInvite
	err := s.store.Get(ctx, store.CollectionInvites, code, &inv)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite %s: %w", code, err)
	}
	if !inv.Usable(s.now()) {
		return nil, ErrInvalidOrExpired
	}
	return &inv, nil
}

// Join redeems a code: the session's user is granted editor membership in
// the plan and the invite's use count is incremented. Re-joining overwrites
// the existing member record rather than erroring; the plan owner's record
// is never downgraded.
func (s *Service) Join(ctx context.Context, sess auth.Session, code string) (*models.PlanInvite, error) {
	if !sess.Valid() {
		return nil, auth.ErrNotAuthenticated
	}

	inv, err := s.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	var p models.Plan
	err = s.store.Get(ctx, store.CollectionPlans, inv.PlanID, &p)
	if errors.Is(err, store.ErrNotFound) {
		// The plan was deleted out from under its invite.
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", inv.PlanID, err)
	}

	if sess.UID != p.OwnerID {
		member := models.Member{
			UID:         sess.UID,
			Email:       sess.Email,
			DisplayName: sess.DisplayName,
			PhotoURL:    sess.PhotoURL,
			Role:        models.RoleEditor,
			JoinedAt:    s.now(),
		}
		err = s.store.Set(ctx, store.CollectionPlans, inv.PlanID, map[string]any{
			"members." + sess.UID: member,
			"lastModified":        s.now(),
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidOrExpired
		}
		if err != nil {
			return nil, fmt.Errorf("failed to grant membership in plan %s: %w", inv.PlanID, err)
		}
	}

	s.incrementUseCount(ctx, code)
	s.logger.Infof("User %s joined plan %q via invite %s", sess.UID, inv.PlanName, code)
	return inv, nil
}

// incrementUseCount applies the at-least-once use counter. The membership
// grant has already happened, so the increment is retried rather than
// dropped; duplicate increments from concurrent joins are acceptable since
// usage counting need not be exact.
func (s *Service) incrementUseCount(ctx context.Context, code string) {
	var errs *multierror.Error
	for attempt := 0; attempt < 3; attempt++ {
		var cur models.PlanInvite
		if err := s.store.Get(ctx, store.CollectionInvites, code, &cur); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := s.store.Set(ctx, store.CollectionInvites, code, map[string]any{
			"useCount": cur.UseCount + 1,
		}); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		return
	}
	s.logger.WithError(errs.ErrorOrNil()).Errorf("failed to count use of invite %s after retries", code)
}
