// Package plan implements the state reducer for shared plans: every user
// intent is a read-current-state, compute-next-state, write-next-state pass
// over the plan document, with notification side effects computed from the
// transition.
//
// Mutations against a missing plan or item return nil: another member may
// have deleted the target concurrently, and that is not an error the user
// should see. Store failures always propagate.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/notify"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

var (
	// ErrEmptyText rejects empty or whitespace-only item and comment text
	// before any write happens.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrEmptyName rejects empty plan names.
	ErrEmptyName = errors.New("name must not be empty")

	// ErrNotAllowed is returned when the session's role does not permit the
	// requested operation.
	ErrNotAllowed = errors.New("not allowed")
)

// Service is the plan reducer. All methods take the acting session
// explicitly; there is no ambient current user.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a plan Service.
func New(st store.Store, notifier notify.Notifier, logger *logrus.Logger) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    models.NewItemID,
	}
}

// AddItemInput carries the optional attributes of a new item.
type AddItemInput struct {
	Text      string
	ImageURL  string
	Deadline  *time.Time
	Recurring models.Recurrence
}

// ItemPatch is a field-level patch for UpdateItem. Nil pointers leave the
// field untouched. ClearDeadline removes the deadline (a nil Deadline alone
// means "unchanged").
type ItemPatch struct {
	Text          *string
	Checked       *bool
	ImageURL      *string
	Deadline      *time.Time
	ClearDeadline bool
	Recurring     *models.Recurrence
}

// PlanPatch is a field-level patch for plan attributes.
type PlanPatch struct {
	Name      *string
	ImageURL  *string
	Recurring *models.Recurrence
}

// CreatePlan creates an empty plan owned by the session's user.
func (s *Service) CreatePlan(ctx context.Context, sess auth.Session, name, imageURL string, recurring models.Recurrence) (*models.Plan, error) {
	if !sess.Valid() {
		return nil, auth.ErrNotAuthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	now := s.now()
	p := models.Plan{
		ID:      uuid.NewString(),
		Name:    name,
		OwnerID: sess.UID,
		Members: map[string]models.Member{
			sess.UID: {
				UID:         sess.UID,
				Email:       sess.Email,
				DisplayName: sess.DisplayName,
				PhotoURL:    sess.PhotoURL,
				Role:        models.RoleOwner,
				JoinedAt:    now,
			},
		},
		Items:        []models.Item{},
		Created:      now,
		Completed:    false,
		Recurring:    recurring,
		LastModified: now,
		ImageURL:     imageURL,
	}
	if err := s.store.Insert(ctx, store.CollectionPlans, p.ID, p); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	s.logger.Infof("Created plan %q (id=%s, owner=%s)", p.Name, p.ID, sess.UID)
	return &p, nil
}

// GetPlan fetches a single plan. Unlike mutations, a missing plan surfaces
// as store.ErrNotFound for the caller to report.
func (s *Service) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	var p models.Plan
	if err := s.store.Get(ctx, store.CollectionPlans, planID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns every plan whose member map contains the uid, newest
// first.
func (s *Service) ListPlans(ctx context.Context, uid string) ([]models.Plan, error) {
	var plans []models.Plan
	filter := store.Filter{Exists: []string{"members." + uid}}
	if err := s.store.Find(ctx, store.CollectionPlans, filter, &plans); err != nil {
		return nil, fmt.Errorf("failed to list plans for %s: %w", uid, err)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Created.After(plans[j].Created)
	})
	return plans, nil
}

// UpdatePlan patches plan attributes (name, image, cadence).
func (s *Service) UpdatePlan(ctx context.Context, sess auth.Session, planID string, patch PlanPatch) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}

	fields := map[string]any{"lastModified": s.now()}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ErrEmptyName
		}
		fields["name"] = name
	}
	if patch.ImageURL != nil {
		fields["imageUrl"] = *patch.ImageURL
	}
	if patch.Recurring != nil {
		fields["recurring"] = *patch.Recurring
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, fields)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// DeletePlan removes a plan. The owner may always delete; other members only
// once the plan is completed.
func (s *Service) DeletePlan(ctx context.Context, sess auth.Session, planID string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if sess.UID != p.OwnerID && !(p.IsMember(sess.UID) && p.Completed) {
		return ErrNotAllowed
	}
	if err := s.store.Delete(ctx, store.CollectionPlans, planID); err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", planID, err)
	}
	s.logger.Infof("Deleted plan %q (id=%s, by=%s)", p.Name, planID, sess.UID)
	return nil
}

// RemoveMember removes a member from the plan. The owner may remove anyone
// but themselves; other members may only remove themselves (leave).
func (s *Service) RemoveMember(ctx context.Context, sess auth.Session, planID, uid string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if uid == p.OwnerID {
		return ErrNotAllowed
	}
	if sess.UID != p.OwnerID && sess.UID != uid {
		return ErrNotAllowed
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"members." + uid: nil,
		"lastModified":   s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// AddItem appends a new unchecked item. A plan is never complete right after
// gaining an item, so completed is forced false regardless of prior state.
func (s *Service) AddItem(ctx context.Context, sess auth.Session, planID string, input AddItemInput) error {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return ErrEmptyText
	}

	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}

	item := models.Item{
		ID:        s.newID(),
		Text:      text,
		Checked:   false,
		ImageURL:  input.ImageURL,
		Deadline:  input.Deadline,
		Recurring: input.Recurring,
	}
	items := append(p.Items, item)

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"items":        items,
		"completed":    false,
		"completedAt":  nil,
		"lastModified": s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.notifyMembers(ctx, p, sess.UID,
		fmt.Sprintf("%s: new item", p.Name),
		fmt.Sprintf("%s added %q", sess.DisplayName, text),
		models.NotifCategoryItemAdded)
	return nil
}

// ToggleItemChecked flips an item's checked state. Checking stamps the
// attribution fields and optionally attaches a photo; unchecking clears the
// attribution and leaves any photo in place.
func (s *Service) ToggleItemChecked(ctx context.Context, sess auth.Session, planID, itemID, imageURL string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}

	item := p.Item(itemID)
	if item == nil {
		return nil
	}

	now := s.now()
	if item.Checked {
		item.Uncheck()
	} else {
		item.Check(sess.UID, sess.DisplayName, now)
		if imageURL != "" {
			item.ImageURL = imageURL
		}
	}

	wasCompleted := p.Completed
	completed := p.AllChecked()
	fields := map[string]any{
		"items":        p.Items,
		"completed":    completed,
		"completedAt":  nil,
		"lastModified": now,
	}
	if completed {
		fields["completedAt"] = now
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, fields)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case completed && !wasCompleted:
		s.notifyMembers(ctx, p, sess.UID,
			fmt.Sprintf("%s completed! 🎉", p.Name),
			fmt.Sprintf("%s checked off the last item", sess.DisplayName),
			models.NotifCategoryPlanCompleted)
	case item.Checked:
		s.notifyMembers(ctx, p, sess.UID,
			fmt.Sprintf("%s: item done", p.Name),
			fmt.Sprintf("%s completed %q", sess.DisplayName, item.Text),
			models.NotifCategoryItemCompleted)
	}
	return nil
}

// DeleteItem removes an item and recomputes completion. Deleting the last
// unchecked item completes the plan: completion tracks "no outstanding
// unchecked items".
func (s *Service) DeleteItem(ctx context.Context, sess auth.Session, planID, itemID string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}
	if p.Item(itemID) == nil {
		return nil
	}

	items := make([]models.Item, 0, len(p.Items)-1)
	for _, it := range p.Items {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	p.Items = items

	err = s.store.Set(ctx, store.CollectionPlans, planID, s.completionFields(p))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// UpdateItem applies a field-level patch. Since checked state may be part of
// the patch, completion is recomputed like any other item mutation; a patch
// that checks an item attributes it to the acting session, and one that
// unchecks clears the attribution in lockstep.
func (s *Service) UpdateItem(ctx context.Context, sess auth.Session, planID, itemID string, patch ItemPatch) error {
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return ErrEmptyText
	}

	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}
	item := p.Item(itemID)
	if item == nil {
		return nil
	}

	if patch.Text != nil {
		item.Text = strings.TrimSpace(*patch.Text)
	}
	if patch.ImageURL != nil {
		item.ImageURL = *patch.ImageURL
	}
	if patch.Deadline != nil {
		item.Deadline = patch.Deadline
	} else if patch.ClearDeadline {
		item.Deadline = nil
	}
	if patch.Recurring != nil {
		item.Recurring = *patch.Recurring
	}
	if patch.Checked != nil && *patch.Checked != item.Checked {
		if *patch.Checked {
			item.Check(sess.UID, sess.DisplayName, s.now())
		} else {
			item.Uncheck()
		}
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, s.completionFields(p))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ToggleReaction adds or removes the exact (user, emoji) pair on an item. On
// add, the item's completer is notified (the plan owner when nobody has
// checked the item), unless that recipient is the actor.
func (s *Service) ToggleReaction(ctx context.Context, sess auth.Session, planID, itemID, emoji string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}
	item := p.Item(itemID)
	if item == nil {
		return nil
	}

	added := true
	if item.HasReaction(sess.UID, emoji) {
		added = false
		reactions := item.Reactions[:0]
		for _, r := range item.Reactions {
			if !(r.UserID == sess.UID && r.Emoji == emoji) {
				reactions = append(reactions, r)
			}
		}
		item.Reactions = reactions
	} else {
		item.Reactions = append(item.Reactions, models.Reaction{
			Emoji:    emoji,
			UserID:   sess.UID,
			UserName: sess.DisplayName,
		})
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"items":        p.Items,
		"lastModified": s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if added {
		recipient := item.CheckedByUID
		if recipient == "" {
			recipient = p.OwnerID
		}
		if recipient != sess.UID {
			s.notifier.Notify(ctx, recipient,
				fmt.Sprintf("%s reacted %s", sess.DisplayName, emoji),
				item.Text,
				models.NotifCategoryReaction, p.ID)
		}
	}
	return nil
}

// AddComment appends a comment to an item. All members except the author are
// notified; the item's completer is notified as well even when that means a
// duplicate.
func (s *Service) AddComment(ctx context.Context, sess auth.Session, planID, itemID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}
	item := p.Item(itemID)
	if item == nil {
		return nil
	}

	item.Comments = append(item.Comments, models.Comment{
		ID:        uuid.NewString(),
		UserID:    sess.UID,
		UserName:  sess.DisplayName,
		UserPhoto: sess.PhotoURL,
		Text:      text,
		CreatedAt: s.now(),
	})

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"items":        p.Items,
		"lastModified": s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s commented on %q", sess.DisplayName, item.Text)
	s.notifyMembers(ctx, p, sess.UID, title, text, models.NotifCategoryComment)
	if item.CheckedByUID != "" && item.CheckedByUID != sess.UID {
		s.notifier.Notify(ctx, item.CheckedByUID, title, text, models.NotifCategoryComment, p.ID)
	}
	return nil
}

// ToggleCommentLike toggles the session user's membership in a comment's
// like set.
func (s *Service) ToggleCommentLike(ctx context.Context, sess auth.Session, planID, itemID, commentID string) error {
	p, err := s.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsMember(sess.UID) {
		return ErrNotAllowed
	}
	item := p.Item(itemID)
	if item == nil {
		return nil
	}

	var comment *models.Comment
	for i := range item.Comments {
		if item.Comments[i].ID == commentID {
			comment = &item.Comments[i]
			break
		}
	}
	if comment == nil {
		return nil
	}

	if comment.LikedBy(sess.UID) {
		likes := comment.Likes[:0]
		for _, uid := range comment.Likes {
			if uid != sess.UID {
				likes = append(likes, uid)
			}
		}
		comment.Likes = likes
	} else {
		comment.Likes = append(comment.Likes, sess.UID)
	}

	err = s.store.Set(ctx, store.CollectionPlans, planID, map[string]any{
		"items":        p.Items,
		"lastModified": s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// completionFields builds the write for operations that changed the item set
// or checked states. The completed flag is recomputed in the same write so
// it is never left stale; completedAt carries over while the plan stays
// completed and is stamped on the transition to completed.
func (s *Service) completionFields(p *models.Plan) map[string]any {
	now := s.now()
	completed := p.AllChecked()
	fields := map[string]any{
		"items":        p.Items,
		"completed":    completed,
		"completedAt":  nil,
		"lastModified": now,
	}
	if completed {
		if p.Completed && p.CompletedAt != nil {
			fields["completedAt"] = *p.CompletedAt
		} else {
			fields["completedAt"] = now
		}
	}
	return fields
}

func (s *Service) notifyMembers(ctx context.Context, p *models.Plan, except, title, body, category string) {
	for _, uid := range p.MemberIDs(except) {
		s.notifier.Notify(ctx, uid, title, body, category, p.ID)
	}
}
