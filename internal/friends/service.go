// Package friends maintains the symmetric friendship relation and the
// friend-request lifecycle. A request is terminal once accepted or declined;
// declined requests are never reopened.
package friends

import (
	"context"
	"errors"
	"fmt"
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
	// ErrAlreadyRequested rejects a duplicate pending request in the same
	// (from, to) direction. A simultaneous reverse-direction request is not
	// reconciled here.
	ErrAlreadyRequested = errors.New("friend request already sent")

	// ErrAlreadyFriends rejects a request between users who are already
	// friends.
	ErrAlreadyFriends = errors.New("already friends")

	// ErrSelfRequest rejects a request from a user to themselves.
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")
)

// Service implements friend requests and the friendship graph.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a friends Service.
func New(st store.Store, notifier notify.Notifier, logger *logrus.Logger) *Service {
	return &Service{store: st, notifier: notifier, logger: logger, now: time.Now, newID: uuid.NewString}
}

// SearchByEmail finds a profile by its (lowercased) email address.
func (s *Service) SearchByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var profiles []models.UserProfile
	filter := store.Filter{Eq: map[string]any{"email": strings.ToLower(strings.TrimSpace(email))}}
	if err := s.store.Find(ctx, store.CollectionUsers, filter, &profiles); err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	if len(profiles) == 0 {
		return nil, store.ErrNotFound
	}
	return &profiles[0], nil
}

// SendRequest creates a pending request from the session's user to the
// target uid.
func (s *Service) SendRequest(ctx context.Context, sess auth.Session, toUID string) (*models.FriendRequest, error) {
	if !sess.Valid() {
		return nil, auth.ErrNotAuthenticated
	}
	if toUID == sess.UID {
		return nil, ErrSelfRequest
	}

	var from models.UserProfile
	if err := s.store.Get(ctx, store.CollectionUsers, sess.UID, &from); err != nil {
		return nil, fmt.Errorf("failed to load sender profile: %w", err)
	}
	if from.HasFriend(toUID) {
		return nil, ErrAlreadyFriends
	}

	var to models.UserProfile
	if err := s.store.Get(ctx, store.CollectionUsers, toUID, &to); err != nil {
		return nil, err
	}

	var pending []models.FriendRequest
	filter := store.Filter{Eq: map[string]any{
		"from":   sess.UID,
		"to":     toUID,
		"status": string(models.FriendRequestPending),
	}}
	if err := s.store.Find(ctx, store.CollectionFriendRequests, filter, &pending); err != nil {
		return nil, fmt.Errorf("failed to check existing requests: %w", err)
	}
	if len(pending) > 0 {
		return nil, ErrAlreadyRequested
	}

	req := models.FriendRequest{
		ID:        s.newID(),
		From:      sess.UID,
		FromEmail: from.Email,
		FromName:  from.DisplayName,
		FromPhoto: from.PhotoURL,
		To:        toUID,
		ToEmail:   to.Email,
		Status:    models.FriendRequestPending,
		CreatedAt: s.now(),
	}
	if err := s.store.Insert(ctx, store.CollectionFriendRequests, req.ID, req); err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}

	s.notifier.Notify(ctx, toUID,
		"New friend request! 👋",
		fmt.Sprintf("%s wants to add you as a friend.", from.DisplayName),
		models.NotifCategoryFriendRequest, "")
	s.logger.Infof("Friend request sent (from=%s, to=%s)", sess.UID, toUID)
	return &req, nil
}

// Accept adds each user to the other's friends set and marks the request
// accepted. A missing request is treated as benign (already handled or
// withdrawn); a terminal request is a no-op.
func (s *Service) Accept(ctx context.Context, sess auth.Session, requestID string) error {
	var req models.FriendRequest
	err := s.store.Get(ctx, store.CollectionFriendRequests, requestID, &req)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load friend request %s: %w", requestID, err)
	}
	if req.IsTerminal() {
		return nil
	}
	if sess.UID != req.To {
		return auth.ErrNotAuthenticated
	}

	if err := s.addFriend(ctx, req.From, req.To); err != nil {
		return err
	}
	if err := s.addFriend(ctx, req.To, req.From); err != nil {
		return err
	}
	if err := s.store.Set(ctx, store.CollectionFriendRequests, requestID, map[string]any{
		"status": models.FriendRequestAccepted,
	}); err != nil {
		return fmt.Errorf("failed to mark request accepted: %w", err)
	}

	s.notifier.Notify(ctx, req.From,
		"Friend request accepted! 🎉",
		fmt.Sprintf("%s accepted your request.", sess.DisplayName),
		models.NotifCategoryFriendRequest, "")
	s.logger.Infof("Friend request accepted (from=%s, to=%s)", req.From, req.To)
	return nil
}

// Decline marks the request declined. Terminal and missing requests are
// benign no-ops.
func (s *Service) Decline(ctx context.Context, sess auth.Session, requestID string) error {
	var req models.FriendRequest
	err := s.store.Get(ctx, store.CollectionFriendRequests, requestID, &req)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load friend request %s: %w", requestID, err)
	}
	if req.IsTerminal() {
		return nil
	}
	if sess.UID != req.To {
		return auth.ErrNotAuthenticated
	}

	if err := s.store.Set(ctx, store.CollectionFriendRequests, requestID, map[string]any{
		"status": models.FriendRequestDeclined,
	}); err != nil {
		return fmt.Errorf("failed to mark request declined: %w", err)
	}
	return nil
}

// Remove deletes the friendship from both sides.
func (s *Service) Remove(ctx context.Context, sess auth.Session, friendUID string) error {
	if !sess.Valid() {
		return auth.ErrNotAuthenticated
	}
	if err := s.removeFriend(ctx, sess.UID, friendUID); err != nil {
		return err
	}
	return s.removeFriend(ctx, friendUID, sess.UID)
}

// Friends resolves the session user's friend uids into full profiles.
// Friends whose profiles have vanished are skipped.
func (s *Service) Friends(ctx context.Context, sess auth.Session) ([]models.UserProfile, error) {
	if !sess.Valid() {
		return nil, auth.ErrNotAuthenticated
	}

	var me models.UserProfile
	if err := s.store.Get(ctx, store.CollectionUsers, sess.UID, &me); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	profiles := make([]models.UserProfile, 0, len(me.Friends))
	for _, uid := range me.Friends {
		var p models.UserProfile
		err := s.store.Get(ctx, store.CollectionUsers, uid, &p)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load friend %s: %w", uid, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// PendingRequests returns the user's incoming and outgoing pending requests.
func (s *Service) PendingRequests(ctx context.Context, sess auth.Session) (incoming, outgoing []models.FriendRequest, err error) {
	if !sess.Valid() {
		return nil, nil, auth.ErrNotAuthenticated
	}

	inFilter := store.Filter{Eq: map[string]any{
		"to":     sess.UID,
		"status": string(models.FriendRequestPending),
	}}
	if err := s.store.Find(ctx, store.CollectionFriendRequests, inFilter, &incoming); err != nil {
		return nil, nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}

	outFilter := store.Filter{Eq: map[string]any{
		"from":   sess.UID,
		"status": string(models.FriendRequestPending),
	}}
	if err := s.store.Find(ctx, store.CollectionFriendRequests, outFilter, &outgoing); err != nil {
		return nil, nil, fmt.Errorf("failed to list outgoing requests: %w", err)
	}
	return incoming, outgoing, nil
}

func (s *Service) addFriend(ctx context.Context, uid, friendUID string) error {
	var p models.UserProfile
	if err := s.store.Get(ctx, store.CollectionUsers, uid, &p); err != nil {
		return fmt.Errorf("failed to load profile %s: %w", uid, err)
	}
	if p.HasFriend(friendUID) {
		return nil
	}
	friends := append(p.Friends, friendUID)
	if err := s.store.Set(ctx, store.CollectionUsers, uid, map[string]any{"friends": friends}); err != nil {
		return fmt.Errorf("failed to update friends of %s: %w", uid, err)
	}
	return nil
}

func (s *Service) removeFriend(ctx context.Context, uid, friendUID string) error {
	var p models.UserProfile
	err := s.store.Get(ctx, store.CollectionUsers, uid, &p)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load profile %s: %w", uid, err)
	}
	if !p.HasFriend(friendUID) {
		return nil
	}
	friends := make([]string, 0, len(p.Friends)-1)
	for _, id := range p.Friends {
		if id != friendUID {
			friends = append(friends, id)
		}
	}
	if err := s.store.Set(ctx, store.CollectionUsers, uid, map[string]any{"friends": friends}); err != nil {
		return fmt.Errorf("failed to update friends of %s: %w", uid, err)
	}
	return nil
}
