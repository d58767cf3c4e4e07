package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// Service resolves sessions and maintains user profiles.
type Service struct {
	store    store.Store
	verifier TokenVerifier
	logger   *logrus.Logger
	now      func() time.Time
}

// New creates an auth Service.
func New(st store.Store, verifier TokenVerifier, logger *logrus.Logger) *Service {
	return &Service{store: st, verifier: verifier, logger: logger, now: time.Now}
}

// Authenticate resolves an Authorization header into a Session.
func (s *Service) Authenticate(ctx context.Context, authHeader string) (Session, error) {
	token := ExtractBearer(authHeader)
	if token == "" {
		return Session{}, ErrNotAuthenticated
	}
	sess, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return Session{}, fmt.Errorf("failed to verify token: %w", err)
	}
	return sess, nil
}

// EnsureProfile retrieves the stored profile for the session's user, creating
// it on first sign-in. If the identity provider reports changed display
// fields, the stored record is updated to match.
func (s *Service) EnsureProfile(ctx context.Context, sess Session) (*models.UserProfile, error) {
	if !sess.Valid() {
		return nil, ErrNotAuthenticated
	}

	var profile models.UserProfile
	err := s.store.Get(ctx, store.CollectionUsers, sess.UID, &profile)
	if err == store.ErrNotFound {
		profile = models.UserProfile{
			UID:         sess.UID,
			Email:       sess.Email,
			DisplayName: sess.DisplayName,
			PhotoURL:    sess.PhotoURL,
			Friends:     []string{},
			CreatedAt:   s.now(),
		}
		if err := s.store.Insert(ctx, store.CollectionUsers, sess.UID, profile); err != nil {
			return nil, fmt.Errorf("failed to create profile for %s: %w", sess.UID, err)
		}
		s.logger.Infof("Created new profile: %s (uid=%s)", profile.DisplayName, sess.UID)
		return &profile, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup profile %s: %w", sess.UID, err)
	}

	fields := map[string]any{}
	if sess.Email != "" && profile.Email != sess.Email {
		profile.Email = sess.Email
		fields["email"] = sess.Email
	}
	if sess.DisplayName != "" && profile.DisplayName != sess.DisplayName {
		profile.DisplayName = sess.DisplayName
		fields["displayName"] = sess.DisplayName
	}
	if sess.PhotoURL != "" && profile.PhotoURL != sess.PhotoURL {
		profile.PhotoURL = sess.PhotoURL
		fields["photoURL"] = sess.PhotoURL
	}
	if len(fields) > 0 {
		if err := s.store.Set(ctx, store.CollectionUsers, sess.UID, fields); err != nil {
			return nil, fmt.Errorf("failed to update profile %s: %w", sess.UID, err)
		}
		s.logger.Infof("Updated profile fields: %s (uid=%s)", profile.DisplayName, sess.UID)
	}

	return &profile, nil
}

// RegisterPushToken appends a device token to the profile's token set.
// Tokens are only ever accumulated here; nothing prunes them on sign-out or
// rotation.
func (s *Service) RegisterPushToken(ctx context.Context, sess Session, token string) error {
	if !sess.Valid() {
		return ErrNotAuthenticated
	}
	if token == "" {
		return fmt.Errorf("empty push token")
	}

	profile, err := s.EnsureProfile(ctx, sess)
	if err != nil {
		return err
	}
	if profile.HasToken(token) {
		return nil
	}

	tokens := append(profile.FCMTokens, token)
	if err := s.store.Set(ctx, store.CollectionUsers, sess.UID, map[string]any{"fcmTokens": tokens}); err != nil {
		return fmt.Errorf("failed to register push token for %s: %w", sess.UID, err)
	}
	s.logger.Infof("Registered push token (uid=%s, tokens=%d)", sess.UID, len(tokens))
	return nil
}

// UpdateLanguage stores the user's preferred language code.
func (s *Service) UpdateLanguage(ctx context.Context, sess Session, language string) error {
	if !sess.Valid() {
		return ErrNotAuthenticated
	}
	if _, err := s.EnsureProfile(ctx, sess); err != nil {
		return err
	}
	if err := s.store.Set(ctx, store.CollectionUsers, sess.UID, map[string]any{"language": language}); err != nil {
		return fmt.Errorf("failed to update language for %s: %w", sess.UID, err)
	}
	return nil
}
