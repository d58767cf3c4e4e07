package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// TokenVerifier turns a raw ID token into a Session.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (Session, error)
}

// NewFirebaseApp initializes the Firebase SDK from a service account JSON
// blob. The returned app is shared between the verifier and the FCM sender.
func NewFirebaseApp(ctx context.Context, credentialsJSON []byte) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	return app, nil
}

// FirebaseVerifier validates Firebase ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier obtains an auth client from an initialized app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := app.Auth(initCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Session, error) {
	if idToken == "" {
		return Session{}, ErrNotAuthenticated
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	token, err := v.client.VerifyIDToken(verifyCtx, idToken)
	if err != nil {
		return Session{}, fmt.Errorf("invalid or expired ID token: %w", ErrNotAuthenticated)
	}
	if token.UID == "" {
		return Session{}, fmt.Errorf("token missing user id: %w", ErrNotAuthenticated)
	}

	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	picture, _ := token.Claims["picture"].(string)

	return Session{
		UID:         token.UID,
		Email:       strings.ToLower(email),
		DisplayName: name,
		PhotoURL:    picture,
	}, nil
}

// ExtractBearer strips an optional "Bearer " prefix from an Authorization
// header value.
func ExtractBearer(authHeader string) string {
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return authHeader
}
