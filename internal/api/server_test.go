package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/friends"
	"github.com/RobinAyzit/share-plans-done-together/internal/invite"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/notify"
	"github.com/RobinAyzit/share-plans-done-together/internal/plan"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
	"github.com/RobinAyzit/share-plans-done-together/internal/store/memory"
)

// tokenMap resolves fixed bearer tokens to sessions.
type tokenMap map[string]auth.Session

func (m tokenMap) Verify(ctx context.Context, idToken string) (auth.Session, error) {
	sess, ok := m[idToken]
	if !ok {
		return auth.Session{}, auth.ErrNotAuthenticated
	}
	return sess, nil
}

var testTokens = tokenMap{
	"tok-alice": {UID: "alice", Email: "alice@example.com", DisplayName: "Alice"},
	"tok-bob":   {UID: "bob", Email: "bob@example.com", DisplayName: "Bob"},
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	l := logrus.New()
	l.SetOutput(io.Discard)

	notifier := notify.NewDispatcher(st, nil, l)
	authSvc := auth.New(st, testTokens, l)
	planSvc := plan.New(st, notifier, l)
	inviteSvc := invite.New(st, l)
	friendsSvc := friends.New(st, notifier, l)

	return NewServer(authSvc, planSvc, inviteSvc, friendsSvc, st, l), st
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/plans", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/plans", "bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestPlanLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "Groceries"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (body=%s)", rec.Code, rec.Body.String())
	}
	var created models.Plan
	decodeBody(t, rec, &created)
	if created.ID == "" || created.OwnerID != "alice" {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items", "tok-alice", map[string]any{"text": "Buy milk"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: status = %d (body=%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var fetched models.Plan
	decodeBody(t, rec, &fetched)
	if len(fetched.Items) != 1 || fetched.Items[0].Text != "Buy milk" {
		t.Fatalf("fetched = %+v", fetched)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items/"+fetched.Items[0].ID+"/toggle", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d (body=%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/plans", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var plans []models.Plan
	decodeBody(t, rec, &plans)
	if len(plans) != 1 || !plans[0].Completed {
		t.Fatalf("plans = %+v, want one completed plan", plans)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/plans/"+created.ID, "tok-alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestPlanAccessControl(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "Private"})
	var created models.Plan
	decodeBody(t, rec, &created)

	// Bob is not a member.
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-bob", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member get: status = %d, want 403", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items", "tok-bob", map[string]any{"text": "spam"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member add: status = %d, want 403", rec.Code)
	}
}

func TestOverdueItemsFlagged(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "Chores"})
	var created models.Plan
	decodeBody(t, rec, &created)

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items", "tok-alice", map[string]any{"text": "Take out trash", "deadline": past})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: status = %d (body=%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	var fetched models.Plan
	decodeBody(t, rec, &fetched)
	if len(fetched.Items) != 1 || !fetched.Items[0].Overdue {
		t.Fatalf("items = %+v, want the past-deadline item flagged overdue", fetched.Items)
	}

	// Checking the item clears the flag.
	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items/"+fetched.Items[0].ID+"/toggle", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	// Decode into a fresh value: overdue is omitempty, and unmarshalling into
	// the reused plan would leave the stale true on the existing slice element.
	var refetched models.Plan
	decodeBody(t, rec, &refetched)
	if refetched.Items[0].Overdue {
		t.Errorf("checked item still flagged overdue: %+v", refetched.Items[0])
	}
}

func TestNonMemberGetDoesNotSweep(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "Plants"})
	var created models.Plan
	decodeBody(t, rec, &created)

	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items", "tok-alice", map[string]any{"text": "Water plants", "recurring": "daily"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: status = %d", rec.Code)
	}
	var fetched models.Plan
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	decodeBody(t, rec, &fetched)
	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/items/"+fetched.Items[0].ID+"/toggle", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d", rec.Code)
	}

	// Backdate the check past the daily threshold so a sweep would reset it.
	var raw models.Plan
	if err := st.Get(ctx, store.CollectionPlans, created.ID, &raw); err != nil {
		t.Fatalf("failed to read plan: %v", err)
	}
	old := time.Now().Add(-25 * time.Hour)
	raw.Items[0].CheckedAt = &old
	if err := st.Set(ctx, store.CollectionPlans, created.ID, map[string]any{"items": raw.Items}); err != nil {
		t.Fatalf("failed to backdate: %v", err)
	}

	// A non-member probing the plan id gets rejected without any write.
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-bob", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member get: status = %d, want 403", rec.Code)
	}
	if err := st.Get(ctx, store.CollectionPlans, created.ID, &raw); err != nil {
		t.Fatalf("failed to re-read plan: %v", err)
	}
	if !raw.Items[0].Checked {
		t.Fatal("non-member read must not trigger a recurrence reset")
	}

	// A member read still sweeps and serves the reopened item.
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("member get: status = %d", rec.Code)
	}
	decodeBody(t, rec, &fetched)
	if fetched.Items[0].Checked {
		t.Error("member read must serve the plan with the reset applied")
	}
}

func TestValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name: status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "x", "recurring": "fortnightly"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad recurrence: status = %d, want 400", rec.Code)
	}
}

func TestInviteJoinFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/plans", "tok-alice", map[string]any{"name": "Road trip"})
	var created models.Plan
	decodeBody(t, rec, &created)

	rec = doRequest(t, srv, http.MethodPost, "/api/plans/"+created.ID+"/invite", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create invite: status = %d (body=%s)", rec.Code, rec.Body.String())
	}
	var inv models.PlanInvite
	decodeBody(t, rec, &inv)
	if inv.PlanID != created.ID {
		t.Fatalf("invite = %+v", inv)
	}

	// The preview endpoint needs no token.
	rec = doRequest(t, srv, http.MethodGet, "/api/join/"+inv.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/join/"+inv.ID, "tok-bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: status = %d (body=%s)", rec.Code, rec.Body.String())
	}

	// Bob now sees the plan.
	rec = doRequest(t, srv, http.MethodGet, "/api/plans/"+created.ID, "tok-bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("member get after join: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/join/nosuchcode", "tok-bob", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("bad code: status = %d, want 410", rec.Code)
	}
}

func TestFriendRequestFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	// Profiles are created on first authenticated contact.
	doRequest(t, srv, http.MethodGet, "/api/me", "tok-alice", nil)
	doRequest(t, srv, http.MethodGet, "/api/me", "tok-bob", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/friends/requests", "tok-alice", map[string]any{"email": "bob@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status = %d (body=%s)", rec.Code, rec.Body.String())
	}
	var req models.FriendRequest
	decodeBody(t, rec, &req)

	// Duplicate in the same direction conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/friends/requests", "tok-alice", map[string]any{"uid": "bob"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/friends/requests/"+req.ID+"/accept", "tok-bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status = %d (body=%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/friends", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list friends: status = %d", rec.Code)
	}
	var friendsList []models.UserProfile
	decodeBody(t, rec, &friendsList)
	if len(friendsList) != 1 || friendsList[0].UID != "bob" {
		t.Fatalf("friends = %+v", friendsList)
	}
}

func TestRegisterPushToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/me/push-tokens", "tok-alice", map[string]any{"token": "device-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d (body=%s)", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/me/push-tokens", "tok-alice", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty token: status = %d, want 400", rec.Code)
	}
}

func TestUserSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	doRequest(t, srv, http.MethodGet, "/api/me", "tok-bob", nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/users/search?email=bob@example.com", "tok-alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d", rec.Code)
	}
	var p models.UserProfile
	decodeBody(t, rec, &p)
	if p.UID != "bob" {
		t.Fatalf("profile = %+v", p)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/users/search?email=ghost@example.com", "tok-alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user: status = %d, want 404", rec.Code)
	}
}
