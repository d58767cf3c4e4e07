package friends

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
	"github.com/RobinAyzit/share-plans-done-together/internal/store/memory"
)

var (
	alice = auth.Session{UID: "alice", Email: "alice@example.com", DisplayName: "Alice"}
	bob   = auth.Session{UID: "bob", Email: "bob@example.com", DisplayName: "Bob"}
)

type sentNotification struct {
	To       string
	Category string
}

type notifierRecorder struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *notifierRecorder) Notify(ctx context.Context, to, title, body, category, planID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{To: to, Category: category})
}

func newTestService(t *testing.T) (*Service, *memory.Store, *notifierRecorder) {
	t.Helper()
	st := memory.New()
	rec := &notifierRecorder{}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(st, rec, l), st, rec
}

func seedProfile(t *testing.T, st *memory.Store, sess auth.Session) {
	t.Helper()
	p := models.UserProfile{
		UID:         sess.UID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		Friends:     []string{},
		CreatedAt:   time.Now(),
	}
	if err := st.Insert(context.Background(), store.CollectionUsers, p.UID, p); err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
}

func getProfile(t *testing.T, st *memory.Store, uid string) models.UserProfile {
	t.Helper()
	var p models.UserProfile
	if err := st.Get(context.Background(), store.CollectionUsers, uid, &p); err != nil {
		t.Fatalf("failed to load profile %s: %v", uid, err)
	}
	return p
}

func TestSendRequest(t *testing.T) {
	svc, st, rec := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, err := svc.SendRequest(ctx, alice, bob.UID)
	if err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	if req.From != "alice" || req.To != "bob" || req.Status != models.FriendRequestPending {
		t.Fatalf("request = %+v", req)
	}
	if req.FromName != "Alice" || req.FromEmail != "alice@example.com" {
		t.Errorf("sender fields not denormalized: %+v", req)
	}
	if len(rec.sent) != 1 || rec.sent[0].To != "bob" || rec.sent[0].Category != models.NotifCategoryFriendRequest {
		t.Errorf("notifications = %+v", rec.sent)
	}

	// Same direction again is rejected while the first is pending.
	if _, err := svc.SendRequest(ctx, alice, bob.UID); !errors.Is(err, ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
	// The reverse direction is a distinct request and goes through.
	if _, err := svc.SendRequest(ctx, bob, alice.UID); err != nil {
		t.Fatalf("reverse request failed: %v", err)
	}
}

func TestSendRequestToSelf(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedProfile(t, st, alice)

	if _, err := svc.SendRequest(context.Background(), alice, alice.UID); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected ErrSelfRequest, got %v", err)
	}
}

func TestAcceptMakesFriendshipSymmetric(t *testing.T) {
	svc, st, rec := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, _ := svc.SendRequest(ctx, alice, bob.UID)

	// Only the recipient may accept.
	if err := svc.Accept(ctx, alice, req.ID); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Fatalf("sender accept: expected ErrNotAuthenticated, got %v", err)
	}

	if err := svc.Accept(ctx, bob, req.ID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if p := getProfile(t, st, "alice"); !p.HasFriend("bob") {
		t.Error("alice is missing bob")
	}
	if p := getProfile(t, st, "bob"); !p.HasFriend("alice") {
		t.Error("bob is missing alice")
	}

	var cur models.FriendRequest
	if err := st.Get(ctx, store.CollectionFriendRequests, req.ID, &cur); err != nil {
		t.Fatalf("failed to load request: %v", err)
	}
	if cur.Status != models.FriendRequestAccepted {
		t.Errorf("status = %q, want accepted", cur.Status)
	}

	// The sender hears about it.
	last := rec.sent[len(rec.sent)-1]
	if last.To != "alice" || last.Category != models.NotifCategoryFriendRequest {
		t.Errorf("acceptance notification = %+v", last)
	}

	// Accepting twice is a no-op, not a duplicate friendship.
	if err := svc.Accept(ctx, bob, req.ID); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if p := getProfile(t, st, "alice"); len(p.Friends) != 1 {
		t.Errorf("friends duplicated: %v", p.Friends)
	}

	// Once friends, new requests in either direction are rejected.
	if _, err := svc.SendRequest(ctx, alice, bob.UID); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("expected ErrAlreadyFriends, got %v", err)
	}
}

func TestDeclineIsTerminal(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, _ := svc.SendRequest(ctx, alice, bob.UID)
	if err := svc.Decline(ctx, bob, req.ID); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	var cur models.FriendRequest
	st.Get(ctx, store.CollectionFriendRequests, req.ID, &cur)
	if cur.Status != models.FriendRequestDeclined {
		t.Fatalf("status = %q, want declined", cur.Status)
	}

	// Accept after decline does nothing.
	if err := svc.Accept(ctx, bob, req.ID); err != nil {
		t.Fatalf("accept after decline: %v", err)
	}
	if p := getProfile(t, st, "alice"); p.HasFriend("bob") {
		t.Error("declined request still produced a friendship")
	}
}

func TestAcceptMissingRequestIsBenign(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Accept(context.Background(), bob, "gone"); err != nil {
		t.Fatalf("accept of missing request: %v", err)
	}
}

func TestRemoveClearsBothSides(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, _ := svc.SendRequest(ctx, alice, bob.UID)
	svc.Accept(ctx, bob, req.ID)

	if err := svc.Remove(ctx, alice, bob.UID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if p := getProfile(t, st, "alice"); p.HasFriend("bob") {
		t.Error("alice still has bob")
	}
	if p := getProfile(t, st, "bob"); p.HasFriend("alice") {
		t.Error("bob still has alice")
	}

	// Removing again is a no-op.
	if err := svc.Remove(ctx, alice, bob.UID); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestFriendsResolvesProfiles(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, _ := svc.SendRequest(ctx, alice, bob.UID)
	svc.Accept(ctx, bob, req.ID)

	list, err := svc.Friends(ctx, alice)
	if err != nil {
		t.Fatalf("failed to list friends: %v", err)
	}
	if len(list) != 1 || list[0].UID != "bob" || list[0].DisplayName != "Bob" {
		t.Fatalf("friends = %+v", list)
	}

	// A vanished profile is skipped, not an error.
	if err := st.Delete(ctx, store.CollectionUsers, "bob"); err != nil {
		t.Fatalf("failed to delete bob: %v", err)
	}
	list, err = svc.Friends(ctx, alice)
	if err != nil {
		t.Fatalf("failed to list friends: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("friends = %+v, want empty", list)
	}
}

func TestPendingRequests(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	seedProfile(t, st, alice)
	seedProfile(t, st, bob)

	req, _ := svc.SendRequest(ctx, alice, bob.UID)

	in, out, err := svc.PendingRequests(ctx, bob)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(in) != 1 || in[0].ID != req.ID || len(out) != 0 {
		t.Fatalf("bob: incoming=%+v outgoing=%+v", in, out)
	}

	in, out, err = svc.PendingRequests(ctx, alice)
	if err != nil {
		t.Fatalf("failed to list requests: %v", err)
	}
	if len(out) != 1 || out[0].ID != req.ID || len(in) != 0 {
		t.Fatalf("alice: incoming=%+v outgoing=%+v", in, out)
	}

	// Terminal requests drop out of both lists.
	svc.Accept(ctx, bob, req.ID)
	in, out, _ = svc.PendingRequests(ctx, bob)
	if len(in) != 0 || len(out) != 0 {
		t.Errorf("accepted request still pending: incoming=%+v outgoing=%+v", in, out)
	}
}

func TestSearchByEmail(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedProfile(t, st, bob)

	p, err := svc.SearchByEmail(context.Background(), "  Bob@Example.COM ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if p.UID != "bob" {
		t.Fatalf("found %+v", p)
	}

	if _, err := svc.SearchByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
