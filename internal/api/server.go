// Package api exposes the HTTP surface: plan CRUD, item mutations,
// reactions and comments, invites, friends, and the user's own profile.
// Every route except the health check and invite preview requires a
// Firebase bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RobinAyzit/share-plans-done-together/internal/auth"
	"github.com/RobinAyzit/share-plans-done-together/internal/friends"
	"github.com/RobinAyzit/share-plans-done-together/internal/invite"
	"github.com/RobinAyzit/share-plans-done-together/internal/metrics"
	"github.com/RobinAyzit/share-plans-done-together/internal/models"
	"github.com/RobinAyzit/share-plans-done-together/internal/plan"
	"github.com/RobinAyzit/share-plans-done-together/internal/store"
)

// Server provides the HTTP API.
type Server struct {
	auth    *auth.Service
	plans   *plan.Service
	invites *invite.Service
	friends *friends.Service
	store   store.Store
	logger  *logrus.Logger
	mux     *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(authSvc *auth.Service, plans *plan.Service, invites *invite.Service, friendsSvc *friends.Service, st store.Store, logger *logrus.Logger) *Server {
	s := &Server{
		auth:    authSvc,
		plans:   plans,
		invites: invites,
		friends: friendsSvc,
		store:   st,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server. It
// wraps the mux with per-route request counting.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so event streams keep working.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// Plans
	s.mux.HandleFunc("GET /api/plans", s.withSession(s.handleListPlans))
	s.mux.HandleFunc("POST /api/plans", s.withSession(s.handleCreatePlan))
	s.mux.HandleFunc("GET /api/plans/{id}", s.withSession(s.handleGetPlan))
	s.mux.HandleFunc("PATCH /api/plans/{id}", s.withSession(s.handleUpdatePlan))
	s.mux.HandleFunc("DELETE /api/plans/{id}", s.withSession(s.handleDeletePlan))
	s.mux.HandleFunc("DELETE /api/plans/{id}/members/{uid}", s.withSession(s.handleRemoveMember))
	s.mux.HandleFunc("GET /api/plans/{id}/events", s.withSession(s.handlePlanEvents))

	// Items
	s.mux.HandleFunc("POST /api/plans/{id}/items", s.withSession(s.handleAddItem))
	s.mux.HandleFunc("PATCH /api/plans/{id}/items/{itemId}", s.withSession(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/plans/{id}/items/{itemId}", s.withSession(s.handleDeleteItem))
	s.mux.HandleFunc("POST /api/plans/{id}/items/{itemId}/toggle", s.withSession(s.handleToggleItem))
	s.mux.HandleFunc("POST /api/plans/{id}/items/{itemId}/reactions", s.withSession(s.handleToggleReaction))
	s.mux.HandleFunc("POST /api/plans/{id}/items/{itemId}/comments", s.withSession(s.handleAddComment))
	s.mux.HandleFunc("POST /api/plans/{id}/items/{itemId}/comments/{commentId}/like", s.withSession(s.handleToggleCommentLike))

	// Invites. Resolving a code is public so the join page can preview the
	// plan before the visitor signs in; redeeming requires a session.
	s.mux.HandleFunc("POST /api/plans/{id}/invite", s.withSession(s.handleCreateInvite))
	s.mux.HandleFunc("GET /api/join/{code}", s.handleResolveInvite)
	s.mux.HandleFunc("POST /api/join/{code}", s.withSession(s.handleJoin))

	// Friends
	s.mux.HandleFunc("GET /api/friends", s.withSession(s.handleListFriends))
	s.mux.HandleFunc("DELETE /api/friends/{uid}", s.withSession(s.handleRemoveFriend))
	s.mux.HandleFunc("GET /api/friends/requests", s.withSession(s.handleListFriendRequests))
	s.mux.HandleFunc("POST /api/friends/requests", s.withSession(s.handleSendFriendRequest))
	s.mux.HandleFunc("POST /api/friends/requests/{id}/accept", s.withSession(s.handleAcceptFriendRequest))
	s.mux.HandleFunc("POST /api/friends/requests/{id}/decline", s.withSession(s.handleDeclineFriendRequest))
	s.mux.HandleFunc("GET /api/users/search", s.withSession(s.handleSearchUsers))

	// Profile
	s.mux.HandleFunc("GET /api/me", s.withSession(s.handleMe))
	s.mux.HandleFunc("PATCH /api/me", s.withSession(s.handleUpdateMe))
	s.mux.HandleFunc("POST /api/me/push-tokens", s.withSession(s.handleRegisterPushToken))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// ---------------------------------------------------------------------------
// Session middleware
// ---------------------------------------------------------------------------

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// withSession authenticates the request and hands the resolved session to
// the wrapped handler.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r, sess)
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service sentinel errors onto HTTP statuses.
// Anything unrecognized is logged and reported as a 500.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		s.respondError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, plan.ErrEmptyText),
		errors.Is(err, plan.ErrEmptyName),
		errors.Is(err, friends.ErrSelfRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, plan.ErrNotAllowed), errors.Is(err, invite.ErrNotMember):
		s.respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, friends.ErrAlreadyRequested), errors.Is(err, friends.ErrAlreadyFriends):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, invite.ErrInvalidOrExpired):
		s.respondError(w, http.StatusGone, err.Error())
	default:
		s.logger.WithError(err).Errorf("failed to %s", action)
		s.respondError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// parseRecurrence validates a cadence string from a request body. The empty
// string means "none".
func parseRecurrence(raw string) (models.Recurrence, error) {
	switch r := models.Recurrence(raw); r {
	case "", models.RecurrenceNone:
		return models.RecurrenceNone, nil
	case models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly, models.RecurrenceYearly:
		return r, nil
	default:
		return "", fmt.Errorf("unknown recurrence %q", raw)
	}
}

// presentPlan returns the plan with items in presentation order (unchecked
// first) and the overdue flag stamped on items past their deadline.
func presentPlan(p *models.Plan) *models.Plan {
	out := *p
	out.Items = p.SortedItems()
	now := time.Now()
	for i := range out.Items {
		out.Items[i].Overdue = out.Items[i].IsOverdue(now)
	}
	return &out
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Plans
// ---------------------------------------------------------------------------

type createPlanRequest struct {
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	Recurring string `json:"recurring"`
}

type updatePlanRequest struct {
	Name      *string `json:"name"`
	ImageURL  *string `json:"imageUrl"`
	Recurring *string `json:"recurring"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	plans, err := s.plans.ListPlans(r.Context(), sess.UID)
	if err != nil {
		s.respondServiceError(w, err, "list plans")
		return
	}

	out := make([]*models.Plan, len(plans))
	for i := range plans {
		out[i] = presentPlan(&plans[i])
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req createPlanRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	recurring, err := parseRecurrence(req.Recurring)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.plans.CreatePlan(r.Context(), sess, req.Name, req.ImageURL, recurring)
	if err != nil {
		s.respondServiceError(w, err, "create plan")
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	planID := r.PathValue("id")

	p, err := s.plans.GetPlan(r.Context(), planID)
	if err != nil {
		s.respondServiceError(w, err, "get plan")
		return
	}
	if !p.IsMember(sess.UID) {
		s.respondError(w, http.StatusForbidden, "not a member of this plan")
		return
	}

	// Apply any overdue recurrence resets before the plan is served, so a
	// member opening a stale plan sees it already reopened. The membership
	// check above gates this write.
	if swept, err := s.plans.SweepPlan(r.Context(), planID); err != nil {
		s.logger.WithError(err).Warnf("sweep on read failed for plan %s", planID)
	} else if swept {
		if p, err = s.plans.GetPlan(r.Context(), planID); err != nil {
			s.respondServiceError(w, err, "get plan")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, presentPlan(p))
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req updatePlanRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	patch := plan.PlanPatch{Name: req.Name, ImageURL: req.ImageURL}
	if req.Recurring != nil {
		recurring, err := parseRecurrence(*req.Recurring)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Recurring = &recurring
	}

	if err := s.plans.UpdatePlan(r.Context(), sess, r.PathValue("id"), patch); err != nil {
		s.respondServiceError(w, err, "update plan")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.plans.DeletePlan(r.Context(), sess, r.PathValue("id")); err != nil {
		s.respondServiceError(w, err, "delete plan")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.plans.RemoveMember(r.Context(), sess, r.PathValue("id"), r.PathValue("uid")); err != nil {
		s.respondServiceError(w, err, "remove member")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

// ---------------------------------------------------------------------------
// Plan event stream
// ---------------------------------------------------------------------------

// handlePlanEvents streams plan snapshots over server-sent events. The
// client receives the current state immediately and a fresh snapshot after
// every change until the plan is deleted or the connection closes.
func (s *Server) handlePlanEvents(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	planID := r.PathValue("id")

	p, err := s.plans.GetPlan(r.Context(), planID)
	if err != nil {
		s.respondServiceError(w, err, "get plan")
		return
	}
	if !p.IsMember(sess.UID) {
		s.respondError(w, http.StatusForbidden, "not a member of this plan")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := s.store.Watch(r.Context(), store.CollectionPlans, store.Filter{ID: planID})
	if err != nil {
		s.respondServiceError(w, err, "watch plan")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	s.writeSSE(w, flusher, "plan", presentPlan(p))

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Deleted {
				s.writeSSE(w, flusher, "deleted", map[string]string{"id": planID})
				return
			}
			p, err := s.plans.GetPlan(r.Context(), planID)
			if errors.Is(err, store.ErrNotFound) {
				s.writeSSE(w, flusher, "deleted", map[string]string{"id": planID})
				return
			}
			if err != nil {
				s.logger.WithError(err).Warnf("failed to refresh plan %s for event stream", planID)
				continue
			}
			s.writeSSE(w, flusher, "plan", presentPlan(p))
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode SSE payload")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	flusher.Flush()
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

type addItemRequest struct {
	Text      string `json:"text"`
	ImageURL  string `json:"imageUrl"`
	Deadline  string `json:"deadline"` // RFC 3339
	Recurring string `json:"recurring"`
}

type updateItemRequest struct {
	Text      *string `json:"text"`
	Checked   *bool   `json:"checked"`
	ImageURL  *string `json:"imageUrl"`
	Deadline  *string `json:"deadline"` // RFC 3339; empty string clears it
	Recurring *string `json:"recurring"`
}

type toggleItemRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req addItemRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	recurring, err := parseRecurrence(req.Recurring)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := plan.AddItemInput{Text: req.Text, ImageURL: req.ImageURL, Recurring: recurring}
	if req.Deadline != "" {
		t, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "deadline must be RFC 3339 format")
			return
		}
		input.Deadline = &t
	}

	if err := s.plans.AddItem(r.Context(), sess, r.PathValue("id"), input); err != nil {
		s.respondServiceError(w, err, "add item")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req updateItemRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	patch := plan.ItemPatch{Text: req.Text, Checked: req.Checked, ImageURL: req.ImageURL}
	if req.Deadline != nil {
		if *req.Deadline == "" {
			patch.ClearDeadline = true
		} else {
			t, err := time.Parse(time.RFC3339, *req.Deadline)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, "deadline must be RFC 3339 format")
				return
			}
			patch.Deadline = &t
		}
	}
	if req.Recurring != nil {
		recurring, err := parseRecurrence(*req.Recurring)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Recurring = &recurring
	}

	if err := s.plans.UpdateItem(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId"), patch); err != nil {
		s.respondServiceError(w, err, "update item")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.plans.DeleteItem(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId")); err != nil {
		s.respondServiceError(w, err, "delete item")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	// The body is optional; toggling without a photo is the common case.
	var req toggleItemRequest
	if r.Body != nil && r.ContentLength != 0 {
		if ok, msg := s.decodeJSON(r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	if err := s.plans.ToggleItemChecked(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId"), req.ImageURL); err != nil {
		s.respondServiceError(w, err, "toggle item")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

// ---------------------------------------------------------------------------
// Reactions & Comments
// ---------------------------------------------------------------------------

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleToggleReaction(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req reactionRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Emoji == "" {
		s.respondError(w, http.StatusBadRequest, "emoji is required")
		return
	}

	if err := s.plans.ToggleReaction(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId"), req.Emoji); err != nil {
		s.respondServiceError(w, err, "toggle reaction")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req commentRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.plans.AddComment(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId"), req.Text); err != nil {
		s.respondServiceError(w, err, "add comment")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleToggleCommentLike(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	err := s.plans.ToggleCommentLike(r.Context(), sess, r.PathValue("id"), r.PathValue("itemId"), r.PathValue("commentId"))
	if err != nil {
		s.respondServiceError(w, err, "toggle comment like")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

// ---------------------------------------------------------------------------
// Invites
// ---------------------------------------------------------------------------

type createInviteRequest struct {
	ExpiresAt string `json:"expiresAt"` // RFC 3339, optional
	MaxUses   *int   `json:"maxUses"`
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req createInviteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if ok, msg := s.decodeJSON(r, &req); !ok {
			s.respondError(w, http.StatusBadRequest, msg)
			return
		}
	}

	opts := invite.Options{MaxUses: req.MaxUses}
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "expiresAt must be RFC 3339 format")
			return
		}
		opts.ExpiresAt = &t
	}

	inv, err := s.invites.GetOrCreate(r.Context(), sess, r.PathValue("id"), opts)
	if err != nil {
		s.respondServiceError(w, err, "create invite")
		return
	}
	s.respondJSON(w, http.StatusOK, inv)
}

func (s *Server) handleResolveInvite(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invites.Resolve(r.Context(), r.PathValue("code"))
	if err != nil {
		s.respondServiceError(w, err, "resolve invite")
		return
	}
	s.respondJSON(w, http.StatusOK, inv)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	inv, err := s.invites.Join(r.Context(), sess, r.PathValue("code"))
	if err != nil {
		s.respondServiceError(w, err, "join plan")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"planId": inv.PlanID})
}

// ---------------------------------------------------------------------------
// Friends
// ---------------------------------------------------------------------------

type sendFriendRequestRequest struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	list, err := s.friends.Friends(r.Context(), sess)
	if err != nil {
		s.respondServiceError(w, err, "list friends")
		return
	}
	if list == nil {
		list = []models.UserProfile{}
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.friends.Remove(r.Context(), sess, r.PathValue("uid")); err != nil {
		s.respondServiceError(w, err, "remove friend")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListFriendRequests(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	incoming, outgoing, err := s.friends.PendingRequests(r.Context(), sess)
	if err != nil {
		s.respondServiceError(w, err, "list friend requests")
		return
	}
	if incoming == nil {
		incoming = []models.FriendRequest{}
	}
	if outgoing == nil {
		outgoing = []models.FriendRequest{}
	}
	s.respondJSON(w, http.StatusOK, map[string][]models.FriendRequest{
		"incoming": incoming,
		"outgoing": outgoing,
	})
}

func (s *Server) handleSendFriendRequest(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req sendFriendRequestRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	toUID := req.UID
	if toUID == "" {
		if req.Email == "" {
			s.respondError(w, http.StatusBadRequest, "uid or email is required")
			return
		}
		profile, err := s.friends.SearchByEmail(r.Context(), req.Email)
		if err != nil {
			s.respondServiceError(w, err, "find user")
			return
		}
		toUID = profile.UID
	}

	created, err := s.friends.SendRequest(r.Context(), sess, toUID)
	if err != nil {
		s.respondServiceError(w, err, "send friend request")
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.friends.Accept(r.Context(), sess, r.PathValue("id")); err != nil {
		s.respondServiceError(w, err, "accept friend request")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleDeclineFriendRequest(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.friends.Decline(r.Context(), sess, r.PathValue("id")); err != nil {
		s.respondServiceError(w, err, "decline friend request")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	email := r.URL.Query().Get("email")
	if email == "" {
		s.respondError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	profile, err := s.friends.SearchByEmail(r.Context(), email)
	if err != nil {
		s.respondServiceError(w, err, "search users")
		return
	}
	s.respondJSON(w, http.StatusOK, profile)
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

type updateMeRequest struct {
	Language string `json:"language"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	profile, err := s.auth.EnsureProfile(r.Context(), sess)
	if err != nil {
		s.respondServiceError(w, err, "load profile")
		return
	}
	s.respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req updateMeRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Language == "" {
		s.respondError(w, http.StatusBadRequest, "language is required")
		return
	}

	if err := s.auth.UpdateLanguage(r.Context(), sess, req.Language); err != nil {
		s.respondServiceError(w, err, "update profile")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req pushTokenRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.Token == "" {
		s.respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.auth.RegisterPushToken(r.Context(), sess, req.Token); err != nil {
		s.respondServiceError(w, err, "register push token")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}
