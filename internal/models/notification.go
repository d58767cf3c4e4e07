package models

import "time"

// NotificationStatus tracks in-app delivery. Push delivery is fire-and-forget
// and not tracked; the stored document is the fallback inbox a client drains
// and marks sent.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
)

// Notification categories, used by clients to route taps.
const (
	NotifCategoryItemAdded     = "item_added"
	NotifCategoryItemCompleted = "item_completed"
	NotifCategoryPlanCompleted = "plan_completed"
	NotifCategoryReaction      = "reaction"
	NotifCategoryComment       = "comment"
	NotifCategoryFriendRequest = "friend_request"
)

// Notification is one per-recipient message written by the dispatcher.
type Notification struct {
	ID        string             `json:"id" bson:"_id,omitempty"`
	To        string             `json:"to" bson:"to"`
	Title     string             `json:"title" bson:"title"`
	Body      string             `json:"body" bson:"body"`
	Category  string             `json:"category" bson:"category"`
	PlanID    string             `json:"planId,omitempty" bson:"planId,omitempty"`
	Status    NotificationStatus `json:"status" bson:"status"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}
