package models

import "time"

// FriendRequestStatus is the lifecycle state of a friend request. Accepted
// and declined are terminal; a declined request is never reopened.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest is a directed request from one user to another. Sender
// display fields are denormalized so the recipient's inbox renders without
// profile lookups.
type FriendRequest struct {
	ID        string              `json:"id" bson:"_id,omitempty"`
	From      string              `json:"from" bson:"from"`
	FromEmail string              `json:"fromEmail" bson:"fromEmail"`
	FromName  string              `json:"fromName" bson:"fromName"`
	FromPhoto string              `json:"fromPhoto,omitempty" bson:"fromPhoto,omitempty"`
	To        string              `json:"to" bson:"to"`
	ToEmail   string              `json:"toEmail" bson:"toEmail"`
	Status    FriendRequestStatus `json:"status" bson:"status"`
	CreatedAt time.Time           `json:"createdAt" bson:"createdAt"`
}

// IsTerminal reports whether the request has reached a final state.
func (r *FriendRequest) IsTerminal() bool {
	return r.Status == FriendRequestAccepted || r.Status == FriendRequestDeclined
}
