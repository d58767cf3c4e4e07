package models

import "time"

// UserProfile is the stored profile for a signed-in user. The friends
// relation is symmetric and maintained on both sides. FCM tokens accumulate
// as devices register; stale tokens are not pruned.
type UserProfile struct {
	UID         string    `json:"uid" bson:"_id,omitempty"`
	Email       string    `json:"email" bson:"email"`
	DisplayName string    `json:"displayName" bson:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty" bson:"photoURL,omitempty"`
	Friends     []string  `json:"friends" bson:"friends"`
	Language    string    `json:"language,omitempty" bson:"language,omitempty"`
	FCMTokens   []string  `json:"fcmTokens,omitempty" bson:"fcmTokens,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// HasFriend reports whether uid is in the profile's friends set.
func (u *UserProfile) HasFriend(uid string) bool {
	for _, id := range u.Friends {
		if id == uid {
			return true
		}
	}
	return false
}

// HasToken reports whether the push token is already registered.
func (u *UserProfile) HasToken(token string) bool {
	for _, t := range u.FCMTokens {
		if t == token {
			return true
		}
	}
	return false
}
