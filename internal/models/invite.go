package models

import (
	"crypto/rand"
	"time"
)

// PlanInvite maps a human-shareable code to a plan. The document id is the
// code itself. Expiry and usage caps are enforced at lookup time only; stale
// invites are never garbage-collected.
type PlanInvite struct {
	ID            string     `json:"id" bson:"_id,omitempty"`
	PlanID        string     `json:"planId" bson:"planId"`
	PlanName      string     `json:"planName" bson:"planName"`
	CreatedBy     string     `json:"createdBy" bson:"createdBy"`
	CreatedByName string     `json:"createdByName" bson:"createdByName"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	MaxUses       *int       `json:"maxUses,omitempty" bson:"maxUses,omitempty"`
	UseCount      int        `json:"useCount" bson:"useCount"`
}

// Usable reports whether the invite can still be redeemed: not past its
// expiry and not at its usage cap.
func (inv *PlanInvite) Usable(now time.Time) bool {
	if inv.ExpiresAt != nil && now.After(*inv.ExpiresAt) {
		return false
	}
	if inv.MaxUses != nil && inv.UseCount >= *inv.MaxUses {
		return false
	}
	return true
}

// Share codes avoid vowels and ambiguous glyphs so they survive being read
// aloud or typed from a screenshot.
const inviteCodeAlphabet = "23456789bcdfghjkmnpqrstvwxz"

// NewInviteCode generates an 8-character shareable code.
func NewInviteCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("models: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf)
}
