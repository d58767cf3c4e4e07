package models

import "time"

// MemberRole scopes what a plan member may do.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleEditor MemberRole = "editor"
	RoleViewer MemberRole = "viewer"
)

// Member is a user's role-scoped association with a plan. The same uid may
// belong to many plans; the member record denormalizes display fields so a
// plan renders without extra profile lookups.
type Member struct {
	UID         string     `json:"uid" bson:"uid"`
	Email       string     `json:"email" bson:"email"`
	DisplayName string     `json:"displayName" bson:"displayName"`
	PhotoURL    string     `json:"photoURL,omitempty" bson:"photoURL,omitempty"`
	Role        MemberRole `json:"role" bson:"role"`
	JoinedAt    time.Time  `json:"joinedAt" bson:"joinedAt"`
}
