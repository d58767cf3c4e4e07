package models

import (
	"crypto/rand"
	"time"
)

// Item is one checklist entry within a plan. Its id is a short random token
// unique within the owning plan only, assigned at creation.
//
// Invariant: Checked == false implies CheckedBy, CheckedByUID and CheckedAt
// are all absent. The reducer clears them in lockstep.
type Item struct {
	ID           string     `json:"id" bson:"id"`
	Text         string     `json:"text" bson:"text"`
	Checked      bool       `json:"checked" bson:"checked"`
	CheckedBy    string     `json:"checkedBy,omitempty" bson:"checkedBy,omitempty"`
	CheckedByUID string     `json:"checkedByUid,omitempty" bson:"checkedByUid,omitempty"`
	CheckedAt    *time.Time `json:"checkedAt,omitempty" bson:"checkedAt,omitempty"`
	ImageURL     string     `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty" bson:"deadline,omitempty"`
	Recurring    Recurrence `json:"recurring,omitempty" bson:"recurring,omitempty"`
	Reactions    []Reaction `json:"reactions,omitempty" bson:"reactions,omitempty"`
	Comments     []Comment  `json:"comments,omitempty" bson:"comments,omitempty"`

	// Overdue is computed at serve time from Deadline, never stored.
	Overdue bool `json:"overdue,omitempty" bson:"-"`
}

// Check marks the item done and stamps the attribution fields.
func (i *Item) Check(uid, name string, at time.Time) {
	i.Checked = true
	i.CheckedBy = name
	i.CheckedByUID = uid
	t := at
	i.CheckedAt = &t
}

// Uncheck clears the checked state and its attribution fields. The image is
// left untouched; only a recurrence reset clears it (see ResetRecurring).
func (i *Item) Uncheck() {
	i.Checked = false
	i.CheckedBy = ""
	i.CheckedByUID = ""
	i.CheckedAt = nil
}

// ResetRecurring returns the item to its unchecked state for a new cycle,
// clearing attribution and any completion photo.
func (i *Item) ResetRecurring() {
	i.Uncheck()
	i.ImageURL = ""
}

// HasReaction reports whether the exact (uid, emoji) pair is present.
func (i *Item) HasReaction(uid, emoji string) bool {
	for _, r := range i.Reactions {
		if r.UserID == uid && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// IsOverdue reports whether the item has a deadline in the past and is still
// unchecked.
func (i *Item) IsOverdue(now time.Time) bool {
	if i.Deadline == nil || i.Checked {
		return false
	}
	return now.After(*i.Deadline)
}

// Reaction is a single (user, emoji) pair attached to an item. A user may
// react with several distinct emojis but never duplicate the same one.
type Reaction struct {
	Emoji    string `json:"emoji" bson:"emoji"`
	UserID   string `json:"userId" bson:"userId"`
	UserName string `json:"userName" bson:"userName"`
}

const itemIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewItemID generates a 9-character base36 token. Tokens only need to be
// unique within a single plan's item list.
func NewItemID() string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		panic("models: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = itemIDAlphabet[int(b)%len(itemIDAlphabet)]
	}
	return string(buf)
}
