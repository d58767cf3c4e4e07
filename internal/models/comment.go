package models

import "time"

// Comment represents a comment on a plan item.
type Comment struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"userId" bson:"userId"`
	UserName  string    `json:"userName" bson:"userName"`
	UserPhoto string    `json:"userPhoto,omitempty" bson:"userPhoto,omitempty"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	Likes     []string  `json:"likes,omitempty" bson:"likes,omitempty"`
}

// LikedBy reports whether uid is in the comment's like set.
func (c *Comment) LikedBy(uid string) bool {
	for _, id := range c.Likes {
		if id == uid {
			return true
		}
	}
	return false
}
