package models

import (
	"sort"
	"time"
)

// Recurrence controls how often a completed plan or checked item reopens.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// Interval returns the fixed-duration threshold for the cadence. The second
// return value is false for RecurrenceNone (and unknown values), meaning no
// auto-reset applies. Months and years are fixed approximations, not
// calendar-aware.
func (r Recurrence) Interval() (time.Duration, bool) {
	switch r {
	case RecurrenceDaily:
		return 24 * time.Hour, true
	case RecurrenceWeekly:
		return 7 * 24 * time.Hour, true
	case RecurrenceMonthly:
		return 30 * 24 * time.Hour, true
	case RecurrenceYearly:
		return 365 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Plan is a named checklist owned by one user and shared with a set of
// members. It is the unit of mutation: every item change rewrites the whole
// items array (last writer wins at the document level).
type Plan struct {
	ID           string            `json:"id" bson:"_id,omitempty"`
	Name         string            `json:"name" bson:"name"`
	OwnerID      string            `json:"ownerId" bson:"ownerId"`
	Members      map[string]Member `json:"members" bson:"members"`
	Items        []Item            `json:"items" bson:"items"`
	Created      time.Time         `json:"created" bson:"created"`
	Completed    bool              `json:"completed" bson:"completed"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	Recurring    Recurrence        `json:"recurring,omitempty" bson:"recurring,omitempty"`
	LastModified time.Time         `json:"lastModified" bson:"lastModified"`
	ImageURL     string            `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
}

// AllChecked reports whether the plan counts as completed: a non-empty item
// list with every item checked.
func (p *Plan) AllChecked() bool {
	if len(p.Items) == 0 {
		return false
	}
	for _, it := range p.Items {
		if !it.Checked {
			return false
		}
	}
	return true
}

// Item returns a pointer to the item with the given id, or nil if the plan
// has no such item.
func (p *Plan) Item(itemID string) *Item {
	for i := range p.Items {
		if p.Items[i].ID == itemID {
			return &p.Items[i]
		}
	}
	return nil
}

// IsMember reports whether uid belongs to the plan's member map.
func (p *Plan) IsMember(uid string) bool {
	_, ok := p.Members[uid]
	return ok
}

// MemberIDs returns the uids of all members except the given one. Used for
// notification fan-out where the acting user is skipped.
func (p *Plan) MemberIDs(except string) []string {
	ids := make([]string, 0, len(p.Members))
	for uid := range p.Members {
		if uid != except {
			ids = append(ids, uid)
		}
	}
	sort.Strings(ids)
	return ids
}

// SortedItems returns the items in presentation order: unchecked first,
// insertion order preserved within each group. Storage order is untouched.
func (p *Plan) SortedItems() []Item {
	out := make([]Item, len(p.Items))
	copy(out, p.Items)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Checked && out[j].Checked
	})
	return out
}
