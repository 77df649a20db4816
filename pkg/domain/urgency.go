package domain

import (
	"sort"
	"time"
)

// Urgency classifies a document against its due date.
type Urgency string

// Urgency classes, in display order.
const (
	UrgencyExpired Urgency = "expired"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyNormal  Urgency = "normal"
)

// Rank orders urgencies: expired first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyExpired:
		return 0
	case UrgencyUrgent:
		return 1
	default:
		return 2
	}
}

// ClassifyUrgency compares YYYY-MM-DD strings; no due date is normal.
func ClassifyUrgency(due DueDate, today string) Urgency {
	day, ok := due.Value()
	if !ok {
		return UrgencyNormal
	}
	switch {
	case today > day:
		return UrgencyExpired
	case today == day:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}

// InboxItem is the dashboard projection of a document owned by the viewer.
type InboxItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	From    string  `json:"from"`
	Time    string  `json:"time"`
	DueDate string  `json:"due_date,omitempty"`
	Urgency Urgency `json:"urgency"`
}

// OutboxItem is a document the viewer created that someone else now holds.
type OutboxItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CurrentOwner string `json:"current_owner"`
}

// InboxItemFor projects d for the inbox on the given day.
func InboxItemFor(d Document, today string) InboxItem {
	item := InboxItem{
		ID:      d.ID,
		Title:   d.Title,
		From:    d.CreatedBy,
		Time:    d.CreatedAt,
		Urgency: ClassifyUrgency(d.DueDate, today),
	}
	if ev, ok := d.LastEvent(); ok {
		if ev.From != "" {
			item.From = ev.From
		}
		if ev.Time != "" {
			item.Time = ev.Time
		}
	}
	if day, ok := d.DueDate.Value(); ok {
		item.DueDate = day
	}
	return item
}

// SortInbox orders by urgency rank, then newest event first.
func SortInbox(items []InboxItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Urgency.Rank(), items[j].Urgency.Rank()
		if ri != rj {
			return ri < rj
		}
		return eventTime(items[i].Time).After(eventTime(items[j].Time))
	})
}

func eventTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
