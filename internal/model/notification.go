package model

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityNormal:   1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityUrgent:   4,
	PriorityCritical: 5,
}

// Rank orders priorities from low (0) to critical (5). Unknown values rank as normal.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityNormal]
}

func (p Priority) AtLeast(other Priority) bool {
	return p.Rank() >= other.Rank()
}

type Notification struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	Priority    Priority  `json:"priority"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	RelatedID   string    `json:"relatedId,omitempty"`
	RelatedType string    `json:"relatedType,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// UnmarshalJSON accepts the field aliases used by older server builds
// (read, body, message).
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var aux struct {
		plain
		Read    *bool   `json:"read"`
		Body    *string `json:"body"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*n = Notification(aux.plain)
	if aux.Read != nil && *aux.Read {
		n.IsRead = true
	}
	if n.Content == "" {
		switch {
		case aux.Body != nil:
			n.Content = *aux.Body
		case aux.Message != nil:
			n.Content = *aux.Message
		}
	}
	if _, ok := priorityRank[n.Priority]; !ok {
		n.Priority = PriorityNormal
	}
	return nil
}

type ListParams struct {
	Page       int
	PageSize   int
	UnreadOnly bool
	Type       string
}

type Page struct {
	Items []Notification `json:"items"`
	Total int            `json:"total"`
}
