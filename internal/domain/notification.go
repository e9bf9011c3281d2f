package domain

import (
	"errors"
	"strings"
	"time"

	"notifyd/internal/model"
)

const (
	NotificationTypeTaskAssigned   = "task_assigned"
	NotificationTypeTaskUpdate     = "task_update"
	NotificationTypeMention        = "mention"
	NotificationTypeDocumentUpdate = "document_update"
	NotificationTypeChangeUpdate   = "change_update"
	NotificationTypeComment        = "comment"
	NotificationTypeSystem         = "system"
	NotificationTypeTestCaseUpdate = "test_case_update"
)

// InteractionThreshold is the lowest priority whose desktop notification
// stays on screen until dismissed.
const InteractionThreshold = model.PriorityUrgent

var (
	ErrInvalidNotificationType = errors.New("invalid notification type")
	ErrNotFound                = errors.New("notification not found")
	ErrNotConnected            = errors.New("not connected")
	ErrPermissionDenied        = errors.New("desktop notification permission denied")
)

func IsValidNotificationType(value string) bool {
	switch value {
	case NotificationTypeTaskAssigned,
		NotificationTypeTaskUpdate,
		NotificationTypeMention,
		NotificationTypeDocumentUpdate,
		NotificationTypeChangeUpdate,
		NotificationTypeComment,
		NotificationTypeSystem,
		NotificationTypeTestCaseUpdate:
		return true
	default:
		return false
	}
}

func RequiresInteraction(n model.Notification) bool {
	return n.Priority.AtLeast(InteractionThreshold)
}

var routePrefixes = map[string]string{
	"task":      "/tasks/",
	"document":  "/documents/",
	"change":    "/changes/",
	"test_case": "/test-cases/",
	"project":   "/projects/",
	"dashboard": "/analytics/dashboards/",
}

// ResolveLink returns the route a notification navigates to. An explicit link
// wins; otherwise relatedType/relatedId are mapped. Empty means no target.
func ResolveLink(n model.Notification) string {
	if n.Link != "" {
		return n.Link
	}
	if n.RelatedID == "" {
		return ""
	}
	prefix, ok := routePrefixes[strings.ToLower(n.RelatedType)]
	if !ok {
		return ""
	}
	return prefix + n.RelatedID
}

const (
	GroupToday     = "today"
	GroupYesterday = "yesterday"
	GroupEarlier   = "earlier"
)

type Group struct {
	Name  string               `json:"name"`
	Items []model.Notification `json:"items"`
}

// GroupByDay buckets notifications relative to now in now's location, keeping
// the input order inside each bucket. Empty buckets are omitted.
func GroupByDay(items []model.Notification, now time.Time) []Group {
	y, m, d := now.Date()
	startToday := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	startYesterday := startToday.AddDate(0, 0, -1)

	buckets := map[string][]model.Notification{}
	for _, n := range items {
		created := n.CreatedAt.In(now.Location())
		switch {
		case !created.Before(startToday):
			buckets[GroupToday] = append(buckets[GroupToday], n)
		case !created.Before(startYesterday):
			buckets[GroupYesterday] = append(buckets[GroupYesterday], n)
		default:
			buckets[GroupEarlier] = append(buckets[GroupEarlier], n)
		}
	}

	var groups []Group
	for _, name := range []string{GroupToday, GroupYesterday, GroupEarlier} {
		if len(buckets[name]) > 0 {
			groups = append(groups, Group{Name: name, Items: buckets[name]})
		}
	}
	return groups
}
