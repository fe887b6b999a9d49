package budget

import (
	"context"
	"net/url"
	"strconv"

	"presupuesto/internal/api"
	"presupuesto/internal/core"
)

const (
	notificationsPath        = "/notifications"
	DefaultNotificationLimit = 50
)

// Notifications wraps /notifications
type Notifications struct {
	client *api.Client
}

// List returns up to limit notifications, newest first
func (n *Notifications) List(ctx context.Context, limit int) ([]core.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	var out []core.Notification
	if err := n.client.Get(ctx, notificationsPath, &out,
		api.WithQuery(url.Values{"limit": {strconv.Itoa(limit)}}),
		api.WithFallback("Error loading notifications")); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadCount returns the number of unread notifications
func (n *Notifications) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := n.client.Get(ctx, notificationsPath+"/unread-count", &out,
		api.WithFallback("Error loading notification count")); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// MarkRead marks one notification as read
func (n *Notifications) MarkRead(ctx context.Context, id int64) error {
	return n.client.Post(ctx, idPath(notificationsPath, id, "mark-read"), nil, nil,
		api.WithFallback("Error marking notification as read"))
}

// MarkAllRead marks every notification as read
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	return n.client.Post(ctx, notificationsPath+"/mark-all-read", nil, nil,
		api.WithFallback("Error marking all notifications as read"))
}

// Delete removes a notification
func (n *Notifications) Delete(ctx context.Context, id int64) error {
	return n.client.Delete(ctx, idPath(notificationsPath, id), nil,
		api.WithFallback("Error deleting notification"))
}
