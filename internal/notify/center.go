package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"github.com/skillswaphq/skillswap-realtime/internal/realtime"
	"github.com/skillswaphq/skillswap-realtime/internal/storage"
	"go.uber.org/zap"
)

// StorageKey is the local storage key holding the notification bundle.
const StorageKey = "skillswap_notifications"

const (
	historyLimit      = 50
	previewRuneLimit  = 50
	alertDismissAfter = 5 * time.Second
)

var errMissingStorage = errors.New("notify: storage is required")

// CenterConfig describes the dependencies of a notification Center.
type CenterConfig struct {
	Store   storage.KV
	Alerter Alerter
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Center maintains the unread counter and the bounded notification history,
// persisting the bundle on every mutation so it survives reloads.
type Center struct {
	store   storage.KV
	alerter Alerter
	logger  *zap.Logger
	clock   func() time.Time

	mu            sync.Mutex
	who           identity.Identity
	notifications []Notification
	unreadCount   int
	sequence      int64
	requestedOnce bool
}

// bundle is the persisted shape of the notification state.
type bundle struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	LastUpdated   string         `json:"lastUpdated"`
}

// NewCenter constructs a notification Center.
func NewCenter(cfg CenterConfig) (*Center, error) {
	if cfg.Store == nil {
		return nil, errMissingStorage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Center{
		store:   cfg.Store,
		alerter: cfg.Alerter,
		logger:  logger,
		clock:   clock,
	}, nil
}

// Mount rehydrates persisted state and binds the current identity. A corrupt
// persisted blob is treated as empty state, not a fatal error. Platform
// permission is requested automatically at most once, and only while the
// permission state is the neutral default.
func (c *Center) Mount(ctx context.Context, email string) error {
	saved, ok, err := c.store.Get(ctx, StorageKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.who = identity.Identity(identity.Normalize(email))
	if ok && saved != "" {
		var persisted bundle
		if err := json.Unmarshal([]byte(saved), &persisted); err != nil {
			c.logger.Warn("discarding corrupt notification bundle", zap.Error(err))
		} else {
			// The persisted counter is not trusted; it is derived state and
			// is recomputed from the entries that were actually retained.
			c.notifications = persisted.Notifications
			c.unreadCount = countUnread(c.notifications)
		}
	}
	shouldRequest := !c.requestedOnce
	c.requestedOnce = true
	c.mu.Unlock()

	if shouldRequest && c.alerter != nil && c.alerter.Permission() == PermissionDefault {
		c.alerter.RequestPermission()
	}
	return nil
}

// Attach subscribes the center to the manager's push stream and returns the
// unsubscribe function.
func (c *Center) Attach(manager *realtime.Manager) func() {
	return manager.Subscribe(realtime.EventNewMessage, func(event realtime.Event) {
		if event.Message == nil {
			return
		}
		c.HandlePush(context.Background(), *event.Message)
	})
}

// HandlePush derives a notification from one inbound push message. Messages
// whose sender normalizes to the current identity are suppressed.
func (c *Center) HandlePush(ctx context.Context, push realtime.PushMessage) {
	c.mu.Lock()
	self := c.who
	c.mu.Unlock()
	if self != "" && self.Matches(push.From) {
		return
	}

	notification := Notification{
		Type:           TypeNewMessage,
		Title:          "New Message",
		Message:        preview(push.Text),
		From:           push.From,
		ConversationID: push.ConversationID,
	}
	if push.Generic {
		notification.Type = TypeNewMessageGeneric
		notification.Message = "You received a message"
	}
	c.Add(ctx, notification)
}

// Add prepends the notification to history, applies the history cap, bumps
// the unread counter and persists. A platform alert is issued when
// permission has been granted.
func (c *Center) Add(ctx context.Context, notification Notification) {
	now := c.clock().UTC()

	c.mu.Lock()
	c.sequence++
	notification.ID = fmt.Sprintf("%d-%d", now.UnixMilli(), c.sequence)
	notification.CreatedAt = now.Format(time.RFC3339)
	notification.Read = false

	c.notifications = append([]Notification{notification}, c.notifications...)
	if len(c.notifications) > historyLimit {
		// Evicted entries leave the counter too: unreadCount always equals
		// the unread entries among what is retained.
		for _, evicted := range c.notifications[historyLimit:] {
			if !evicted.Read && c.unreadCount > 0 {
				c.unreadCount--
			}
		}
		c.notifications = c.notifications[:historyLimit]
	}
	c.unreadCount++
	c.mu.Unlock()

	c.persist(ctx)

	if c.alerter != nil && c.alerter.Permission() == PermissionGranted {
		tag := notification.ConversationID
		if tag == "" {
			tag = "general"
		}
		c.alerter.Alert(notification.Title, notification.Message, tag, alertDismissAfter)
	}
}

// MarkAsRead flips one notification to read. Marking an already-read or
// unknown id never drives the unread counter below zero.
func (c *Center) MarkAsRead(ctx context.Context, notificationID string) {
	c.mu.Lock()
	changed := false
	for index := range c.notifications {
		if c.notifications[index].ID != notificationID {
			continue
		}
		if !c.notifications[index].Read {
			c.notifications[index].Read = true
			if c.unreadCount > 0 {
				c.unreadCount--
			}
			changed = true
		}
		break
	}
	c.mu.Unlock()

	if changed {
		c.persist(ctx)
	}
}

// MarkAllAsRead flips every notification to read and zeroes the counter.
func (c *Center) MarkAllAsRead(ctx context.Context) {
	c.mu.Lock()
	for index := range c.notifications {
		c.notifications[index].Read = true
	}
	c.unreadCount = 0
	c.mu.Unlock()

	c.persist(ctx)
}

// ClearAll empties the history. Persisted state is overwritten, not removed:
// the empty bundle survives the next reload.
func (c *Center) ClearAll(ctx context.Context) {
	c.mu.Lock()
	c.notifications = nil
	c.unreadCount = 0
	c.mu.Unlock()

	c.persist(ctx)
}

// Notifications returns a snapshot of the history, newest first.
func (c *Center) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notifications...)
}

// UnreadCount returns the count of unread entries among all retained
// notifications.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadCount
}

// RequestPermission explicitly requests platform alert permission.
func (c *Center) RequestPermission() Permission {
	if c.alerter == nil {
		return PermissionDenied
	}
	return c.alerter.RequestPermission()
}

// HasPermission reports whether platform alerts may currently be issued.
func (c *Center) HasPermission() bool {
	return c.alerter != nil && c.alerter.Permission() == PermissionGranted
}

func (c *Center) persist(ctx context.Context) {
	c.mu.Lock()
	persisted := bundle{
		Notifications: append([]Notification(nil), c.notifications...),
		UnreadCount:   c.unreadCount,
		LastUpdated:   c.clock().UTC().Format(time.RFC3339),
	}
	c.mu.Unlock()

	data, err := json.Marshal(persisted)
	if err != nil {
		c.logger.Error("notification bundle marshal failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, StorageKey, string(data)); err != nil {
		c.logger.Error("notification bundle persist failed", zap.Error(err))
	}
}

func countUnread(notifications []Notification) int {
	unread := 0
	for _, notification := range notifications {
		if !notification.Read {
			unread++
		}
	}
	return unread
}

// preview truncates message text for display, mirroring the in-app badge.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRuneLimit {
		return text
	}
	return string(runes[:previewRuneLimit]) + "..."
}
