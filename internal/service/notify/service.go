package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"notifyd/internal/domain"
	"notifyd/internal/effects"
	"notifyd/internal/model"
	"notifyd/internal/repository"
)

// Event kinds published on the notifications room.
const (
	EventAdded     = "notification.added"
	EventRead      = "notification.read"
	EventReadAll   = "notification.read_all"
	EventDeleted   = "notification.deleted"
	EventRefreshed = "notification.refreshed"
	EventUnread    = "unread.changed"
	EventSettings  = "settings.changed"
)

const desktopDeniedWarning = "Desktop notifications are blocked. Allow them in your system settings to enable this option."

type SideEffects interface {
	Notify(ctx context.Context, n model.Notification, prefs model.Preferences)
	DesktopPermission() effects.Permission
	RequestDesktopPermission(ctx context.Context) (effects.Permission, error)
	Warn(message string)
}

type Publisher interface {
	Publish(room, kind string, data any)
}

type UnreadGauge interface {
	SetUnread(n int)
}

// Service is the local notification cache. The list and the unread counter
// only change together, under mu, and only after the server accepted the
// change.
type Service struct {
	api     repository.NotificationAPI
	prefs   repository.PreferenceStore
	effects SideEffects
	events  Publisher
	gauge   UnreadGauge
	log     *zap.Logger
	now     func() time.Time

	// toggleMu serializes preference toggles across read, persist and store.
	toggleMu sync.Mutex

	mu       sync.RWMutex
	items    []model.Notification
	unread   int
	total    int
	local    model.Preferences
	settings *model.Settings
}

func NewService(
	api repository.NotificationAPI,
	prefs repository.PreferenceStore,
	sideEffects SideEffects,
	events Publisher,
	gauge UnreadGauge,
	logger *zap.Logger,
) *Service {
	return &Service{
		api:     api,
		prefs:   prefs,
		effects: sideEffects,
		events:  events,
		gauge:   gauge,
		log:     logger,
		now:     time.Now,
		local:   model.Preferences{AudioEnabled: true},
	}
}

// Load restores preferences and the cached server settings from durable
// storage. Missing keys keep their defaults. A restored desktop preference
// is dropped when desktop permission is no longer granted.
func (s *Service) Load(ctx context.Context) error {
	audio, err := s.loadBool(ctx, repository.KeyAudioEnabled, true)
	if err != nil {
		return err
	}
	desktop, err := s.loadBool(ctx, repository.KeyDesktopEnabled, false)
	if err != nil {
		return err
	}

	if desktop && s.effects.DesktopPermission() != effects.PermissionGranted {
		s.log.Warn("desktop notifications no longer permitted; disabling")
		desktop = false
		if err := s.prefs.Set(ctx, repository.KeyDesktopEnabled, strconv.FormatBool(false)); err != nil {
			s.log.Error("persist desktop preference failed", zap.Error(err))
		}
	}

	var cached *model.Settings
	raw, err := s.prefs.Get(ctx, repository.KeySettingsCache)
	switch {
	case err == nil:
		var settings model.Settings
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			s.log.Warn("discarding unreadable settings cache", zap.Error(err))
		} else {
			cached = &settings
		}
	case !errors.Is(err, repository.ErrKeyNotFound):
		return err
	}

	s.mu.Lock()
	s.local = model.Preferences{AudioEnabled: audio, DesktopEnabled: desktop}
	s.settings = cached
	s.mu.Unlock()
	return nil
}

func (s *Service) loadBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := s.prefs.Get(ctx, key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		s.log.Error("preference read failed", zap.String("key", key), zap.Error(err))
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.log.Warn("ignoring malformed preference", zap.String("key", key), zap.String("value", raw))
		return def, nil
	}
	return v, nil
}

// FetchNotifications replaces the local list with one server page. Pushes
// arriving afterwards are still prepended.
func (s *Service) FetchNotifications(ctx context.Context, params model.ListParams) (model.Page, error) {
	page, err := s.api.ListNotifications(ctx, params)
	if err != nil {
		s.log.Error("list notifications failed",
			zap.Int("page", params.Page),
			zap.Int("page_size", params.PageSize),
			zap.Error(err),
		)
		return model.Page{}, err
	}

	items := append([]model.Notification(nil), page.Items...)
	s.mu.Lock()
	s.items = items
	s.unread = countUnread(items)
	s.total = page.Total
	unread := s.unread
	s.mu.Unlock()

	s.publish(EventRefreshed, map[string]int{"count": len(items), "total": page.Total}, unread)
	return page, nil
}

// FetchUnreadCount takes the server's unread count as the truth.
func (s *Service) FetchUnreadCount(ctx context.Context) (int, error) {
	n, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.log.Error("fetch unread count failed", zap.Error(err))
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	drift := n - s.unread
	s.unread = n
	s.mu.Unlock()

	if drift != 0 {
		s.log.Debug("unread count resynced", zap.Int("unread", n), zap.Int("drift", drift))
	}
	s.publish("", nil, n)
	return n, nil
}

// AddNotification prepends n and fires its side effects. A notification
// already in the cache is moved to the front with the newer fields; it never
// goes back to unread. It reports whether the id was new to the cache.
func (s *Service) AddNotification(ctx context.Context, n model.Notification) bool {
	s.mu.Lock()
	fresh := true
	if i := s.indexLocked(n.ID); i >= 0 {
		fresh = false
		old := s.items[i]
		n.IsRead = n.IsRead || old.IsRead
		if !old.IsRead {
			s.unread = max(0, s.unread-1)
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	s.items = append([]model.Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}
	if fresh {
		s.total++
	}
	unread := s.unread
	prefs := s.local
	s.mu.Unlock()

	s.publish(EventAdded, n, unread)
	if !fresh {
		s.log.Debug("merged duplicate notification", zap.Int64("id", n.ID))
	}
	s.effects.Notify(ctx, n, prefs)
	return fresh
}

// MarkAsRead is idempotent: an item already read locally costs nothing.
func (s *Service) MarkAsRead(ctx context.Context, id int64) error {
	s.mu.RLock()
	i := s.indexLocked(id)
	alreadyRead := i >= 0 && s.items[i].IsRead
	s.mu.RUnlock()
	if alreadyRead {
		return nil
	}

	if err := s.api.MarkAsRead(ctx, id); err != nil {
		s.log.Error("mark as read failed", zap.Int64("id", id), zap.Error(err))
		return err
	}

	s.mu.Lock()
	changed := false
	if i := s.indexLocked(id); i >= 0 && !s.items[i].IsRead {
		s.items[i].IsRead = true
		s.unread = max(0, s.unread-1)
		changed = true
	}
	unread := s.unread
	s.mu.Unlock()

	if changed {
		s.publish(EventRead, map[string]int64{"id": id}, unread)
	}
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context) error {
	if err := s.api.MarkAllAsRead(ctx); err != nil {
		s.log.Error("mark all as read failed", zap.Error(err))
		return err
	}
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.unread = 0
	s.mu.Unlock()

	s.publish(EventReadAll, nil, 0)
	return nil
}

func (s *Service) DeleteNotification(ctx context.Context, id int64) error {
	if err := s.api.DeleteNotification(ctx, id); err != nil {
		s.log.Error("delete notification failed", zap.Int64("id", id), zap.Error(err))
		return err
	}
	unread := s.removeLocal([]int64{id})
	s.publish(EventDeleted, map[string][]int64{"ids": {id}}, unread)
	return nil
}

func (s *Service) DeleteNotifications(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.api.DeleteNotifications(ctx, ids); err != nil {
		s.log.Error("batch delete failed", zap.Int("count", len(ids)), zap.Error(err))
		return err
	}
	unread := s.removeLocal(ids)
	s.publish(EventDeleted, map[string][]int64{"ids": ids}, unread)
	return nil
}

// ClearRead deletes every read notification in the local list and returns
// how many were removed.
func (s *Service) ClearRead(ctx context.Context) (int, error) {
	s.mu.RLock()
	var ids []int64
	for _, n := range s.items {
		if n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	s.mu.RUnlock()

	if err := s.DeleteNotifications(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Service) removeLocal(ids []int64) int {
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, n := range s.items {
		if _, ok := drop[n.ID]; !ok {
			kept = append(kept, n)
			continue
		}
		removed++
		if !n.IsRead {
			s.unread = max(0, s.unread-1)
		}
	}
	clear(s.items[len(kept):])
	s.items = kept
	s.total = max(0, s.total-removed)
	return s.unread
}

func (s *Service) ToggleAudio(ctx context.Context) (bool, error) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.RLock()
	next := !s.local.AudioEnabled
	s.mu.RUnlock()

	if err := s.prefs.Set(ctx, repository.KeyAudioEnabled, strconv.FormatBool(next)); err != nil {
		s.log.Error("persist audio preference failed", zap.Error(err))
		return !next, err
	}
	s.mu.Lock()
	s.local.AudioEnabled = next
	s.mu.Unlock()
	return next, nil
}

// ToggleDesktopNotification flips the desktop preference. Enabling asks for
// permission first; a denial leaves the preference off and warns the user
// once. Denial is not an error.
func (s *Service) ToggleDesktopNotification(ctx context.Context) (bool, error) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.RLock()
	next := !s.local.DesktopEnabled
	s.mu.RUnlock()

	if next {
		permission, err := s.effects.RequestDesktopPermission(ctx)
		if err != nil {
			s.log.Error("desktop permission request failed", zap.Error(err))
			return false, err
		}
		if permission != effects.PermissionGranted {
			s.log.Warn("desktop notification permission denied", zap.String("permission", string(permission)))
			s.effects.Warn(desktopDeniedWarning)
			next = false
		}
	}

	if err := s.prefs.Set(ctx, repository.KeyDesktopEnabled, strconv.FormatBool(next)); err != nil {
		s.log.Error("persist desktop preference failed", zap.Error(err))
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.local.DesktopEnabled, err
	}
	s.mu.Lock()
	s.local.DesktopEnabled = next
	s.mu.Unlock()
	return next, nil
}

// FetchSettings reads the server settings. When the server is unreachable
// the cached copy is returned along with the error.
func (s *Service) FetchSettings(ctx context.Context) (model.Settings, error) {
	settings, err := s.api.GetSettings(ctx)
	if err != nil {
		s.log.Error("fetch settings failed", zap.Error(err))
		if cached, ok := s.Settings(); ok {
			return cached, err
		}
		return model.Settings{}, err
	}
	s.cacheSettings(ctx, settings)
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	updated, err := s.api.UpdateSettings(ctx, settings)
	if err != nil {
		s.log.Error("update settings failed", zap.Error(err))
		return model.Settings{}, err
	}
	s.cacheSettings(ctx, updated)
	s.events.Publish(model.RoomNotifications, EventSettings, updated)
	return updated, nil
}

func (s *Service) cacheSettings(ctx context.Context, settings model.Settings) {
	s.mu.Lock()
	s.settings = &settings
	s.mu.Unlock()

	raw, err := json.Marshal(settings)
	if err != nil {
		s.log.Warn("encode settings cache failed", zap.Error(err))
		return
	}
	if err := s.prefs.Set(ctx, repository.KeySettingsCache, string(raw)); err != nil {
		s.log.Warn("persist settings cache failed", zap.Error(err))
	}
}

func (s *Service) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification(nil), s.items...)
}

func (s *Service) Get(id int64) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], nil
	}
	return model.Notification{}, domain.ErrNotFound
}

func (s *Service) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Total is the server-side total of the last fetched listing, adjusted for
// local additions and deletions.
func (s *Service) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

func (s *Service) Grouped() []domain.Group {
	return domain.GroupByDay(s.Notifications(), s.now())
}

func (s *Service) Preferences() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Service) Settings() (model.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return model.Settings{}, false
	}
	return *s.settings, true
}

func (s *Service) indexLocked(id int64) int {
	for i, n := range s.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// publish emits kind (when set) followed by the unread count.
func (s *Service) publish(kind string, data any, unread int) {
	if kind != "" {
		s.events.Publish(model.RoomNotifications, kind, data)
	}
	s.events.Publish(model.RoomNotifications, EventUnread, map[string]int{"unreadCount": unread})
	s.gauge.SetUnread(unread)
}

func countUnread(items []model.Notification) int {
	n := 0
	for _, it := range items {
		if !it.IsRead {
			n++
		}
	}
	return n
}
