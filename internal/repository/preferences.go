package repository

import (
	"context"
	"errors"
)

// Durable client storage keys.
const (
	KeyAudioEnabled   = "notification_audio_enabled"
	KeyDesktopEnabled = "notification_desktop_enabled"
	KeySettingsCache  = "notification_settings"
)

var ErrKeyNotFound = errors.New("preference not found")

// PreferenceStore is durable key/value storage for client-side preferences.
// Values are not confidential.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
