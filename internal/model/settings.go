package model

// Settings are the server-side notification settings of the current user.
type Settings struct {
	EmailEnabled bool            `json:"emailEnabled"`
	PushEnabled  bool            `json:"pushEnabled"`
	Types        map[string]bool `json:"types,omitempty"`
}

// Preferences are local-only toggles kept in durable client storage.
type Preferences struct {
	AudioEnabled   bool `json:"audioEnabled"`
	DesktopEnabled bool `json:"desktopEnabled"`
}
