package playback

import "sync"

// SettingsSnapshot is a point-in-time copy of Settings.
type SettingsSnapshot struct {
	OnlyNew          bool
	OnlyInstrumental bool
}

// Settings holds the admission toggles. The UI flips them while the
// playback loop reads them, so every access goes through the mutex.
type Settings struct {
	mu               sync.RWMutex
	onlyNew          bool
	onlyInstrumental bool
}

// NewSettings creates Settings with the given initial values.
func NewSettings(onlyNew, onlyInstrumental bool) *Settings {
	return &Settings{onlyNew: onlyNew, onlyInstrumental: onlyInstrumental}
}

// Snapshot returns the current values.
func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{OnlyNew: s.onlyNew, OnlyInstrumental: s.onlyInstrumental}
}

// ToggleOnlyNew flips only_new and returns the new value.
func (s *Settings) ToggleOnlyNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlyNew = !s.onlyNew
	return s.onlyNew
}

// ToggleOnlyInstrumental flips only_instrumental and returns the new value.
func (s *Settings) ToggleOnlyInstrumental() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlyInstrumental = !s.onlyInstrumental
	return s.onlyInstrumental
}

// SetOnlyInstrumental sets only_instrumental.
func (s *Settings) SetOnlyInstrumental(v bool) {
	s.mu.Lock()
	s.onlyInstrumental = v
	s.mu.Unlock()
}

// SetOnlyNew sets only_new.
func (s *Settings) SetOnlyNew(v bool) {
	s.mu.Lock()
	s.onlyNew = v
	s.mu.Unlock()
}
