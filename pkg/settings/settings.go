// Package settings persists the user-editable sync settings.
//
// Settings are stored as a single JSON file and guarded by a mutex so the
// capture pipeline, sync engine and bridge can read and write concurrently.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings holds the mutable agent settings.
type Settings struct {
	// ServerURL is the base URL of the remote ingest service.
	ServerURL string `json:"server_url"`
	// APIKey authenticates requests to the remote service.
	APIKey string `json:"api_key"`
	// LastSyncTime is the epoch-millisecond time of the last completed
	// sync pass, zero if no pass has run yet.
	LastSyncTime int64 `json:"last_sync_time"`

	SMSCaptureEnabled          bool `json:"sms_capture_enabled"`
	NotificationCaptureEnabled bool `json:"notification_capture_enabled"`
	AutoSyncEnabled            bool `json:"auto_sync_enabled"`
}

// Configured reports whether both the server URL and API key are set.
func (s Settings) Configured() bool {
	return s.ServerURL != "" && s.APIKey != ""
}

func defaults() Settings {
	return Settings{
		SMSCaptureEnabled:          true,
		NotificationCaptureEnabled: true,
		AutoSyncEnabled:            true,
	}
}

// Store is a file-backed settings store.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Open loads settings from path, creating defaults if the file is missing.
func Open(path string) (*Store, error) {
	s := &Store{path: path, current: defaults()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	if err := json.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	return s, nil
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to the settings and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	if err := s.save(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// SetServer stores the server URL and API key.
func (s *Store) SetServer(url, apiKey string) error {
	return s.Update(func(st *Settings) {
		st.ServerURL = url
		st.APIKey = apiKey
	})
}

// TouchLastSyncTime records now as the last completed sync pass time.
func (s *Store) TouchLastSyncTime(now time.Time) error {
	return s.Update(func(st *Settings) {
		st.LastSyncTime = now.UnixMilli()
	})
}

// save writes the settings file, creating the parent directory if needed.
func (s *Store) save(st Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}
