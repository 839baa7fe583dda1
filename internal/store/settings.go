package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedStore is returned when the settings store holds unparsable
// JSON.
var ErrMalformedStore = fmt.Errorf("settings store is not valid JSON")

// Settings is the on-disk JSON settings store: a single object keyed by
// setting name.
type Settings struct {
	path string
}

// NewSettings creates a store handle for the given path.
func NewSettings(path string) *Settings {
	return &Settings{path: path}
}

// Path returns the store's on-disk location.
func (s *Settings) Path() string {
	return s.path
}

// Read loads the stored record. A missing file yields an empty record.
func (s *Settings) Read() (map[string]any, error) {
	raw, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}

	record := make(map[string]any)
	if len(raw) == 0 {
		return record, nil
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}
	return record, nil
}

// ReadRaw returns the stored bytes, or nil when the file does not exist.
// The bytes are checked for JSON validity.
func (s *Settings) ReadRaw() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings store: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return raw, ErrMalformedStore
	}
	return raw, nil
}

// Version returns the stored version selector, or the empty string when the
// store is missing or carries no selector.
func (s *Settings) Version() string {
	raw, err := s.ReadRaw()
	if err != nil || raw == nil {
		return ""
	}
	return gjson.GetBytes(raw, "version").String()
}

// Patch merges the given keys into the stored JSON and writes the result
// atomically. Keys not mentioned in changes — including unknown or stale
// ones — survive byte-for-byte, which is what lets a record ride through a
// version transition without losing anything.
func (s *Settings) Patch(changes map[string]any) error {
	raw, err := s.ReadRaw()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	// Deterministic application order keeps the output stable.
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, err = sjson.SetBytes(raw, escapeKey(k), changes[k])
		if err != nil {
			return fmt.Errorf("patching setting %s: %w", k, err)
		}
	}

	return WriteFileAtomic(s.path, raw, 0o600)
}

// Reset replaces the store with an empty object, backing up whatever was
// there before.
func (s *Settings) Reset() error {
	return WriteFileAtomic(s.path, []byte("{}\n"), 0o600)
}

// Repair moves the malformed store file aside and reinitializes the store
// with an empty object. It returns the backup path holding the corrupt
// content.
func (s *Settings) Repair() (string, error) {
	backup := BackupName(s.path+".corrupt", time.Now())
	if err := os.Rename(s.path, backup); err != nil {
		return "", fmt.Errorf("backing up corrupt store: %w", err)
	}
	if err := s.Reset(); err != nil {
		return "", fmt.Errorf("reinitializing store: %w", err)
	}
	return backup, nil
}

// escapeKey protects literal dots in setting keys from sjson's path syntax.
func escapeKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '.' || key[i] == '*' || key[i] == '?' {
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
