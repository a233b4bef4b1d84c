package sync

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSettings = []byte("settings")

var (
	keyAutoSyncEnabled = []byte("docify-auto-sync-enabled")
	keyLastSync        = []byte("last-sync")
)

// Settings persists the sync preferences and metadata that must survive
// restarts: the auto-sync toggle and the last successful cycle time.
type Settings struct {
	db *bolt.DB
}

// NewSettings creates the settings store and its bucket.
func NewSettings(db *bolt.DB) (*Settings, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create settings bucket: %w", err)
	}
	return &Settings{db: db}, nil
}

// AutoSyncEnabled reports whether periodic sync is on. Defaults to true
// when never set.
func (s *Settings) AutoSyncEnabled() bool {
	enabled := true
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSettings).Get(keyAutoSyncEnabled); v != nil {
			enabled = string(v) == "true"
		}
		return nil
	})
	return enabled
}

// SetAutoSyncEnabled persists the auto-sync toggle. An in-flight cycle is
// unaffected; the flag is consulted on the next interval tick.
func (s *Settings) SetAutoSyncEnabled(enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyAutoSyncEnabled, []byte(value))
	})
}

// LastSync returns the completion time of the most recent cycle, if any.
func (s *Settings) LastSync() (time.Time, bool) {
	var t time.Time
	var ok bool
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSettings).Get(keyLastSync); v != nil {
			if parsed, err := time.Parse(time.RFC3339Nano, string(v)); err == nil {
				t, ok = parsed, true
			}
		}
		return nil
	})
	return t, ok
}

// SetLastSync records the completion time of a cycle.
func (s *Settings) SetLastSync(t time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyLastSync, []byte(t.Format(time.RFC3339Nano)))
	})
}

// ResetMeta clears the last-sync marker.
func (s *Settings) ResetMeta() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete(keyLastSync)
	})
}
