package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEditors     = []byte("editors")
	bucketEditorNames = []byte("editor_names")
)

var (
	// ErrNameTaken is returned when another editor already uses the name.
	ErrNameTaken = errors.New("editor name already in use")
	// ErrNotFound is returned by Delete for an unknown id.
	ErrNotFound = errors.New("editor not found")
)

// Store persists editor connection profiles. Names are unique
// case-insensitively, enforced through a lowercased name index bucket.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore creates the editor store and its buckets.
func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEditors); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEditorNames); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create editor buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Save persists a profile, replacing any existing one with the same id.
// A missing id means "create": the store assigns a uuid and createdAt.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		editors := tx.Bucket(bucketEditors)
		names := tx.Bucket(bucketEditorNames)

		nameKey := []byte(strings.ToLower(cfg.Name))
		if owner := names.Get(nameKey); owner != nil && string(owner) != cfg.ID {
			return ErrNameTaken
		}

		if cfg.ID == "" {
			cfg.ID = uuid.New().String()
			cfg.CreatedAt = now
		} else if existing := editors.Get([]byte(cfg.ID)); existing != nil {
			// replaced wholesale, but keep creation time and drop the
			// stale name index entry on rename
			var prev Config
			if err := json.Unmarshal(existing, &prev); err == nil {
				cfg.CreatedAt = prev.CreatedAt
				if !strings.EqualFold(prev.Name, cfg.Name) {
					if err := names.Delete([]byte(strings.ToLower(prev.Name))); err != nil {
						return err
					}
				}
			}
		} else if cfg.CreatedAt.IsZero() {
			cfg.CreatedAt = now
		}
		cfg.UpdatedAt = now

		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal editor config: %w", err)
		}
		if err := editors.Put([]byte(cfg.ID), data); err != nil {
			return err
		}
		return names.Put(nameKey, []byte(cfg.ID))
	})
}

// Get retrieves a profile by id. Returns (nil, nil) when absent.
func (s *Store) Get(id string) (*Config, error) {
	var cfg *Config

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEditors).Get([]byte(id))
		if data == nil {
			return nil
		}
		cfg = &Config{}
		return json.Unmarshal(data, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read editor %s: %w", id, err)
	}

	return cfg, nil
}

// GetByName retrieves a profile by name, case-insensitively.
func (s *Store) GetByName(name string) (*Config, error) {
	var cfg *Config

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketEditorNames).Get([]byte(strings.ToLower(name)))
		if id == nil {
			return nil
		}
		data := tx.Bucket(bucketEditors).Get(id)
		if data == nil {
			return nil
		}
		cfg = &Config{}
		return json.Unmarshal(data, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read editor %q: %w", name, err)
	}

	return cfg, nil
}

// List returns all profiles. Unreadable records are skipped.
func (s *Store) List() ([]*Config, error) {
	var configs []*Config

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEditors).ForEach(func(k, v []byte) error {
			var cfg Config
			if err := json.Unmarshal(v, &cfg); err != nil {
				return nil
			}
			configs = append(configs, &cfg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list editors: %w", err)
	}

	return configs, nil
}

// Delete removes a profile and its name index entry.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		editors := tx.Bucket(bucketEditors)
		data := editors.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var cfg Config
		if err := json.Unmarshal(data, &cfg); err == nil {
			if err := tx.Bucket(bucketEditorNames).Delete([]byte(strings.ToLower(cfg.Name))); err != nil {
				return err
			}
		}
		return editors.Delete([]byte(id))
	})
}
