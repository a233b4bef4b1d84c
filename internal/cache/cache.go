package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTemplates = []byte("templates")

const (
	// entryTTL is the write-through cache expiry.
	entryTTL = 24 * time.Hour
	// freshnessWindow excludes entries from sync when they have not been
	// opened recently. Entries without a lastOpened stamp stay eligible.
	freshnessWindow = 24 * time.Hour
)

// Store is the persistent edit cache: one entry per template currently
// being edited, keyed by template id. Absence means "not being edited".
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates the cache store and its bucket.
func NewStore(db *bolt.DB, logger *slog.Logger) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTemplates)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create templates bucket: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Scan enumerates every eligible cached template as a lightweight
// reference. Corrupt entries are logged and skipped, never fatal; entries
// past their expiry or outside the freshness window are filtered out.
func (s *Store) Scan() ([]TemplateRef, error) {
	var refs []TemplateRef
	nowMillis := s.now().UnixMilli()

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			id := string(k)

			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				s.logger.Warn("skipping unreadable cache entry", "template_id", id, "error", err)
				return nil
			}
			if len(e.Template) == 0 {
				return nil
			}

			var probe payloadProbe
			if err := json.Unmarshal(e.Template, &probe); err != nil {
				s.logger.Warn("skipping malformed template payload", "template_id", id, "error", err)
				return nil
			}

			if e.Expiry > 0 && nowMillis > e.Expiry {
				return nil
			}

			lastOpened := probe.LastOpened
			if lastOpened == 0 {
				lastOpened = e.LastOpened
			}
			if lastOpened > 0 && nowMillis-lastOpened > freshnessWindow.Milliseconds() {
				return nil
			}

			editorID := probe.EditorID
			if editorID == "" {
				editorID = e.EditorID
			}

			refs = append(refs, TemplateRef{
				TemplateID: id,
				Name:       probe.displayName(id),
				EditorID:   editorID,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan template cache: %w", err)
	}

	return refs, nil
}

// Fetch re-reads one entry fully, re-deriving its channel. Returns
// (nil, nil) when the entry does not exist.
func (s *Store) Fetch(id string) (*Record, error) {
	var rec *Record

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(id))
		if data == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to parse cache entry %s: %w", id, err)
		}

		var err error
		rec, err = decodeRecord(id, &e)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Put writes a template payload through to the cache with a fresh expiry
// and lastOpened stamp.
func (s *Store) Put(id string, payload json.RawMessage, editorID string) error {
	if id == "" {
		return fmt.Errorf("template id is required")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("template payload is not valid JSON")
	}

	now := s.now()
	e := Entry{
		Expiry:     now.Add(entryTTL).UnixMilli(),
		LastOpened: now.UnixMilli(),
		EditorID:   editorID,
		Template:   payload,
	}

	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Put([]byte(id), data)
	})
}

// Touch refreshes expiry and lastOpened without changing the payload.
func (s *Store) Touch(id string) error {
	now := s.now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to parse cache entry %s: %w", id, err)
		}
		e.Expiry = now.Add(entryTTL).UnixMilli()
		e.LastOpened = now.UnixMilli()

		updated, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// Delete removes one entry, typically when the user navigates away.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}

// List returns fully decoded records, optionally filtered by channel.
// Corrupt entries are skipped like in Scan.
func (s *Store) List(channel Channel) ([]*Record, error) {
	var records []*Record

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				s.logger.Warn("skipping unreadable cache entry", "template_id", string(k), "error", err)
				return nil
			}

			rec, err := decodeRecord(string(k), &e)
			if err != nil {
				s.logger.Warn("skipping malformed template payload", "template_id", string(k), "error", err)
				return nil
			}
			if channel != "" && rec.Channel != channel {
				return nil
			}

			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list template cache: %w", err)
	}

	return records, nil
}

// ClearSynced deletes the given entries after a successful push.
func (s *Store) ClearSynced(ids []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of cached entries, eligible or not.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketTemplates).Stats().KeyN
		return nil
	})
	return n, err
}
