// Package badger provides a BadgerDB-backed session store.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/datales/cubechat/internal/metrics"
	"github.com/datales/cubechat/internal/session"
)

const prefixSession = "sess:"

// Store implements session.Store using BadgerDB.
type Store struct {
	db      *badger.DB
	ttl     time.Duration
	metrics *metrics.Metrics
	mu      sync.RWMutex
	closed  bool
}

// Options holds configuration for the session store.
type Options struct {
	DataDir    string
	SyncWrites bool
	// TTL expires idle sessions; zero keeps them forever.
	TTL    time.Duration
	Logger badger.Logger
}

// New opens a session store at the configured data directory.
func New(opts *Options) (*Store, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	dbOpts := badger.DefaultOptions(opts.DataDir)
	dbOpts.SyncWrites = opts.SyncWrites

	// Sessions are small; keep the value log and memtables modest.
	dbOpts.ValueLogFileSize = 64 << 20
	dbOpts.MemTableSize = 16 << 20

	if opts.Logger != nil {
		dbOpts.Logger = opts.Logger
	} else {
		dbOpts.Logger = nil
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &Store{db: db, ttl: opts.TTL, metrics: metrics.Default()}, nil
}

// NewWithPath opens a session store with default options.
func NewWithPath(dataDir string) (*Store, error) {
	return New(&Options{DataDir: dataDir})
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Create starts a new empty session.
func (s *Store) Create(ctx context.Context) (*session.Session, error) {
	now := time.Now().UTC()
	sess := &session.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(sess); err != nil {
		s.metrics.RecordStorageOperation("create", false)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.metrics.RecordStorageOperation("create", true)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSession + id))
		if err == badger.ErrKeyNotFound {
			return &session.ErrNotFound{ID: id}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err != nil {
		s.metrics.RecordStorageOperation("get", false)
		return nil, err
	}
	s.metrics.RecordStorageOperation("get", true)
	return &sess, nil
}

// Save persists the session, refreshing its update time and TTL.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	sess.UpdatedAt = time.Now().UTC()
	if err := s.write(sess); err != nil {
		s.metrics.RecordStorageOperation("save", false)
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.metrics.RecordStorageOperation("save", true)
	return nil
}

func (s *Store) write(sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(prefixSession+sess.ID), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixSession + id))
		if err == badger.ErrKeyNotFound {
			return &session.ErrNotFound{ID: id}
		}
		if err != nil {
			return err
		}
		return txn.Delete([]byte(prefixSession + id))
	})
	s.metrics.RecordStorageOperation("delete", err == nil)
	return err
}

// List returns sessions in key order.
func (s *Store) List(ctx context.Context, opts *session.ListOptions) ([]*session.Session, error) {
	if opts == nil {
		opts = &session.ListOptions{Limit: 100}
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	var sessions []*session.Session
	prefix := []byte(prefixSession)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		count := 0
		skipped := 0

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < opts.Offset {
				skipped++
				continue
			}
			if count >= opts.Limit {
				break
			}

			var sess session.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				continue
			}

			sessions = append(sessions, &sess)
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*session.StoreStats, error) {
	stats := &session.StoreStats{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixSession)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stats.TotalSessions++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lsm, vlog := s.db.Size()
	stats.StorageSizeBytes = lsm + vlog
	s.metrics.SetSessionsActive(stats.TotalSessions)
	s.metrics.SetStorageSizeBytes(stats.StorageSizeBytes)
	return stats, nil
}
