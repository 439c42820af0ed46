// Package checkpoint persists finished feature records in an embedded
// BadgerDB so that a rerun of the batch reuses them instead of analyzing
// unchanged files again.
//
// Records are keyed by a fingerprint of the analysis settings plus the
// file's absolute path, size and modification time. Changing a setting,
// touching or replacing a file invalidates the entry.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/backmassage/ephysbatch/internal/features"
)

const keyPrefix = "record/v1/"

// Config holds configuration for the checkpoint store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM (tests).
	InMemory bool

	// SyncWrites fsyncs every Put.
	SyncWrites bool
}

// Logger receives BadgerDB's internal log lines.
type Logger interface {
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// badgerLogger adapts Logger to BadgerDB's Logger interface. Badger's info
// chatter is demoted to debug.
type badgerLogger struct {
	log Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error("badger: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn("badger: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug("badger: "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug("badger: "+format, args...)
}

// Store is a record cache. It is safe for concurrent use by pool workers.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the store described by cfg. log may be
// nil to silence BadgerDB.
func Open(cfg Config, log Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{log: log})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Fingerprint hashes the JSON encoding of settings. Records computed under
// different settings never share a key.
func Fingerprint(settings interface{}) (string, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("fingerprint settings: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

// Key builds the cache key for a file analyzed under fingerprint.
func Key(fingerprint, path string, size int64, modTime time.Time) []byte {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return []byte(keyPrefix + fingerprint + "/" + path + "|" +
		strconv.FormatInt(size, 10) + "|" + strconv.FormatInt(modTime.UnixNano(), 10))
}

// KeyFor stats path and returns its cache key.
func KeyFor(fingerprint, path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return Key(fingerprint, path, fi.Size(), fi.ModTime()), nil
}

// Get returns the stored record for key. ok is false on a miss.
func (s *Store) Get(key []byte) (rec *features.Record, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r features.Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode checkpoint record: %w", err)
			}
			rec, ok = &r, true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return rec, ok, nil
}

// Put stores rec under key, replacing any previous entry.
func (s *Store) Put(key []byte, rec *features.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode checkpoint record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Len returns the number of stored records.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
