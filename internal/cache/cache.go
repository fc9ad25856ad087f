// Package cache persists extracted tags across invocations in a BadgerDB
// key-value store, keyed by absolute file path and validated against the
// file's modification time and size.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/phobologic/repomap/internal/model"
)

// entry is the stored value for one file. Tags are only returned when both
// Mtime and Size match the live file, so a stale entry is never served.
type entry struct {
	Mtime int64       `json:"mtime"`
	Size  int64       `json:"size"`
	Tags  []model.Tag `json:"tags"`
}

// TagCache is a persistent tag store. Entry replacement is atomic: each Put
// runs in its own Badger transaction, so concurrent invocations over the same
// repository race with last-writer-wins semantics but never expose a
// partially written entry. All read and write failures degrade to cache
// misses; the cache never fails a run.
type TagCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if needed) a tag cache rooted at dir. When dir is
// empty, an in-memory store is used, which is also the fallback when the
// on-disk store cannot be opened.
func Open(dir string, logger *slog.Logger) (*TagCache, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		if dir == "" {
			return nil, fmt.Errorf("open tag cache: %w", err)
		}
		// A corrupt or locked on-disk cache must not abort the run.
		logger.Warn("opening tag cache failed, using in-memory cache", "dir", dir, "err", err)
		return Open("", logger)
	}

	return &TagCache{db: db, logger: logger}, nil
}

// Close releases the underlying store.
func (c *TagCache) Close() error {
	return c.db.Close()
}

// Get returns the cached tags for path if the stored entry matches the given
// mtime (unix nanoseconds) and size. A missing, mismatched, or undecodable
// entry is a miss.
func (c *TagCache) Get(path string, mtime, size int64) ([]model.Tag, bool) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			c.logger.Warn("tag cache read failed", "path", path, "err", err)
		}
		return nil, false
	}
	if e.Mtime != mtime || e.Size != size {
		return nil, false
	}
	return e.Tags, true
}

// Put stores tags for path, overwriting any previous entry. Write failures
// are logged and swallowed: the caller already holds the fresh tags.
func (c *TagCache) Put(path string, mtime, size int64, tags []model.Tag) {
	val, err := json.Marshal(entry{Mtime: mtime, Size: size, Tags: tags})
	if err != nil {
		c.logger.Warn("tag cache encode failed", "path", path, "err", err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), val)
	})
	if err != nil {
		c.logger.Warn("tag cache write failed", "path", path, "err", err)
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info/debug chatter is demoted to debug level.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
