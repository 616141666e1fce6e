package credentials

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	// DatabaseFileName is created inside the data directory.
	DatabaseFileName = "devbridge.db"

	pendingBucket    = "pending_credentials"
	metaBucket       = "meta"
	schemaVersionKey = "schema_version"

	currentSchemaVersion uint64 = 1
)

type boltRecord struct {
	Bundle    Bundle    `json:"bundle"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (r boltRecord) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// BoltTable persists pending credentials in a bbolt bucket so an unclaimed
// login survives a restart within its TTL.
type BoltTable struct {
	mu     sync.Mutex
	db     *bbolt.DB
	logger *zap.SugaredLogger
	ttl    time.Duration
	now    func() time.Time
}

// OpenBoltTable opens (or creates) the database under dataDir.
func OpenBoltTable(dataDir string, ttl time.Duration, logger *zap.SugaredLogger) (*BoltTable, error) {
	dbPath := filepath.Join(dataDir, DatabaseFileName)
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", dbPath, err)
	}

	t := &BoltTable{db: db, logger: logger, ttl: ttl, now: time.Now}
	if err := t.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	logger.Debugw("Pending credential table opened", "path", dbPath)
	return t, nil
}

func (t *BoltTable) initBuckets() error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{pendingBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		version := make([]byte, 8)
		binary.LittleEndian.PutUint64(version, currentSchemaVersion)
		return tx.Bucket([]byte(metaBucket)).Put([]byte(schemaVersionKey), version)
	})
}

// DB exposes the handle for health checks.
func (t *BoltTable) DB() *bbolt.DB { return t.db }

func (t *BoltTable) Close() error {
	return t.db.Close()
}

// read decodes the live record for key from bucket b.
func (t *BoltTable) read(b *bbolt.Bucket, key string) (boltRecord, bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return boltRecord{}, false, nil
	}
	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return boltRecord{}, false, fmt.Errorf("failed to decode pending entry: %w", err)
	}
	if rec.expired(t.now()) {
		return boltRecord{}, false, nil
	}
	return rec, true, nil
}

func (t *BoltTable) write(b *bbolt.Bucket, key string, rec boltRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode pending entry: %w", err)
	}
	return b.Put([]byte(key), data)
}

func (t *BoltTable) newRecord(bundle Bundle) boltRecord {
	now := t.now()
	rec := boltRecord{Bundle: bundle, CreatedAt: now}
	if t.ttl > 0 {
		rec.ExpiresAt = now.Add(t.ttl)
	}
	return rec
}

func (t *BoltTable) Get(_ context.Context, key string) (Bundle, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		rec boltRecord
		ok  bool
	)
	err := t.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, ok, err = t.read(tx.Bucket([]byte(pendingBucket)), key)
		return err
	})
	return rec.Bundle, ok, err
}

func (t *BoltTable) GetOrDefault(ctx context.Context, key string) (Bundle, error) {
	b, _, err := t.Get(ctx, key)
	return b, err
}

func (t *BoltTable) Set(_ context.Context, key string, b Bundle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Update(func(tx *bbolt.Tx) error {
		return t.write(tx.Bucket([]byte(pendingBucket)), key, t.newRecord(b))
	})
}

func (t *BoltTable) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Delete([]byte(key))
	})
}

func (t *BoltTable) Update(_ context.Context, key string, fn func(Bundle) (Bundle, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucket))
		rec, ok, err := t.read(bucket, key)
		if err != nil {
			return err
		}
		if !ok {
			rec = t.newRecord(Bundle{})
		}
		next, err := fn(rec.Bundle)
		if err != nil {
			return err
		}
		rec.Bundle = next
		return t.write(bucket, key, rec)
	})
}

func (t *BoltTable) Take(_ context.Context, key string) (Bundle, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		rec boltRecord
		ok  bool
	)
	err := t.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucket))
		var err error
		rec, ok, err = t.read(bucket, key)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return Bundle{}, false, err
	}
	return rec.Bundle, ok, nil
}

// Len counts stored records, expired ones included until the next sweep.
func (t *BoltTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	err := t.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(pendingBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		t.logger.Warnw("Failed to count pending entries", "error", err)
	}
	return n
}

// Sweep deletes every record expired at now, and any record that no longer
// decodes.
func (t *BoltTable) Sweep(_ context.Context, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	err := t.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucket))
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				t.logger.Warnw("Dropping undecodable pending entry", "error", err)
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if rec.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
