// Package store provides the Badger-based record store for msgvault.
//
// Two logical tables share one physical keyspace: message records keyed by
// (snapshotID, recordID), and one metadata row per snapshot. Ordered reads
// go through a timestamp index maintained alongside every record write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// Config configures the record store.
type Config struct {
	// Dir is the storage directory.
	Dir string `koanf:"dir"`

	// SyncWrites enables fsync after each write. Off by default; batch
	// commits provide the durability the import pipeline needs.
	SyncWrites bool `koanf:"sync_writes"`

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64 `koanf:"value_log_file_size"`

	// CacheSize is the block cache size in bytes.
	CacheSize int64 `koanf:"cache_size"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		SyncWrites:       false,
		ValueLogFileSize: 256 << 20,
		CacheSize:        64 << 20,
	}
}

// Order selects scan direction for ordered record reads.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Query bounds an ordered record scan.
type Query struct {
	Offset int
	Limit  int
	Order  Order
}

// Store is the embedded record store. All methods are safe for concurrent
// use; batch writes rely on Badger's per-transaction atomicity only, which
// suffices because concurrent writers always target disjoint key ranges.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger
	closed atomic.Bool

	readOps  atomic.Uint64
	writeOps atomic.Uint64

	metricsRecordsWritten prometheus.Counter
	metricsBatches        prometheus.Counter
	metricsConflicts      prometheus.Counter
}

// Open opens (creating if needed) the record store at cfg.Dir.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	logger.Info("record store opened", "dir", cfg.Dir)
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Close shuts the store down.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Info("closing record store",
		"reads", s.readOps.Load(),
		"writes", s.writeOps.Load())
	return s.db.Close()
}

// PutMetadata upserts the metadata row for meta.ID.
func (s *Store) PutMetadata(ctx context.Context, meta *domain.SnapshotMetadata) error {
	if s.closed.Load() {
		return domain.ErrStorageClosed
	}
	value, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	s.writeOps.Add(1)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(meta.ID), value)
	})
	return s.wrapTxnErr(err)
}

// GetMetadata loads the metadata row for the snapshot id.
func (s *Store) GetMetadata(ctx context.Context, snapshotID string) (*domain.SnapshotMetadata, error) {
	if s.closed.Load() {
		return nil, domain.ErrStorageClosed
	}
	s.readOps.Add(1)

	var meta domain.SnapshotMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(snapshotID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrMetadataNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// EnsureMetadata returns the metadata row for the snapshot id, creating a
// fresh processing row on first touch.
func (s *Store) EnsureMetadata(ctx context.Context, snapshotID string) (*domain.SnapshotMetadata, error) {
	meta, err := s.GetMetadata(ctx, snapshotID)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, domain.ErrMetadataNotFound) {
		return nil, err
	}

	meta = domain.NewSnapshotMetadata(snapshotID)
	if err := s.PutMetadata(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// ListMetadata returns all metadata rows.
func (s *Store) ListMetadata(ctx context.Context) ([]*domain.SnapshotMetadata, error) {
	if s.closed.Load() {
		return nil, domain.ErrStorageClosed
	}
	s.readOps.Add(1)

	var out []*domain.SnapshotMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMeta)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var meta domain.SnapshotMetadata
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return err
			}
			out = append(out, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutBatch writes a chunk of records in one transaction and returns the
// count of records confirmed staged into it. Individual record failures are
// logged and skipped; the batch completes when the transaction commits.
// A commit conflict surfaces as ErrStorageContention, which the worker pool
// retries.
func (s *Store) PutBatch(ctx context.Context, snapshotID string, records []*domain.MessageRecord) (int, error) {
	if s.closed.Load() {
		return 0, domain.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	saved := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		saved = 0
		for _, rec := range records {
			value, err := rec.Encode()
			if err != nil {
				s.logger.Warn("skipping unencodable record",
					"snapshot_id", snapshotID,
					"record_id", rec.ID,
					"error", err)
				continue
			}
			if err := txn.Set(recordKey(snapshotID, rec.ID), value); err != nil {
				return err
			}
			if err := txn.Set(timeKey(snapshotID, rec.Timestamp, rec.ID), []byte(rec.ID)); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, s.wrapTxnErr(err)
	}

	s.writeOps.Add(uint64(saved))
	if s.metricsRecordsWritten != nil {
		s.metricsRecordsWritten.Add(float64(saved))
		s.metricsBatches.Inc()
	}
	return saved, nil
}

// GetRecords returns records of one snapshot ordered by timestamp, applying
// an offset-skip cursor and a limit. Limit <= 0 means no limit.
func (s *Store) GetRecords(ctx context.Context, snapshotID string, q Query) ([]*domain.MessageRecord, error) {
	if s.closed.Load() {
		return nil, domain.ErrStorageClosed
	}
	s.readOps.Add(1)

	prefix := timePrefix(snapshotID)
	var out []*domain.MessageRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = q.Order == OrderDesc
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if opts.Reverse {
			// Seek past the last key of the prefix range.
			seek = append(append([]byte{}, prefix...), 0xff)
		}

		skipped := 0
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if skipped < q.Offset {
				skipped++
				continue
			}
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}

			var recordID string
			if err := it.Item().Value(func(val []byte) error {
				recordID = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(recordKey(snapshotID, recordID))
			if err != nil {
				// Index row without a record row; skip rather than fail
				// the whole scan.
				s.logger.Warn("dangling time index entry",
					"snapshot_id", snapshotID,
					"record_id", recordID)
				continue
			}
			var rec *domain.MessageRecord
			if err := item.Value(func(val []byte) error {
				rec, err = domain.DecodeRecord(val)
				return err
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchRecords linearly scans one snapshot's records for a case-insensitive
// substring match over message bodies. No index backs this; cost is O(n) in
// snapshot size.
func (s *Store) SearchRecords(ctx context.Context, snapshotID, substring string, limit int) ([]*domain.MessageRecord, error) {
	if s.closed.Load() {
		return nil, domain.ErrStorageClosed
	}
	s.readOps.Add(1)

	needle := strings.ToLower(substring)
	var out []*domain.MessageRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(snapshotID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec *domain.MessageRecord
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = domain.DecodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			if strings.Contains(strings.ToLower(rec.Body), needle) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountRecords counts the records persisted for one snapshot.
func (s *Store) CountRecords(ctx context.Context, snapshotID string) (int, error) {
	if s.closed.Load() {
		return 0, domain.ErrStorageClosed
	}
	s.readOps.Add(1)

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(snapshotID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteSnapshot removes all records of a snapshot, then its metadata row.
func (s *Store) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	if s.closed.Load() {
		return domain.ErrStorageClosed
	}

	for _, prefix := range [][]byte{recordPrefix(snapshotID), timePrefix(snapshotID)} {
		if err := s.deletePrefix(prefix); err != nil {
			return err
		}
	}

	s.writeOps.Add(1)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(snapshotID))
	})
	return s.wrapTxnErr(err)
}

// deletePrefix removes all keys under prefix in bounded transactions.
func (s *Store) deletePrefix(prefix []byte) error {
	const batchSize = 4096
	for {
		var keys [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid() && len(keys) < batchSize; it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		err = s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return s.wrapTxnErr(err)
		}
		s.writeOps.Add(uint64(len(keys)))
	}
}

// ClearAll drops every record and metadata row.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStorageClosed
	}
	s.logger.Warn("clearing record store")
	return s.db.DropAll()
}

// wrapTxnErr maps Badger transaction conflicts to the retryable contention
// error.
func (s *Store) wrapTxnErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrConflict) {
		if s.metricsConflicts != nil {
			s.metricsConflicts.Inc()
		}
		return domain.ErrStorageContention.WithCause(err)
	}
	return err
}
