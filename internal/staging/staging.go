// Package staging holds decrypted-but-not-yet-persisted snapshots between
// the decrypt and persist phases of bulk orchestration.
//
// Staged payloads are written to disk encrypted under an ephemeral per-run
// key, so decrypted message history never touches disk in plaintext. Files
// are framed with a magic header and a sha256 checksum trailer; a checksum
// or magic mismatch on load surfaces as corruption, never as garbage
// records.
package staging

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/pkg/cmap"
	"github.com/yndnr/msgvault-go/pkg/crypto/aead"
)

// Magic bytes identify staged snapshot files.
var magicBytes = []byte("MVSTAGE1")

const (
	checksumSize = sha256.Size
	runKeySize   = 32
	fileSuffix   = ".stg"
)

// Staged is one decrypted snapshot parked between pipeline phases.
type Staged struct {
	SnapshotID string
	Records    []*domain.MessageRecord

	// DecryptDuration is the decryption time measured by the producer,
	// carried through to the final progress event.
	DecryptDuration time.Duration

	// ApproxSize is the decrypted payload size estimate in bytes, used for
	// the bulk in-flight budget.
	ApproxSize int64

	CreatedAt time.Time
}

type entry struct {
	path            string
	approxSize      int64
	decryptDuration time.Duration
	createdAt       time.Time
}

// Store is the on-disk staging area. One Store spans one bulk run; Close
// clears it unconditionally.
type Store struct {
	dir    string
	runKey []byte
	logger *slog.Logger
	index  *cmap.Map[entry]
}

// NewStore creates the staging directory and an ephemeral run key. The key
// lives only in memory; staged files from a previous crashed run are
// undecryptable garbage and are swept on creation.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("staging: create dir: %w", err)
	}

	runKey := make([]byte, runKeySize)
	if _, err := rand.Read(runKey); err != nil {
		return nil, fmt.Errorf("staging: generate run key: %w", err)
	}

	s := &Store{
		dir:    dir,
		runKey: runKey,
		logger: logger,
		index:  cmap.New[entry](),
	}
	s.sweep()
	return s, nil
}

// Put stages one decrypted snapshot.
func (s *Store) Put(staged *Staged) error {
	payload, err := json.Marshal(staged.Records)
	if err != nil {
		return fmt.Errorf("staging: marshal records: %w", err)
	}

	cipher, err := s.cipherFor(staged.SnapshotID)
	if err != nil {
		return err
	}
	sealed, err := cipher.Seal(payload, []byte(staged.SnapshotID))
	if err != nil {
		return fmt.Errorf("staging: seal: %w", err)
	}

	// magic || sealed || sha256(magic || sealed)
	buf := make([]byte, 0, len(magicBytes)+len(sealed)+checksumSize)
	buf = append(buf, magicBytes...)
	buf = append(buf, sealed...)
	sum := sha256.Sum256(buf)
	buf = append(buf, sum[:]...)

	path := filepath.Join(s.dir, ulid.Make().String()+fileSuffix)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("staging: write %s: %w", path, err)
	}

	createdAt := staged.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	// Restaging the same snapshot swaps the index entry and drops the old
	// file under one shard lock.
	s.index.Update(staged.SnapshotID, func(old entry, exists bool) entry {
		if exists {
			_ = os.Remove(old.path)
		}
		return entry{
			path:            path,
			approxSize:      staged.ApproxSize,
			decryptDuration: staged.DecryptDuration,
			createdAt:       createdAt,
		}
	})

	s.logger.Debug("snapshot staged",
		"snapshot_id", staged.SnapshotID,
		"records", len(staged.Records),
		"approx_bytes", staged.ApproxSize)
	return nil
}

// Load reads one staged snapshot back, verifying framing and decrypting.
func (s *Store) Load(snapshotID string) (*Staged, error) {
	ent, ok := s.index.Get(snapshotID)
	if !ok {
		return nil, fmt.Errorf("staging: snapshot %s not staged", snapshotID)
	}

	raw, err := os.ReadFile(ent.path)
	if err != nil {
		return nil, fmt.Errorf("staging: read %s: %w", ent.path, err)
	}
	if len(raw) < len(magicBytes)+checksumSize {
		return nil, domain.ErrStagingCorrupted.WithDetails("file too short")
	}

	body := raw[:len(raw)-checksumSize]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], raw[len(raw)-checksumSize:]) {
		return nil, domain.ErrStagingCorrupted.WithDetails("checksum mismatch")
	}
	if !bytes.HasPrefix(body, magicBytes) {
		return nil, domain.ErrStagingCorrupted.WithDetails("bad magic")
	}

	cipher, err := s.cipherFor(snapshotID)
	if err != nil {
		return nil, err
	}
	payload, err := cipher.Open(body[len(magicBytes):], []byte(snapshotID))
	if err != nil {
		return nil, domain.ErrStagingCorrupted.WithCause(err)
	}

	var records []*domain.MessageRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, domain.ErrStagingCorrupted.WithCause(err)
	}

	return &Staged{
		SnapshotID:      snapshotID,
		Records:         records,
		DecryptDuration: ent.decryptDuration,
		ApproxSize:      ent.approxSize,
		CreatedAt:       ent.createdAt,
	}, nil
}

// Delete removes one staged snapshot.
func (s *Store) Delete(snapshotID string) {
	if ent, ok := s.index.Pop(snapshotID); ok {
		if err := os.Remove(ent.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove staged file", "path", ent.path, "error", err)
		}
	}
}

// Count returns the number of staged snapshots.
func (s *Store) Count() int {
	return s.index.Count()
}

// Clear removes every staged snapshot, indexed or not.
func (s *Store) Clear() {
	s.index.Clear()
	s.sweep()
}

// Close clears the staging area and discards the run key.
func (s *Store) Close() {
	s.Clear()
	for i := range s.runKey {
		s.runKey[i] = 0
	}
}

// cipherFor derives the per-snapshot subkey from the run key.
func (s *Store) cipherFor(snapshotID string) (aead.Cipher, error) {
	reader := hkdf.New(sha256.New, s.runKey, nil, []byte("msgvault/staging/"+snapshotID))
	key := make([]byte, runKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("staging: derive subkey: %w", err)
	}
	return aead.NewChaCha20(key)
}

// sweep deletes all staging files on disk.
func (s *Store) sweep() {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to sweep staged file", "path", path, "error", err)
		}
	}
}
