package staging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func sampleStaged(id string, n int) *Staged {
	records := make([]*domain.MessageRecord, n)
	for i := range records {
		records[i] = &domain.MessageRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			UserID:    "user",
			Body:      "staged body",
			Timestamp: int64(1000 + i),
		}
	}
	return &Staged{
		SnapshotID:      id,
		Records:         records,
		DecryptDuration: 123 * time.Millisecond,
		ApproxSize:      int64(n * 64),
	}
}

func TestPutLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := sampleStaged("snap-1", 25)
	if err := s.Put(in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	out, err := s.Load("snap-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Records) != 25 {
		t.Fatalf("records = %d, want 25", len(out.Records))
	}
	if out.Records[3].ID != "rec-3" || out.Records[3].Body != "staged body" {
		t.Fatalf("record 3 = %+v", out.Records[3])
	}
	if out.DecryptDuration != 123*time.Millisecond {
		t.Fatalf("decrypt duration = %v", out.DecryptDuration)
	}
	if out.ApproxSize != in.ApproxSize {
		t.Fatalf("approx size = %d", out.ApproxSize)
	}
}

func TestStagedFilesAreEncrypted(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	if err := s.Put(sampleStaged("snap-1", 5)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if err != nil || len(matches) != 1 {
		t.Fatalf("staged files = %v (%v)", matches, err)
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	// Plaintext record content must not appear on disk.
	if bytes.Contains(raw, []byte("staged body")) || bytes.Contains(raw, []byte("rec-0")) {
		t.Fatal("staged file contains plaintext record data")
	}
}

func TestPutReplacesStaged(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	if err := s.Put(sampleStaged("snap-1", 5)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(sampleStaged("snap-1", 9)); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	out, err := s.Load("snap-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Records) != 9 {
		t.Fatalf("records = %d, want 9", len(out.Records))
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if len(matches) != 1 {
		t.Fatalf("staged files = %v, want one", matches)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("absent"); err == nil {
		t.Fatal("Load of unstaged snapshot succeeded")
	}
}

func TestLoadCorrupted(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	if err := s.Put(sampleStaged("snap-1", 10)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw[len(raw)/2] ^= 0x01
	if err := os.WriteFile(matches[0], raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.Load("snap-1"); !errors.Is(err, domain.ErrStagingCorrupted) {
		t.Fatalf("err = %v, want ErrStagingCorrupted", err)
	}
}

func TestDeleteAndCount(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Put(sampleStaged(fmt.Sprintf("snap-%d", i), 2)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}

	s.Delete("snap-1")
	if s.Count() != 2 {
		t.Fatalf("Count = %d after delete, want 2", s.Count())
	}
	if _, err := s.Load("snap-1"); err == nil {
		t.Fatal("deleted snapshot still loadable")
	}
}

func TestClearRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	for i := 0; i < 4; i++ {
		if err := s.Put(sampleStaged(fmt.Sprintf("snap-%d", i), 2)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	s.Clear()

	if s.Count() != 0 {
		t.Fatalf("Count = %d after Clear", s.Count())
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if len(matches) != 0 {
		t.Fatalf("files remain after Clear: %v", matches)
	}
}

func TestSweepOnCreation(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "01STALEULIDXXXXXXXXXXXXXXX"+fileSuffix)
	if err := os.WriteFile(stale, []byte("leftover"), 0o600); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	s, err := NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale staged file survived store creation")
	}
}
