package pipeline

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"sync"
	"testing"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/envelope"
	"github.com/yndnr/msgvault-go/pkg/crypto/aead"
)

// fakeStore implements Store in memory, with optional forced contention.
type fakeStore struct {
	mu         sync.Mutex
	metas      map[string]domain.SnapshotMetadata
	saved      int
	batchCalls int
	failAll    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{metas: make(map[string]domain.SnapshotMetadata)}
}

func (f *fakeStore) EnsureMetadata(ctx context.Context, snapshotID string) (*domain.SnapshotMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.metas[snapshotID]; ok {
		c := m
		return &c, nil
	}
	m := domain.NewSnapshotMetadata(snapshotID)
	f.metas[snapshotID] = *m
	c := *m
	return &c, nil
}

func (f *fakeStore) PutMetadata(ctx context.Context, meta *domain.SnapshotMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metas[meta.ID] = *meta
	return nil
}

func (f *fakeStore) PutBatch(ctx context.Context, snapshotID string, records []*domain.MessageRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.failAll != nil {
		return 0, f.failAll
	}
	f.saved += len(records)
	return len(records), nil
}

func (f *fakeStore) meta(id string) domain.SnapshotMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metas[id]
}

func TestImporter_Persist37000(t *testing.T) {
	st := newFakeStore()
	imp := NewImporter(st, fastTuning(4), testLogger())

	meta, err := st.EnsureMetadata(context.Background(), "snap-big")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}

	got, err := imp.Persist(context.Background(), meta, testRecords(37_000), 0, nil)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ProcessedMessages != 37_000 {
		t.Fatalf("processed = %d, want 37000", got.ProcessedMessages)
	}
	if st.saved != 37_000 {
		t.Fatalf("store saw %d records", st.saved)
	}
	durable := st.meta("snap-big")
	if durable.Status != domain.StatusCompleted || durable.ProcessedMessages != 37_000 {
		t.Fatalf("durable meta = %+v", durable)
	}
}

func TestImporter_PersistResume(t *testing.T) {
	st := newFakeStore()
	imp := NewImporter(st, fastTuning(4), testLogger())
	ctx := context.Background()

	meta, err := st.EnsureMetadata(ctx, "snap-resume")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}
	meta.TotalMessages = 1_000
	meta.ProcessedMessages = 400
	if err := st.PutMetadata(ctx, meta); err != nil {
		t.Fatalf("PutMetadata: %v", err)
	}

	got, err := imp.Persist(ctx, meta, testRecords(1_000), 0, nil)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// Only the suffix past the resume point is submitted.
	if st.saved != 600 {
		t.Fatalf("store saw %d records, want 600", st.saved)
	}
	if got.ProcessedMessages != 1_000 || got.Status != domain.StatusCompleted {
		t.Fatalf("meta = %+v", got)
	}
}

func TestImporter_SkipCompleted(t *testing.T) {
	st := newFakeStore()
	imp := NewImporter(st, fastTuning(4), testLogger())
	ctx := context.Background()

	meta, err := st.EnsureMetadata(ctx, "snap-done")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}
	meta.TotalMessages = 5
	meta.MarkCompleted()
	if err := st.PutMetadata(ctx, meta); err != nil {
		t.Fatalf("PutMetadata: %v", err)
	}

	var events []domain.ProgressEvent
	// Garbage bytes prove decryption is never attempted for a completed
	// snapshot.
	got, err := imp.Import(ctx, "snap-done", []byte("not an envelope"), nil, func(ev domain.ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if st.batchCalls != 0 {
		t.Fatalf("batchCalls = %d, want 0", st.batchCalls)
	}
	if len(events) != 1 || events[0].Stage != domain.StageCompleted {
		t.Fatalf("events = %+v", events)
	}
}

func TestImporter_ChunkFailureMarksError(t *testing.T) {
	st := newFakeStore()
	st.failAll = domain.ErrStorageContention
	imp := NewImporter(st, fastTuning(2), testLogger())
	ctx := context.Background()

	meta, err := st.EnsureMetadata(ctx, "snap-fail")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}

	var lastEvent domain.ProgressEvent
	_, err = imp.Persist(ctx, meta, testRecords(300), 0, func(ev domain.ProgressEvent) {
		lastEvent = ev
	})
	if !errors.Is(err, domain.ErrChunkFailed) {
		t.Fatalf("err = %v, want ErrChunkFailed", err)
	}

	durable := st.meta("snap-fail")
	if durable.Status != domain.StatusError {
		t.Fatalf("durable status = %s", durable.Status)
	}
	if durable.Error == "" {
		t.Fatal("durable error text empty")
	}
	if durable.ProcessedMessages != 0 {
		t.Fatalf("processed = %d, want 0", durable.ProcessedMessages)
	}
	if lastEvent.Stage != domain.StageError || lastEvent.Error == "" {
		t.Fatalf("last event = %+v", lastEvent)
	}
}

func TestImporter_PersistEmpty(t *testing.T) {
	st := newFakeStore()
	imp := NewImporter(st, fastTuning(2), testLogger())
	ctx := context.Background()

	meta, err := st.EnsureMetadata(ctx, "snap-empty")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}
	got, err := imp.Persist(ctx, meta, nil, 0, nil)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.ProcessedMessages != 0 {
		t.Fatalf("meta = %+v", got)
	}
}

func TestImporter_Cancellation(t *testing.T) {
	st := newFakeStore()
	imp := NewImporter(st, fastTuning(2), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	meta, err := st.EnsureMetadata(context.Background(), "snap-cancel")
	if err != nil {
		t.Fatalf("EnsureMetadata: %v", err)
	}
	_, err = imp.Persist(ctx, meta, testRecords(500), 0, nil)
	if !errors.Is(err, domain.ErrOrchestration) {
		t.Fatalf("err = %v, want ErrOrchestration", err)
	}
	if st.meta("snap-cancel").Status != domain.StatusError {
		t.Fatal("cancellation not recorded in durable metadata")
	}
}

// TestImporter_ImportEndToEnd runs the full path: a JSON envelope wrapping
// three records, RSA-OAEP/AES-256-GCM encrypted, through decrypt and
// persistence.
func TestImporter_ImportEndToEnd(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	payload, err := json.Marshal([]map[string]any{
		{"id": "m1", "userId": "alice", "content": "first", "timestamp": 1_700_000_000_000},
		{"id": "m2", "userId": "bob", "content": "second", "timestamp": 1_700_000_001_000},
		{"id": "m3", "userId": "alice", "content": "third", "timestamp": 1_700_000_002_000},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	contentKey := make([]byte, 32)
	if _, err := rand.Read(contentKey); err != nil {
		t.Fatalf("rand: %v", err)
	}
	cipher, err := aead.NewAESGCM(contentKey)
	if err != nil {
		t.Fatalf("NewAESGCM: %v", err)
	}
	sealed, err := cipher.Seal(payload, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	nonce := sealed[:envelope.NonceSize]
	body := sealed[envelope.NonceSize:]
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, contentKey, nil)
	if err != nil {
		t.Fatalf("EncryptOAEP: %v", err)
	}

	b64 := base64.StdEncoding.EncodeToString
	blob, err := json.Marshal(map[string]string{
		"wrappedKey": b64(wrapped),
		"nonce":      b64(nonce),
		"ciphertext": b64(body[:len(body)-envelope.TagSize]),
		"tag":        b64(body[len(body)-envelope.TagSize:]),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	st := newFakeStore()
	imp := NewImporter(st, fastTuning(2), testLogger())

	var events []domain.ProgressEvent
	meta, err := imp.Import(context.Background(), "snap-e2e", blob, keyPEM, func(ev domain.ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if meta.Status != domain.StatusCompleted || meta.ProcessedMessages != 3 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.FirstMessageAt != 1_700_000_000_000 || meta.LastMessageAt != 1_700_000_002_000 {
		t.Fatalf("timestamp bounds = %d .. %d", meta.FirstMessageAt, meta.LastMessageAt)
	}
	if st.saved != 3 {
		t.Fatalf("store saw %d records", st.saved)
	}

	if len(events) < 3 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Stage != domain.StageDecrypting {
		t.Fatalf("first event stage = %s", events[0].Stage)
	}
	last := events[len(events)-1]
	if last.Stage != domain.StageCompleted || last.Progress != 100 || last.InsertedMessages != 3 {
		t.Fatalf("last event = %+v", last)
	}
	if last.TotalDurationMs < 0 {
		t.Fatalf("total duration = %d", last.TotalDurationMs)
	}
}
