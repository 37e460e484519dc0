package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// ManifestResolver resolves snapshots from a JSON manifest file. The file is
// either a bare array of snapshot objects or an object with a "snapshots"
// array.
type ManifestResolver struct {
	byID  map[string]*Snapshot
	order []string
}

// LoadManifest parses the manifest at path.
func LoadManifest(path string) (*ManifestResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read manifest: %w", err)
	}

	var snapshots []*Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		var wrapper struct {
			Snapshots []*Snapshot `json:"snapshots"`
		}
		if werr := json.Unmarshal(data, &wrapper); werr != nil {
			return nil, fmt.Errorf("source: parse manifest %s: %w", path, err)
		}
		snapshots = wrapper.Snapshots
	}

	m := &ManifestResolver{byID: make(map[string]*Snapshot, len(snapshots))}
	for _, snap := range snapshots {
		if snap.ID == "" {
			return nil, fmt.Errorf("source: manifest %s: snapshot without id", path)
		}
		if _, dup := m.byID[snap.ID]; dup {
			return nil, fmt.Errorf("source: manifest %s: duplicate snapshot id %s", path, snap.ID)
		}
		m.byID[snap.ID] = snap
		m.order = append(m.order, snap.ID)
	}
	return m, nil
}

// Resolve returns the descriptor for snapshotID.
func (m *ManifestResolver) Resolve(ctx context.Context, snapshotID string) (*Snapshot, error) {
	snap, ok := m.byID[snapshotID]
	if !ok {
		return nil, domain.ErrSourceUnavailable.
			WithDetails(fmt.Sprintf("snapshot %s not in manifest", snapshotID))
	}
	return snap, nil
}

// IDs returns all snapshot ids in manifest order.
func (m *ManifestResolver) IDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
