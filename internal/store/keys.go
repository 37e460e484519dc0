package store

import "encoding/binary"

// Key layout. Record keys are composite (snapshotID, recordID) so multiple
// snapshots stay disjoint in one physical table. A timestamp index key per
// record supports ordered scans without loading whole snapshots.
//
//	m:<snapshotID>                      -> SnapshotMetadata JSON
//	r:<snapshotID>:<recordID>           -> MessageRecord JSON
//	t:<snapshotID>:<ts BE64>:<recordID> -> recordID
const (
	prefixMeta   = "m:"
	prefixRecord = "r:"
	prefixTime   = "t:"
)

func metaKey(snapshotID string) []byte {
	return []byte(prefixMeta + snapshotID)
}

func recordKey(snapshotID, recordID string) []byte {
	return []byte(prefixRecord + snapshotID + ":" + recordID)
}

func recordPrefix(snapshotID string) []byte {
	return []byte(prefixRecord + snapshotID + ":")
}

func timeKey(snapshotID string, ts int64, recordID string) []byte {
	key := make([]byte, 0, len(prefixTime)+len(snapshotID)+1+8+1+len(recordID))
	key = append(key, prefixTime...)
	key = append(key, snapshotID...)
	key = append(key, ':')
	// Offset by MinInt64 so negative timestamps sort before positive ones.
	key = binary.BigEndian.AppendUint64(key, uint64(ts)^(1<<63))
	key = append(key, ':')
	key = append(key, recordID...)
	return key
}

func timePrefix(snapshotID string) []byte {
	return []byte(prefixTime + snapshotID + ":")
}
