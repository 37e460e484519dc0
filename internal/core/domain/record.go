package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MessageRecord is one archived message. Records are unique within a snapshot
// by ID; the globally unique key is (snapshotID, recordID).
type MessageRecord struct {
	// ID is the record identifier, unique within its snapshot.
	ID string `json:"id"`

	// UserID identifies the message author.
	UserID string `json:"user_id"`

	// Body is the message text.
	Body string `json:"body"`

	// Kind is the message type or classification tag.
	Kind string `json:"kind,omitempty"`

	// Payload is an optional structured payload.
	Payload map[string]any `json:"payload,omitempty"`

	// ParentID is an optional reference to a parent record.
	ParentID string `json:"parent_id,omitempty"`

	// Timestamp is the message timestamp (Unix milliseconds).
	Timestamp int64 `json:"timestamp"`
}

// Encode serializes the record for storage.
func (r *MessageRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRecord deserializes a stored record.
func DecodeRecord(data []byte) (*MessageRecord, error) {
	var r MessageRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Field name aliases seen across archive generations. Older exports use
// snake_case, newer ones camelCase.
var (
	idAliases     = []string{"id", "messageId", "message_id"}
	userAliases   = []string{"userId", "user_id", "author", "authorId"}
	bodyAliases   = []string{"content", "body", "text", "message"}
	kindAliases   = []string{"type", "kind"}
	parentAliases = []string{"replyToId", "reply_to_id", "parentId", "parent_id"}
	timeAliases   = []string{"timestamp", "createdAt", "created_at", "ts"}
)

// RecordFromValue builds a MessageRecord from a decoded payload element.
// The element must be a map; missing ids fall back to the element's ordinal.
func RecordFromValue(v any, ordinal int) (*MessageRecord, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %d: expected object, got %T", ordinal, v)
	}

	r := &MessageRecord{
		ID:        stringField(obj, idAliases),
		UserID:    stringField(obj, userAliases),
		Body:      stringField(obj, bodyAliases),
		Kind:      stringField(obj, kindAliases),
		ParentID:  stringField(obj, parentAliases),
		Timestamp: intField(obj, timeAliases),
	}
	if r.ID == "" {
		r.ID = strconv.Itoa(ordinal)
	}
	if p, ok := obj["payload"].(map[string]any); ok {
		r.Payload = p
	}
	return r, nil
}

// RecordsFromPayload extracts the record array from a decrypted payload.
// The payload is either a top-level array or an object with a "messages"
// array.
func RecordsFromPayload(v any) ([]*MessageRecord, error) {
	arr, ok := v.([]any)
	if !ok {
		obj, isObj := v.(map[string]any)
		if !isObj {
			return nil, fmt.Errorf("payload: expected array or object, got %T", v)
		}
		arr, ok = obj["messages"].([]any)
		if !ok {
			return nil, fmt.Errorf("payload: object has no messages array")
		}
	}

	records := make([]*MessageRecord, 0, len(arr))
	for i, el := range arr {
		r, err := RecordFromValue(el, i)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func stringField(obj map[string]any, names []string) string {
	for _, n := range names {
		if v, ok := obj[n]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func intField(obj map[string]any, names []string) int64 {
	for _, n := range names {
		v, ok := obj[n]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case int64:
			return t
		case uint64:
			return int64(t)
		case float64:
			return int64(t)
		case int:
			return int64(t)
		case json.Number:
			if i, err := t.Int64(); err == nil {
				return i
			}
		}
	}
	return 0
}
