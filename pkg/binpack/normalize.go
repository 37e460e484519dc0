package binpack

// Normalize converts binary byte values to text recursively through arrays
// and maps, so the resulting structure is fully textual and JSON-compatible.
// Non-container, non-binary values pass through unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case []any:
		for i, el := range t {
			t[i] = Normalize(el)
		}
		return t
	case map[string]any:
		for k, el := range t {
			t[k] = Normalize(el)
		}
		return t
	default:
		return v
	}
}
