package binpack

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeError reports an undecodable tag or a truncated buffer, identifying
// the offset it was found at.
type DecodeError struct {
	Offset int
	Tag    byte
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("binpack: %s at offset %d (tag 0x%02x)", e.Reason, e.Offset, e.Tag)
}

func errAt(offset int, tag byte, reason string) error {
	return &DecodeError{Offset: offset, Tag: tag, Reason: reason}
}

// Decode decodes the value starting at offset 0 of buf.
func Decode(buf []byte) (any, int, error) {
	return DecodeAt(buf, 0)
}

// DecodeAt decodes the value starting at the given offset and returns the
// value plus the offset of the first byte after it.
//
// Type mapping: nil and booleans map directly; all integers narrow to int64
// (unsigned values above MaxInt64 stay uint64); 32- and 64-bit floats map to
// float64; strings map to string; binary and extension payloads map to
// []byte; arrays map to []any; maps map to map[string]any with non-string
// keys stringified.
func DecodeAt(buf []byte, offset int) (any, int, error) {
	if offset >= len(buf) {
		return nil, offset, errAt(offset, 0, "truncated buffer")
	}

	tag := buf[offset]
	pos := offset + 1

	switch {
	case tag <= 0x7f: // positive fixint
		return int64(tag), pos, nil

	case tag >= 0xe0: // negative fixint
		return int64(int8(tag)), pos, nil

	case tag >= 0x80 && tag <= 0x8f: // fixmap
		return decodeMap(buf, pos, int(tag&0x0f))

	case tag >= 0x90 && tag <= 0x9f: // fixarray
		return decodeArray(buf, pos, int(tag&0x0f))

	case tag >= 0xa0 && tag <= 0xbf: // fixstr
		return decodeStr(buf, pos, int(tag&0x1f), offset)
	}

	switch tag {
	case 0xc0:
		return nil, pos, nil
	case 0xc2:
		return false, pos, nil
	case 0xc3:
		return true, pos, nil

	case 0xc4, 0xc5, 0xc6: // bin 8/16/32
		n, pos, err := readLength(buf, pos, 1<<(tag-0xc4), offset)
		if err != nil {
			return nil, pos, err
		}
		return decodeBin(buf, pos, n, offset)

	case 0xc7, 0xc8, 0xc9: // ext 8/16/32, opaque payload
		n, pos, err := readLength(buf, pos, 1<<(tag-0xc7), offset)
		if err != nil {
			return nil, pos, err
		}
		// Extension type byte precedes the payload.
		if pos >= len(buf) {
			return nil, pos, errAt(offset, tag, "truncated extension")
		}
		return decodeBin(buf, pos+1, n, offset)

	case 0xca: // float32
		if pos+4 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated float32")
		}
		bits := binary.BigEndian.Uint32(buf[pos:])
		return float64(math.Float32frombits(bits)), pos + 4, nil

	case 0xcb: // float64
		if pos+8 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated float64")
		}
		bits := binary.BigEndian.Uint64(buf[pos:])
		return math.Float64frombits(bits), pos + 8, nil

	case 0xcc: // uint8
		if pos+1 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated uint8")
		}
		return int64(buf[pos]), pos + 1, nil
	case 0xcd: // uint16
		if pos+2 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated uint16")
		}
		return int64(binary.BigEndian.Uint16(buf[pos:])), pos + 2, nil
	case 0xce: // uint32
		if pos+4 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated uint32")
		}
		return int64(binary.BigEndian.Uint32(buf[pos:])), pos + 4, nil
	case 0xcf: // uint64, narrowed when it fits
		if pos+8 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated uint64")
		}
		v := binary.BigEndian.Uint64(buf[pos:])
		if v > math.MaxInt64 {
			return v, pos + 8, nil
		}
		return int64(v), pos + 8, nil

	case 0xd0: // int8
		if pos+1 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated int8")
		}
		return int64(int8(buf[pos])), pos + 1, nil
	case 0xd1: // int16
		if pos+2 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated int16")
		}
		return int64(int16(binary.BigEndian.Uint16(buf[pos:]))), pos + 2, nil
	case 0xd2: // int32
		if pos+4 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated int32")
		}
		return int64(int32(binary.BigEndian.Uint32(buf[pos:]))), pos + 4, nil
	case 0xd3: // int64
		if pos+8 > len(buf) {
			return nil, pos, errAt(offset, tag, "truncated int64")
		}
		return int64(binary.BigEndian.Uint64(buf[pos:])), pos + 8, nil

	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8: // fixext 1/2/4/8/16
		n := 1 << (tag - 0xd4)
		// Extension type byte precedes the payload.
		if pos >= len(buf) {
			return nil, pos, errAt(offset, tag, "truncated extension")
		}
		return decodeBin(buf, pos+1, n, offset)

	case 0xd9, 0xda, 0xdb: // str 8/16/32
		n, next, err := readLength(buf, pos, 1<<(tag-0xd9), offset)
		if err != nil {
			return nil, next, err
		}
		return decodeStr(buf, next, n, offset)

	case 0xdc, 0xdd: // array 16/32
		n, next, err := readLength(buf, pos, 2<<(tag-0xdc), offset)
		if err != nil {
			return nil, next, err
		}
		return decodeArray(buf, next, n)

	case 0xde, 0xdf: // map 16/32
		n, next, err := readLength(buf, pos, 2<<(tag-0xde), offset)
		if err != nil {
			return nil, next, err
		}
		return decodeMap(buf, next, n)
	}

	return nil, pos, errAt(offset, tag, "unknown tag")
}

// readLength reads a big-endian length prefix of size 1, 2 or 4 bytes.
func readLength(buf []byte, pos, size, start int) (int, int, error) {
	if pos+size > len(buf) {
		return 0, pos, errAt(start, buf[start], "truncated length prefix")
	}
	switch size {
	case 1:
		return int(buf[pos]), pos + 1, nil
	case 2:
		return int(binary.BigEndian.Uint16(buf[pos:])), pos + 2, nil
	default:
		return int(binary.BigEndian.Uint32(buf[pos:])), pos + 4, nil
	}
}

func decodeStr(buf []byte, pos, n, start int) (any, int, error) {
	if pos+n > len(buf) {
		return nil, pos, errAt(start, buf[start], "truncated string")
	}
	return string(buf[pos : pos+n]), pos + n, nil
}

func decodeBin(buf []byte, pos, n, start int) (any, int, error) {
	if pos+n > len(buf) {
		return nil, pos, errAt(start, buf[start], "truncated binary")
	}
	out := make([]byte, n)
	copy(out, buf[pos:pos+n])
	return out, pos + n, nil
}

func decodeArray(buf []byte, pos, n int) (any, int, error) {
	// The declared count is untrusted input. Each element occupies at
	// least one byte, so never preallocate past the bytes remaining.
	arr := make([]any, 0, clampHint(n, len(buf)-pos))
	for i := 0; i < n; i++ {
		v, next, err := DecodeAt(buf, pos)
		if err != nil {
			return nil, next, err
		}
		arr = append(arr, v)
		pos = next
	}
	return arr, pos, nil
}

func decodeMap(buf []byte, pos, n int) (any, int, error) {
	// Each entry is a key plus a value, at least two bytes.
	m := make(map[string]any, clampHint(n, (len(buf)-pos)/2))
	for i := 0; i < n; i++ {
		k, next, err := DecodeAt(buf, pos)
		if err != nil {
			return nil, next, err
		}
		pos = next

		v, next, err := DecodeAt(buf, pos)
		if err != nil {
			return nil, next, err
		}
		pos = next

		m[keyString(k)] = v
	}
	return m, pos, nil
}

// clampHint bounds a declared container size by what the buffer can hold.
func clampHint(n, max int) int {
	if max < 0 {
		max = 0
	}
	if n > max {
		return max
	}
	return n
}

// keyString stringifies a map key. Keys are almost always str values; any
// other type is formatted so the result stays JSON-compatible.
func keyString(k any) string {
	switch t := k.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
