package binpack

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Encode serializes a value in the snapshot payload serialization. The
// smallest encoding for each value is chosen, so boundary lengths exercise
// every prefix width.
//
// Supported types: nil, bool, signed and unsigned integers, float32/float64,
// string, []byte, []any, map[string]any.
func Encode(v any) ([]byte, error) {
	return appendValue(nil, v)
}

func appendValue(out []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(out, 0xc0), nil
	case bool:
		if t {
			return append(out, 0xc3), nil
		}
		return append(out, 0xc2), nil

	case int:
		return appendInt(out, int64(t)), nil
	case int64:
		return appendInt(out, t), nil
	case uint64:
		return appendUint(out, t), nil

	case float32:
		out = append(out, 0xca)
		return binary.BigEndian.AppendUint32(out, math.Float32bits(t)), nil
	case float64:
		out = append(out, 0xcb)
		return binary.BigEndian.AppendUint64(out, math.Float64bits(t)), nil

	case string:
		return appendStr(out, t)
	case []byte:
		return appendBin(out, t)

	case []any:
		out, err := appendArrayHeader(out, len(t))
		if err != nil {
			return nil, err
		}
		for _, el := range t {
			out, err = appendValue(out, el)
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case map[string]any:
		out, err := appendMapHeader(out, len(t))
		if err != nil {
			return nil, err
		}
		// Deterministic order keeps fixtures stable.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out, err = appendStr(out, k)
			if err != nil {
				return nil, err
			}
			out, err = appendValue(out, t[k])
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("binpack: unsupported type %T", v)
}

func appendInt(out []byte, v int64) []byte {
	switch {
	case v >= 0:
		return appendUint(out, uint64(v))
	case v >= -32:
		return append(out, byte(v))
	case v >= math.MinInt8:
		return append(out, 0xd0, byte(int8(v)))
	case v >= math.MinInt16:
		out = append(out, 0xd1)
		return binary.BigEndian.AppendUint16(out, uint16(int16(v)))
	case v >= math.MinInt32:
		out = append(out, 0xd2)
		return binary.BigEndian.AppendUint32(out, uint32(int32(v)))
	default:
		out = append(out, 0xd3)
		return binary.BigEndian.AppendUint64(out, uint64(v))
	}
}

func appendUint(out []byte, v uint64) []byte {
	switch {
	case v <= 0x7f:
		return append(out, byte(v))
	case v <= math.MaxUint8:
		return append(out, 0xcc, byte(v))
	case v <= math.MaxUint16:
		out = append(out, 0xcd)
		return binary.BigEndian.AppendUint16(out, uint16(v))
	case v <= math.MaxUint32:
		out = append(out, 0xce)
		return binary.BigEndian.AppendUint32(out, uint32(v))
	default:
		out = append(out, 0xcf)
		return binary.BigEndian.AppendUint64(out, v)
	}
}

func appendStr(out []byte, s string) ([]byte, error) {
	n := len(s)
	switch {
	case n <= 31:
		out = append(out, 0xa0|byte(n))
	case n <= math.MaxUint8:
		out = append(out, 0xd9, byte(n))
	case n <= math.MaxUint16:
		out = append(out, 0xda)
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	case n <= math.MaxUint32:
		out = append(out, 0xdb)
		out = binary.BigEndian.AppendUint32(out, uint32(n))
	default:
		return nil, fmt.Errorf("binpack: string too long: %d", n)
	}
	return append(out, s...), nil
}

func appendBin(out []byte, b []byte) ([]byte, error) {
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		out = append(out, 0xc4, byte(n))
	case n <= math.MaxUint16:
		out = append(out, 0xc5)
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	case n <= math.MaxUint32:
		out = append(out, 0xc6)
		out = binary.BigEndian.AppendUint32(out, uint32(n))
	default:
		return nil, fmt.Errorf("binpack: binary too long: %d", n)
	}
	return append(out, b...), nil
}

func appendArrayHeader(out []byte, n int) ([]byte, error) {
	switch {
	case n <= 15:
		return append(out, 0x90|byte(n)), nil
	case n <= math.MaxUint16:
		out = append(out, 0xdc)
		return binary.BigEndian.AppendUint16(out, uint16(n)), nil
	case n <= math.MaxUint32:
		out = append(out, 0xdd)
		return binary.BigEndian.AppendUint32(out, uint32(n)), nil
	default:
		return nil, fmt.Errorf("binpack: array too long: %d", n)
	}
}

func appendMapHeader(out []byte, n int) ([]byte, error) {
	switch {
	case n <= 15:
		return append(out, 0x80|byte(n)), nil
	case n <= math.MaxUint16:
		out = append(out, 0xde)
		return binary.BigEndian.AppendUint16(out, uint16(n)), nil
	case n <= math.MaxUint32:
		out = append(out, 0xdf)
		return binary.BigEndian.AppendUint32(out, uint32(n)), nil
	default:
		return nil, fmt.Errorf("binpack: map too long: %d", n)
	}
}
