package codec

import (
	"math"
	"reflect"
)

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	i, ok := toInt64(v)
	return float64(i), ok
}

// asSlice accepts []any or any other slice or array kind.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func scalarValue(info scalarInfo, raw uint64) any {
	switch info.kind {
	case kindFloat:
		if info.width == 4 {
			return math.Float32frombits(uint32(raw))
		}
		return math.Float64frombits(raw)
	case kindSigned:
		switch info.width {
		case 1:
			return int8(raw)
		case 2:
			return int16(raw)
		case 4:
			return int32(raw)
		default:
			return int64(raw)
		}
	}
	switch info.width {
	case 1:
		return uint8(raw)
	case 2:
		return uint16(raw)
	case 4:
		return uint32(raw)
	default:
		return raw
	}
}

func scalarRaw(code TypeCode, info scalarInfo, v any) (uint64, error) {
	bits := uint(info.width * 8)
	switch info.kind {
	case kindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return 0, invalidf("%s value %T is not a number", code, v)
		}
		if info.width == 4 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	case kindSigned:
		i, ok := toInt64(v)
		if !ok {
			return 0, invalidf("%s value %v (%T) is not an integer", code, v, v)
		}
		if bits < 64 {
			lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
			if i < lo || i > hi {
				return 0, invalidf("%s value %d out of range [%d, %d]", code, i, lo, hi)
			}
		}
		return uint64(i), nil
	}
	u, ok := toUint64(v)
	if !ok {
		return 0, invalidf("%s value %v (%T) is not a non-negative integer", code, v, v)
	}
	if bits < 64 && u >= uint64(1)<<bits {
		return 0, invalidf("%s value %d out of range [0, %d]", code, u, uint64(1)<<bits-1)
	}
	return u, nil
}
