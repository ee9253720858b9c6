package codec

import "fmt"

// EncodeSize returns the exact number of bytes EncodeTo writes for v.
// It has no side effects, so callers can size a buffer before encoding.
func EncodeSize(dt DataType, v any) (int, error) {
	e := encoder{dry: true}
	return e.encode(0, dt, v)
}

// EncodeTo writes v at buf[off:] and returns the offset after it. The
// buffer must have been sized with EncodeSize.
func EncodeTo(buf []byte, off int, dt DataType, v any) (int, error) {
	e := encoder{buf: buf}
	return e.encode(off, dt, v)
}

// Encode returns the wire form of v.
func Encode(dt DataType, v any) ([]byte, error) {
	n, err := EncodeSize(dt, v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	end, err := EncodeTo(buf, 0, dt, v)
	if err != nil {
		return nil, err
	}
	if end != n {
		assertf("%s encoded %d bytes, sized %d", dt, end, n)
	}
	return buf, nil
}

// encoder walks a descriptor once for sizing (dry) and once for writing,
// so both passes share every length decision.
type encoder struct {
	buf []byte
	dry bool
	// bits holds BOOL members written at an offset whose host integer has
	// not been encoded yet; the host merges them in.
	bits map[int]bitMask
}

type bitMask struct {
	set, clear uint64
}

func (e *encoder) need(off, n int) {
	if off < 0 || off+n > len(e.buf) {
		assertf("writing %d bytes at offset %d overruns %d byte buffer", n, off, len(e.buf))
	}
}

func (e *encoder) bytes(off int, b []byte) int {
	if !e.dry {
		e.need(off, len(b))
		copy(e.buf[off:], b)
	}
	return off + len(b)
}

func (e *encoder) encode(off int, dt DataType, v any) (int, error) {
	switch t := dt.(type) {
	case Elementary:
		return e.elementary(off, t.Type, v)
	case Bool:
		return e.bool(off, t, v)
	case EPathType:
		path, err := pathValue(v)
		if err != nil {
			return off, err
		}
		size := path.encodeSize(t.Padded)
		if t.Length >= 0 && size != t.Length {
			return off, invalidf("EPATH encodes to %d bytes, field holds %d", size, t.Length)
		}
		if e.dry {
			return off + size, nil
		}
		e.need(off, size)
		return path.encodeTo(e.buf, off, t.Padded), nil
	case Struct:
		values, ok := asSlice(v)
		if !ok {
			return off, invalidf("STRUCT value %T is not a slice", v)
		}
		if len(values) != len(t.Members) {
			return off, invalidf("STRUCT has %d members, value has %d", len(t.Members), len(values))
		}
		for i, m := range t.Members {
			var err error
			off, err = e.encode(off, t.member(values[:i], m), values[i])
			if err != nil {
				return off, fmt.Errorf("member %d: %w", i, err)
			}
		}
		return off, nil
	case Array:
		n, err := t.count()
		if err != nil {
			return off, err
		}
		return e.items(off, t.Item, v, n)
	case AbbrevArray:
		if t.ToEnd {
			return e.items(off, t.Item, v, -1)
		}
		if t.Length < 0 {
			return off, invalidf("abbreviated array length %d", t.Length)
		}
		return e.items(off, t.Item, v, t.Length)
	case AbbrevStruct:
		return off, nil
	case Placeholder:
		assertf("unresolved placeholder reached the encoder at offset %d", off)
	case Transform:
		raw := v
		if t.Encode != nil {
			var err error
			if raw, err = t.Encode(v); err != nil {
				return off, err
			}
		}
		return e.encode(off, t.Inner, raw)
	case Unknown:
		return off, fmt.Errorf("%w: cannot encode data type %s", ErrNotImplemented, t.Type)
	case nil:
		assertf("nil data type")
	}
	assertf("unsupported descriptor %T", dt)
	return off, nil
}

func (e *encoder) elementary(off int, code TypeCode, v any) (int, error) {
	if info, ok := scalars[code]; ok {
		raw, err := scalarRaw(code, info, v)
		if err != nil {
			return off, err
		}
		if !e.dry {
			if m, ok := e.bits[off]; ok {
				raw = raw&^m.clear | m.set
				delete(e.bits, off)
			}
			e.need(off, info.width)
			putUint(e.buf[off:], info.width, raw)
		}
		return off + info.width, nil
	}
	switch code {
	case TypeSTRING, TypeSTRING2, TypeSHORTSTRING, TypeSTRINGN:
		s, err := stringValue(code, v)
		if err != nil {
			return off, err
		}
		wire, err := encodeString(code, s)
		if err != nil {
			return off, err
		}
		return e.bytes(off, wire), nil
	case TypeBOOL, TypeEPATH, TypeSTRINGI:
		dt, _ := TypeFor(code)
		return e.encode(off, dt, v)
	}
	return off, fmt.Errorf("%w: cannot encode data type %s", ErrNotImplemented, code)
}

// bool sets or clears one bit of the host integer in place. The bit is
// also kept for the host member that follows, so the host value cannot
// overwrite it.
func (e *encoder) bool(off int, t Bool, v any) (int, error) {
	set, ok := v.(bool)
	if !ok {
		return off, invalidf("BOOL value %T is not a bool", v)
	}
	if e.dry {
		return off, nil
	}
	w := t.hostWidth()
	e.need(off, w)
	raw := readUint(e.buf[off:], w)
	if e.bits == nil {
		e.bits = make(map[int]bitMask)
	}
	m := e.bits[off]
	bit := uint64(1) << t.Bit
	if set {
		raw |= bit
		m.set |= bit
		m.clear &^= bit
	} else {
		raw &^= bit
		m.clear |= bit
		m.set &^= bit
	}
	e.bits[off] = m
	putUint(e.buf[off:], w, raw)
	return off, nil
}

// items encodes a slice value; want is the required item count, or -1 for
// any count.
func (e *encoder) items(off int, item DataType, v any, want int) (int, error) {
	values, ok := asSlice(v)
	if !ok {
		return off, invalidf("array value %T is not a slice", v)
	}
	if want >= 0 && len(values) != want {
		return off, invalidf("array holds %d items, value has %d", want, len(values))
	}
	for i, iv := range values {
		var err error
		off, err = e.encode(off, item, iv)
		if err != nil {
			return off, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return off, nil
}

func pathValue(v any) (EPath, error) {
	switch p := v.(type) {
	case EPath:
		return p, nil
	case *EPath:
		if p != nil {
			return *p, nil
		}
	case []Segment:
		return EPath{Segments: p}, nil
	}
	return EPath{}, invalidf("EPATH value %T is not a path", v)
}
