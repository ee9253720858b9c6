package codec

import "fmt"

// Decode reads one value of type dt at the cursor and advances the cursor
// past it.
//
// Values decode to Go types by width: SINT int8, INT int16, DINT int32,
// LINT int64, USINT/BYTE uint8, UINT/WORD uint16, UDINT/DWORD uint32,
// ULINT/LWORD uint64, REAL float32, LREAL float64, BOOL bool, strings
// string, EPATH EPath, STRINGI []IntlString, STRUCT and arrays []any.
func Decode(cur *Cursor, dt DataType) (any, error) {
	switch t := dt.(type) {
	case Elementary:
		return decodeElementary(cur, t.Type)
	case Bool:
		b, err := cur.Peek(t.hostWidth())
		if err != nil {
			return nil, err
		}
		return readUint(b, len(b))>>t.Bit&1 == 1, nil
	case EPathType:
		path, next, err := DecodePath(cur.buf, cur.off, t.Length, t.Padded)
		if err != nil {
			return nil, err
		}
		cur.off = next
		return path, nil
	case Struct:
		return decodeStruct(cur, t)
	case Array:
		n, err := t.count()
		if err != nil {
			return nil, err
		}
		return decodeItems(cur, t.Item, n)
	case AbbrevArray:
		if t.ToEnd {
			return decodeToEnd(cur, t.Item)
		}
		if t.Length < 0 {
			return nil, invalidf("abbreviated array length %d", t.Length)
		}
		return decodeItems(cur, t.Item, t.Length)
	case AbbrevStruct:
		return OpaqueStruct{CRC: t.CRC}, nil
	case Placeholder:
		assertf("unresolved placeholder reached the decoder at offset %d", cur.off)
	case Transform:
		raw, err := Decode(cur, t.Inner)
		if err != nil || t.Decode == nil {
			return raw, err
		}
		return t.Decode(raw)
	case Unknown:
		return nil, fmt.Errorf("%w: cannot decode data type %s", ErrNotImplemented, t.Type)
	case nil:
		assertf("nil data type")
	}
	assertf("unsupported descriptor %T", dt)
	return nil, nil
}

// DecodeBytes decodes one value of type dt from the start of buf.
func DecodeBytes(buf []byte, dt DataType) (any, error) {
	return Decode(NewCursor(buf, 0), dt)
}

func decodeElementary(cur *Cursor, code TypeCode) (any, error) {
	if info, ok := scalars[code]; ok {
		raw, err := cur.uint(info.width)
		if err != nil {
			return nil, err
		}
		return scalarValue(info, raw), nil
	}
	switch code {
	case TypeSTRING, TypeSTRING2, TypeSHORTSTRING, TypeSTRINGN:
		return decodeString(cur, code)
	case TypeBOOL, TypeEPATH, TypeSTRINGI:
		dt, _ := TypeFor(code)
		return Decode(cur, dt)
	}
	return nil, fmt.Errorf("%w: cannot decode data type %s", ErrNotImplemented, code)
}

// member returns the template to use for the next member: the hook's
// replacement if any, then a placeholder resolved with the previous value.
func (s Struct) member(values []any, m DataType) DataType {
	if s.Hook != nil {
		if r := s.Hook(values, m); r != nil {
			m = r
		}
	}
	p, ok := m.(Placeholder)
	if !ok {
		return m
	}
	if p.Resolve == nil || len(values) == 0 {
		assertf("placeholder at member %d cannot be resolved", len(values))
	}
	m = p.Resolve(values[len(values)-1])
	if _, still := m.(Placeholder); still || m == nil {
		assertf("placeholder at member %d resolved to %v", len(values), m)
	}
	return m
}

func decodeStruct(cur *Cursor, s Struct) (any, error) {
	values := make([]any, 0, len(s.Members))
	for i, m := range s.Members {
		v, err := Decode(cur, s.member(values, m))
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// decodeItems decodes n items. Items that read nothing are limited to one,
// so a count taken from the wire cannot spin without consuming input.
func decodeItems(cur *Cursor, item DataType, n int) (any, error) {
	items := make([]any, 0, min(n, cur.Remaining()))
	for i := 0; i < n; i++ {
		start := cur.off
		v, err := Decode(cur, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if cur.off == start && n > 1 {
			return nil, malformedf("%d items of %s read no bytes at offset %d", n, item, start)
		}
		items = append(items, v)
	}
	return items, nil
}

func decodeToEnd(cur *Cursor, item DataType) (any, error) {
	items := []any{}
	for cur.Remaining() > 0 {
		start := cur.off
		v, err := Decode(cur, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", len(items), err)
		}
		if cur.off <= start {
			assertf("%s item did not advance the cursor at offset %d", item, start)
		}
		items = append(items, v)
	}
	return items, nil
}
