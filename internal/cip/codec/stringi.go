package codec

import "fmt"

// IntlString is one entry of a STRINGI value.
type IntlString struct {
	Language string // three characters, e.g. "eng"
	Type     TypeCode
	CharSet  uint16
	Value    string
}

// stringI builds the STRINGI descriptor: a USINT entry count followed by
// that many entries, each carrying the type code of its own string.
func stringI() DataType {
	entry := Struct{
		Members: []DataType{USINT, USINT, USINT, USINT, UINT, Placeholder{}},
		Hook: func(values []any, next DataType) DataType {
			if len(values) != 5 {
				return nil
			}
			code, _ := values[3].(uint8)
			switch TypeCode(code) {
			case TypeSTRING, TypeSTRING2, TypeSTRINGN, TypeSHORTSTRING:
				return Elementary{TypeCode(code)}
			}
			return Unknown{TypeCode(code)}
		},
	}
	return Transform{
		Inner:  Struct{Members: []DataType{USINT, CountedBy(entry)}},
		Decode: decodeIntlStrings,
		Encode: encodeIntlStrings,
		Wire:   TypeSTRINGI,
	}
}

func decodeIntlStrings(raw any) (any, error) {
	fields := raw.([]any)
	entries := fields[1].([]any)
	out := make([]IntlString, len(entries))
	for i, e := range entries {
		f := e.([]any)
		out[i] = IntlString{
			Language: string([]byte{f[0].(uint8), f[1].(uint8), f[2].(uint8)}),
			Type:     TypeCode(f[3].(uint8)),
			CharSet:  f[4].(uint16),
			Value:    f[5].(string),
		}
	}
	return out, nil
}

func encodeIntlStrings(value any) (any, error) {
	strs, ok := value.([]IntlString)
	if !ok {
		return nil, invalidf("STRINGI value %T is not []IntlString", value)
	}
	if len(strs) > 0xFF {
		return nil, invalidf("STRINGI holds %d entries, maximum 255", len(strs))
	}
	entries := make([]any, len(strs))
	for i, s := range strs {
		if len(s.Language) != 3 {
			return nil, invalidf("STRINGI language %q is not three characters", s.Language)
		}
		typ := s.Type
		if typ == 0 {
			typ = TypeSTRING
		}
		entries[i] = []any{s.Language[0], s.Language[1], s.Language[2], uint8(typ), s.CharSet, s.Value}
	}
	return []any{uint8(len(strs)), entries}, nil
}

func (s IntlString) String() string {
	return fmt.Sprintf("%s:%q", s.Language, s.Value)
}
