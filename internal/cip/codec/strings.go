package codec

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// charset returns the character encoding for a character width in bytes.
// Single-byte CIP strings are ISO 8859-1.
func charset(width int) encoding.Encoding {
	switch width {
	case 1:
		return charmap.ISO8859_1
	case 2:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case 4:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}
	return nil
}

func decodeChars(raw []byte, width int) (string, error) {
	cs := charset(width)
	if cs == nil {
		return "", malformedf("character width %d", width)
	}
	out, err := cs.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decode %d-byte characters: %v", ErrMalformed, width, err)
	}
	return string(out), nil
}

func encodeChars(s string, width int) ([]byte, error) {
	out, err := charset(width).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, invalidf("%q cannot be encoded with %d-byte characters: %v", s, width, err)
	}
	return out, nil
}

// stringNWidth picks the narrowest character width that represents s.
func stringNWidth(s string) int {
	width := 1
	for _, r := range s {
		switch {
		case r > 0xFFFF:
			return 4
		case r > 0xFF:
			width = 2
		}
	}
	return width
}

func stringValue(code TypeCode, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", invalidf("%s value %T is not a string", code, v)
}

func decodeString(cur *Cursor, code TypeCode) (string, error) {
	var count, width int
	switch code {
	case TypeSTRING:
		n, err := cur.Uint16()
		if err != nil {
			return "", err
		}
		count, width = int(n), 1
	case TypeSHORTSTRING:
		n, err := cur.Uint8()
		if err != nil {
			return "", err
		}
		count, width = int(n), 1
	case TypeSTRING2:
		n, err := cur.Uint16()
		if err != nil {
			return "", err
		}
		count, width = int(n), 2
	case TypeSTRINGN:
		w, err := cur.Uint16()
		if err != nil {
			return "", err
		}
		n, err := cur.Uint16()
		if err != nil {
			return "", err
		}
		count, width = int(n), int(w)
		if width != 1 && width != 2 && width != 4 {
			return "", malformedf("STRINGN character width %d", width)
		}
	default:
		assertf("%s is not a string type", code)
	}
	raw, err := cur.Next(count * width)
	if err != nil {
		return "", err
	}
	return decodeChars(raw, width)
}

// encodeString returns the complete wire form of s, length prefix included.
func encodeString(code TypeCode, s string) ([]byte, error) {
	width := 1
	switch code {
	case TypeSTRING2:
		width = 2
	case TypeSTRINGN:
		width = stringNWidth(s)
	}
	if !utf8.ValidString(s) {
		return nil, invalidf("%s value is not valid UTF-8", code)
	}
	chars, err := encodeChars(s, width)
	if err != nil {
		return nil, err
	}
	count := len(chars) / width
	var out []byte
	switch code {
	case TypeSHORTSTRING:
		if count > 0xFF {
			return nil, invalidf("SHORT_STRING length %d exceeds 255", count)
		}
		out = append(out, uint8(count))
	case TypeSTRINGN:
		out = AppendUint16(out, uint16(width))
		fallthrough
	default:
		if count > 0xFFFF {
			return nil, invalidf("%s length %d exceeds 65535", code, count)
		}
		out = AppendUint16(out, uint16(count))
	}
	return append(out, chars...), nil
}
