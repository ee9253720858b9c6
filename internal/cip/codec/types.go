package codec

import (
	"fmt"
	"strings"
)

// TypeCode is the CIP data type code used in data type segments and in
// tag type fields.
type TypeCode uint8

// Elementary type codes.
const (
	TypeBOOL        TypeCode = 0xC1
	TypeSINT        TypeCode = 0xC2
	TypeINT         TypeCode = 0xC3
	TypeDINT        TypeCode = 0xC4
	TypeLINT        TypeCode = 0xC5
	TypeUSINT       TypeCode = 0xC6
	TypeUINT        TypeCode = 0xC7
	TypeUDINT       TypeCode = 0xC8
	TypeULINT       TypeCode = 0xC9
	TypeREAL        TypeCode = 0xCA
	TypeLREAL       TypeCode = 0xCB
	TypeSTIME       TypeCode = 0xCC
	TypeDATE        TypeCode = 0xCD
	TypeTIMEOFDAY   TypeCode = 0xCE
	TypeDATETIME    TypeCode = 0xCF
	TypeSTRING      TypeCode = 0xD0
	TypeBYTE        TypeCode = 0xD1
	TypeWORD        TypeCode = 0xD2
	TypeDWORD       TypeCode = 0xD3
	TypeLWORD       TypeCode = 0xD4
	TypeSTRING2     TypeCode = 0xD5
	TypeFTIME       TypeCode = 0xD6
	TypeLTIME       TypeCode = 0xD7
	TypeITIME       TypeCode = 0xD8
	TypeSTRINGN     TypeCode = 0xD9
	TypeSHORTSTRING TypeCode = 0xDA
	TypeTIME        TypeCode = 0xDB
	TypeEPATH       TypeCode = 0xDC
	TypeENGUNIT     TypeCode = 0xDD
	TypeSTRINGI     TypeCode = 0xDE
)

// Constructed type codes, as they appear in data type segments.
const (
	TypeAbbrevStruct TypeCode = 0xA0
	TypeAbbrevArray  TypeCode = 0xA1
	TypeStruct       TypeCode = 0xA2
	TypeArray        TypeCode = 0xA3
)

var typeNames = map[TypeCode]string{
	TypeBOOL:         "BOOL",
	TypeSINT:         "SINT",
	TypeINT:          "INT",
	TypeDINT:         "DINT",
	TypeLINT:         "LINT",
	TypeUSINT:        "USINT",
	TypeUINT:         "UINT",
	TypeUDINT:        "UDINT",
	TypeULINT:        "ULINT",
	TypeREAL:         "REAL",
	TypeLREAL:        "LREAL",
	TypeSTIME:        "STIME",
	TypeDATE:         "DATE",
	TypeTIMEOFDAY:    "TIME_OF_DAY",
	TypeDATETIME:     "DATE_AND_TIME",
	TypeSTRING:       "STRING",
	TypeBYTE:         "BYTE",
	TypeWORD:         "WORD",
	TypeDWORD:        "DWORD",
	TypeLWORD:        "LWORD",
	TypeSTRING2:      "STRING2",
	TypeFTIME:        "FTIME",
	TypeLTIME:        "LTIME",
	TypeITIME:        "ITIME",
	TypeSTRINGN:      "STRINGN",
	TypeSHORTSTRING:  "SHORT_STRING",
	TypeTIME:         "TIME",
	TypeEPATH:        "EPATH",
	TypeENGUNIT:      "ENGUNIT",
	TypeSTRINGI:      "STRINGI",
	TypeAbbrevStruct: "ABBREV_STRUCT",
	TypeAbbrevArray:  "ABBREV_ARRAY",
	TypeStruct:       "STRUCT",
	TypeArray:        "ARRAY",
}

func (c TypeCode) String() string {
	if name, ok := typeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))
}

// ParseTypeCode returns the type code for a type name such as "UINT".
func ParseTypeCode(name string) (TypeCode, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for code, n := range typeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

type numericKind uint8

const (
	kindUnsigned numericKind = iota
	kindSigned
	kindFloat
)

type scalarInfo struct {
	width int
	kind  numericKind
}

// scalars lists every fixed-width elementary type. Time and date types are
// carried as the integers they are defined over.
var scalars = map[TypeCode]scalarInfo{
	TypeSINT:      {1, kindSigned},
	TypeINT:       {2, kindSigned},
	TypeDINT:      {4, kindSigned},
	TypeLINT:      {8, kindSigned},
	TypeUSINT:     {1, kindUnsigned},
	TypeUINT:      {2, kindUnsigned},
	TypeUDINT:     {4, kindUnsigned},
	TypeULINT:     {8, kindUnsigned},
	TypeREAL:      {4, kindFloat},
	TypeLREAL:     {8, kindFloat},
	TypeBYTE:      {1, kindUnsigned},
	TypeWORD:      {2, kindUnsigned},
	TypeDWORD:     {4, kindUnsigned},
	TypeLWORD:     {8, kindUnsigned},
	TypeSTIME:     {4, kindSigned},
	TypeDATE:      {2, kindUnsigned},
	TypeTIMEOFDAY: {4, kindUnsigned},
	TypeFTIME:     {4, kindSigned},
	TypeLTIME:     {8, kindSigned},
	TypeITIME:     {2, kindSigned},
	TypeTIME:      {4, kindSigned},
	TypeENGUNIT:   {2, kindUnsigned},
}

// DataType describes the shape of a value on the wire. The set of
// implementations is closed: Elementary, Bool, EPathType, Struct, Array,
// AbbrevArray, AbbrevStruct, Placeholder, Transform and Unknown.
type DataType interface {
	// Code returns the type code, or zero for descriptors with no wire code.
	Code() TypeCode
	String() string
	dataType()
}

// Elementary is a fixed-width numeric type or one of the length-prefixed
// string types (STRING, STRING2, SHORT_STRING, STRINGN).
type Elementary struct {
	Type TypeCode
}

func (e Elementary) Code() TypeCode { return e.Type }
func (e Elementary) String() string { return e.Type.String() }
func (Elementary) dataType()        {}

// Bool is a single bit of the integer at the current offset. It never
// advances the cursor: the integer that carries the bit is a separate
// member and must follow the BOOL members that alias it. When encoding, the
// BOOL values take precedence over the same bits of the host value.
type Bool struct {
	Bit uint8
}

func (Bool) Code() TypeCode { return TypeBOOL }
func (b Bool) String() string {
	if b.Bit == 0 {
		return "BOOL"
	}
	return fmt.Sprintf("BOOL(bit %d)", b.Bit)
}
func (Bool) dataType() {}

// hostWidth returns the width of the integer carrying the bit.
func (b Bool) hostWidth() int {
	switch {
	case b.Bit < 8:
		return 1
	case b.Bit < 16:
		return 2
	case b.Bit < 32:
		return 4
	case b.Bit < 64:
		return 8
	}
	assertf("BOOL bit position %d out of range", b.Bit)
	return 0
}

// Sentinel lengths for EPathType.
const (
	// PathRest decodes segments until the end of the buffer.
	PathRest = -1
	// PathSingle decodes exactly one segment.
	PathSingle = -2
)

// EPathType is a field holding an encoded path. Length is a byte count, or
// PathRest or PathSingle.
type EPathType struct {
	Padded bool
	Length int
}

func (EPathType) Code() TypeCode { return TypeEPATH }
func (p EPathType) String() string {
	switch p.Length {
	case PathRest:
		return "EPATH(rest)"
	case PathSingle:
		return "EPATH(single)"
	}
	return fmt.Sprintf("EPATH(%d)", p.Length)
}
func (EPathType) dataType() {}

// DecodeHook is consulted before each struct member is decoded or encoded.
// values holds the members already processed. A non-nil result replaces the
// member template for this call only.
type DecodeHook func(values []any, next DataType) DataType

// Struct is an ordered list of members. It decodes to []any.
type Struct struct {
	Members []DataType
	Hook    DecodeHook
}

func (Struct) Code() TypeCode { return TypeStruct }
func (s Struct) String() string {
	names := make([]string, len(s.Members))
	for i, m := range s.Members {
		names[i] = m.String()
	}
	return "STRUCT{" + strings.Join(names, ", ") + "}"
}
func (Struct) dataType() {}

// Array has inclusive bounds and decodes to []any of Upper-Lower+1 items.
type Array struct {
	Item  DataType
	Lower int
	Upper int
}

func (Array) Code() TypeCode { return TypeArray }
func (a Array) String() string {
	return fmt.Sprintf("ARRAY[%d..%d] OF %s", a.Lower, a.Upper, a.Item)
}
func (Array) dataType() {}

func (a Array) count() (int, error) {
	n := a.Upper - a.Lower + 1
	if n < 0 {
		return 0, invalidf("array bounds [%d..%d]", a.Lower, a.Upper)
	}
	return n, nil
}

// AbbrevArray is an array without bounds. With ToEnd set it decodes items
// until the buffer is exhausted; otherwise it decodes Length items.
type AbbrevArray struct {
	Item   DataType
	Length int
	ToEnd  bool
}

func (AbbrevArray) Code() TypeCode { return TypeAbbrevArray }
func (a AbbrevArray) String() string {
	if a.ToEnd {
		return fmt.Sprintf("ABBREV_ARRAY[*] OF %s", a.Item)
	}
	return fmt.Sprintf("ABBREV_ARRAY[%d] OF %s", a.Length, a.Item)
}
func (AbbrevArray) dataType() {}

// AbbrevStruct stands in for a structure known only by the CRC of its
// layout. It is never expanded.
type AbbrevStruct struct {
	CRC uint16
}

func (AbbrevStruct) Code() TypeCode   { return TypeAbbrevStruct }
func (a AbbrevStruct) String() string { return fmt.Sprintf("ABBREV_STRUCT(0x%04X)", a.CRC) }
func (AbbrevStruct) dataType()        {}

// OpaqueStruct is the value decoded for an AbbrevStruct member.
type OpaqueStruct struct {
	CRC uint16
}

// Placeholder is a struct member whose shape depends on the value of the
// member before it. It must be resolved before the decoder reaches it.
type Placeholder struct {
	Resolve func(prior any) DataType
}

func (Placeholder) Code() TypeCode { return 0 }
func (Placeholder) String() string { return "PLACEHOLDER" }
func (Placeholder) dataType()      {}

// Transform maps the decoded value of Inner to an external value, and back
// before encoding. Wire overrides the reported type code when non-zero.
type Transform struct {
	Inner  DataType
	Decode func(raw any) (any, error)
	Encode func(value any) (any, error)
	Wire   TypeCode
}

func (t Transform) Code() TypeCode {
	if t.Wire != 0 {
		return t.Wire
	}
	return t.Inner.Code()
}
func (t Transform) String() string {
	if t.Wire != 0 {
		return t.Wire.String()
	}
	return "TRANSFORM(" + t.Inner.String() + ")"
}
func (Transform) dataType() {}

// Unknown is a type code reported by a device that this package cannot
// decode or encode. Both directions fail with ErrNotImplemented.
type Unknown struct {
	Type TypeCode
}

func (u Unknown) Code() TypeCode { return u.Type }
func (u Unknown) String() string { return "UNKNOWN(" + u.Type.String() + ")" }
func (Unknown) dataType()        {}

// Descriptors for the elementary types.
var (
	BOOL        DataType = Bool{}
	SINT        DataType = Elementary{TypeSINT}
	INT         DataType = Elementary{TypeINT}
	DINT        DataType = Elementary{TypeDINT}
	LINT        DataType = Elementary{TypeLINT}
	USINT       DataType = Elementary{TypeUSINT}
	UINT        DataType = Elementary{TypeUINT}
	UDINT       DataType = Elementary{TypeUDINT}
	ULINT       DataType = Elementary{TypeULINT}
	REAL        DataType = Elementary{TypeREAL}
	LREAL       DataType = Elementary{TypeLREAL}
	BYTE        DataType = Elementary{TypeBYTE}
	WORD        DataType = Elementary{TypeWORD}
	DWORD       DataType = Elementary{TypeDWORD}
	LWORD       DataType = Elementary{TypeLWORD}
	STRING      DataType = Elementary{TypeSTRING}
	STRING2     DataType = Elementary{TypeSTRING2}
	SHORTSTRING DataType = Elementary{TypeSHORTSTRING}
	STRINGN     DataType = Elementary{TypeSTRINGN}
	STRINGI     DataType = stringI()
)

// TypeFor returns the descriptor for an elementary type code.
func TypeFor(code TypeCode) (DataType, bool) {
	switch code {
	case TypeBOOL:
		return BOOL, true
	case TypeEPATH:
		return EPathType{Padded: true, Length: PathRest}, true
	case TypeSTRINGI:
		return STRINGI, true
	case TypeSTRING, TypeSTRING2, TypeSHORTSTRING, TypeSTRINGN:
		return Elementary{code}, true
	}
	if _, ok := scalars[code]; ok {
		return Elementary{code}, true
	}
	return Unknown{code}, false
}

// ArrayOf returns an abbreviated array of n items.
func ArrayOf(item DataType, n int) AbbrevArray {
	return AbbrevArray{Item: item, Length: n}
}

// ArrayToEnd returns an abbreviated array that runs to the end of the buffer.
func ArrayToEnd(item DataType) AbbrevArray {
	return AbbrevArray{Item: item, ToEnd: true}
}

// CountedBy returns a placeholder resolved to an abbreviated array of item,
// sized by the integer value of the preceding member.
func CountedBy(item DataType) Placeholder {
	return Placeholder{Resolve: func(prior any) DataType {
		n, ok := toInt64(prior)
		if !ok {
			assertf("array count %T is not an integer", prior)
		}
		return ArrayOf(item, int(n))
	}}
}
