package pccc

import (
	"fmt"
	"strconv"
	"strings"
)

// FileType is the data table file type carried in typed logical commands.
type FileType uint8

const (
	FileTypeStatus  FileType = 0x84
	FileTypeBit     FileType = 0x85
	FileTypeTimer   FileType = 0x86
	FileTypeCounter FileType = 0x87
	FileTypeControl FileType = 0x88
	FileTypeInteger FileType = 0x89
	FileTypeFloat   FileType = 0x8A
	FileTypeOutput  FileType = 0x8B
	FileTypeInput   FileType = 0x8C
	FileTypeString  FileType = 0x8D
	FileTypeASCII   FileType = 0x8E
	FileTypeLong    FileType = 0x91
)

type fileInfo struct {
	prefix  string
	size    int // bytes per element
	defFile int // fixed file number, or -1
	subs    []string
}

// Structured elements are three words; the named bits live in word 0.
var fileTypes = map[FileType]fileInfo{
	FileTypeOutput:  {"O", 2, 0, nil},
	FileTypeInput:   {"I", 2, 1, nil},
	FileTypeStatus:  {"S", 2, 2, nil},
	FileTypeBit:     {"B", 2, -1, nil},
	FileTypeTimer:   {"T", 6, -1, []string{"CTL", "PRE", "ACC"}},
	FileTypeCounter: {"C", 6, -1, []string{"CTL", "PRE", "ACC"}},
	FileTypeControl: {"R", 6, -1, []string{"CTL", "LEN", "POS"}},
	FileTypeInteger: {"N", 2, -1, nil},
	FileTypeFloat:   {"F", 4, -1, nil},
	FileTypeString:  {"ST", 84, -1, nil},
	FileTypeASCII:   {"A", 2, -1, nil},
	FileTypeLong:    {"L", 4, -1, nil},
}

// Control-word bit names of structured elements.
var controlBits = map[FileType]map[string]int8{
	FileTypeTimer:   {"EN": 15, "TT": 14, "DN": 13},
	FileTypeCounter: {"CU": 15, "CD": 14, "DN": 13, "OV": 12, "UN": 11},
	FileTypeControl: {"EN": 15, "EU": 14, "DN": 13, "EM": 12, "ER": 11, "UL": 10, "IN": 9, "FD": 8},
}

// ElementSize returns the bytes per element, or 0 for an unknown type.
func (ft FileType) ElementSize() int { return fileTypes[ft].size }

func (ft FileType) String() string {
	if info, ok := fileTypes[ft]; ok {
		return info.prefix
	}
	return fmt.Sprintf("FileType(0x%02X)", uint8(ft))
}

// Address is a parsed data table address such as N7:0, B3:1/5 or T4:2.ACC.
// Bit is -1 when no bit is addressed.
type Address struct {
	FileType   FileType
	FileNumber uint16
	Element    uint16
	SubElement uint16
	HasSub     bool
	Bit        int8
}

// ParseAddress parses the SLC/MicroLogix address notation.
func ParseAddress(s string) (Address, error) {
	raw := s
	s = strings.ToUpper(strings.TrimSpace(s))
	a := Address{Bit: -1}

	var info fileInfo
	found := false
	// ST must be tried before S.
	for _, ft := range []FileType{FileTypeString, FileTypeOutput, FileTypeInput, FileTypeStatus,
		FileTypeBit, FileTypeTimer, FileTypeCounter, FileTypeControl, FileTypeInteger,
		FileTypeFloat, FileTypeASCII, FileTypeLong} {
		if p := fileTypes[ft].prefix; strings.HasPrefix(s, p) {
			a.FileType, info, found = ft, fileTypes[ft], true
			s = s[len(p):]
			break
		}
	}
	if !found {
		return Address{}, fmt.Errorf("address %q: unknown file type", raw)
	}

	fileNum, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing ':'", raw)
	}
	switch {
	case fileNum == "" && info.defFile >= 0:
		a.FileNumber = uint16(info.defFile)
	case fileNum == "":
		return Address{}, fmt.Errorf("address %q: missing file number", raw)
	default:
		n, err := strconv.ParseUint(fileNum, 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("address %q: file number: %w", raw, err)
		}
		if info.defFile >= 0 && int(n) != info.defFile {
			return Address{}, fmt.Errorf("address %q: %s is always file %d", raw, info.prefix, info.defFile)
		}
		a.FileNumber = uint16(n)
	}

	elem, suffix := rest, ""
	if i := strings.IndexAny(rest, "/."); i >= 0 {
		elem, suffix = rest[:i], rest[i:]
	}
	n, err := strconv.ParseUint(elem, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: element: %w", raw, err)
	}
	a.Element = uint16(n)

	switch {
	case suffix == "":
	case suffix[0] == '/':
		bit, err := strconv.ParseUint(suffix[1:], 10, 8)
		if err != nil || bit > 15 {
			return Address{}, fmt.Errorf("address %q: bit must be 0..15", raw)
		}
		a.Bit = int8(bit)
	case info.subs == nil:
		return Address{}, fmt.Errorf("address %q: %s elements have no sub-elements", raw, info.prefix)
	default:
		name := suffix[1:]
		a.HasSub = true
		if bit, ok := controlBits[a.FileType][name]; ok {
			a.Bit = bit
			break
		}
		idx := -1
		for i, sub := range info.subs {
			if sub == name {
				idx = i
			}
		}
		if idx < 0 {
			return Address{}, fmt.Errorf("address %q: unknown sub-element %q", raw, name)
		}
		a.SubElement = uint16(idx)
	}
	return a, nil
}

func (a Address) String() string {
	info := fileTypes[a.FileType]
	var b strings.Builder
	b.WriteString(info.prefix)
	if info.defFile < 0 {
		b.WriteString(strconv.Itoa(int(a.FileNumber)))
	}
	fmt.Fprintf(&b, ":%d", a.Element)
	switch {
	case a.HasSub && a.Bit >= 0:
		for name, bit := range controlBits[a.FileType] {
			if bit == a.Bit {
				b.WriteString("." + name)
			}
		}
	case a.HasSub:
		b.WriteString("." + info.subs[a.SubElement])
	case a.Bit >= 0:
		fmt.Fprintf(&b, "/%d", a.Bit)
	}
	return b.String()
}

// ReadSize returns the bytes a typed read of a transfers: one word for a
// sub-element or bit, otherwise one whole element.
func (a Address) ReadSize() int {
	if a.HasSub || a.Bit >= 0 {
		return 2
	}
	return a.FileType.ElementSize()
}
