package pccc

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want Address
	}{
		{"N7:0", Address{FileType: FileTypeInteger, FileNumber: 7, Bit: -1}},
		{"n10:5", Address{FileType: FileTypeInteger, FileNumber: 10, Element: 5, Bit: -1}},
		{"B3:1/5", Address{FileType: FileTypeBit, FileNumber: 3, Element: 1, Bit: 5}},
		{"F8:10", Address{FileType: FileTypeFloat, FileNumber: 8, Element: 10, Bit: -1}},
		{"L9:2", Address{FileType: FileTypeLong, FileNumber: 9, Element: 2, Bit: -1}},
		{"ST12:1", Address{FileType: FileTypeString, FileNumber: 12, Element: 1, Bit: -1}},
		{"T4:2.ACC", Address{FileType: FileTypeTimer, FileNumber: 4, Element: 2, SubElement: 2, HasSub: true, Bit: -1}},
		{"T4:0.DN", Address{FileType: FileTypeTimer, FileNumber: 4, HasSub: true, Bit: 13}},
		{"C5:1.PRE", Address{FileType: FileTypeCounter, FileNumber: 5, Element: 1, SubElement: 1, HasSub: true, Bit: -1}},
		{"R6:0.POS", Address{FileType: FileTypeControl, FileNumber: 6, SubElement: 2, HasSub: true, Bit: -1}},
		{"O:0/3", Address{FileType: FileTypeOutput, Bit: 3}},
		{"I:1", Address{FileType: FileTypeInput, FileNumber: 1, Element: 1, Bit: -1}},
		{"S2:4", Address{FileType: FileTypeStatus, FileNumber: 2, Element: 4, Bit: -1}},
		{" N300:1000 ", Address{FileType: FileTypeInteger, FileNumber: 300, Element: 1000, Bit: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAddress_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"X7:0",
		"N7",
		"N:0",
		"N7:",
		"N7:x",
		"B3:0/16",
		"N7:0.ACC",
		"T4:0.FOO",
		"O3:0",
		"N70000:0",
	} {
		if _, err := ParseAddress(in); err == nil {
			t.Errorf("ParseAddress(%q) error = nil, want error", in)
		}
	}
}

func TestAddress_String(t *testing.T) {
	for _, in := range []string{"N7:0", "B3:1/5", "T4:2.ACC", "T4:0.DN", "R6:3.LEN", "O:0/3", "S:4", "ST9:0"} {
		a, err := ParseAddress(in)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", in, err)
		}
		if got := a.String(); got != in {
			t.Errorf("String() = %q, want %q", got, in)
		}
	}
}

func TestAddress_ReadSize(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"N7:0", 2},
		{"F8:0", 4},
		{"L9:0", 4},
		{"T4:0", 6},
		{"T4:0.ACC", 2},
		{"B3:0/1", 2},
		{"ST9:0", 84},
	}
	for _, tt := range tests {
		a, err := ParseAddress(tt.in)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", tt.in, err)
		}
		if got := a.ReadSize(); got != tt.want {
			t.Errorf("ReadSize(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
