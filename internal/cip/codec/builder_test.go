package codec

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestPathBuilder_Bytes(t *testing.T) {
	tests := []struct {
		name string
		b    *PathBuilder
		want []byte
	}{
		{
			name: "message router",
			b:    NewPath().Class(0x02).Instance(0x01),
			want: []byte{0x20, 0x02, 0x24, 0x01},
		},
		{
			name: "16-bit instance padded",
			b:    NewPath().Class(0x6B).Instance(0x0100).Attribute(1),
			want: []byte{0x20, 0x6B, 0x25, 0x00, 0x00, 0x01, 0x30, 0x01},
		},
		{
			name: "16-bit instance packed",
			b:    NewPackedPath().Class(0x6B).Instance(0x0100),
			want: []byte{0x20, 0x6B, 0x25, 0x00, 0x01},
		},
		{
			name: "route to slot",
			b:    NewPath().Port(1, 0).Class(0x02).Instance(1),
			want: []byte{0x01, 0x00, 0x20, 0x02, 0x24, 0x01},
		},
		{
			name: "connection point",
			b:    NewPath().Class(0x04).Instance(1).ConnectionPoint(0x65),
			want: []byte{0x20, 0x04, 0x24, 0x01, 0x2C, 0x65},
		},
		{
			name: "tag with index",
			b:    NewPath().Tag("Tag[3]"),
			want: []byte{0x91, 0x03, 'T', 'a', 'g', 0x00, 0x28, 0x03},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := tt.b.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := path.Bytes(); !bytes.Equal(got, tt.want) {
				t.Errorf("Bytes = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestPathBuilder_KeepsFirstError(t *testing.T) {
	_, err := NewPath().Class(70000).Instance(1).Symbol("").Build()
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Build error = %v, want ErrInvalidValue", err)
	}

	b := NewPath().Class(1)
	first, _ := b.Build()
	b.Instance(2)
	if len(first.Segments) != 1 {
		t.Errorf("built path changed after builder reuse: %v", first)
	}
}

func TestParseTag(t *testing.T) {
	member := func(v uint32) Segment { return MustLogical(MemberID, v) }
	tests := []struct {
		tag  string
		want []Segment
	}{
		{"Counter", []Segment{MustANSISymbol("Counter")}},
		{"Program:Main.Recipe[3].Temp", []Segment{
			MustANSISymbol("Program:Main"), MustANSISymbol("Recipe"), member(3), MustANSISymbol("Temp"),
		}},
		{"Grid[1, 300]", []Segment{MustANSISymbol("Grid"), member(1), member(300)}},
		{"Arr[2].Bits", []Segment{MustANSISymbol("Arr"), member(2), MustANSISymbol("Bits")}},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseTag(tt.tag)
			if err != nil {
				t.Fatalf("ParseTag: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseTag = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTag_Invalid(t *testing.T) {
	for _, tag := range []string{"", "  ", "A.", "A..B", ".A", "A[", "A[x]", "A[1]B", "A[70000]", "[1]"} {
		t.Run(tag, func(t *testing.T) {
			if _, err := ParseTag(tag); !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("ParseTag(%q) error = %v, want ErrInvalidValue", tag, err)
			}
		})
	}
}
