package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// PathBuilder builds an EPath fluently. The first error is kept and
// returned by Build; later calls are no-ops.
type PathBuilder struct {
	path EPath
	err  error
}

// NewPath returns a builder for a padded path.
func NewPath() *PathBuilder {
	return &PathBuilder{path: EPath{Padded: true}}
}

// NewPackedPath returns a builder for a packed path.
func NewPackedPath() *PathBuilder {
	return &PathBuilder{path: EPath{Padded: false}}
}

func (b *PathBuilder) add(seg Segment, err error) *PathBuilder {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.path.Segments = append(b.path.Segments, seg)
	return b
}

func (b *PathBuilder) logical(t LogicalType, value uint32) *PathBuilder {
	l, err := NewLogical(t, value)
	return b.add(l, err)
}

// Port adds a port segment.
func (b *PathBuilder) Port(port uint16, link ...byte) *PathBuilder {
	p, err := NewPort(port, link...)
	return b.add(p, err)
}

func (b *PathBuilder) Class(id uint32) *PathBuilder     { return b.logical(ClassID, id) }
func (b *PathBuilder) Instance(id uint32) *PathBuilder  { return b.logical(InstanceID, id) }
func (b *PathBuilder) Attribute(id uint32) *PathBuilder { return b.logical(AttributeID, id) }
func (b *PathBuilder) Member(id uint32) *PathBuilder    { return b.logical(MemberID, id) }
func (b *PathBuilder) ConnectionPoint(id uint32) *PathBuilder {
	return b.logical(ConnectionPoint, id)
}
func (b *PathBuilder) Service(code uint8) *PathBuilder { return b.logical(ServiceID, uint32(code)) }

// Key adds an electronic key segment.
func (b *PathBuilder) Key(key ElectronicKey) *PathBuilder {
	return b.add(NewElectronicKey(key), nil)
}

// Symbol adds an inline symbolic segment.
func (b *PathBuilder) Symbol(name string) *PathBuilder {
	s, err := NewSymbol(name)
	return b.add(s, err)
}

// Segment adds an already built segment.
func (b *PathBuilder) Segment(seg Segment) *PathBuilder {
	if seg == nil {
		return b.add(nil, invalidf("nil segment"))
	}
	return b.add(seg, nil)
}

// Tag adds the segments for a tag name such as "Program:Main.Recipe[3].Temp".
// Dots separate names and bracketed indices become member segments. A
// colon stays part of the name it appears in.
func (b *PathBuilder) Tag(tag string) *PathBuilder {
	segs, err := ParseTag(tag)
	if err != nil {
		return b.add(nil, err)
	}
	for _, s := range segs {
		b.add(s, nil)
	}
	return b
}

// Build returns the path, or the first error recorded.
func (b *PathBuilder) Build() (EPath, error) {
	if b.err != nil {
		return EPath{}, b.err
	}
	return EPath{Padded: b.path.Padded, Segments: append([]Segment(nil), b.path.Segments...)}, nil
}

// ParseTag splits a tag name into ANSI symbol and member segments.
func ParseTag(tag string) ([]Segment, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, invalidf("empty tag name")
	}
	var segs []Segment
	name := func(s string) error {
		if s == "" {
			return invalidf("tag %q has an empty name", tag)
		}
		d, err := NewANSISymbol(s)
		if err != nil {
			return err
		}
		segs = append(segs, d)
		return nil
	}

	rest := tag
	for rest != "" {
		i := strings.IndexAny(rest, ".[")
		if i < 0 {
			if err := name(rest); err != nil {
				return nil, err
			}
			break
		}
		if rest[i] == '.' {
			if err := name(rest[:i]); err != nil {
				return nil, err
			}
			rest = rest[i+1:]
			if rest == "" {
				return nil, invalidf("tag %q ends with a dot", tag)
			}
			continue
		}

		if err := name(rest[:i]); err != nil {
			return nil, err
		}
		end := strings.IndexByte(rest[i:], ']')
		if end < 0 {
			return nil, invalidf("tag %q has an unterminated index", tag)
		}
		for _, field := range strings.Split(rest[i+1:i+end], ",") {
			idx, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: tag %q index %q", ErrInvalidValue, tag, field)
			}
			m, err := NewLogical(MemberID, uint32(idx))
			if err != nil {
				return nil, err
			}
			segs = append(segs, m)
		}
		rest = rest[i+end+1:]
		switch {
		case rest == "":
		case rest[0] == '.':
			rest = rest[1:]
			if rest == "" {
				return nil, invalidf("tag %q ends with a dot", tag)
			}
		default:
			return nil, invalidf("tag %q has %q after an index", tag, rest)
		}
	}
	return segs, nil
}
