// Package catalog provides named CIP requests loaded from YAML.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/cip/spec"
)

// Category groups entries for listing.
type Category string

const (
	CategoryIdentity   Category = "identity"
	CategoryDataAccess Category = "data_access"
	CategoryConnection Category = "connection"
	CategoryTunnel     Category = "tunnel" // Modbus and PCCC objects
)

// PathSpec names the object a request addresses: either a logical
// class/instance/attribute/member chain or a tag name.
type PathSpec struct {
	Class     uint32
	Instance  uint32
	Attribute uint32
	Member    uint32
	Tag       string // e.g. "Program:Main.Recipe[3].Temp"
}

// EPath builds the padded request path. Zero instance, attribute and
// member values are left out.
func (p PathSpec) EPath() (codec.EPath, error) {
	b := codec.NewPath()
	if p.Tag != "" {
		return b.Tag(p.Tag).Build()
	}
	b.Class(p.Class)
	if p.Instance != 0 {
		b.Instance(p.Instance)
	}
	if p.Attribute != 0 {
		b.Attribute(p.Attribute)
	}
	if p.Member != 0 {
		b.Member(p.Member)
	}
	return b.Build()
}

// Entry represents a single catalog request.
type Entry struct {
	Key         string
	Name        string
	Service     protocol.ServiceCode
	Category    Category
	Path        PathSpec
	Data        []byte
	Response    string // reply data type, e.g. "UINT", "USINT[2]", "SINT[]"; empty for raw bytes
	Description string
}

// ResponseType returns the descriptor named by Response, or nil when the
// reply data is kept as raw bytes.
func (e *Entry) ResponseType() (codec.DataType, error) {
	return ParseType(e.Response)
}

// Request builds the CIP request for the entry.
func (e *Entry) Request() (*protocol.Request, error) {
	path, err := e.Path.EPath()
	if err != nil {
		return nil, fmt.Errorf("entry %q: path: %w", e.Key, err)
	}
	dt, err := e.ResponseType()
	if err != nil {
		return nil, fmt.Errorf("entry %q: response: %w", e.Key, err)
	}
	req := protocol.NewRequest(e.Service, path, append([]byte(nil), e.Data...))
	if dt != nil {
		req = req.WithType(dt)
	}
	return req, nil
}

// Label returns the service label the entry's request carries on the wire.
func (e *Entry) Label() string {
	path, err := e.Path.EPath()
	if err != nil {
		return spec.ServiceName(e.Service)
	}
	label, _ := spec.LabelService(e.Service, spec.TargetOf(path), false)
	return label
}

// ParseType parses a type name such as "UINT". A "[n]" suffix makes an
// array of n items and "[]" an array running to the end of the data.
func ParseType(name string) (codec.DataType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	item, count, isArray := name, "", false
	if i := strings.IndexByte(name, '['); i >= 0 {
		if !strings.HasSuffix(name, "]") {
			return nil, fmt.Errorf("type %q: unterminated array suffix", name)
		}
		item, count, isArray = name[:i], name[i+1:len(name)-1], true
	}
	code, ok := codec.ParseTypeCode(item)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", item)
	}
	dt, ok := codec.TypeFor(code)
	if !ok {
		return nil, fmt.Errorf("type %q has no descriptor", item)
	}
	if !isArray {
		return dt, nil
	}
	if count == "" {
		return codec.ArrayToEnd(dt), nil
	}
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("type %q: invalid array length %q", name, count)
	}
	return codec.ArrayOf(dt, n), nil
}

// File represents a catalog YAML file.
type File struct {
	Version int      `yaml:"version"`
	Name    string   `yaml:"name"`
	Entries []*Entry `yaml:"entries"`
}

// Validate checks the catalog file for consistency.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", f.Version)
	}

	keys := make(map[string]bool)
	for i, e := range f.Entries {
		if e.Key == "" {
			return fmt.Errorf("entry %d: missing key", i)
		}
		if keys[e.Key] {
			return fmt.Errorf("entry %d: duplicate key %q", i, e.Key)
		}
		keys[e.Key] = true

		if e.Service == 0 {
			return fmt.Errorf("entry %q: missing service", e.Key)
		}
		if e.Path.Tag == "" && e.Path.Class == 0 {
			return fmt.Errorf("entry %q: path needs a class or a tag", e.Key)
		}
		if _, err := e.Request(); err != nil {
			return err
		}
	}

	return nil
}
