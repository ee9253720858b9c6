package catalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tturner/cipstack/internal/cip/protocol"
)

// entryYAML is the YAML representation with string hex values.
type entryYAML struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Service     string   `yaml:"service"`
	Category    Category `yaml:"category"`
	Path        pathYAML `yaml:"path"`
	Data        string   `yaml:"data,omitempty"`
	Response    string   `yaml:"response,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

type pathYAML struct {
	Class     string `yaml:"class,omitempty"`
	Instance  string `yaml:"instance,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
	Member    string `yaml:"member,omitempty"`
	Tag       string `yaml:"tag,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Entry.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw entryYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	service, err := parseNumber(raw.Service, 8)
	if err != nil {
		return fmt.Errorf("entry %q: service: %w", raw.Key, err)
	}
	path, err := parsePathYAML(raw.Path)
	if err != nil {
		return fmt.Errorf("entry %q: path: %w", raw.Key, err)
	}
	data, err := DecodeHex(raw.Data)
	if err != nil {
		return fmt.Errorf("entry %q: data: %w", raw.Key, err)
	}

	*e = Entry{
		Key:         raw.Key,
		Name:        raw.Name,
		Service:     protocol.ServiceCode(service),
		Category:    raw.Category,
		Path:        path,
		Data:        data,
		Response:    raw.Response,
		Description: raw.Description,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler for Entry.
func (e Entry) MarshalYAML() (interface{}, error) {
	y := entryYAML{
		Key:         e.Key,
		Name:        e.Name,
		Service:     fmt.Sprintf("0x%02X", uint8(e.Service)),
		Category:    e.Category,
		Path:        marshalPathYAML(e.Path),
		Response:    e.Response,
		Description: e.Description,
	}
	if len(e.Data) > 0 {
		y.Data = strings.ToUpper(hex.EncodeToString(e.Data))
	}
	return y, nil
}

func parsePathYAML(raw pathYAML) (PathSpec, error) {
	p := PathSpec{Tag: strings.TrimSpace(raw.Tag)}
	fields := []struct {
		name string
		text string
		dst  *uint32
	}{
		{"class", raw.Class, &p.Class},
		{"instance", raw.Instance, &p.Instance},
		{"attribute", raw.Attribute, &p.Attribute},
		{"member", raw.Member, &p.Member},
	}
	for _, f := range fields {
		v, err := parseNumber(f.text, 32)
		if err != nil {
			return p, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = uint32(v)
	}
	if p.Tag != "" && p.Class != 0 {
		return p, fmt.Errorf("tag and class are exclusive")
	}
	// Default instance to 1 for logical paths
	if p.Class != 0 && raw.Instance == "" {
		p.Instance = 1
	}
	return p, nil
}

func marshalPathYAML(p PathSpec) pathYAML {
	y := pathYAML{Tag: p.Tag}

	if p.Class != 0 {
		y.Class = fmt.Sprintf("0x%02X", p.Class)
	}
	if p.Instance != 0 && p.Instance != 1 {
		y.Instance = fmt.Sprintf("0x%02X", p.Instance)
	}
	if p.Attribute != 0 {
		y.Attribute = fmt.Sprintf("0x%02X", p.Attribute)
	}
	if p.Member != 0 {
		y.Member = fmt.Sprintf("0x%02X", p.Member)
	}

	return y
}

// parseNumber parses a decimal or 0x-prefixed hex value of the given width.
func parseNumber(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}

	v, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

// DecodeHex decodes hex text. Spaces, colons and a leading 0x are ignored.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}
