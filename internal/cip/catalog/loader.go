package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tturner/cipstack/internal/cip/protocol"
)

//go:embed core.yaml
var coreYAML []byte

// Parse decodes catalog YAML.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return &file, nil
}

// Load reads a catalog from a YAML file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// LoadAndValidate reads a catalog and validates it.
func LoadAndValidate(path string) (*File, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return file, nil
}

// Save writes a catalog to a YAML file.
func Save(path string, file *File) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}

	return nil
}

// Core returns the built-in catalog.
func Core() *Catalog {
	file, err := Parse(coreYAML)
	if err == nil {
		err = file.Validate()
	}
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog: %v", err))
	}
	return NewCatalog(file)
}

// Open returns the catalog at path, or the built-in catalog when path is
// empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Core(), nil
	}
	file, err := LoadAndValidate(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(file), nil
}

// Catalog provides indexed access to catalog entries.
type Catalog struct {
	file       *File
	byKey      map[string]*Entry
	bySvcCls   map[uint64][]*Entry // (service<<32 | class) -> entries
	byCategory map[Category][]*Entry
}

// NewCatalog creates an indexed catalog from a file.
func NewCatalog(file *File) *Catalog {
	c := &Catalog{
		file:       file,
		byKey:      make(map[string]*Entry),
		bySvcCls:   make(map[uint64][]*Entry),
		byCategory: make(map[Category][]*Entry),
	}

	for _, e := range file.Entries {
		c.byKey[e.Key] = e
		key := svcClsKey(e.Service, e.Path.Class)
		c.bySvcCls[key] = append(c.bySvcCls[key], e)
		c.byCategory[e.Category] = append(c.byCategory[e.Category], e)
	}

	return c
}

func svcClsKey(service protocol.ServiceCode, class uint32) uint64 {
	return uint64(service)<<32 | uint64(class)
}

// Name returns the catalog name.
func (c *Catalog) Name() string {
	return c.file.Name
}

// Lookup finds an entry by key.
func (c *Catalog) Lookup(key string) (*Entry, bool) {
	e, ok := c.byKey[key]
	return e, ok
}

// LookupByServiceClass finds entries by service code and class. Tag
// addressed entries have class 0.
func (c *Catalog) LookupByServiceClass(service protocol.ServiceCode, class uint32) []*Entry {
	return c.bySvcCls[svcClsKey(service, class)]
}

// ListByCategory returns entries filtered by category.
func (c *Catalog) ListByCategory(category Category) []*Entry {
	return c.byCategory[category]
}

// ListAll returns all entries in file order.
func (c *Catalog) ListAll() []*Entry {
	return c.file.Entries
}

// Search finds entries matching query in key, name, or description.
func (c *Catalog) Search(query string) []*Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.file.Entries
	}

	var matches []*Entry
	for _, e := range c.file.Entries {
		if strings.Contains(strings.ToLower(e.Key), query) ||
			strings.Contains(strings.ToLower(e.Name), query) ||
			strings.Contains(strings.ToLower(e.Description), query) ||
			strings.Contains(strings.ToLower(e.Label()), query) {
			matches = append(matches, e)
		}
	}

	return matches
}

// File returns the underlying catalog file.
func (c *Catalog) File() *File {
	return c.file
}
