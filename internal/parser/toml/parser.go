// Package toml parses a declarative Rashomon table schema from a .toml file
// into the canonical core.Schema representation that the rest of the module
// operates on (§3, §4.1's createTable).
package toml

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"rashomon/internal/core"
)

// schemaFile is the top-level TOML document for one table schema.
//
//	domain = "org.wikipedia.en"
//	table  = "pages"
//
//	[attributes]
//	key  = "string"
//	uri  = "string"
//	body = "blob"
//
//	[[index]]
//	attribute = "key"
//	role = "hash"
//
//	[[index]]
//	attribute = "_tid"
//	role = "range"
//	order = "desc"
//
//	[secondaryIndexes.by_uri]
//	[[secondaryIndexes.by_uri.elements]]
//	attribute = "uri"
//	role = "hash"
//
//	[options]
//	storageClass = "simple"
//	durabilityLevel = "standard"
type schemaFile struct {
	Domain           string                         `toml:"domain"`
	Table            string                         `toml:"table"`
	Attributes       map[string]string              `toml:"attributes"`
	Index            []tomlIndexElement             `toml:"index"`
	SecondaryIndexes map[string]tomlSecondaryIndex  `toml:"secondaryIndexes"`
	Options          *tomlOptions                   `toml:"options"`
}

type tomlIndexElement struct {
	Attribute string `toml:"attribute"`
	Role      string `toml:"role"`
	Order     string `toml:"order"`
}

type tomlSecondaryIndex struct {
	Elements []tomlIndexElement `toml:"elements"`
}

type tomlOptions struct {
	StorageClass    string `toml:"storageClass"`
	DurabilityLevel string `toml:"durabilityLevel"`
}

// Parser reads Rashomon TOML schema files.
type Parser struct{}

// NewParser creates a new TOML schema parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens the file at path and parses it as a TOML schema.
func (p *Parser) ParseFile(path string) (*core.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("toml: open file %q: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads TOML content from r and returns the corresponding, validated
// core.Schema.
func (p *Parser) Parse(r io.Reader) (*core.Schema, error) {
	var sf schemaFile
	if _, err := toml.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("toml: decode error: %w", err)
	}

	schema, err := convert(&sf)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// convert maps the raw TOML document onto core.Schema, leaving all semantic
// validation (attribute types, index shape, duplicate names, ...) to
// Schema.Validate so there's exactly one place those rules live.
func convert(sf *schemaFile) (*core.Schema, error) {
	attrs := make(map[string]core.AttributeType, len(sf.Attributes))
	for name, raw := range sf.Attributes {
		attrs[name] = core.AttributeType(raw)
	}

	index := make([]core.IndexElement, 0, len(sf.Index))
	for _, e := range sf.Index {
		index = append(index, convertElement(e))
	}

	var secondary map[string]*core.SecondaryIndex
	if len(sf.SecondaryIndexes) > 0 {
		secondary = make(map[string]*core.SecondaryIndex, len(sf.SecondaryIndexes))
		for name, raw := range sf.SecondaryIndexes {
			elements := make([]core.IndexElement, 0, len(raw.Elements))
			for _, e := range raw.Elements {
				elements = append(elements, convertElement(e))
			}
			secondary[name] = &core.SecondaryIndex{Name: name, Elements: elements}
		}
	}

	opts := core.DefaultOptions()
	if sf.Options != nil {
		if sf.Options.StorageClass != "" {
			opts.StorageClass = core.StorageClass(sf.Options.StorageClass)
		}
		if sf.Options.DurabilityLevel != "" {
			opts.DurabilityLevel = core.DurabilityLevel(sf.Options.DurabilityLevel)
		}
	}

	return &core.Schema{
		Domain:           sf.Domain,
		Table:            sf.Table,
		Attributes:       attrs,
		Index:            index,
		SecondaryIndexes: secondary,
		Options:          opts,
	}, nil
}

func convertElement(e tomlIndexElement) core.IndexElement {
	return core.IndexElement{
		Attribute: e.Attribute,
		Role:      core.IndexRole(e.Role),
		Order:     core.SortOrder(e.Order),
	}
}
