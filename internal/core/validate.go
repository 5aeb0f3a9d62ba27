package core

import (
	"fmt"
	"regexp"
)

// identifierRe matches the names this module accepts for tables and
// attributes before name encoding takes over (§4.1 derives
// a store-safe identifier separately; this just bounds what a schema author
// may write).
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	syntheticTid     = "_tid"
	syntheticDeleted = "_deleted"
)

// Validate checks every invariant from §3.2, synthesizes "_tid"/"_deleted"
// when the schema declares secondary indexes without a timeuuid range tail,
// and expands each secondary index so it carries the full data-table primary
// key. It mutates s in place and must run before the schema is handed to
// the query builder or persisted to a meta row; running it again on an
// already-validated schema changes nothing.
func (s *Schema) Validate() error {
	if err := s.validateRequiredFields(); err != nil {
		return err
	}
	if err := s.validateAttributeTypes(); err != nil {
		return err
	}
	if err := s.validatePrimaryIndex(); err != nil {
		return err
	}

	s.synthesizeTid()

	if err := s.validateSecondaryIndexes(); err != nil {
		return err
	}
	s.expandSecondaryIndexes()

	return nil
}

func (s *Schema) validateRequiredFields() error {
	if s == nil {
		return fmt.Errorf("%w: schema is nil", ErrInvalidSchema)
	}
	if s.Domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidSchema)
	}
	if s.Table == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidSchema)
	}
	if !identifierRe.MatchString(s.Table) {
		return fmt.Errorf("%w: table %q is not a valid identifier", ErrInvalidSchema, s.Table)
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("%w: schema declares no attributes", ErrInvalidSchema)
	}
	if len(s.Index) == 0 {
		return fmt.Errorf("%w: schema declares no index", ErrInvalidSchema)
	}
	if s.Options.StorageClass == "" || s.Options.DurabilityLevel == "" {
		s.Options = DefaultOptions()
	}
	return nil
}

func (s *Schema) validateAttributeTypes() error {
	for name, t := range s.Attributes {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("%w: attribute %q is not a valid identifier", ErrInvalidSchema, name)
		}
		if !ValidAttributeType(t) {
			return fmt.Errorf("%w: attribute %q has unknown type %q", ErrInvalidSchema, name, t)
		}
	}
	return nil
}

// validatePrimaryIndex enforces: exactly one hash, zero or more range,
// static columns only when a range exists, every element defined in
// attributes, and uniqueness of (hash, range...) — which for a declarative
// schema means no attribute appears twice in the index.
func (s *Schema) validatePrimaryIndex() error {
	var hashCount int
	seen := make(map[string]bool, len(s.Index))
	hasRange := false

	for _, e := range s.Index {
		if _, ok := s.Attributes[e.Attribute]; !ok {
			return fmt.Errorf("%w: index element %q is not a declared attribute", ErrInvalidSchema, e.Attribute)
		}
		if seen[e.Attribute] {
			return fmt.Errorf("%w: attribute %q appears more than once in the index", ErrInvalidSchema, e.Attribute)
		}
		seen[e.Attribute] = true

		switch e.Role {
		case RoleHash:
			hashCount++
		case RoleRange:
			hasRange = true
			if e.Order != "" && e.Order != OrderAsc && e.Order != OrderDesc {
				return fmt.Errorf("%w: range element %q has invalid order %q", ErrInvalidSchema, e.Attribute, e.Order)
			}
		case RoleStatic:
			// validated for range-dependency below
		default:
			return fmt.Errorf("%w: index element %q has invalid role %q", ErrInvalidSchema, e.Attribute, e.Role)
		}
	}

	if hashCount != 1 {
		return fmt.Errorf("%w: exactly one hash element is required, got %d", ErrInvalidSchema, hashCount)
	}

	for _, e := range s.Index {
		if e.Role == RoleStatic && !hasRange {
			return fmt.Errorf("%w: static attribute %q requires at least one range element", ErrInvalidSchema, e.Attribute)
		}
	}

	return nil
}

// synthesizeTid implements §3.2's "_tid"/"_deleted" synthesis rule: if any
// secondary index exists and the primary index's range tail is not already
// a timeuuid, two synthetic attributes are added to the data-table schema
// and "_tid" is appended as the last range component.
func (s *Schema) synthesizeTid() {
	if len(s.SecondaryIndexes) == 0 {
		return
	}
	if s.HasTimeuuidRangeTail() {
		return
	}

	if s.Attributes == nil {
		s.Attributes = map[string]AttributeType{}
	}
	s.Attributes[syntheticTid] = TypeTimeUUID
	s.Attributes[syntheticDeleted] = TypeTimeUUID
	s.Index = append(s.Index, IndexElement{Attribute: syntheticTid, Role: RoleRange})
	s.synthesizedTid = true
}

// validateSecondaryIndexes enforces the element-role and attribute-existence
// rules for each declared secondary index, before expansion adds the
// derived primary-key and _tid/_deleted columns.
func (s *Schema) validateSecondaryIndexes() error {
	for name, idx := range s.SecondaryIndexes {
		if idx == nil || len(idx.Elements) == 0 {
			return fmt.Errorf("%w: secondary index %q has no elements", ErrInvalidSchema, name)
		}
		var hashCount int
		for _, e := range idx.Elements {
			switch e.Role {
			case RoleHash:
				hashCount++
			case RoleRange, RoleProj:
				// validated for attribute presence below; proj attributes may
				// be attributes not on the primary index.
			default:
				return fmt.Errorf("%w: secondary index %q element %q has invalid role %q",
					ErrInvalidSchema, name, e.Attribute, e.Role)
			}
			if _, ok := s.Attributes[e.Attribute]; !ok {
				return fmt.Errorf("%w: secondary index %q references undeclared attribute %q",
					ErrInvalidSchema, name, e.Attribute)
			}
		}
		if hashCount != 1 {
			return fmt.Errorf("%w: secondary index %q requires exactly one hash element, got %d",
				ErrInvalidSchema, name, hashCount)
		}
		if idx.Name == "" {
			idx.Name = name
		}
	}
	return nil
}

// expandSecondaryIndexes implements §4.5.1: every secondary-index row must
// carry the data table's full primary key (appended as trailing range
// components when not already present), and when the primary's range tail
// is not a timeuuid, the index also gets a synthetic _tid range element.
// The index table's _deleted column is not an element; the query builder
// adds it when it creates the index table.
func (s *Schema) expandSecondaryIndexes() {
	pk := s.PrimaryKeyAttributes()
	tidTail := s.HasTimeuuidRangeTail()

	for _, idx := range s.SecondaryIndexes {
		present := make(map[string]bool, len(idx.Elements))
		for _, e := range idx.Elements {
			present[e.Attribute] = true
		}

		for _, pkAttr := range pk {
			if present[pkAttr] {
				continue
			}
			idx.Elements = append(idx.Elements, IndexElement{Attribute: pkAttr, Role: RoleRange})
			present[pkAttr] = true
		}

		if !tidTail && !present[syntheticTid] {
			idx.Elements = append(idx.Elements, IndexElement{Attribute: syntheticTid, Role: RoleRange})
			present[syntheticTid] = true
		}
	}
}

// IndexAttributes returns the hash+range attribute names of an (already
// expanded) secondary index — the set used to look up or key an index row,
// per §4.5.1's "indexAttributes(I)".
func (idx *SecondaryIndex) IndexAttributes() []string {
	var out []string
	for _, e := range idx.Elements {
		if e.Role == RoleHash || e.Role == RoleRange {
			out = append(out, e.Attribute)
		}
	}
	return out
}

// ProjectedAttributes returns the non-key attributes a secondary index
// copies from the data table.
func (idx *SecondaryIndex) ProjectedAttributes() []string {
	var out []string
	for _, e := range idx.Elements {
		if e.Role == RoleProj {
			out = append(out, e.Attribute)
		}
	}
	return out
}

// HasDeletedColumn reports whether the index carries a synthetic _deleted
// marker — true whenever the data table got synthesized _tid/_deleted, since
// the two are always added together.
func (s *Schema) HasDeletedColumn() bool {
	return s.synthesizedTid
}
