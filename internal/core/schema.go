// Package core is the single source of truth for a Rashomon table schema:
// attributes, the primary index (hash/range/static), secondary indexes, and
// the options that control keyspace replication. It also owns validation and
// the JSON representation persisted in each keyspace's meta table.
package core

import (
	"fmt"
	"sort"
	"strings"
)

// AttributeType is an ENUM with all portable attribute data types a Rashomon
// table may declare.
type AttributeType string

const (
	TypeString    AttributeType = "string"
	TypeBlob      AttributeType = "blob"
	TypeBoolean   AttributeType = "boolean"
	TypeDecimal   AttributeType = "decimal"
	TypeDouble    AttributeType = "double"
	TypeVarint    AttributeType = "varint"
	TypeUUID      AttributeType = "uuid"
	TypeTimeUUID  AttributeType = "timeuuid"
	TypeTimestamp AttributeType = "timestamp"
	TypeJSON      AttributeType = "json"
)

// setPrefix marks a set<T> variant of one of the scalar types above, e.g.
// "set<string>".
const (
	setPrefix = "set<"
	setSuffix = ">"
)

// SetOf builds the set<T> type string for a scalar element type.
func SetOf(elem AttributeType) AttributeType {
	return AttributeType(setPrefix + string(elem) + setSuffix)
}

// IsSet reports whether t is a set<T> variant, returning the element type.
func IsSet(t AttributeType) (elem AttributeType, ok bool) {
	s := string(t)
	if !strings.HasPrefix(s, setPrefix) || !strings.HasSuffix(s, setSuffix) {
		return "", false
	}
	return AttributeType(s[len(setPrefix) : len(s)-len(setSuffix)]), true
}

// scalarTypes lists every scalar attribute type a schema may reference,
// either bare or wrapped in set<...>.
var scalarTypes = map[AttributeType]bool{
	TypeString: true, TypeBlob: true, TypeBoolean: true, TypeDecimal: true,
	TypeDouble: true, TypeVarint: true, TypeUUID: true, TypeTimeUUID: true,
	TypeTimestamp: true, TypeJSON: true,
}

// ValidAttributeType reports whether t is a recognized scalar or set<T> type.
func ValidAttributeType(t AttributeType) bool {
	if scalarTypes[t] {
		return true
	}
	if elem, ok := IsSet(t); ok {
		return scalarTypes[elem]
	}
	return false
}

// IndexRole identifies how an index element participates in a table's
// primary index.
type IndexRole string

const (
	RoleHash   IndexRole = "hash"
	RoleRange  IndexRole = "range"
	RoleStatic IndexRole = "static"
	// RoleProj is only valid inside a SecondaryIndex definition: it copies an
	// additional data-table attribute into the index row without making it
	// part of the index's own key.
	RoleProj IndexRole = "proj"
)

// SortOrder controls clustering order for a range element.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// IndexElement is one entry of a primary or secondary index definition.
type IndexElement struct {
	Attribute string    `json:"attribute"`
	Role      IndexRole `json:"role"`
	Order     SortOrder `json:"order,omitempty"`
}

// StorageClass selects the replication strategy for a table's keyspace.
type StorageClass string

const (
	StorageSimple  StorageClass = "simple"
	StorageNetwork StorageClass = "network-topology"
)

// DurabilityLevel maps to the keyspace durable_writes flag.
type DurabilityLevel string

const (
	DurabilityStandard DurabilityLevel = "standard"
	DurabilityLow      DurabilityLevel = "low"
)

// Options controls keyspace-level physical properties.
type Options struct {
	StorageClass    StorageClass    `json:"storageClass,omitempty"`
	DurabilityLevel DurabilityLevel `json:"durabilityLevel,omitempty"`
}

// DefaultOptions returns the replication defaults from §4.3 step 2.
func DefaultOptions() Options {
	return Options{StorageClass: StorageSimple, DurabilityLevel: DurabilityStandard}
}

// SecondaryIndex is a named, ordered list of index elements describing one
// versioned secondary index table.
type SecondaryIndex struct {
	Name     string         `json:"name"`
	Elements []IndexElement `json:"elements"`
}

// Schema is the declarative definition of one logical Rashomon table.
type Schema struct {
	Domain           string                     `json:"domain"`
	Table            string                     `json:"table"`
	Attributes       map[string]AttributeType   `json:"attributes"`
	Index            []IndexElement             `json:"index"`
	SecondaryIndexes map[string]*SecondaryIndex `json:"secondaryIndexes,omitempty"`
	Options          Options                    `json:"options"`

	// synthesizedTid reports whether §3.2's "_tid"/"_deleted" synthetic
	// attributes were added automatically (no timeuuid range tail already
	// present and at least one secondary index declared).
	synthesizedTid bool
}

// HasSyntheticTid reports whether _tid/_deleted were synthesized onto the
// data table rather than supplied explicitly by the author.
func (s *Schema) HasSyntheticTid() bool {
	return s.synthesizedTid
}

// HashAttribute returns the single hash element of the primary index, or ""
// if the schema hasn't been validated yet.
func (s *Schema) HashAttribute() string {
	for _, e := range s.Index {
		if e.Role == RoleHash {
			return e.Attribute
		}
	}
	return ""
}

// RangeAttributes returns the ordered range elements of the primary index.
func (s *Schema) RangeAttributes() []IndexElement {
	var out []IndexElement
	for _, e := range s.Index {
		if e.Role == RoleRange {
			out = append(out, e)
		}
	}
	return out
}

// StaticAttributes returns the static elements of the primary index.
func (s *Schema) StaticAttributes() []IndexElement {
	var out []IndexElement
	for _, e := range s.Index {
		if e.Role == RoleStatic {
			out = append(out, e)
		}
	}
	return out
}

// PrimaryKeyAttributes returns hash followed by range attribute names, in
// declared order — the tuple that must be present in every row and every
// secondary index row (§3.2).
func (s *Schema) PrimaryKeyAttributes() []string {
	out := make([]string, 0, len(s.Index))
	if h := s.HashAttribute(); h != "" {
		out = append(out, h)
	}
	for _, e := range s.RangeAttributes() {
		out = append(out, e.Attribute)
	}
	return out
}

// TidAttribute returns the attribute that plays the role of "_tid": either
// the synthesized "_tid" column, or the pre-existing timeuuid range tail
// that plays that role per §3.2's invariant.
func (s *Schema) TidAttribute() string {
	ranges := s.RangeAttributes()
	if len(ranges) == 0 {
		return ""
	}
	last := ranges[len(ranges)-1]
	if s.Attributes[last.Attribute] == TypeTimeUUID {
		return last.Attribute
	}
	return ""
}

// HasTimeuuidRangeTail reports whether the primary index's last range
// attribute is already a timeuuid, in which case no synthetic "_tid" is
// needed.
func (s *Schema) HasTimeuuidRangeTail() bool {
	return s.TidAttribute() != ""
}

// AttributeNames returns the declared attribute names in sorted order.
// Range over this slice (rather than s.Attributes directly) wherever
// iteration order must be deterministic, e.g. CREATE TABLE column emission.
func (s *Schema) AttributeNames() []string {
	names := make([]string, 0, len(s.Attributes))
	for n := range s.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AttributeIndexNames returns, for every attribute that participates in at
// least one secondary index (as a hash, range, or projected column), the
// sorted list of index names it participates in. The index maintainer's
// repair pass (§4.5.3) uses this to find which indexes to tombstone when an
// attribute's value changes between sibling revisions.
//
// "_tid" and "_deleted" are excluded even when expansion appended them as a
// trailing range element: "_tid" differs between every sibling revision by
// construction, so including it would make the diff fire on every put
// regardless of whether any indexed attribute actually changed.
func (s *Schema) AttributeIndexNames() map[string][]string {
	out := map[string][]string{}
	for name, idx := range s.SecondaryIndexes {
		for _, e := range idx.Elements {
			if e.Attribute == syntheticTid || e.Attribute == syntheticDeleted {
				continue
			}
			out[e.Attribute] = append(out[e.Attribute], name)
		}
	}
	for attr := range out {
		sort.Strings(out[attr])
	}
	return out
}

// FindSecondaryIndex looks up a secondary index by name.
func (s *Schema) FindSecondaryIndex(name string) *SecondaryIndex {
	if s.SecondaryIndexes == nil {
		return nil
	}
	return s.SecondaryIndexes[name]
}

// String returns a short human-readable summary of the schema.
func (s *Schema) String() string {
	return fmt.Sprintf("Schema: %s.%s (%d attributes, %d secondary indexes)",
		s.Domain, s.Table, len(s.Attributes), len(s.SecondaryIndexes))
}
