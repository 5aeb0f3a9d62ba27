package core

import (
	"encoding/json"
	"fmt"
)

// metaSchema is the on-the-wire shape stored as the "meta" row's JSON value
// (§3.3). It mirrors Schema's exported fields; kept as a distinct type so
// that Schema's unexported synthesizedTid bookkeeping never needs a custom
// MarshalJSON/UnmarshalJSON pair.
type metaSchema struct {
	Domain           string                     `json:"domain"`
	Table            string                     `json:"table"`
	Attributes       map[string]AttributeType   `json:"attributes"`
	Index            []IndexElement             `json:"index"`
	SecondaryIndexes map[string]*SecondaryIndex `json:"secondaryIndexes,omitempty"`
	Options          Options                    `json:"options"`
}

// MarshalMeta serializes the schema for storage in the meta table's
// key='schema' row. Validate must have already run so that synthesized
// attributes and expanded secondary indexes round-trip identically.
func (s *Schema) MarshalMeta() ([]byte, error) {
	m := metaSchema{
		Domain:           s.Domain,
		Table:            s.Table,
		Attributes:       s.Attributes,
		Index:            s.Index,
		SecondaryIndexes: s.SecondaryIndexes,
		Options:          s.Options,
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("core: marshal schema %s.%s: %w", s.Domain, s.Table, err)
	}
	return b, nil
}

// UnmarshalMeta parses a meta-row JSON value back into a Schema. The result
// is already "validated" in the sense that synthesis/expansion already ran
// before it was persisted, so UnmarshalMeta does not re-run Validate — it
// only restores synthesizedTid from the presence of the synthetic columns,
// so HasSyntheticTid() still reports correctly after a cold-start reload.
func UnmarshalMeta(data []byte) (*Schema, error) {
	var m metaSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed meta schema: %v", ErrInvalidSchema, err)
	}
	s := &Schema{
		Domain:           m.Domain,
		Table:            m.Table,
		Attributes:       m.Attributes,
		Index:            m.Index,
		SecondaryIndexes: m.SecondaryIndexes,
		Options:          m.Options,
	}
	if _, ok := s.Attributes[syntheticTid]; ok {
		if _, ok := s.Attributes[syntheticDeleted]; ok {
			s.synthesizedTid = true
		}
	}
	return s, nil
}
