// Package querybuilder compiles typed get/put/delete/createTable/dropTable
// requests into CQL statements and positional parameters (§4.3).
package querybuilder

import (
	"fmt"
	"sort"
	"strings"

	"rashomon/internal/core"
	"rashomon/internal/cql"
	"rashomon/internal/nameenc"
	"rashomon/internal/predicate"
)

// Statement is one CQL statement ready for the driver, paired with its
// positional bind parameters.
type Statement struct {
	CQL    string
	Params []any
}

// ConsistencyLevel is one of the allowlisted consistency names from §4.3/§6.1.
type ConsistencyLevel string

const (
	ConsistencyOne         ConsistencyLevel = "one"
	ConsistencyAll         ConsistencyLevel = "all"
	ConsistencyLocalQuorum ConsistencyLevel = "localQuorum"
	defaultConsistency                      = ConsistencyOne
)

var validConsistency = map[ConsistencyLevel]bool{
	ConsistencyOne: true, ConsistencyAll: true, ConsistencyLocalQuorum: true,
}

// Builder compiles requests against one logical table's schema.
type Builder struct {
	schema   *core.Schema
	dialect  cql.Dialect
	keyspace string
}

// New constructs a Builder for schema, resolving its keyspace name and
// store-family dialect.
func New(schema *core.Schema, dialect cql.Dialect) *Builder {
	return &Builder{
		schema:   schema,
		dialect:  dialect,
		keyspace: nameenc.KeyspaceName(schema.Domain, schema.Table),
	}
}

// Keyspace returns the schema's derived keyspace name.
func (b *Builder) Keyspace() string { return b.keyspace }

func qualified(ks, table string) string {
	return nameenc.QuoteIdentifier(ks) + "." + nameenc.QuoteIdentifier(table)
}

// cqlType maps a portable AttributeType onto its CQL column type.
func cqlType(t core.AttributeType) string {
	if elem, ok := core.IsSet(t); ok {
		return "set<" + cqlType(elem) + ">"
	}
	switch t {
	case core.TypeString:
		return "text"
	case core.TypeBlob:
		return "blob"
	case core.TypeBoolean:
		return "boolean"
	case core.TypeDecimal:
		return "decimal"
	case core.TypeDouble:
		return "double"
	case core.TypeVarint:
		return "varint"
	case core.TypeUUID:
		return "uuid"
	case core.TypeTimeUUID:
		return "timeuuid"
	case core.TypeTimestamp:
		return "timestamp"
	case core.TypeJSON:
		return "text"
	default:
		return "text"
	}
}

func replicationClause(s *core.Schema) string {
	class := "SimpleStrategy"
	switch s.Options.StorageClass {
	case core.StorageNetwork:
		class = "NetworkTopologyStrategy"
	case core.StorageSimple, "":
		class = "SimpleStrategy"
	}
	if class == "NetworkTopologyStrategy" {
		return fmt.Sprintf("{'class': '%s', 'datacenter1': 3}", class)
	}
	return fmt.Sprintf("{'class': '%s', 'replication_factor': 3}", class)
}

func durableWrites(s *core.Schema) string {
	if s.Options.DurabilityLevel == core.DurabilityLow {
		return "false"
	}
	return "true"
}

// CreateTable compiles §4.3's createTable sequence: CREATE KEYSPACE, CREATE
// TABLE for data and meta, CREATE TABLE for each secondary index, and the
// meta row insert. Statements must be executed in order; data/meta creation
// may run in parallel with each other but both must precede the meta insert.
func (b *Builder) CreateTable() ([]Statement, error) {
	var out []Statement

	out = append(out, Statement{
		CQL: fmt.Sprintf(
			"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = %s AND durable_writes = %s;",
			nameenc.QuoteIdentifier(b.keyspace), replicationClause(b.schema), durableWrites(b.schema),
		),
	})

	out = append(out, b.createTableStatement("data", b.schema.Attributes, b.schema.Index))
	out = append(out, b.createMetaTableStatement())

	indexNames := make([]string, 0, len(b.schema.SecondaryIndexes))
	for name := range b.schema.SecondaryIndexes {
		indexNames = append(indexNames, name)
	}
	sort.Strings(indexNames)
	for _, name := range indexNames {
		idx := b.schema.SecondaryIndexes[name]
		attrs, index := indexSchema(b.schema, idx)
		out = append(out, b.createTableStatement(indexTableName(name), attrs, index))
	}

	metaJSON, err := b.schema.MarshalMeta()
	if err != nil {
		return nil, err
	}
	out = append(out, Statement{
		CQL:    fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?);", qualified(b.keyspace, "meta")),
		Params: []any{"schema", string(metaJSON)},
	})

	return out, nil
}

func indexTableName(indexName string) string {
	return "idx_" + indexName + "_ever"
}

// indexSchema derives the attribute map and primary index for a secondary
// index's physical table, per §4.5.1. Elements is already expanded by
// core.Schema.Validate (primary-key tail and _tid appended); the non-key
// _deleted column is added here when the data table has a synthesized _tid.
func indexSchema(data *core.Schema, idx *core.SecondaryIndex) (map[string]core.AttributeType, []core.IndexElement) {
	attrs := make(map[string]core.AttributeType, len(idx.Elements)+2)
	for _, e := range idx.Elements {
		attrs[e.Attribute] = data.Attributes[e.Attribute]
	}
	if data.HasSyntheticTid() {
		attrs["_deleted"] = core.TypeTimeUUID
	}

	index := make([]core.IndexElement, 0, len(idx.Elements))
	for _, e := range idx.Elements {
		if e.Role == core.RoleProj {
			continue
		}
		index = append(index, e)
	}
	return attrs, index
}

func (b *Builder) createMetaTableStatement() Statement {
	return Statement{
		CQL: fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (key text PRIMARY KEY, value text) WITH compaction = {'class': '%s'};",
			qualified(b.keyspace, "meta"), b.dialect.CompactionStrategy(),
		),
	}
}

func (b *Builder) createTableStatement(table string, attrs map[string]core.AttributeType, index []core.IndexElement) Statement {
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	sort.Strings(names)

	var hash, rng, static []string
	roles := make(map[string]core.IndexElement, len(index))
	for _, e := range index {
		roles[e.Attribute] = e
		switch e.Role {
		case core.RoleHash:
			hash = append(hash, e.Attribute)
		case core.RoleRange:
			rng = append(rng, e.Attribute)
		case core.RoleStatic:
			static = append(static, e.Attribute)
		}
	}

	var cols []string
	for _, n := range names {
		def := nameenc.QuoteIdentifier(n) + " " + cqlType(attrs[n])
		if roles[n].Role == core.RoleStatic {
			def += " static"
		}
		cols = append(cols, def)
	}

	pk := append(append([]string{}, hash...), rng...)
	quotedPK := make([]string, len(pk))
	for i, n := range pk {
		quotedPK[i] = nameenc.QuoteIdentifier(n)
	}
	var pkClause string
	if len(hash) == 1 && len(rng) == 0 {
		pkClause = fmt.Sprintf("PRIMARY KEY (%s)", quotedPK[0])
	} else {
		quotedHash := make([]string, len(hash))
		for i, n := range hash {
			quotedHash[i] = nameenc.QuoteIdentifier(n)
		}
		pkClause = fmt.Sprintf("PRIMARY KEY ((%s), %s)", strings.Join(quotedHash, ", "), strings.Join(quotedPK[len(hash):], ", "))
	}
	cols = append(cols, pkClause)

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) WITH compaction = {'class': '%s'}",
		qualified(b.keyspace, table), strings.Join(cols, ", "), b.dialect.CompactionStrategy())

	if order := clusteringOrderClause(rng, roles); order != "" {
		stmt += " AND " + order
	}
	stmt += ";"

	return Statement{CQL: stmt}
}

func clusteringOrderClause(rng []string, roles map[string]core.IndexElement) string {
	var parts []string
	for _, n := range rng {
		if o := roles[n].Order; o != "" {
			parts = append(parts, fmt.Sprintf("%s %s", nameenc.QuoteIdentifier(n), o))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "CLUSTERING ORDER BY (" + strings.Join(parts, ", ") + ")"
}

// DropTable emits the DROP KEYSPACE statement for this logical table.
func (b *Builder) DropTable() Statement {
	return Statement{CQL: fmt.Sprintf("DROP KEYSPACE IF EXISTS %s;", nameenc.QuoteIdentifier(b.keyspace))}
}

// ValidateConsistency resolves a requested consistency level against §6.1's
// allowlist, defaulting to "one" when empty.
func ValidateConsistency(level string) (ConsistencyLevel, error) {
	if level == "" {
		return defaultConsistency, nil
	}
	c := ConsistencyLevel(level)
	if !validConsistency[c] {
		return "", fmt.Errorf("%w: unsupported consistency level %q", core.ErrInvalidQuery, level)
	}
	return c, nil
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// GetRequest is the typed form of §4.3's get(req).
type GetRequest struct {
	// Index names a secondary index; empty targets the data table.
	Index string
	// Attributes is the predicate to apply, already decoded.
	Attributes map[string]predicate.Predicate
	// Proj selects projected columns: nil/"*" means all, otherwise the
	// explicit column list.
	Proj []string
	// OrderBy, when non-empty, must be the primary index's first range
	// attribute; OrderDesc reverses it.
	OrderBy   string
	OrderDesc bool
	Limit     int
	Distinct  bool
}

// Get compiles a get request into a SELECT statement, per §4.3 and §4.5.4's
// index-limit padding.
func (b *Builder) Get(req GetRequest) (Statement, error) {
	table := "data"
	var keyAttrs []string
	if req.Index != "" {
		idx := b.schema.FindSecondaryIndex(req.Index)
		if idx == nil {
			return Statement{}, fmt.Errorf("%w: unknown index %q", core.ErrInvalidQuery, req.Index)
		}
		table = indexTableName(req.Index)
		keyAttrs = idx.IndexAttributes()
	} else {
		keyAttrs = b.schema.PrimaryKeyAttributes()
	}

	if req.Index == "" {
		allowed := make(map[string]bool, len(keyAttrs))
		for _, a := range keyAttrs {
			allowed[a] = true
		}
		for attr := range req.Attributes {
			if !allowed[attr] {
				return Statement{}, fmt.Errorf("%w: attribute %q is not part of the primary key on a non-index read", core.ErrInvalidQuery, attr)
			}
		}
	}

	proj := "*"
	if len(req.Proj) == 1 && req.Proj[0] != "*" {
		proj = nameenc.QuoteIdentifier(req.Proj[0])
	} else if len(req.Proj) > 1 {
		quoted := make([]string, len(req.Proj))
		for i, p := range req.Proj {
			quoted[i] = nameenc.QuoteIdentifier(p)
		}
		proj = strings.Join(quoted, ", ")
	}

	names := make([]string, 0, len(req.Attributes))
	for n := range req.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	fragment, params, err := predicate.Compile(req.Attributes, names)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if req.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(proj)
	sb.WriteString(" FROM ")
	sb.WriteString(qualified(b.keyspace, table))
	if fragment != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(fragment)
	}
	if req.OrderBy != "" {
		dir := "asc"
		if req.OrderDesc {
			dir = "desc"
		}
		sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", nameenc.QuoteIdentifier(req.OrderBy), dir))
	}

	limit := req.Limit
	if req.Index != "" && limit > 0 {
		limit += ceilDiv(limit, 4)
	}
	if limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	sb.WriteString(";")

	return Statement{CQL: sb.String(), Params: params}, nil
}

// PutRequest is the typed form of §4.3's put(req). When the schema carries a
// synthesized _tid, the facade writes the freshly minted value into
// Attributes["_tid"] before calling Put.
type PutRequest struct {
	Attributes map[string]any
	// IfNotExists selects INSERT ... IF NOT EXISTS.
	IfNotExists bool
	// If is a compiled conditional predicate for UPDATE ... IF <cond>; nil
	// means no condition.
	If map[string]predicate.Predicate
}

// Put compiles a put request into an INSERT or UPDATE statement per §4.3's
// routing rule.
func (b *Builder) Put(req PutRequest) (Statement, error) {
	pk := b.schema.PrimaryKeyAttributes()
	for _, k := range pk {
		if _, ok := req.Attributes[k]; !ok {
			return Statement{}, fmt.Errorf("%w: put is missing primary-key attribute %q", core.ErrInvalidQuery, k)
		}
	}

	nonKey := make([]string, 0, len(req.Attributes))
	pkSet := make(map[string]bool, len(pk))
	for _, k := range pk {
		pkSet[k] = true
	}
	for k := range req.Attributes {
		if !pkSet[k] {
			nonKey = append(nonKey, k)
		}
	}
	sort.Strings(nonKey)

	if req.IfNotExists || len(nonKey) == 0 {
		return b.buildInsert(pk, nonKey, req)
	}
	return b.buildUpdate(pk, nonKey, req)
}

func (b *Builder) buildInsert(pk, nonKey []string, req PutRequest) (Statement, error) {
	cols := append(append([]string{}, pk...), nonKey...)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	params := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = nameenc.QuoteIdentifier(c)
		placeholders[i] = "?"
		params[i] = req.Attributes[c]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified(b.keyspace, "data"), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if req.IfNotExists {
		stmt += " IF NOT EXISTS"
	}
	stmt += ";"
	return Statement{CQL: stmt, Params: params}, nil
}

func (b *Builder) buildUpdate(pk, nonKey []string, req PutRequest) (Statement, error) {
	setParts := make([]string, len(nonKey))
	var params []any
	for i, c := range nonKey {
		setParts[i] = nameenc.QuoteIdentifier(c) + " = ?"
		params = append(params, req.Attributes[c])
	}

	wherePreds := make(map[string]predicate.Predicate, len(pk))
	for _, k := range pk {
		wherePreds[k] = predicate.Predicate{Op: predicate.OpEq, Value: req.Attributes[k]}
	}
	whereFragment, whereParams, err := predicate.Compile(wherePreds, pk)
	if err != nil {
		return Statement{}, err
	}
	params = append(params, whereParams...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualified(b.keyspace, "data"), strings.Join(setParts, ", "), whereFragment)

	if len(req.If) > 0 {
		ifNames := make([]string, 0, len(req.If))
		for n := range req.If {
			ifNames = append(ifNames, n)
		}
		sort.Strings(ifNames)
		ifFragment, ifParams, err := predicate.Compile(req.If, ifNames)
		if err != nil {
			return Statement{}, err
		}
		stmt += " IF " + ifFragment
		params = append(params, ifParams...)
	}
	stmt += ";"

	return Statement{CQL: stmt, Params: params}, nil
}

// PutIndexRow compiles an INSERT for one secondary index's expanded row,
// projecting attrs onto indexAttributes(I) plus any proj columns (§4.5.2).
func (b *Builder) PutIndexRow(indexName string, attrs map[string]any) (Statement, error) {
	idx := b.schema.FindSecondaryIndex(indexName)
	if idx == nil {
		return Statement{}, fmt.Errorf("%w: unknown index %q", core.ErrInvalidQuery, indexName)
	}
	cols := append(append([]string{}, idx.IndexAttributes()...), idx.ProjectedAttributes()...)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	params := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = nameenc.QuoteIdentifier(c)
		placeholders[i] = "?"
		params[i] = attrs[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		qualified(b.keyspace, indexTableName(indexName)), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return Statement{CQL: stmt, Params: params}, nil
}

// TombstoneIndexRow compiles an UPDATE marking one index row's _deleted at
// newTid, keyed by the index's own hash+range attributes (§4.5.3).
func (b *Builder) TombstoneIndexRow(indexName string, keyVals map[string]any, newTid any) (Statement, error) {
	idx := b.schema.FindSecondaryIndex(indexName)
	if idx == nil {
		return Statement{}, fmt.Errorf("%w: unknown index %q", core.ErrInvalidQuery, indexName)
	}
	keyCols := idx.IndexAttributes()
	wherePreds := make(map[string]predicate.Predicate, len(keyCols))
	for _, c := range keyCols {
		wherePreds[c] = predicate.Predicate{Op: predicate.OpEq, Value: keyVals[c]}
	}
	fragment, params, err := predicate.Compile(wherePreds, keyCols)
	if err != nil {
		return Statement{}, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s;",
		qualified(b.keyspace, indexTableName(indexName)), nameenc.QuoteIdentifier("_deleted"), fragment)
	return Statement{CQL: stmt, Params: append([]any{newTid}, params...)}, nil
}

// TombstoneDataRow compiles an UPDATE marking a data row's _deleted at
// newTid, keyed by the data table's primary key.
func (b *Builder) TombstoneDataRow(pkVals map[string]any, newTid any) (Statement, error) {
	pk := b.schema.PrimaryKeyAttributes()
	wherePreds := make(map[string]predicate.Predicate, len(pk))
	for _, c := range pk {
		wherePreds[c] = predicate.Predicate{Op: predicate.OpEq, Value: pkVals[c]}
	}
	fragment, params, err := predicate.Compile(wherePreds, pk)
	if err != nil {
		return Statement{}, err
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s;",
		qualified(b.keyspace, "data"), nameenc.QuoteIdentifier("_deleted"), fragment)
	return Statement{CQL: stmt, Params: append([]any{newTid}, params...)}, nil
}

// Schema exposes the builder's underlying schema, used by the index
// maintainer to inspect secondary indexes and primary-key attributes.
func (b *Builder) Schema() *core.Schema { return b.schema }

// DeleteRequest is the typed form of §4.3's delete(req): an unconditional
// partition delete keyed by the compiled predicate.
type DeleteRequest struct {
	Attributes map[string]predicate.Predicate
}

// Delete compiles an unconditional DELETE statement.
func (b *Builder) Delete(req DeleteRequest) (Statement, error) {
	names := make([]string, 0, len(req.Attributes))
	for n := range req.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)

	fragment, params, err := predicate.Compile(req.Attributes, names)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		CQL:    fmt.Sprintf("DELETE FROM %s WHERE %s;", qualified(b.keyspace, "data"), fragment),
		Params: params,
	}, nil
}
