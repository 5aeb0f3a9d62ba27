// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rashomon/internal/cql"
	"rashomon/internal/output"
	"rashomon/internal/parser/toml"
	"rashomon/internal/predicate"
	"rashomon/internal/querybuilder"
	"rashomon/internal/storageengine"
)

type connectFlags struct {
	hosts   []string
	family  string
	timeout int
}

type createTableFlags struct {
	connectFlags
	schemaFile string
	format     string
	dryRun     bool
}

type rowFlags struct {
	connectFlags
	domain string
	table  string
	format string
}

type getFlags struct {
	rowFlags
	where       []string
	index       string
	orderBy     string
	orderDesc   bool
	limit       int
	consistency string
}

type putFlags struct {
	rowFlags
	attrs       []string
	ifNotExists bool
	consistency string
}

type deleteFlags struct {
	rowFlags
	where       []string
	consistency string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "rashomon",
		Short: "Versioned table storage administrative CLI",
	}

	rootCmd.AddCommand(createTableCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(putCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(dropTableCmd())
	rootCmd.AddCommand(getSchemaCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConnectFlags(cmd *cobra.Command, flags *connectFlags) {
	cmd.Flags().StringSliceVar(&flags.hosts, "hosts", []string{"127.0.0.1"}, "Cluster contact points")
	cmd.Flags().StringVar(&flags.family, "family", "cassandra", "Store family: cassandra or scylla")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 30, "Connect timeout in seconds")
}

func addRowFlags(cmd *cobra.Command, flags *rowFlags) {
	addConnectFlags(cmd, &flags.connectFlags)
	cmd.Flags().StringVar(&flags.domain, "domain", "", "Tenant domain (required)")
	cmd.Flags().StringVar(&flags.table, "table", "", "Table name (required)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format: human or json")
}

func createTableCmd() *cobra.Command {
	flags := &createTableFlags{}
	cmd := &cobra.Command{
		Use:   "create-table <schema.toml>",
		Short: "Create a table from a declarative TOML schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCreateTable(args[0], flags)
		},
	}
	addConnectFlags(cmd, &flags.connectFlags)
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format: human or json")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "d", false, "Print the statement plan without executing it")
	return cmd
}

func runCreateTable(path string, flags *createTableFlags) error {
	schema, err := toml.NewParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("create-table: %w", err)
	}

	formatter, err := output.NewFormatter(flags.format)
	if err != nil {
		return err
	}

	if flags.dryRun {
		family, err := parseFamily(flags.family)
		if err != nil {
			return err
		}
		dialect, err := cql.GetDialect(family)
		if err != nil {
			return err
		}
		stmts, err := querybuilder.New(schema, dialect).CreateTable()
		if err != nil {
			return err
		}
		plan, err := formatter.FormatPlan(stmts)
		if err != nil {
			return err
		}
		fmt.Print(plan)
		return nil
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	res, err := engine.CreateTable(context.Background(), schema)
	if err != nil {
		return fmt.Errorf("create-table: %w", err)
	}
	out, err := formatter.FormatResult("create-table", res)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func getCmd() *cobra.Command {
	flags := &getFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read rows matching a predicate",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGet(flags)
		},
	}
	addRowFlags(cmd, &flags.rowFlags)
	cmd.Flags().StringSliceVar(&flags.where, "where", nil, "Predicate attr=value, repeatable")
	cmd.Flags().StringVar(&flags.index, "index", "", "Secondary index name")
	cmd.Flags().StringVar(&flags.orderBy, "order-by", "", "Range attribute to order by")
	cmd.Flags().BoolVar(&flags.orderDesc, "desc", false, "Order descending")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Row limit (0 = unbounded)")
	cmd.Flags().StringVar(&flags.consistency, "consistency", "", "Consistency level: one, all, or localQuorum")
	return cmd
}

func runGet(flags *getFlags) error {
	if err := requireDomainTable(flags.rowFlags); err != nil {
		return err
	}
	preds, err := parsePredicates(flags.where)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	req := querybuilder.GetRequest{
		Index:      flags.index,
		Attributes: preds,
		OrderBy:    flags.orderBy,
		OrderDesc:  flags.orderDesc,
		Limit:      flags.limit,
	}
	res, err := engine.Get(context.Background(), flags.domain, flags.table, req, flags.consistency)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	return printResult("get", res, flags.format)
}

func putCmd() *cobra.Command {
	flags := &putFlags{}
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Write one row",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPut(flags)
		},
	}
	addRowFlags(cmd, &flags.rowFlags)
	cmd.Flags().StringSliceVar(&flags.attrs, "attr", nil, "Attribute name=value, repeatable")
	cmd.Flags().BoolVar(&flags.ifNotExists, "if-not-exists", false, "Fail if a row with this key already exists")
	cmd.Flags().StringVar(&flags.consistency, "consistency", "", "Consistency level: one, all, or localQuorum")
	return cmd
}

func runPut(flags *putFlags) error {
	if err := requireDomainTable(flags.rowFlags); err != nil {
		return err
	}
	attrs, err := parseAttrs(flags.attrs)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	res, err := engine.Put(context.Background(), flags.domain, flags.table, attrs, flags.ifNotExists, nil, flags.consistency)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return printResult("put", res, flags.format)
}

func deleteCmd() *cobra.Command {
	flags := &deleteFlags{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a partition",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDelete(flags)
		},
	}
	addRowFlags(cmd, &flags.rowFlags)
	cmd.Flags().StringSliceVar(&flags.where, "where", nil, "Predicate attr=value, repeatable")
	cmd.Flags().StringVar(&flags.consistency, "consistency", "", "Consistency level: one, all, or localQuorum")
	return cmd
}

func runDelete(flags *deleteFlags) error {
	if err := requireDomainTable(flags.rowFlags); err != nil {
		return err
	}
	preds, err := parsePredicates(flags.where)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	res, err := engine.Delete(context.Background(), flags.domain, flags.table, preds, flags.consistency)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return printResult("delete", res, flags.format)
}

func dropTableCmd() *cobra.Command {
	flags := &rowFlags{}
	cmd := &cobra.Command{
		Use:   "drop-table",
		Short: "Drop a table's keyspace",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDropTable(flags)
		},
	}
	addRowFlags(cmd, flags)
	return cmd
}

func runDropTable(flags *rowFlags) error {
	if err := requireDomainTable(*flags); err != nil {
		return err
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	res, err := engine.DropTable(context.Background(), flags.domain, flags.table)
	if err != nil {
		return fmt.Errorf("drop-table: %w", err)
	}
	return printResult("drop-table", res, flags.format)
}

func getSchemaCmd() *cobra.Command {
	flags := &rowFlags{}
	cmd := &cobra.Command{
		Use:   "get-schema",
		Short: "Print a table's stored schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGetSchema(flags)
		},
	}
	addRowFlags(cmd, flags)
	return cmd
}

func runGetSchema(flags *rowFlags) error {
	if err := requireDomainTable(*flags); err != nil {
		return err
	}

	engine, cancel, err := connectEngine(flags.connectFlags)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = engine.Close() }()

	schema, err := engine.GetSchema(context.Background(), flags.domain, flags.table)
	if err != nil {
		return fmt.Errorf("get-schema: %w", err)
	}
	b, err := schema.MarshalMeta()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func connectEngine(flags connectFlags) (*storageengine.Engine, context.CancelFunc, error) {
	family, err := parseFamily(flags.family)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(flags.timeout)*time.Second)
	engine, err := storageengine.Connect(ctx, flags.hosts, family)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return engine, cancel, nil
}

func parseFamily(raw string) (cql.Family, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cassandra":
		return cql.Cassandra, nil
	case "scylla":
		return cql.Scylla, nil
	default:
		return "", fmt.Errorf("unsupported family: %s; use 'cassandra' or 'scylla'", raw)
	}
}

func requireDomainTable(flags rowFlags) error {
	if flags.domain == "" {
		return fmt.Errorf("--domain is required")
	}
	if flags.table == "" {
		return fmt.Errorf("--table is required")
	}
	return nil
}

func parseAttrs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, err := splitKV(kv)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func parsePredicates(raw []string) (map[string]predicate.Predicate, error) {
	out := make(map[string]predicate.Predicate, len(raw))
	for _, kv := range raw {
		name, value, err := splitKV(kv)
		if err != nil {
			return nil, err
		}
		out[name] = predicate.Predicate{Op: predicate.OpEq, Value: value}
	}
	return out, nil
}

func splitKV(kv string) (name, value string, err error) {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", kv)
	}
	return parts[0], parts[1], nil
}

func printResult(op string, res storageengine.Result, format string) error {
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}
	out, err := formatter.FormatResult(op, res)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
