package warehouse

import (
	"context"
	"fmt"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
)

// Table is a single table on a cluster.
type Table struct {
	cluster *Cluster
	Schema  string
	Name    string
}

// NewTable creates a table resource.
func NewTable(c *Cluster, schema, name string) *Table {
	return &Table{cluster: c, Schema: schema, Name: name}
}

// Cluster returns the cluster holding the table.
func (t *Table) Cluster() *Cluster { return t.cluster }

// String identifies the table for logs and reports.
func (t *Table) String() string {
	return fmt.Sprintf("%s.%s@%s", t.Schema, t.Name, t.cluster)
}

// Ping verifies that the table's cluster is reachable.
func (t *Table) Ping(ctx context.Context) error {
	return t.cluster.Ping(ctx)
}

// Exists reports whether the table is present.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	db, err := t.cluster.DB()
	if err != nil {
		return false, err
	}
	var count int
	if err := db.QueryRowContext(ctx, tableExistsSQL, t.Schema, t.Name).Scan(&count); err != nil {
		return false, errors.Annotatef(err, "failed to look up table %s", t)
	}
	return count > 0, nil
}

// DDL returns a CREATE TABLE IF NOT EXISTS statement that recreates this
// table's definition under another schema and name.
func (t *Table) DDL(ctx context.Context, schema, name string) (string, error) {
	db, err := t.cluster.DB()
	if err != nil {
		return "", err
	}
	var ddl string
	if err := db.QueryRowContext(ctx, showTableSQL(t.Schema, t.Name)).Scan(&ddl); err != nil {
		return "", errors.Annotatef(err, "failed to read definition of %s", t)
	}
	out, ok := retargetDDL(ddl, schema, name)
	if !ok {
		return "", errors.Errorf("unexpected definition returned for %s: %.60q", t, ddl)
	}
	return out, nil
}

// Create runs a CREATE TABLE statement for this table, creating its schema first.
func (t *Table) Create(ctx context.Context, ddl string) error {
	db, err := t.cluster.DB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := tx.ExecContext(ctx, createSchemaSQL(t.Schema)); err != nil {
		_ = tx.Rollback()
		return errors.Annotatef(err, "failed to create schema %s", t.Schema)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		return errors.Annotatef(err, "failed to create table %s", t)
	}
	return errors.Trace(tx.Commit())
}

// Unload exports the table to S3.
func (t *Table) Unload(ctx context.Context, spec UnloadSpec) error {
	db, err := t.cluster.DB()
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Unloading table.", zap.Stringer("table", t), zap.String("prefix", spec.DataPrefix))
	if _, err := db.ExecContext(ctx, unloadSQL(t.Schema, t.Name, spec)); err != nil {
		return errors.Annotatef(err, "unload of %s failed", t)
	}
	return nil
}

// Copy loads staged files into the table.
func (t *Table) Copy(ctx context.Context, spec CopySpec) error {
	db, err := t.cluster.DB()
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Copying into table.", zap.Stringer("table", t), zap.String("manifest", spec.ManifestPath))
	if _, err := db.ExecContext(ctx, copySQL(t.Schema, t.Name, spec)); err != nil {
		return errors.Annotatef(err, "copy into %s failed", t)
	}
	return nil
}

// Schema is a schema on a cluster.
type Schema struct {
	cluster *Cluster
	Name    string
}

// NewSchema creates a schema resource.
func NewSchema(c *Cluster, name string) *Schema {
	return &Schema{cluster: c, Name: name}
}

// Cluster returns the cluster holding the schema.
func (s *Schema) Cluster() *Cluster { return s.cluster }

// ListTables returns the base tables of the schema in name order.
func (s *Schema) ListTables(ctx context.Context) ([]*Table, error) {
	names, err := queryStrings(ctx, s.cluster, listTablesSQL, s.Name)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to list tables of schema %s", s.Name)
	}
	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		tables = append(tables, NewTable(s.cluster, s.Name, name))
	}
	return tables, nil
}

// Database is a whole database on a cluster.
type Database struct {
	cluster *Cluster
}

// NewDatabase creates a database resource.
func NewDatabase(c *Cluster) *Database {
	return &Database{cluster: c}
}

// Cluster returns the cluster holding the database.
func (d *Database) Cluster() *Cluster { return d.cluster }

// ListSchemas returns the user schemas of the database in name order.
func (d *Database) ListSchemas(ctx context.Context) ([]*Schema, error) {
	names, err := queryStrings(ctx, d.cluster, listSchemasSQL)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to list schemas of %s", d.cluster)
	}
	schemas := make([]*Schema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, NewSchema(d.cluster, name))
	}
	return schemas, nil
}

func queryStrings(ctx context.Context, c *Cluster, query string, args ...any) ([]string, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, s)
	}
	return out, errors.Trace(rows.Err())
}
