package warehouse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

const (
	tableExistsSQL = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`
	listTablesSQL  = `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
	listSchemasSQL = `SELECT schema_name FROM information_schema.schemata ` +
		`WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_internal', 'catalog_history') ` +
		`AND schema_name NOT LIKE 'pg\_%' ORDER BY schema_name`
	// unloadDelimiter separates columns in staged files; COPY reads them back with it.
	unloadDelimiter = "^"
)

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func qualifiedName(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// UnloadSpec is everything an UNLOAD needs besides the table.
type UnloadSpec struct {
	// DataPrefix is the s3:// prefix the files are written under.
	DataPrefix  string
	Credentials Credentials
	// Key is the base64 AES-256 key used to encrypt the staged files.
	Key string
}

// CopySpec is everything a COPY needs besides the table.
type CopySpec struct {
	// ManifestPath is the s3:// URL of the manifest written by UNLOAD.
	ManifestPath string
	Credentials  Credentials
	Key          string
	ExplicitIDs  bool
}

func unloadSQL(schema, table string, spec UnloadSpec) string {
	query := "SELECT * FROM " + qualifiedName(schema, table)
	return fmt.Sprintf(
		"UNLOAD (%s) TO %s CREDENTIALS %s MANIFEST ENCRYPTED GZIP ALLOWOVERWRITE DELIMITER AS %s ADDQUOTES ESCAPE",
		quoteLiteral(query),
		quoteLiteral(spec.DataPrefix),
		quoteLiteral(spec.Credentials.withKey(spec.Key)),
		quoteLiteral(unloadDelimiter),
	)
}

func copySQL(schema, table string, spec CopySpec) string {
	var sb strings.Builder
	fmt.Fprintf(&sb,
		"COPY %s FROM %s CREDENTIALS %s MANIFEST ENCRYPTED GZIP DELIMITER AS %s REMOVEQUOTES ESCAPE",
		qualifiedName(schema, table),
		quoteLiteral(spec.ManifestPath),
		quoteLiteral(spec.Credentials.withKey(spec.Key)),
		quoteLiteral(unloadDelimiter),
	)
	if spec.ExplicitIDs {
		sb.WriteString(" EXPLICIT_IDS")
	}
	sb.WriteString(" COMPUPDATE OFF STATUPDATE ON")
	return sb.String()
}

func createSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema)
}

func showTableSQL(schema, table string) string {
	return "SHOW TABLE " + qualifiedName(schema, table)
}

// identifier matches a plain or double-quoted SQL identifier.
const identifier = `(?:"(?:[^"]|"")+"|[^\s."(]+)`

var createTableHead = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?` + identifier + `(?:\.` + identifier + `)?`)

// retargetDDL rewrites the table name of a CREATE TABLE statement so the
// statement creates schema.table instead, idempotently.
func retargetDDL(ddl, schema, table string) (string, bool) {
	loc := createTableHead.FindStringIndex(ddl)
	if loc == nil {
		return "", false
	}
	return "CREATE TABLE IF NOT EXISTS " + qualifiedName(schema, table) + ddl[loc[1]:], true
}
