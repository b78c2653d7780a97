package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders the surface syntax that differs between the supported
// SQL backends. The logical shape of every compiled statement is the same.
type Dialect interface {
	// Name is the backend name used in configuration.
	Name() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// LimitOffset renders a LIMIT/OFFSET clause bound to the given parameter positions.
	LimitOffset(limitArg, offsetArg int) string
	// Timestamp converts a stored created_at text expression into a
	// comparable point in time.
	Timestamp(expr string) string
	// InsertIgnore renders an insert that silently skips rows conflicting
	// with an existing key.
	InsertIgnore(table string, columns ...string) string
	// Rebind rewrites '?' placeholders of a fixed statement into the
	// dialect's syntax.
	Rebind(stmt string) string
}

// Dialect names.
const (
	SqliteName   = "sqlite"
	PostgresName = "postgres"
)

// DialectFor returns the dialect for a configured driver name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SqliteName, "sqlite3":
		return Sqlite{}, nil
	case PostgresName, "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", name)
	}
}

// Sqlite is the SQLite dialect: positional '?' parameters and INSERT OR IGNORE.
type Sqlite struct{}

func (Sqlite) Name() string { return SqliteName }

func (Sqlite) Placeholder(int) string { return "?" }

func (d Sqlite) LimitOffset(limitArg, offsetArg int) string {
	return "LIMIT " + d.Placeholder(limitArg) + " OFFSET " + d.Placeholder(offsetArg)
}

func (Sqlite) Timestamp(expr string) string {
	return "julianday(" + expr + ")"
}

func (d Sqlite) InsertIgnore(table string, columns ...string) string {
	return "INSERT OR IGNORE INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders(d, 1, len(columns)) + ")"
}

func (Sqlite) Rebind(stmt string) string { return stmt }

// Postgres is the PostgreSQL dialect: numbered $n parameters and
// ON CONFLICT DO NOTHING.
type Postgres struct{}

func (Postgres) Name() string { return PostgresName }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d Postgres) LimitOffset(limitArg, offsetArg int) string {
	return "LIMIT " + d.Placeholder(limitArg) + " OFFSET " + d.Placeholder(offsetArg)
}

func (Postgres) Timestamp(expr string) string {
	return "CAST(" + expr + " AS TIMESTAMPTZ)"
}

func (d Postgres) InsertIgnore(table string, columns ...string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders(d, 1, len(columns)) + ") ON CONFLICT DO NOTHING"
}

// Rebind numbers each '?' in order. Statements passed here must not
// contain '?' inside string literals.
func (d Postgres) Rebind(stmt string) string {
	var b strings.Builder
	b.Grow(len(stmt) + 8)
	n := 0
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(stmt[i])
	}
	return b.String()
}

// placeholders renders count comma-separated parameters starting at first.
func placeholders(d Dialect, first, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(first + i)
	}
	return strings.Join(parts, ", ")
}

// Statement is compiled SQL with its ordered bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

// builder accumulates SQL text and arguments for one statement.
type builder struct {
	d    Dialect
	sql  strings.Builder
	args []any
}

func newBuilder(d Dialect) *builder {
	return &builder{d: d}
}

// bind records v and returns its placeholder.
func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
}

func (b *builder) statement() Statement {
	return Statement{SQL: b.sql.String(), Args: b.args}
}
