package loader

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// pgQuerier is the subset of pgxpool.Pool the loader needs.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

func connectPostgres(ctx context.Context, dsn string) (pgQuerier, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return pool, nil
}

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

func (l *Loader) readPostgres(ctx context.Context, dsn string, opts Options) (*table, error) {
	display := redact(dsn)

	query := opts.Query
	if query == "" {
		if opts.Table == "" {
			return nil, eris.New("postgres: a table or query is required")
		}
		query = "SELECT * FROM " + pgx.Identifier(strings.Split(opts.Table, ".")).Sanitize()
	}

	conn, err := l.connectPG(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	zap.L().Debug("postgres: querying", zap.String("source", display), zap.String("query", query))

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, pgError(display, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	tbl := &table{header: make([]string, len(fields))}
	for i, fd := range fields {
		tbl.header[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read row")
		}
		for i, v := range vals {
			vals[i] = normalizePG(v)
		}
		tbl.rows = append(tbl.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(display, err)
	}
	return tbl, nil
}

func pgError(source string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return &SourceNotFoundError{Source: source, Detail: pgErr.Message}
	}
	return eris.Wrap(err, "postgres: query")
}

// normalizePG converts pgx types the parsers do not know about.
func normalizePG(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Timestamp:
		if !n.Valid {
			return nil
		}
		return n.Time
	case pgtype.Timestamptz:
		if !n.Valid {
			return nil
		}
		return n.Time
	case pgtype.Date:
		if !n.Valid {
			return nil
		}
		return n.Time
	}
	return v
}

// sqlitePath strips the sqlite:// scheme.
func sqlitePath(source string) string {
	if len(source) >= len("sqlite://") && strings.EqualFold(source[:len("sqlite://")], "sqlite://") {
		return source[len("sqlite://"):]
	}
	return source
}

func readSQLite(ctx context.Context, source string, opts Options) (*table, error) {
	dbPath := sqlitePath(source)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Source: source}
		}
		return nil, eris.Wrapf(err, "sqlite: stat %s", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	defer db.Close() //nolint:errcheck

	query := opts.Query
	if query == "" {
		name := opts.Table
		if name == "" {
			if name, err = soleTable(ctx, db); err != nil {
				return nil, err
			}
		}
		query = "SELECT * FROM " + quoteIdent(name)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, &SourceNotFoundError{Source: source, Detail: err.Error()}
		}
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}
	tbl := &table{header: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		tbl.rows = append(tbl.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return tbl, nil
}

// soleTable returns the database's only user table.
func soleTable(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: list tables")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", eris.Wrap(err, "sqlite: scan table name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", eris.Wrap(err, "sqlite: list tables")
	}
	if len(names) != 1 {
		return "", eris.Errorf("sqlite: database has %d tables; select one with a table or query", len(names))
	}
	return names[0], nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
