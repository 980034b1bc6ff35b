package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite stores records in one table whose columns are the headers. New
// headers become new TEXT columns appended with ALTER TABLE, which keeps
// existing column order intact.
type SQLite struct {
	db       *sql.DB
	table    string
	idHeader string
	mu       sync.Mutex // serializes schema changes
}

// OpenSQLite opens (or creates) a database file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return db, nil
}

// NewSQLite creates a store on table, creating the table if needed.
func NewSQLite(ctx context.Context, db *sql.DB, table, idHeader string) (*SQLite, error) {
	if idHeader == "" {
		idHeader = DefaultIDHeader
	}
	s := &SQLite{db: db, table: table, idHeader: idHeader}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY)`,
		quoteIdent(s.table), quoteIdent(s.idHeader))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// ListIDs implements Store.
func (s *SQLite) ListIDs(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ? ESCAPE '\' ORDER BY 1`,
		quoteIdent(s.idHeader), quoteIdent(s.table), quoteIdent(s.idHeader))
	rows, err := s.db.QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if hasPrefix(id.String, prefix) {
			ids = append(ids, id.String)
		}
	}
	return ids, rows.Err()
}

// Append implements Store.
func (s *SQLite) Append(ctx context.Context, row Row) error {
	if row[s.idHeader] == "" {
		return ErrMissingID
	}
	cols, err := s.ensureColumns(ctx, row)
	if err != nil {
		return err
	}

	var names, marks []string
	var args []any
	for _, c := range cols {
		if v, ok := row[c]; ok {
			names = append(names, quoteIdent(c))
			marks = append(marks, "?")
			args = append(args, v)
		}
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(s.table), strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting record %s: %w", row[s.idHeader], err)
	}
	return nil
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, id string, row Row) error {
	cols, err := s.ensureColumns(ctx, row)
	if err != nil {
		return err
	}

	var sets []string
	var args []any
	for _, c := range cols {
		if v, ok := row[c]; ok && c != s.idHeader {
			sets = append(sets, quoteIdent(c)+" = ?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`,
		quoteIdent(s.table), strings.Join(sets, ", "), quoteIdent(s.idHeader))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Columns returns the table's columns in order.
func (s *SQLite) Columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(s.table)))
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// ensureColumns adds a column for every header of row not yet present and
// returns the resulting column list.
func (s *SQLite) ensureColumns(ctx context.Context, row Row) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}
	merged, added := mergeHeaders(existing, row)
	for _, c := range added {
		query := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT`, quoteIdent(s.table), quoteIdent(c))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("adding column %q: %w", c, err)
		}
	}
	return merged, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
