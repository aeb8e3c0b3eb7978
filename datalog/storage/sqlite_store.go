package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqliteColumns maps each permutation to its column order.
var sqliteColumns = [numIndexes][3]string{
	EAV: {"e", "a", "v"},
	AVE: {"a", "v", "e"},
	VEA: {"v", "e", "a"},
}

// SQLiteStore implements Store on a single SQLite table with one covering
// index per permutation.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at path. Use
// ":memory:" for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has one writer; an in-memory database also lives and dies with
	// its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func encodeColumns(f datalog.Fact) (e, a, v []byte) {
	return datalog.EncodeValues(f.E()), datalog.EncodeValues(f.A()), datalog.EncodeValues(f.V())
}

// SetFact inserts the fact; inserting an existing fact is a no-op.
func (s *SQLiteStore) SetFact(f datalog.Fact) error {
	e, a, v := encodeColumns(f)
	if _, err := s.db.Exec("INSERT OR IGNORE INTO facts (e, a, v) VALUES (?, ?, ?)", e, a, v); err != nil {
		return fmt.Errorf("insert fact %s: %w", f, err)
	}
	return nil
}

// UnsetFact deletes the fact if present.
func (s *SQLiteStore) UnsetFact(f datalog.Fact) error {
	e, a, v := encodeColumns(f)
	if _, err := s.db.Exec("DELETE FROM facts WHERE e = ? AND a = ? AND v = ?", e, a, v); err != nil {
		return fmt.Errorf("delete fact %s: %w", f, err)
	}
	return nil
}

// selectForPlan builds the SELECT that serves a scan plan. Known columns
// become equality constraints in permutation order; rows come back in that
// permutation's order.
func selectForPlan(plan ScanPlan) (string, []any) {
	cols := sqliteColumns[plan.Index]
	var sb strings.Builder
	sb.WriteString("SELECT e, a, v FROM facts")

	args := make([]any, 0, len(plan.Prefix))
	for i, val := range plan.Prefix {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(cols[i])
		sb.WriteString(" = ?")
		args = append(args, datalog.EncodeValues(val))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(cols[:], ", "))
	return sb.String(), args
}

// EvaluateExpression runs the planned SELECT and binds the decoded rows.
func (s *SQLiteStore) EvaluateExpression(e query.Expression) (query.Result, error) {
	plan := PlanExpression(e)
	stmt, args := selectForPlan(plan)

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("sqlite scan %s: %w", plan.Index, err)
	}
	defer rows.Close()

	var facts []datalog.Fact
	for rows.Next() {
		var cols [3][]byte
		if err := rows.Scan(&cols[0], &cols[1], &cols[2]); err != nil {
			return query.Result{}, fmt.Errorf("sqlite scan %s: %w", plan.Index, err)
		}
		var f datalog.Fact
		for i, raw := range cols {
			vals, err := datalog.DecodeValues(raw, 1)
			if err != nil {
				return query.Result{}, fmt.Errorf("decode column %d: %w", i, err)
			}
			f[i] = vals[0]
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("sqlite scan %s: %w", plan.Index, err)
	}
	return BindFacts(e, facts), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
