package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of a SQLLogStore.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

const DefaultTableName = "event_log"

// SQLLogStore keeps rows in a single SQL table keyed by (partition_key,
// row_key). Conditions are enforced inside one transaction: inserts use
// ON CONFLICT DO NOTHING and replaces compare the etag column, and an
// unaffected row aborts the whole batch.
type SQLLogStore struct {
	db      *sql.DB
	table   string
	dialect Dialect
}

func NewPostgresLogStore(db *sql.DB, table string) *SQLLogStore {
	return newSQLLogStore(db, table, DialectPostgres)
}

func NewSQLiteLogStore(db *sql.DB, table string) *SQLLogStore {
	return newSQLLogStore(db, table, DialectSQLite)
}

func newSQLLogStore(db *sql.DB, table string, dialect Dialect) *SQLLogStore {
	if table == "" {
		table = DefaultTableName
	}
	return &SQLLogStore{db: db, table: table, dialect: dialect}
}

// EnsureSchema creates the log table when it does not exist.
func (s *SQLLogStore) EnsureSchema(ctx context.Context) error {
	rowKey, blob := "TEXT", "BLOB"
	if s.dialect == DialectPostgres {
		// byte-wise ordering keeps zero-padded row keys sorted numerically
		rowKey, blob = `TEXT COLLATE "C"`, "BYTEA"
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			partition_key  TEXT NOT NULL,
			row_key        %s NOT NULL,
			etag           TEXT NOT NULL DEFAULT '',
			version        BIGINT NOT NULL DEFAULT 0,
			is_deleted     INTEGER NOT NULL DEFAULT 0,
			aggregate_type TEXT NOT NULL DEFAULT '',
			event_type     TEXT NOT NULL DEFAULT '',
			idempotency_id TEXT NOT NULL DEFAULT '',
			user_id        TEXT NOT NULL DEFAULT '',
			when_unix_nano BIGINT NOT NULL DEFAULT 0,
			data           %s,
			PRIMARY KEY (partition_key, row_key)
		)`, s.table, rowKey, blob)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLLogStore) Get(ctx context.Context, partition, row string) (*Record, error) {
	query := s.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE partition_key = ? AND row_key = ?`, recordColumns, s.table))
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, partition, row))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row %s/%s: %w", partition, row, err)
	}
	return rec, nil
}

func (s *SQLLogStore) Commit(ctx context.Context, ops []Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (partition_key, row_key, etag, version, is_deleted, aggregate_type, event_type, idempotency_id, user_id, when_unix_nano, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_key, row_key) DO NOTHING`, s.table))
	replace := s.rebind(fmt.Sprintf(`
		UPDATE %s SET etag = ?, version = ?, is_deleted = ?, aggregate_type = ?, event_type = ?, idempotency_id = ?, user_id = ?, when_unix_nano = ?, data = ?
		WHERE partition_key = ? AND row_key = ? AND etag = ?`, s.table))

	for i, op := range ops {
		r := op.Record
		var res sql.Result
		switch op.Kind {
		case OpInsert:
			res, err = tx.ExecContext(ctx, insert,
				r.Partition, r.Row, r.Token, r.Version, boolToInt(r.IsDeleted), r.AggregateType,
				r.EventType, r.IdempotencyID, r.UserID, unixNano(r.When), r.Data)
		case OpReplace:
			res, err = tx.ExecContext(ctx, replace,
				r.Token, r.Version, boolToInt(r.IsDeleted), r.AggregateType, r.EventType,
				r.IdempotencyID, r.UserID, unixNano(r.When), r.Data,
				r.Partition, r.Row, op.ExpectedToken)
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to write row %s/%s: %w", r.Partition, r.Row, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return &ConflictError{Indexes: []int{i}}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLLogStore) Query(ctx context.Context, partition, fromRow, toRow string) ([]Record, error) {
	query := s.rebind(fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE partition_key = ? AND row_key >= ? AND row_key <= ?
		ORDER BY row_key ASC`, recordColumns, s.table))
	rows, err := s.db.QueryContext(ctx, query, partition, fromRow, toRow)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLLogStore) Delete(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE partition_key = ? AND row_key = ?`, s.table))
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, query, k.Partition, k.Row); err != nil {
			return fmt.Errorf("failed to delete row %s/%s: %w", k.Partition, k.Row, err)
		}
	}
	return tx.Commit()
}

const recordColumns = `partition_key, row_key, etag, version, is_deleted, aggregate_type, event_type, idempotency_id, user_id, when_unix_nano, data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r       Record
		deleted int
		when    int64
	)
	if err := row.Scan(&r.Partition, &r.Row, &r.Token, &r.Version, &deleted, &r.AggregateType,
		&r.EventType, &r.IdempotencyID, &r.UserID, &when, &r.Data); err != nil {
		return nil, err
	}
	r.IsDeleted = deleted != 0
	if when != 0 {
		r.When = time.Unix(0, when).UTC()
	}
	return &r, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLLogStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectSQLite opens a SQLite database. SQLite allows a single writer, so
// the pool is limited to one connection.
func ConnectSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
