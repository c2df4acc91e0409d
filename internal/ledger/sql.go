package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	id   TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	data TEXT NOT NULL
)`

const kindIndex = `CREATE INDEX IF NOT EXISTS records_kind ON records (kind, id)`

// SQLiteDSN returns a DSN for path with the pragmas the store relies on:
// WAL journaling and write-locking transactions from BEGIN.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"
}

// SQLStore persists records in a single SQL table. Each Update runs in one
// database transaction; an in-process lock keeps writers from this process
// from contending with each other.
type SQLStore struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// OpenSQL opens a store on SQLite or Postgres and creates the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		dsn = SQLiteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range []string{schema, kindIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return s.run(ctx, opts, false, fn)
}

func (s *SQLStore) View(ctx context.Context, fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	return s.run(ctx, opts, true, fn)
}

func (s *SQLStore) run(ctx context.Context, opts *sql.TxOptions, readOnly bool, fn func(Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return fmt.Errorf("begin: %w", err)
	}

	tx := &sqlTx{ctx: ctx, tx: dbtx, driver: s.driver, readOnly: readOnly}
	if err := fn(tx); err != nil {
		dbtx.Rollback()
		return err
	}
	if readOnly {
		return dbtx.Rollback()
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	driver   string
	readOnly bool
}

// rebind rewrites ? placeholders into the driver's syntax.
func (tx *sqlTx) rebind(query string) string {
	if tx.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (tx *sqlTx) Get(key Key, v any) error {
	var data string
	err := tx.tx.QueryRowContext(tx.ctx, tx.rebind(`SELECT data FROM records WHERE id = ?`), string(key)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (tx *sqlTx) Put(key Key, v any) error {
	if tx.readOnly {
		return errReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = tx.tx.ExecContext(tx.ctx, tx.rebind(
		`INSERT INTO records (id, kind, data) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`),
		string(key), string(key.Kind()), string(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (tx *sqlTx) Create(key Key, v any) error {
	exists, err := Exists(tx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	return tx.Put(key, v)
}

func (tx *sqlTx) Scan(kind Kind, fn func(key Key, decode func(v any) error) error) error {
	rows, err := tx.tx.QueryContext(tx.ctx, tx.rebind(`SELECT id, data FROM records WHERE kind = ? ORDER BY id`), string(kind))
	if err != nil {
		return fmt.Errorf("scan %s: %w", kind, err)
	}

	type row struct {
		key  Key
		data []byte
	}
	// Drain before calling fn so it can issue its own queries on the transaction.
	var all []row
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s: %w", kind, err)
		}
		all = append(all, row{key: Key(id), data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("scan %s: %w", kind, err)
	}
	rows.Close()

	for _, r := range all {
		decode := func(v any) error { return json.Unmarshal(r.data, v) }
		if err := fn(r.key, decode); err != nil {
			return err
		}
	}
	return nil
}
