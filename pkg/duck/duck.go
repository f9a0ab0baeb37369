// Package duck is the warehouse layer: a thin seam over DuckDB (local file)
// and DuckLake (catalog + object storage) that the fact stores and dimension
// stores write through. All ingestion is set-oriented: rows are staged through
// CSV and landed in a single transaction so a failed run never leaves a table
// half old, half new.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is a handle to an attached warehouse database. Both the local-file
// database (NewDB) and the DuckLake attachment (NewLake) satisfy it.
type DB interface {
	Catalog() string
	Schema() string
	Close() error
	Conn(ctx context.Context) (Connection, error)
}

// Connection is a single database connection. DuckDB serializes writers per
// connection; callers hold one Connection per ingestion stream.
type Connection interface {
	DB() DB
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type localDB struct {
	path    string
	db      *sql.DB
	catalog string
	schema  string
}

type localConn struct {
	conn    *sql.Conn
	db      *localDB
	writeMu sync.Mutex // serializes writes on this connection
}

// NewDB opens (creating if needed) a local DuckDB database file. An empty
// path opens an in-memory database. This is the default sink and the one
// tests run against.
func NewDB(ctx context.Context, path string, log *slog.Logger) (DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var catalog, schema string
	row := db.QueryRowContext(ctx, "SELECT current_database() AS catalog, current_schema() AS schema")
	if err := row.Scan(&catalog, &schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to get current database and schema: %w", err)
	}

	log.Debug("opened warehouse database", "path", path, "catalog", catalog, "schema", schema)

	return &localDB{
		path:    path,
		db:      db,
		catalog: catalog,
		schema:  schema,
	}, nil
}

func (d *localDB) Catalog() string { return d.catalog }
func (d *localDB) Schema() string  { return d.schema }
func (d *localDB) Close() error    { return d.db.Close() }

func (d *localDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "USE "+d.catalog); err != nil {
		return nil, fmt.Errorf("failed to use database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET schema = "+d.schema); err != nil {
		return nil, fmt.Errorf("failed to set schema: %w", err)
	}
	return &localConn{conn: conn, db: d}, nil
}

func (c *localConn) DB() DB { return c.db }

func (c *localConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *localConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *localConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *localConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *localConn) Close() error { return c.conn.Close() }
