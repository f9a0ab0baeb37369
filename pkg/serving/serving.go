// Package serving mirrors the curated warehouse outputs into ClickHouse so
// dashboards read from MergeTree tables instead of the DuckDB file. The
// mirror is optional; the pipeline runs unchanged without it.
package serving

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultAddr     = "localhost:9000"
	defaultDatabase = "default"
	defaultUsername = "default"

	dialTimeout = 5 * time.Second
)

// Batch is the slice of driver.Batch the writer needs.
type Batch interface {
	Append(v ...any) error
	Send() error
	Close() error
}

// Conn abstracts the ClickHouse connection so tests can stand in for a
// server.
type Conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Close() error
}

type chConn struct {
	conn driver.Conn
}

func (c *chConn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *chConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *chConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (c *chConn) Close() error { return c.conn.Close() }

type WriterOption func(*Writer)

func WithLogger(log *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.log = log
	}
}

func WithAddr(addr string) WriterOption {
	return func(w *Writer) {
		w.addr = addr
	}
}

func WithDatabase(database string) WriterOption {
	return func(w *Writer) {
		w.database = database
	}
}

func WithUsername(username string) WriterOption {
	return func(w *Writer) {
		w.username = username
	}
}

func WithPassword(password string) WriterOption {
	return func(w *Writer) {
		w.password = password
	}
}

// WithConn bypasses dialing and uses the given connection.
func WithConn(conn Conn) WriterOption {
	return func(w *Writer) {
		w.conn = conn
	}
}

// Writer mirrors pipeline outputs into ClickHouse. Replace calls are
// idempotent per window: a synchronous windowed delete runs before each
// batch insert, so re-running a window converges instead of duplicating.
type Writer struct {
	log      *slog.Logger
	addr     string
	database string
	username string
	password string

	conn Conn
}

func NewWriter(ctx context.Context, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		addr:     defaultAddr,
		database: defaultDatabase,
		username: defaultUsername,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if w.conn == nil {
		conn, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{w.addr},
			Auth: clickhouse.Auth{
				Database: w.database,
				Username: w.username,
				Password: w.password,
			},
			Settings: clickhouse.Settings{
				"max_execution_time": 60,
			},
			DialTimeout: dialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
		}
		if err := conn.Ping(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
		}
		w.conn = &chConn{conn: conn}
		w.log.Info("serving: clickhouse mirror connected", "addr", w.addr, "database", w.database)
	}

	return w, nil
}

func (w *Writer) Close() error {
	return w.conn.Close()
}
