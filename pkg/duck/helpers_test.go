package duck

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDBWithConn(t *testing.T) (DB, Connection) {
	t.Helper()

	ctx := context.Background()
	db, err := NewDB(ctx, filepath.Join(t.TempDir(), "test.duckdb"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return db, conn
}

func countRows(t *testing.T, conn Connection, table string) int {
	t.Helper()

	db := conn.DB()
	var n int
	row := conn.QueryRowContext(context.Background(),
		"SELECT count(*) FROM "+db.Catalog()+"."+db.Schema()+"."+table)
	require.NoError(t, row.Scan(&n))
	return n
}
