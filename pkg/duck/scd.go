package duck

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// SCDTableConfig describes a slowly-changing dimension ingested from full
// snapshots. Two tables are maintained: <TableName>_current holds the latest
// version of each row, <TableName>_history holds every version with validity
// bounds and an op marker (I, U, D).
type SCDTableConfig struct {
	// TableName is the base name, e.g. "dim_asset".
	TableName string
	// KeyColumn is the natural key column, e.g. "asset_id".
	KeyColumn string
	// Columns defines all payload columns in order, each as "name:TYPE".
	// KeyColumn must be among them.
	Columns []string
	// SnapshotTS stamps valid_from/valid_to for this snapshot.
	SnapshotTS time.Time
	// RunID tags the _ingest_runs row when TrackIngestRuns is set.
	RunID string
	// TrackIngestRuns upserts a row into _ingest_runs on success.
	TrackIngestRuns bool
}

func (cfg *SCDTableConfig) validate() error {
	if cfg.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if cfg.KeyColumn == "" {
		return fmt.Errorf("key column is required")
	}
	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == cfg.KeyColumn {
			return nil
		}
	}
	return fmt.Errorf("key column %q not among columns", cfg.KeyColumn)
}

// SCDTableViaCSV ingests one full snapshot of a dimension. The snapshot rows
// are written to a temp CSV, staged, hashed, and diffed against the open
// history versions. Changed keys get their old version closed and a new one
// appended; the current table is refreshed from the open versions. An empty
// snapshot closes every open version.
func SCDTableViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg SCDTableConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	ingestStart := time.Now()

	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid SCD config for %s: %w", cfg.TableName, err)
	}
	if cfg.SnapshotTS.IsZero() {
		cfg.SnapshotTS = time.Now().UTC()
	}

	if err := createSCDTables(ctx, conn, cfg); err != nil {
		return fmt.Errorf("failed to create SCD tables: %w", err)
	}

	var csvPath string
	if count > 0 {
		tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_snapshot_*.csv", cfg.TableName))
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		defer os.Remove(tmpFile.Name())
		defer tmpFile.Close()

		csvWriter := csv.NewWriter(tmpFile)
		for i := range count {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during CSV writing: %w", ctx.Err())
			default:
			}
			if err := writeCSVFn(csvWriter, i); err != nil {
				return fmt.Errorf("failed to write CSV row %d: %w", i, err)
			}
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return fmt.Errorf("failed to flush CSV: %w", err)
		}
		csvPath = tmpFile.Name()
	}

	err := retryWithBackoff(ctx, log, fmt.Sprintf("SCD table %s", cfg.TableName), func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		// Temp tables outlive the transaction on this session, so names get a
		// unique suffix and are dropped before commit.
		suffix := make([]byte, 4)
		if _, err := rand.Read(suffix); err != nil {
			return fmt.Errorf("failed to generate unique suffix: %w", err)
		}
		stage := fmt.Sprintf("%s_stage_%s", cfg.TableName, hex.EncodeToString(suffix))

		var inserted, updated, deleted int64
		if count == 0 {
			deleted, err = closeAllVersions(ctx, tx, conn, cfg)
			if err != nil {
				return err
			}
		} else {
			if err := loadSCDStage(ctx, tx, cfg, stage, csvPath); err != nil {
				return err
			}
			inserted, updated, deleted, err = applySnapshotDeltas(ctx, tx, conn, cfg, stage)
			if err != nil {
				return err
			}
		}

		if err := refreshCurrent(ctx, tx, conn, cfg); err != nil {
			return err
		}

		if cfg.TrackIngestRuns {
			if err := trackIngestRun(ctx, tx, conn, cfg, inserted, updated, deleted); err != nil {
				return err
			}
		}

		for _, name := range []string{stage, stage + "_inserts", stage + "_updates", stage + "_deletes"} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
				log.Error("failed to drop stage table", "table", cfg.TableName, "stage_table", name, "error", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		log.Debug("dimension snapshot applied",
			"table", cfg.TableName,
			"rows", count,
			"inserted", inserted,
			"updated", updated,
			"deleted", deleted,
			"duration", time.Since(ingestStart).String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply snapshot for %s: %w", cfg.TableName, err)
	}
	return nil
}

func createSCDTables(ctx context.Context, conn Connection, cfg SCDTableConfig) error {
	db := conn.DB()
	colDefs, err := columnDefs(cfg.Columns)
	if err != nil {
		return err
	}
	payload := strings.Join(colDefs, ",\n\t")

	currentSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s.%s_current (
	%s,
	row_hash VARCHAR,
	updated_at TIMESTAMP
)`, db.Catalog(), db.Schema(), cfg.TableName, payload)
	if _, err := conn.ExecContext(ctx, currentSQL); err != nil {
		return fmt.Errorf("failed to create current table: %w", err)
	}

	historySQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s.%s_history (
	%s,
	row_hash VARCHAR,
	op VARCHAR,
	valid_from TIMESTAMP,
	valid_to TIMESTAMP,
	is_current BOOLEAN
)`, db.Catalog(), db.Schema(), cfg.TableName, payload)
	if _, err := conn.ExecContext(ctx, historySQL); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}

	if cfg.TrackIngestRuns {
		runsSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s._ingest_runs (
	table_name VARCHAR,
	run_id VARCHAR,
	snapshot_ts TIMESTAMP,
	rows_inserted BIGINT,
	rows_updated BIGINT,
	rows_deleted BIGINT,
	completed_at TIMESTAMP
)`, db.Catalog(), db.Schema())
		if _, err := conn.ExecContext(ctx, runsSQL); err != nil {
			return fmt.Errorf("failed to create ingest runs table: %w", err)
		}
	}
	return nil
}

// loadSCDStage loads the CSV into a raw VARCHAR stage and derives a typed
// stage with a row_hash over the payload.
func loadSCDStage(ctx context.Context, tx *sql.Tx, cfg SCDTableConfig, stage, csvPath string) error {
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return err
	}

	raw := stage + "_raw"
	rawDefs := make([]string, len(names))
	for i, name := range names {
		rawDefs[i] = name + " VARCHAR"
	}
	rawSQL := fmt.Sprintf("CREATE TEMP TABLE %s (\n\t%s\n)", raw, strings.Join(rawDefs, ",\n\t"))
	if _, err := tx.ExecContext(ctx, rawSQL); err != nil {
		return fmt.Errorf("failed to create raw stage: %w", err)
	}

	copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", raw, csvPath)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to COPY FROM CSV: %w", err)
	}

	casts := make([]string, 0, len(cfg.Columns))
	hashParts := make([]string, 0, len(cfg.Columns))
	for _, col := range cfg.Columns {
		parts := strings.SplitN(col, ":", 2)
		name := strings.TrimSpace(parts[0])
		typ := strings.TrimSpace(parts[1])
		casts = append(casts, fmt.Sprintf("CAST(%s AS %s) AS %s", name, typ, name))
		hashParts = append(hashParts, fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR), '')", name))
	}
	typedSQL := fmt.Sprintf(`CREATE TEMP TABLE %s AS
SELECT %s, md5(%s) AS row_hash
FROM %s`,
		stage, strings.Join(casts, ", "), strings.Join(hashParts, " || '|' || "), raw)
	if _, err := tx.ExecContext(ctx, typedSQL); err != nil {
		return fmt.Errorf("failed to create typed stage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+raw); err != nil {
		return fmt.Errorf("failed to drop raw stage: %w", err)
	}
	return nil
}

// applySnapshotDeltas diffs the stage against the open history versions and
// applies the inserts, updates, and deletes.
func applySnapshotDeltas(ctx context.Context, tx *sql.Tx, conn Connection, cfg SCDTableConfig, stage string) (inserted, updated, deleted int64, err error) {
	db := conn.DB()
	history := fmt.Sprintf("%s.%s.%s_history", db.Catalog(), db.Schema(), cfg.TableName)
	key := cfg.KeyColumn
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return 0, 0, 0, err
	}
	colList := strings.Join(names, ", ")
	stageCols := "s." + strings.Join(names, ", s.")

	// Delta key sets are materialized before any history row changes so the
	// close and append steps see a consistent view.
	deltaSQL := []string{
		fmt.Sprintf(`CREATE TEMP TABLE %s_inserts AS
SELECT s.%s AS key FROM %s s
WHERE NOT EXISTS (SELECT 1 FROM %s h WHERE h.%s = s.%s AND h.is_current)`,
			stage, key, stage, history, key, key),
		fmt.Sprintf(`CREATE TEMP TABLE %s_updates AS
SELECT s.%s AS key FROM %s s
JOIN %s h ON h.%s = s.%s AND h.is_current
WHERE h.row_hash <> s.row_hash`,
			stage, key, stage, history, key, key),
		fmt.Sprintf(`CREATE TEMP TABLE %s_deletes AS
SELECT h.%s AS key FROM %s h
WHERE h.is_current AND NOT EXISTS (SELECT 1 FROM %s s WHERE s.%s = h.%s)`,
			stage, key, history, stage, key, key),
	}
	for _, q := range deltaSQL {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to compute snapshot deltas: %w", err)
		}
	}

	// Tombstones carry the last-known payload of the vanished key.
	tombstoneSQL := fmt.Sprintf(`INSERT INTO %s (%s, row_hash, op, valid_from, valid_to, is_current)
SELECT %s, h.row_hash, 'D', ?, ?, FALSE
FROM %s h JOIN %s_deletes d ON d.key = h.%s
WHERE h.is_current`,
		history, colList, "h."+strings.Join(names, ", h."), history, stage, key)
	res, err := tx.ExecContext(ctx, tombstoneSQL, cfg.SnapshotTS, cfg.SnapshotTS)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to append delete tombstones: %w", err)
	}
	deleted, _ = res.RowsAffected()

	closeSQL := fmt.Sprintf(`UPDATE %s SET valid_to = ?, is_current = FALSE
WHERE is_current AND (
	%s IN (SELECT key FROM %s_updates) OR %s IN (SELECT key FROM %s_deletes)
)`, history, key, stage, key, stage)
	if _, err := tx.ExecContext(ctx, closeSQL, cfg.SnapshotTS); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to close changed versions: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s, row_hash, op, valid_from, valid_to, is_current)
SELECT %s, s.row_hash, 'I', ?, NULL, TRUE
FROM %s s JOIN %s_inserts d ON d.key = s.%s`,
		history, colList, stageCols, stage, stage, key)
	res, err = tx.ExecContext(ctx, insertSQL, cfg.SnapshotTS)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to append new versions: %w", err)
	}
	inserted, _ = res.RowsAffected()

	updateSQL := fmt.Sprintf(`INSERT INTO %s (%s, row_hash, op, valid_from, valid_to, is_current)
SELECT %s, s.row_hash, 'U', ?, NULL, TRUE
FROM %s s JOIN %s_updates d ON d.key = s.%s`,
		history, colList, stageCols, stage, stage, key)
	res, err = tx.ExecContext(ctx, updateSQL, cfg.SnapshotTS)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to append updated versions: %w", err)
	}
	updated, _ = res.RowsAffected()

	return inserted, updated, deleted, nil
}

// closeAllVersions handles an empty snapshot: every open version ends here.
func closeAllVersions(ctx context.Context, tx *sql.Tx, conn Connection, cfg SCDTableConfig) (int64, error) {
	db := conn.DB()
	history := fmt.Sprintf("%s.%s.%s_history", db.Catalog(), db.Schema(), cfg.TableName)
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return 0, err
	}
	colList := strings.Join(names, ", ")

	tombstoneSQL := fmt.Sprintf(`INSERT INTO %s (%s, row_hash, op, valid_from, valid_to, is_current)
SELECT %s, h.row_hash, 'D', ?, ?, FALSE
FROM %s h WHERE h.is_current`,
		history, colList, "h."+strings.Join(names, ", h."), history)
	res, err := tx.ExecContext(ctx, tombstoneSQL, cfg.SnapshotTS, cfg.SnapshotTS)
	if err != nil {
		return 0, fmt.Errorf("failed to append delete tombstones: %w", err)
	}
	deleted, _ := res.RowsAffected()

	closeSQL := fmt.Sprintf("UPDATE %s SET valid_to = ?, is_current = FALSE WHERE is_current", history)
	if _, err := tx.ExecContext(ctx, closeSQL, cfg.SnapshotTS); err != nil {
		return 0, fmt.Errorf("failed to close open versions: %w", err)
	}
	return deleted, nil
}

// refreshCurrent rebuilds <table>_current from the open history versions.
func refreshCurrent(ctx context.Context, tx *sql.Tx, conn Connection, cfg SCDTableConfig) error {
	db := conn.DB()
	current := fmt.Sprintf("%s.%s.%s_current", db.Catalog(), db.Schema(), cfg.TableName)
	history := fmt.Sprintf("%s.%s.%s_history", db.Catalog(), db.Schema(), cfg.TableName)
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return err
	}
	colList := strings.Join(names, ", ")

	deleteSQL := fmt.Sprintf("DELETE FROM %s", current)
	if _, err := tx.ExecContext(ctx, deleteSQL); err != nil {
		return fmt.Errorf("failed to clear current table: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (%s, row_hash, updated_at)
SELECT %s, row_hash, valid_from FROM %s WHERE is_current`,
		current, colList, colList, history)
	if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
		return fmt.Errorf("failed to refresh current table: %w", err)
	}
	return nil
}

func trackIngestRun(ctx context.Context, tx *sql.Tx, conn Connection, cfg SCDTableConfig, inserted, updated, deleted int64) error {
	db := conn.DB()
	runs := fmt.Sprintf("%s.%s._ingest_runs", db.Catalog(), db.Schema())

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE table_name = ?", runs)
	if _, err := tx.ExecContext(ctx, deleteSQL, cfg.TableName); err != nil {
		return fmt.Errorf("failed to clear prior ingest run: %w", err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (table_name, run_id, snapshot_ts, rows_inserted, rows_updated, rows_deleted, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, runs)
	if _, err := tx.ExecContext(ctx, insertSQL,
		cfg.TableName, cfg.RunID, cfg.SnapshotTS, inserted, updated, deleted, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}
