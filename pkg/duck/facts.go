package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// FactTableConfig describes a fact table for ingestion.
type FactTableConfig struct {
	// TableName is the fact table name.
	TableName string
	// Columns defines all columns in order, each as a "name:TYPE" pair,
	// e.g. "recorded_at:TIMESTAMP", "asset_id:VARCHAR".
	Columns []string
	// PartitionByTime partitions by year/month/day of TimeColumn (DuckLake only).
	PartitionByTime bool
	// TimeColumn names the timestamp column (required with PartitionByTime).
	TimeColumn string
}

// ReplaceWindow bounds a replace operation: rows with KeyColumn in
// [From, To] are deleted before the new rows land, in the same transaction.
type ReplaceWindow struct {
	KeyColumn string
	From      any
	To        any
}

// AppendFactsViaCSV performs append-only fact ingestion: the rows are written
// to a temp CSV, COPYed into an all-VARCHAR staging table, and inserted into
// the (created-if-missing) fact table in one transaction.
func AppendFactsViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	return ingestFactsViaCSV(ctx, log, conn, cfg, nil, count, writeCSVFn)
}

// ReplaceFactsViaCSV is the idempotent variant: rows inside the window are
// deleted and the new rows inserted in a single transaction, so a re-run over
// an overlapping window never duplicates and never leaves a partial mix.
func ReplaceFactsViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
	window ReplaceWindow,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	if window.KeyColumn == "" {
		return fmt.Errorf("replace window key column is required")
	}
	if window.From == nil || window.To == nil {
		return fmt.Errorf("replace window bounds are required")
	}
	return ingestFactsViaCSV(ctx, log, conn, cfg, &window, count, writeCSVFn)
}

func ingestFactsViaCSV(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	cfg FactTableConfig,
	window *ReplaceWindow,
	count int,
	writeCSVFn func(*csv.Writer, int) error,
) error {
	ingestStart := time.Now()
	defer func() {
		log.Debug("fact table ingestion completed",
			"table", cfg.TableName,
			"rows", count,
			"duration", time.Since(ingestStart).String())
	}()

	if len(cfg.Columns) == 0 {
		return fmt.Errorf("columns cannot be empty")
	}
	if cfg.PartitionByTime && cfg.TimeColumn == "" {
		return fmt.Errorf("time column is required when partitioning by time")
	}

	if err := CreateFactTable(ctx, log, conn, cfg); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	if count == 0 && window == nil {
		return nil
	}

	var csvPath string
	if count > 0 {
		tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_facts_*.csv", cfg.TableName))
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

	colNames, err := columnNames(cfg.Columns)
	if err != nil {
		return err
	}
	colList := strings.Join(colNames, ", ")

	// The CSV is written once; only the transaction retries on conflicts.
	return retryWithBackoff(ctx, log, fmt.Sprintf("fact table %s", cfg.TableName), func() error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled before transaction for %s: %w", cfg.TableName, ctx.Err())
		default:
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", cfg.TableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", cfg.TableName, "error", err)
			}
		}()

		db := conn.DB()
		qualified := fmt.Sprintf("%s.%s.%s", db.Catalog(), db.Schema(), cfg.TableName)

		if window != nil {
			deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s >= ? AND %s <= ?",
				qualified, window.KeyColumn, window.KeyColumn)
			if _, err := tx.ExecContext(ctx, deleteSQL, window.From, window.To); err != nil {
				return fmt.Errorf("failed to delete replace window: %w", err)
			}
		}

		if count > 0 {
			stageTableName := cfg.TableName + "_stage"
			if err := createFactStage(ctx, tx, cfg, stageTableName); err != nil {
				return fmt.Errorf("failed to create stage table: %w", err)
			}

			copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false)", stageTableName, csvPath)
			if _, err := tx.ExecContext(ctx, copySQL); err != nil {
				return fmt.Errorf("failed to COPY FROM CSV: %w", err)
			}

			insertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
				qualified, colList, colList, stageTableName)
			if _, err := tx.ExecContext(ctx, insertSQL); err != nil {
				return fmt.Errorf("failed to insert into fact table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+stageTableName); err != nil {
				log.Error("failed to drop stage table", "error", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// CreateFactTable creates the fact table if it does not exist.
func CreateFactTable(ctx context.Context, log *slog.Logger, conn Connection, cfg FactTableConfig) error {
	db := conn.DB()

	colDefs, err := columnDefs(cfg.Columns)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s.%s (\n\t%s\n)",
		db.Catalog(), db.Schema(), cfg.TableName, strings.Join(colDefs, ",\n\t"))
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create fact table: %w", err)
	}

	if cfg.PartitionByTime {
		if _, ok := db.(*Lake); ok {
			partitionSQL := fmt.Sprintf("ALTER TABLE %s.%s.%s SET PARTITIONED BY (year(%s), month(%s), day(%s))",
				db.Catalog(), db.Schema(), cfg.TableName,
				cfg.TimeColumn, cfg.TimeColumn, cfg.TimeColumn)
			if _, err := conn.ExecContext(ctx, partitionSQL); err != nil {
				// May already be partitioned; harmless on re-run.
				log.Debug("failed to set partitioning", "table", cfg.TableName, "error", err)
			}
		}
	}
	return nil
}

// createFactStage creates a temp staging table with VARCHAR columns; DuckDB
// converts types on the INSERT into the real table.
func createFactStage(ctx context.Context, tx *sql.Tx, cfg FactTableConfig, stageTableName string) error {
	names, err := columnNames(cfg.Columns)
	if err != nil {
		return err
	}
	defs := make([]string, len(names))
	for i, name := range names {
		defs[i] = name + " VARCHAR"
	}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (\n\t%s\n)", stageTableName, strings.Join(defs, ",\n\t"))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}
	return nil
}

func columnNames(columns []string) ([]string, error) {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column definition %q: expected 'name:TYPE'", col)
		}
		names = append(names, strings.TrimSpace(parts[0]))
	}
	return names, nil
}

func columnDefs(columns []string) ([]string, error) {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		parts := strings.SplitN(col, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid column definition %q: expected 'name:TYPE'", col)
		}
		defs = append(defs, strings.TrimSpace(parts[0])+" "+strings.TrimSpace(parts[1]))
	}
	return defs, nil
}
