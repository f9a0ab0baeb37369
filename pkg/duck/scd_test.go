package duck

import (
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type machineRow struct {
	id          string
	model       string
	criticality int
}

func machineSnapshotConfig(snapshotTS time.Time) SCDTableConfig {
	return SCDTableConfig{
		TableName: "dim_machine",
		KeyColumn: "machine_id",
		Columns: []string{
			"machine_id:VARCHAR",
			"model:VARCHAR",
			"criticality:INTEGER",
		},
		SnapshotTS: snapshotTS,
	}
}

func writeMachines(rows []machineRow) func(*csv.Writer, int) error {
	return func(w *csv.Writer, i int) error {
		r := rows[i]
		return w.Write([]string{r.id, r.model, fmt.Sprintf("%d", r.criticality)})
	}
}

func applyMachineSnapshot(t *testing.T, conn Connection, ts time.Time, rows []machineRow) {
	t.Helper()
	err := SCDTableViaCSV(context.Background(), testLogger(), conn,
		machineSnapshotConfig(ts), len(rows), writeMachines(rows))
	require.NoError(t, err)
}

func TestDuck_SCDTableViaCSV(t *testing.T) {
	t.Parallel()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)

	fleet := []machineRow{
		{"PRESS-001", "StampMaster 9000", 5},
		{"CNC-001", "PrecisionMill X2", 4},
		{"ROBO-001", "WeldArm Pro", 3},
	}

	t.Run("initial_snapshot_populates_current_and_history", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)

		require.Equal(t, 3, countRows(t, conn, "dim_machine_current"))
		require.Equal(t, 3, countRows(t, conn, "dim_machine_history"))

		var ops int
		row := conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT count(*) FROM %s.%s.dim_machine_history WHERE op = 'I' AND is_current",
			conn.DB().Catalog(), conn.DB().Schema()))
		require.NoError(t, row.Scan(&ops))
		require.Equal(t, 3, ops)
	})

	t.Run("unchanged_snapshot_is_a_no_op", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)
		applyMachineSnapshot(t, conn, day2, fleet)

		require.Equal(t, 3, countRows(t, conn, "dim_machine_current"))
		require.Equal(t, 3, countRows(t, conn, "dim_machine_history"))
	})

	t.Run("changed_row_closes_old_version_and_appends_new", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)

		upgraded := []machineRow{
			{"PRESS-001", "StampMaster 9000", 5},
			{"CNC-001", "PrecisionMill X3", 4},
			{"ROBO-001", "WeldArm Pro", 3},
		}
		applyMachineSnapshot(t, conn, day2, upgraded)

		require.Equal(t, 3, countRows(t, conn, "dim_machine_current"))
		require.Equal(t, 4, countRows(t, conn, "dim_machine_history"))

		ctx := context.Background()
		catalog, schema := conn.DB().Catalog(), conn.DB().Schema()

		var model string
		row := conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT model FROM %s.%s.dim_machine_current WHERE machine_id = 'CNC-001'", catalog, schema))
		require.NoError(t, row.Scan(&model))
		require.Equal(t, "PrecisionMill X3", model)

		var closedTo time.Time
		row = conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT valid_to FROM %s.%s.dim_machine_history WHERE machine_id = 'CNC-001' AND op = 'I'",
			catalog, schema))
		require.NoError(t, row.Scan(&closedTo))
		require.Equal(t, day2, closedTo.UTC())
	})

	t.Run("removed_key_gets_tombstone", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)
		applyMachineSnapshot(t, conn, day2, fleet[:2])

		require.Equal(t, 2, countRows(t, conn, "dim_machine_current"))

		var tombstones int
		row := conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT count(*) FROM %s.%s.dim_machine_history WHERE machine_id = 'ROBO-001' AND op = 'D'",
			conn.DB().Catalog(), conn.DB().Schema()))
		require.NoError(t, row.Scan(&tombstones))
		require.Equal(t, 1, tombstones)
	})

	t.Run("readded_key_reopens_with_insert_op", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)
		applyMachineSnapshot(t, conn, day2, fleet[:2])
		applyMachineSnapshot(t, conn, day3, fleet)

		require.Equal(t, 3, countRows(t, conn, "dim_machine_current"))

		var open int
		row := conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT count(*) FROM %s.%s.dim_machine_history WHERE machine_id = 'ROBO-001' AND is_current",
			conn.DB().Catalog(), conn.DB().Schema()))
		require.NoError(t, row.Scan(&open))
		require.Equal(t, 1, open)
	})

	t.Run("empty_snapshot_closes_everything", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		applyMachineSnapshot(t, conn, day1, fleet)
		applyMachineSnapshot(t, conn, day2, nil)

		require.Equal(t, 0, countRows(t, conn, "dim_machine_current"))

		var open int
		row := conn.QueryRowContext(context.Background(), fmt.Sprintf(
			"SELECT count(*) FROM %s.%s.dim_machine_history WHERE is_current",
			conn.DB().Catalog(), conn.DB().Schema()))
		require.NoError(t, row.Scan(&open))
		require.Equal(t, 0, open)
	})

	t.Run("tracks_ingest_runs_when_enabled", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		cfg := machineSnapshotConfig(day1)
		cfg.TrackIngestRuns = true
		cfg.RunID = "run-001"

		err := SCDTableViaCSV(context.Background(), testLogger(), conn, cfg, len(fleet), writeMachines(fleet))
		require.NoError(t, err)

		ctx := context.Background()
		var runID string
		var inserted int64
		row := conn.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT run_id, rows_inserted FROM %s.%s._ingest_runs WHERE table_name = 'dim_machine'",
			conn.DB().Catalog(), conn.DB().Schema()))
		require.NoError(t, row.Scan(&runID, &inserted))
		require.Equal(t, "run-001", runID)
		require.Equal(t, int64(3), inserted)
	})

	t.Run("rejects_key_not_among_columns", func(t *testing.T) {
		t.Parallel()

		_, conn := testDBWithConn(t)
		cfg := SCDTableConfig{
			TableName:  "dim_bad",
			KeyColumn:  "missing",
			Columns:    []string{"machine_id:VARCHAR"},
			SnapshotTS: day1,
		}

		err := SCDTableViaCSV(context.Background(), testLogger(), conn, cfg, 0, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "not among columns")
	})
}
