package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperforge-labs/forgelake/pkg/duck"
)

// scd2MetaColumns live on _current tables but not in the declared schema.
var scd2MetaColumns = map[string]bool{
	"row_hash":   true,
	"updated_at": true,
}

// Validate checks the warehouse against the in-code schema: every declared
// table must exist (dimensions as <name>_current) and every declared column
// must be present. Extra history tables and SCD2 metadata columns are
// tolerated; anything else is reported in one shot.
func Validate(ctx context.Context, db duck.DB, s *Schema) error {
	expected := make(map[string]string, len(s.Tables)) // DB table name -> schema table name
	for _, table := range s.Tables {
		if table.IsSCD2() {
			expected[table.Name+"_current"] = table.Name
		} else {
			expected[table.Name] = table.Name
		}
	}
	if len(expected) == 0 {
		return nil
	}

	quoted := make([]string, 0, len(expected))
	for name := range expected {
		quoted = append(quoted, fmt.Sprintf("'%s'", strings.ReplaceAll(name, "'", "''")))
	}
	query := fmt.Sprintf(`
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_catalog = '%s' AND table_schema = '%s'
			AND table_name IN (%s)
		ORDER BY table_name, ordinal_position
	`, db.Catalog(), db.Schema(), strings.Join(quoted, ", "))

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query information_schema: %w", err)
	}
	defer rows.Close()

	dbColumns := make(map[string]map[string]bool)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return fmt.Errorf("failed to scan schema row: %w", err)
		}
		if dbColumns[tableName] == nil {
			dbColumns[tableName] = make(map[string]bool)
		}
		dbColumns[tableName][columnName] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating schema rows: %w", err)
	}

	var problems []string
	for dbName, schemaName := range expected {
		cols, exists := dbColumns[dbName]
		if !exists {
			problems = append(problems, fmt.Sprintf("table %s: declared but not in warehouse", dbName))
			continue
		}

		declared, err := s.Table(schemaName)
		if err != nil {
			return err
		}
		declaredCols := make(map[string]bool, len(declared.Columns))
		for _, col := range declared.Columns {
			declaredCols[col.Name] = true
			if !cols[col.Name] {
				problems = append(problems, fmt.Sprintf("table %s, column %s: declared but not in warehouse", dbName, col.Name))
			}
		}
		for col := range cols {
			if scd2MetaColumns[col] {
				continue
			}
			if !declaredCols[col] {
				problems = append(problems, fmt.Sprintf("table %s, column %s: in warehouse but not declared", dbName, col))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("schema validation failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
