// Package sqltest provisions in-memory SQLite catalogs for tests and local demos.
package sqltest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

// Row is one table row keyed by column name. Arrays are []string, timestamps time.Time.
type Row map[string]any

// Fixture is a seed data set.
type Fixture struct {
	Groups            []Row
	Records           []Row
	RecordEnrichments []Row
	GroupEnrichments  []Row
}

var tableOrder = []string{
	schema.TableGroups,
	schema.TableRecords,
	schema.TableRecordEnrichments,
	schema.TableGroupEnrichments,
}

// DDL returns CREATE TABLE statements for the catalog tables in SQLite syntax.
func DDL() []string {
	var out []string
	for _, name := range tableOrder {
		t, _ := schema.TableByName(name)
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			def := c.Name + " " + sqliteType(c.Kind)
			if c.Name == t.Key {
				def += " PRIMARY KEY"
			}
			cols = append(cols, def)
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(cols, ", ")))
	}
	out = append(out,
		"CREATE INDEX IF NOT EXISTS records_created_at ON records (created_at)",
		"CREATE INDEX IF NOT EXISTS records_group_id ON records (group_id)",
	)
	return out
}

func sqliteType(k schema.Kind) string {
	switch k {
	case schema.Number:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

// CreateSchema creates the catalog tables.
func CreateSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range DDL() {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Seed inserts the fixture rows.
func Seed(ctx context.Context, conn *sql.DB, f Fixture) error {
	sets := map[string][]Row{
		schema.TableGroups:            f.Groups,
		schema.TableRecords:           f.Records,
		schema.TableRecordEnrichments: f.RecordEnrichments,
		schema.TableGroupEnrichments:  f.GroupEnrichments,
	}
	for _, name := range tableOrder {
		for _, row := range sets[name] {
			if err := insert(ctx, conn, name, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func insert(ctx context.Context, conn *sql.DB, table string, row Row) error {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := sqliteValue(row[c])
		if err != nil {
			return fmt.Errorf("insert %s.%s: %w", table, c, err)
		}
		args[i] = v
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), sqldb.Placeholders(len(cols)))
	if _, err := conn.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func sqliteValue(v any) (any, error) {
	switch x := v.(type) {
	case []string:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil, err //nolint:wrapcheck // caller adds context
		}
		return string(raw), nil
	case time.Time:
		return x.UTC().Format(sqldb.SQLiteTimeLayout), nil
	default:
		return v, nil
	}
}

var dbSeq atomic.Int64

// Open creates a private in-memory catalog with the schema applied and
// optional fixture seeded. The database is closed when the test ends.
func Open(t testing.TB, f *Fixture) (*sql.DB, sqldb.Dialect) {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:catalogq_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, d, err := sqldb.Open(ctx, sqldb.Config{Driver: sqldb.DriverSQLite, DSN: dsn, MaxOpenConns: 4, MaxIdleConns: 4})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := CreateSchema(ctx, conn); err != nil {
		t.Fatalf("%v", err)
	}
	if f != nil {
		if err := Seed(ctx, conn, *f); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return conn, d
}

// At returns a whole-second UTC timestamp n hours after a fixed epoch.
func At(hours int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
}
