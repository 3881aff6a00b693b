// Package metadata inspects and prepares tables inside a source store.
// Cleaning needs every working table to carry a row id column; the copy
// tool snapshots an arbitrary table into one that does.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"scrub/internal/domain"
	"scrub/internal/query"
	"scrub/internal/store"
)

// TableExists reports whether name exists in the source store.
func TableExists(ctx context.Context, src *store.Source, name string) (bool, error) {
	if err := query.ValidateIdentifier(name); err != nil {
		return false, err
	}

	var stmt string
	switch src.Config.Driver {
	case "pgx":
		stmt = `SELECT 1 FROM information_schema.tables WHERE table_name = $1`
	default:
		stmt = `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	rows, err := src.QueryContext(ctx, stmt, name)
	if err != nil {
		return false, domain.ErrStoreUnavailable(err, "checking table %s", name)
	}
	defer rows.Close()
	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, domain.ErrStoreUnavailable(err, "checking table %s", name)
	}
	return exists, nil
}

// ColumnNames returns the column names of a table in declaration order.
func ColumnNames(ctx context.Context, src *store.Source, name string) ([]string, error) {
	if err := query.ValidateIdentifier(name); err != nil {
		return nil, err
	}

	if src.Config.Driver == "pgx" {
		rows, err := src.QueryContext(ctx,
			`SELECT column_name FROM information_schema.columns
			 WHERE table_name = $1 ORDER BY ordinal_position`, name)
		if err != nil {
			return nil, domain.ErrStoreUnavailable(err, "describing table %s", name)
		}
		defer rows.Close()
		return scanNames(rows)
	}

	rows, err := src.QueryContext(ctx,
		fmt.Sprintf(`PRAGMA table_info(%s)`, query.QuoteIdentifier(name)))
	if err != nil {
		return nil, domain.ErrStoreUnavailable(err, "describing table %s", name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.ErrStoreUnavailable(err, "describing table %s", name)
	}
	nameIdx := -1
	for i, c := range cols {
		if c == "name" {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, domain.ErrStoreUnavailable(nil, "describing table %s: no name column in pragma output", name)
	}

	var out []string
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, domain.ErrStoreUnavailable(err, "describing table %s", name)
		}
		switch v := values[nameIdx].(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStoreUnavailable(err, "describing table %s", name)
	}
	return out, nil
}

// scanNames collects a single string column from each row.
func scanNames(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// HasTidColumn reports whether the table already carries a row id column.
func HasTidColumn(ctx context.Context, src *store.Source, name string) (bool, error) {
	cols, err := ColumnNames(ctx, src, name)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c, domain.TidColumn) {
			return true, nil
		}
	}
	return false, nil
}

// CopyTable snapshots the source table into target, replacing any
// previous target. When the source has no row id column the copy gains a
// synthetic one numbered from 1.
func CopyTable(ctx context.Context, src *store.Source, source, target string, logger *slog.Logger) error {
	if err := query.ValidateIdentifier(source); err != nil {
		return err
	}
	if err := query.ValidateIdentifier(target); err != nil {
		return err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	hasTid, err := HasTidColumn(ctx, src, source)
	if err != nil {
		return err
	}

	if _, err := src.ExecContext(ctx,
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, query.QuoteIdentifier(target))); err != nil {
		return domain.ErrStoreUnavailable(err, "dropping previous copy %s", target)
	}

	var stmt string
	switch {
	case hasTid:
		stmt = fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM %s`,
			query.QuoteIdentifier(target), query.QuoteIdentifier(source))
	case src.Config.Driver == "pgx":
		stmt = fmt.Sprintf(
			`CREATE TABLE %s AS SELECT CAST(ROW_NUMBER() OVER () AS INTEGER) AS %s, * FROM %s`,
			query.QuoteIdentifier(target), query.QuoteIdentifier(domain.TidColumn),
			query.QuoteIdentifier(source))
	default:
		// sqlite numbers rows for us.
		stmt = fmt.Sprintf(`CREATE TABLE %s AS SELECT rowid AS %s, * FROM %s`,
			query.QuoteIdentifier(target), query.QuoteIdentifier(domain.TidColumn),
			query.QuoteIdentifier(source))
	}
	if _, err := src.ExecContext(ctx, stmt); err != nil {
		return domain.ErrStoreUnavailable(err, "copying %s to %s", source, target)
	}

	logger.Info("table copied",
		"source", source, "target", target, "tid_added", !hasTid)
	return nil
}
