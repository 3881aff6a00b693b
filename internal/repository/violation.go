// Package repository persists violations and repairs in the metastore.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"scrub/internal/domain"
)

// ViolationRepo stores detected violations, one metastore row per
// violating cell. Cells of the same violation share a vid.
type ViolationRepo struct {
	db *sql.DB
}

func NewViolationRepo(db *sql.DB) *ViolationRepo {
	return &ViolationRepo{db: db}
}

// SaveViolations appends the given violations in one transaction and
// assigns each violation its metastore id.
func (r *ViolationRepo) SaveViolations(ctx context.Context, violations []*domain.Violation) error {
	if len(violations) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin violation save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var nextVid int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(vid), 0) + 1 FROM violations`).Scan(&nextVid); err != nil {
		return fmt.Errorf("allocate vid: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (vid, rule_id, table_name, column_name, tid, value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare violation insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range violations {
		vid := nextVid
		nextVid++
		for _, cell := range v.Cells {
			if _, err := stmt.ExecContext(ctx,
				vid, v.RuleID,
				cell.Column.TableName, cell.Column.ColumnName,
				cell.Tid, renderValue(cell.Value),
			); err != nil {
				return fmt.Errorf("insert violation cell %s: %w", cell.Column, err)
			}
		}
		v.ID = vid
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit violation save: %w", err)
	}
	return nil
}

// ListByRule returns the stored violations for one rule, regrouped from
// their cell rows. Cell values come back as strings.
func (r *ViolationRepo) ListByRule(ctx context.Context, ruleID string) ([]*domain.Violation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT vid, table_name, column_name, tid, value
		FROM violations
		WHERE rule_id = ?
		ORDER BY vid, id`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list violations for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var out []*domain.Violation
	var current *domain.Violation
	for rows.Next() {
		var (
			vid                   int64
			tableName, columnName string
			tid                   int
			value                 sql.NullString
		)
		if err := rows.Scan(&vid, &tableName, &columnName, &tid, &value); err != nil {
			return nil, fmt.Errorf("scan violation cell: %w", err)
		}

		cell := domain.Cell{
			Column: domain.NewColumn(tableName, columnName),
			Tid:    tid,
		}
		if value.Valid {
			cell.Value = value.String
		}

		if current == nil || current.ID != vid {
			current = &domain.Violation{ID: vid, RuleID: ruleID}
			out = append(out, current)
		}
		current.Add(cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list violations for rule %s: %w", ruleID, err)
	}
	return out, nil
}

// DeleteByRule removes every stored violation for one rule.
func (r *ViolationRepo) DeleteByRule(ctx context.Context, ruleID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM violations WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete violations for rule %s: %w", ruleID, err)
	}
	return nil
}

// RuleCount is one rule's share of the stored violations.
type RuleCount struct {
	RuleID     string
	Violations int64
	Cells      int64
}

// CountByRule summarizes the stored violations per rule.
func (r *ViolationRepo) CountByRule(ctx context.Context) ([]RuleCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rule_id, COUNT(DISTINCT vid), COUNT(*)
		FROM violations
		GROUP BY rule_id
		ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}
	defer rows.Close()

	var out []RuleCount
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.RuleID, &rc.Violations, &rc.Cells); err != nil {
			return nil, fmt.Errorf("scan violation count: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count violations: %w", err)
	}
	return out, nil
}

// renderValue flattens a cell value for TEXT storage; nil stays NULL.
func renderValue(v interface{}) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	switch s := v.(type) {
	case string:
		return sql.NullString{String: s, Valid: true}
	case []byte:
		return sql.NullString{String: string(s), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprintf("%v", v), Valid: true}
	}
}
