package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scrub/internal/domain"
)

// RepairRepo records fixes after they have been applied to the source
// store, keeping an audit trail per rule.
type RepairRepo struct {
	db *sql.DB
}

func NewRepairRepo(db *sql.DB) *RepairRepo {
	return &RepairRepo{db: db}
}

// SaveFixes records the applied fixes for one rule in a single transaction.
func (r *RepairRepo) SaveFixes(ctx context.Context, ruleID string, fixes []domain.Fix) error {
	if len(fixes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fix save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repairs (vid, rule_id, table_name, column_name, tid, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fix insert: %w", err)
	}
	defer stmt.Close()

	for _, fix := range fixes {
		cell := fix.Cell
		if _, err := stmt.ExecContext(ctx,
			fix.ViolationID, ruleID,
			cell.Column.TableName, cell.Column.ColumnName, cell.Tid,
			renderValue(cell.Value), renderValue(fix.NewValue),
		); err != nil {
			return fmt.Errorf("insert fix for %s: %w", cell.Column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fix save: %w", err)
	}
	return nil
}

// AppliedFix is one recorded repair.
type AppliedFix struct {
	ViolationID int64
	Column      domain.Column
	Tid         int
	OldValue    string
	NewValue    string
	AppliedAt   time.Time
}

// ListByRule returns the recorded fixes for one rule, oldest first.
func (r *RepairRepo) ListByRule(ctx context.Context, ruleID string) ([]AppliedFix, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT vid, table_name, column_name, tid, old_value, new_value, applied_at
		FROM repairs
		WHERE rule_id = ?
		ORDER BY fid`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list fixes for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var out []AppliedFix
	for rows.Next() {
		var (
			fix                   AppliedFix
			tableName, columnName string
			oldValue, newValue    sql.NullString
		)
		if err := rows.Scan(&fix.ViolationID, &tableName, &columnName,
			&fix.Tid, &oldValue, &newValue, &fix.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan fix: %w", err)
		}
		fix.Column = domain.NewColumn(tableName, columnName)
		fix.OldValue = oldValue.String
		fix.NewValue = newValue.String
		out = append(out, fix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fixes for rule %s: %w", ruleID, err)
	}
	return out, nil
}
