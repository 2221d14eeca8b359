package directory

import (
	"context"
	"database/sql"
	"errors"
)

const operatorCols = `id, username, password_hash, role, is_active, on_duty, created_at`

func scanOperator(row interface{ Scan(...any) error }) (*Operator, error) {
	var o Operator
	if err := row.Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.Active, &o.OnDuty, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// OperatorByUsername returns an operator by username, or (nil, nil).
func (r *Repository) OperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+operatorCols+` FROM operators WHERE username = $1`, username)
	return scanOperator(row)
}

// OperatorByID returns an operator by id, or (nil, nil).
func (r *Repository) OperatorByID(ctx context.Context, id int64) (*Operator, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+operatorCols+` FROM operators WHERE id = $1`, id)
	return scanOperator(row)
}

// InsertOperator creates a new operator account.
func (r *Repository) InsertOperator(ctx context.Context, o Operator) (Operator, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO operators (username, password_hash, role, is_active, on_duty)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at
	`, o.Username, o.PasswordHash, o.Role, o.Active)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		return Operator{}, err
	}
	return o, nil
}

// ListOperators returns all operator accounts ordered by username.
func (r *Repository) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+operatorCols+` FROM operators ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Operator
	for rows.Next() {
		var o Operator
		if err := rows.Scan(&o.ID, &o.Username, &o.PasswordHash, &o.Role, &o.Active, &o.OnDuty, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// UpdateOperatorRole changes an operator's role.
func (r *Repository) UpdateOperatorRole(ctx context.Context, id int64, role string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE operators SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetOperatorActive flips the active flag.
func (r *Repository) SetOperatorActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE operators SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteOperator removes an operator account.
func (r *Repository) DeleteOperator(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM operators WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DutyHolder returns the operator currently flagged on duty, or (nil, nil).
// The assignment path guarantees at most one row has the flag.
func (r *Repository) DutyHolder(ctx context.Context) (*Operator, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+operatorCols+` FROM operators WHERE on_duty LIMIT 1`)
	return scanOperator(row)
}

// AssignDuty makes id the single duty holder. All previous holders are
// cleared and the new one set within one transaction so the at-most-one
// invariant holds regardless of how many rows carried the flag before.
func (r *Repository) AssignDuty(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE operators SET on_duty = FALSE WHERE on_duty`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE operators SET on_duty = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// CountOperators returns total and active account counts.
func (r *Repository) CountOperators(ctx context.Context) (total, active int64, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM operators
	`).Scan(&total, &active)
	return total, active, err
}
