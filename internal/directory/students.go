package directory

import (
	"context"
	"database/sql"
	"errors"
)

// StudentByTag returns the student whose registered tag payload matches tid,
// or (nil, nil) when no student matches. An empty tid never matches.
func (r *Repository) StudentByTag(ctx context.Context, tid string) (*Student, error) {
	if tid == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tid, name, school_class, lastscan, in_school
		FROM students WHERE tid = $1
	`, tid)
	var s Student
	if err := row.Scan(&s.ID, &s.TagID, &s.Name, &s.SchoolClass, &s.LastScan, &s.InSchool); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// StudentByID returns a student by primary key, or (nil, nil) when missing.
func (r *Repository) StudentByID(ctx context.Context, id int64) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tid, name, school_class, lastscan, in_school
		FROM students WHERE id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.TagID, &s.Name, &s.SchoolClass, &s.LastScan, &s.InSchool); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListStudents returns all students ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tid, name, school_class, lastscan, in_school
		FROM students ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.TagID, &s.Name, &s.SchoolClass, &s.LastScan, &s.InSchool); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertStudent writes a new student and returns it with the assigned id.
func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (tid, name, school_class, lastscan, in_school)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.TagID, s.Name, s.SchoolClass, s.LastScan, s.InSchool)
	if err := row.Scan(&s.ID); err != nil {
		return Student{}, err
	}
	return s, nil
}

// RecordScan persists one attendance transition. The in_school/lastscan
// update and its audit entries commit or roll back together, so a failed
// audit write never leaves the toggle half-applied. This is the only write
// path for in_school.
func (r *Repository) RecordScan(ctx context.Context, id int64, inSchool bool, lastscan int64, entries []AuditEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE students SET in_school = $2, lastscan = $3 WHERE id = $1
	`, id, inSchool, lastscan)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	for _, e := range entries {
		if err := insertAudit(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetStudentTag re-registers a student's tag payload.
func (r *Repository) SetStudentTag(ctx context.Context, id int64, tid string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET tid = $2 WHERE id = $1`, id, tid)
	return err
}

// DeleteStudent removes a student. Returns sql.ErrNoRows when absent.
func (r *Repository) DeleteStudent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountStudents returns the number of tracked students.
func (r *Repository) CountStudents(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}
