package tasks

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepo enforces authorization inside the statements themselves: the
// visibility or ownership predicate rides in the WHERE clause of every
// mutation, so a check never races the write it guards. Share, which needs
// several reads before its insert, runs in one transaction instead.
type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

// queryer abstracts *sql.DB and *sql.Tx for the read helpers.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `
	t.id, t.title, t.description, t.completed, t.user_id, t.created_at,
	u.id, u.name, u.email
`

const visiblePredicate = `
	(t.user_id = ? OR EXISTS (
		SELECT 1 FROM task_shares s WHERE s.task_id = t.id AND s.user_id = ?
	))
`

func (r *SQLiteRepo) Create(ctx context.Context, ownerID, title, description string) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, ErrTitleRequired
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, completed, user_id, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, id, title, description, ownerID, now.Format(time.RFC3339Nano)); err != nil {
		return Task{}, err
	}
	return r.byID(ctx, r.db, id)
}

func (r *SQLiteRepo) ListVisible(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, `WHERE `+visiblePredicate, callerID, callerID)
}

func (r *SQLiteRepo) ListOwned(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, `WHERE t.user_id = ?`, callerID)
}

func (r *SQLiteRepo) ListSharedWith(ctx context.Context, callerID string) ([]Task, error) {
	return r.list(ctx, `
		WHERE EXISTS (
			SELECT 1 FROM task_shares s WHERE s.task_id = t.id AND s.user_id = ?
		)`, callerID)
}

func (r *SQLiteRepo) Update(ctx context.Context, callerID, taskID, title, description string) (Task, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?
		WHERE id = ? AND (user_id = ? OR EXISTS (
			SELECT 1 FROM task_shares s WHERE s.task_id = tasks.id AND s.user_id = ?
		))
	`, title, description, taskID, callerID, callerID)
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		return Task{}, ErrNotFound
	}
	return r.byID(ctx, r.db, taskID)
}

func (r *SQLiteRepo) ToggleCompletion(ctx context.Context, callerID, taskID string) (Task, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET completed = NOT completed
		WHERE id = ? AND (user_id = ? OR EXISTS (
			SELECT 1 FROM task_shares s WHERE s.task_id = tasks.id AND s.user_id = ?
		))
	`, taskID, callerID, callerID)
	if err != nil {
		return Task{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		return Task{}, ErrNotFound
	}
	return r.byID(ctx, r.db, taskID)
}

func (r *SQLiteRepo) Delete(ctx context.Context, callerID, taskID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE id = ? AND user_id = ?
	`, taskID, callerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) Share(ctx context.Context, callerID, taskID, targetEmail string) (Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	var owned bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = ? AND user_id = ?)`,
		taskID, callerID,
	).Scan(&owned); err != nil {
		return Task{}, err
	}
	if !owned {
		return Task{}, ErrNotFound
	}

	var targetID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = ?`, targetEmail,
	).Scan(&targetID)
	if err == sql.ErrNoRows {
		return Task{}, ErrUserNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if targetID == callerID {
		return Task{}, ErrSelfShare
	}

	var dup bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM task_shares WHERE task_id = ? AND user_id = ?)`,
		taskID, targetID,
	).Scan(&dup); err != nil {
		return Task{}, err
	}
	if dup {
		return Task{}, ErrAlreadyShared
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO task_shares (task_id, user_id) VALUES (?, ?)
	`, taskID, targetID); err != nil {
		return Task{}, err
	}

	t, err := r.byID(ctx, tx, taskID)
	if err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (r *SQLiteRepo) list(ctx context.Context, where string, args ...any) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		`+where+`
		ORDER BY t.created_at ASC, t.id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadShared(ctx, r.db, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepo) byID(ctx context.Context, q queryer, taskID string) (Task, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.id = ?
	`, taskID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if err := r.loadShared(ctx, q, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (r *SQLiteRepo) loadShared(ctx context.Context, q queryer, t *Task) error {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.name, u.email
		FROM task_shares s
		JOIN users u ON u.id = s.user_id
		WHERE s.task_id = ?
		ORDER BY u.email ASC
	`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	t.SharedWith = make([]UserRef, 0)
	for rows.Next() {
		var ref UserRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Email); err != nil {
			return err
		}
		t.SharedWith = append(t.SharedWith, ref)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var owner UserRef
	var created string
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Completed, &t.UserID, &created,
		&owner.ID, &owner.Name, &owner.Email,
	)
	if err != nil {
		return Task{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		t.CreatedAt = ts
	}
	t.Owner = &owner
	return t, nil
}
