package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskboard/internal/apperr"
	"github.com/BuzzLyutic/taskboard/internal/model"
	"github.com/BuzzLyutic/taskboard/migrations"
)

const taskColumns = `id, title, description, status, priority, due_date, created_at, updated_at`

const updateTaskSQL = `
	UPDATE tasks
	SET title = $2, description = $3, status = $4, priority = $5, due_date = $6, created_at = $7, updated_at = $8
	WHERE id = $1
`

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepo stores one row per task; storage order is the position
// column, filled from its sequence on insert.
type PostgresRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{
		pool: pool,
	}
}

// Migrate creates the tasks table if it does not exist yet.
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, migrations.CreateTasks)
	return r.mapError("migrate", err)
}

func (r *PostgresRepo) ReadAll(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY position, created_at
	`)
	if err != nil {
		return nil, r.mapError("read", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, r.mapError("read", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, r.mapError("read", rows.Err())
}

// WriteAll replaces the collection in one transaction, so readers see
// either the old or the new set of rows.
func (r *PostgresRepo) WriteAll(ctx context.Context, tasks []model.Task) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return r.mapError("write", err)
	}
	defer tx.Rollback(ctx) // после Commit ничего не делает

	if _, err := tx.Exec(ctx, `DELETE FROM tasks`); err != nil {
		return r.mapError("write", err)
	}

	// position не передаем: последовательность выдает номера в порядке строк COPY
	rows := make([][]any, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []any{
			t.ID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority),
			t.DueDate, t.CreatedAt, t.UpdatedAt,
		})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"tasks"},
		[]string{"id", "title", "description", "status", "priority", "due_date", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return r.mapError("write", err)
	}

	return r.mapError("write", tx.Commit(ctx))
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.mapError("find", err)
	}
	return &t, nil
}

func (r *PostgresRepo) Save(ctx context.Context, t model.Task) (model.Task, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority), t.DueDate, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Task{}, r.mapError("save", err)
	}
	return t, nil
}

func (r *PostgresRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	if err := r.updateRow(ctx, r.pool, t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// Modify locks the row with SELECT ... FOR UPDATE, so concurrent modifications
// of one task are applied one after another.
func (r *PostgresRepo) Modify(ctx context.Context, id string, fn func(t *model.Task) error) (model.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Task{}, r.mapError("update", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTask(tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, apperr.NotFound("update", id)
	}
	if err != nil {
		return model.Task{}, r.mapError("update", err)
	}

	if err := fn(&t); err != nil {
		return model.Task{}, err
	}
	t.ID = id

	if err := r.updateRow(ctx, tx, t); err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Task{}, r.mapError("update", err)
	}
	return t, nil
}

func (r *PostgresRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	return r.mapError("delete", err)
}

func (r *PostgresRepo) Remove(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return r.mapError("delete", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("delete", id)
	}
	return nil
}

func (r *PostgresRepo) updateRow(ctx context.Context, db execer, t model.Task) error {
	cmd, err := db.Exec(ctx, updateTaskSQL,
		t.ID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority), t.DueDate, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return r.mapError("update", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("update", t.ID)
	}
	return nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t           model.Task
		description *string
		status      string
		priority    string
		dueDate     *time.Time
	)
	err := row.Scan(&t.ID, &t.Title, &description, &status, &priority, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Task{}, err
	}
	if description != nil {
		t.Description = *description
	}
	if dueDate != nil {
		d := dueDate.UTC()
		t.DueDate = &d
	}
	t.Status = model.Status(status)
	t.Priority = model.Priority(priority)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PostgresRepo) mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.StorageIO(op, fmt.Errorf("duplicate task id: %w", err))
	}
	return apperr.StorageIO(op, err)
}
