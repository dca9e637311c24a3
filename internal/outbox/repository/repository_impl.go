package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kormohq/kormo/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *domain.Task) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_tasks (
			id, kind, payload, status, attempts, next_attempt_at, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Kind,
		task.Payload,
		task.Status,
		task.Attempts,
		task.NextAttemptAt,
		task.LastError,
		task.CreatedAt,
		task.UpdatedAt,
	).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	var tasks []domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM outbox_tasks
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		domain.TaskPending, now, limit,
	).Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.TaskDone, now, id, domain.TaskPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		attempts, nextAttemptAt, lastError, now, id, domain.TaskPending,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.TaskFailed, attempts, lastError, now, id, domain.TaskPending,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Task, error) {
	var task domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM outbox_tasks WHERE id = ? LIMIT 1`,
		id,
	).Scan(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == 0 {
		return nil, nil
	}
	return &task, nil
}
