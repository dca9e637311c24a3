package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) error
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Task, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
}
