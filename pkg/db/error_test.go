package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestIsDuplicateKeyErrSQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.Exec(`CREATE TABLE scopes (name TEXT NOT NULL UNIQUE)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := conn.Exec(`INSERT INTO scopes (name) VALUES ('platform')`).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = conn.Exec(`INSERT INTO scopes (name) VALUES ('platform')`).Error
	if err == nil {
		t.Fatalf("expected a unique violation")
	}
	if !IsDuplicateKeyErr(err) {
		t.Fatalf("sqlite unique violation not classified: %v", err)
	}
}

func TestIsDuplicateKeyErrMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm sentinel", fmt.Errorf("save: %w", gorm.ErrDuplicatedKey), true},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "ux_commission_settings_category"`), true},
		{"mysql", errors.New("Error 1062: Duplicate entry '42' for key 'ux_commission_settings_category'"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("IsDuplicateKeyErr(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
