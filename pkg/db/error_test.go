package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pgconn other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: organizations.slug"), want: true},
		{name: "other", err: errors.New("connection reset"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

type uniqueRow struct {
	ID   int64  `gorm:"primaryKey"`
	Slug string `gorm:"uniqueIndex"`
}

func TestNewTestDetectsUniqueViolation(t *testing.T) {
	conn, err := NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&uniqueRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Create(&uniqueRow{ID: 1, Slug: "acme"}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = conn.Create(&uniqueRow{ID: 2, Slug: "acme"}).Error
	assert.True(t, IsDuplicateKeyErr(err), "got %v", err)
	assert.False(t, IsPostgres(conn))
}
