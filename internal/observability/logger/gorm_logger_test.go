package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func withObservedGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "SELECT", sqlOperation("select * from tasks"))
	assert.Equal(t, "UPDATE", sqlOperation("WITH t AS (SELECT 1) UPDATE tasks SET completed = true"))
	assert.Equal(t, "INSERT", sqlOperation(`INSERT INTO "organizations" ("id") VALUES (1)`))
	assert.Equal(t, "UNKNOWN", sqlOperation("PRAGMA foreign_keys = ON"))
}

func TestTraceLevels(t *testing.T) {
	logs := withObservedGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries stay quiet at warn")

	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len(), "not found is ignored")

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, zap.ErrorLevel, logs.All()[1].Level)
	assert.Equal(t, "SELECT", logs.All()[1].ContextMap()["operation"])

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
