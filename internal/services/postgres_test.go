package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockExecer is a mock implementation of execer
type MockExecer struct {
	ExecFunc func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (m *MockExecer) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	content, err := migrationsFS.ReadFile("migrations/001_recurring.sql")
	require.NoError(t, err)
	sql := string(content)
	assert.True(t, strings.Contains(sql, "recurring_schedules"))
	assert.True(t, strings.Contains(sql, "ledger_transactions"))
}

func TestScheduleVersion(t *testing.T) {
	d := models.NewDate(2025, time.March, 31)
	assert.Equal(t, "2025-03-31/4", scheduleVersion(d, 4))
	assert.NotEqual(t, scheduleVersion(d, 4), scheduleVersion(d, 5))
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	v := nullIfEmpty("cust-1")
	require.NotNil(t, v)
	assert.Equal(t, "cust-1", *v)
}

func TestWriteScheduleAdvance_GuardsOnReadState(t *testing.T) {
	sched := &models.RecurringSchedule{
		ID:                "sched-1",
		NextDueDate:       models.NewDate(2025, time.March, 1),
		PaymentsProcessed: 2,
	}
	adv := models.ScheduleAdvance{NextDueDate: models.NewDate(2025, time.April, 1), PaymentsProcessed: 3, IsActive: true}

	db := &MockExecer{
		ExecFunc: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "WHERE id = $4 AND next_due_date = $5 AND payments_processed = $6")
			require.Len(t, arguments, 6)
			assert.Equal(t, "sched-1", arguments[3])
			assert.Equal(t, sched.NextDueDate.Time, arguments[4])
			assert.Equal(t, 2, arguments[5])
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}

	require.NoError(t, writeScheduleAdvance(context.Background(), db, sched, adv))
	assert.Equal(t, "2025-04-01/3", sched.ETag)
}

func TestWriteScheduleAdvance_NoRowsIsConcurrentUpdate(t *testing.T) {
	sched := &models.RecurringSchedule{ID: "sched-1", NextDueDate: models.NewDate(2025, time.March, 1), ETag: "2025-03-01/0"}
	db := &MockExecer{
		ExecFunc: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}

	err := writeScheduleAdvance(context.Background(), db, sched, models.ScheduleAdvance{NextDueDate: models.NewDate(2025, time.April, 1), PaymentsProcessed: 1})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, "2025-03-01/0", sched.ETag)
}

func TestWriteScheduleAdvance_ExecError(t *testing.T) {
	db := &MockExecer{
		ExecFunc: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection reset")
		},
	}

	err := writeScheduleAdvance(context.Background(), db, &models.RecurringSchedule{ID: "sched-1"}, models.ScheduleAdvance{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConcurrentUpdate)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	assert.True(t, isUniqueViolation(dup))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestBadRowError(t *testing.T) {
	cause := errors.New("invalid amount")
	var err error = &badRowError{id: "sched-7", err: cause}

	var bad *badRowError
	require.True(t, errors.As(fmt.Errorf("scan: %w", err), &bad))
	assert.Equal(t, "sched-7", bad.id)
	assert.ErrorIs(t, err, cause)
}
