package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rocjay1/rm-recurring/internal/clock"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
	"github.com/rocjay1/rm-recurring/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func TestHandleSchedules_List(t *testing.T) {
	mockStore := &MockStore{
		ListSchedulesFunc: func(ctx context.Context) ([]models.RecurringSchedule, error) {
			return []models.RecurringSchedule{
				{ID: "a", Description: "Rent", Amount: decimal.NewFromInt(1200)},
				{ID: "b", Description: "Payroll", Amount: decimal.NewFromInt(5000)},
			}, nil
		},
	}
	deps := &Dependencies{Store: mockStore}

	req := httptest.NewRequest(http.MethodGet, "/api/recurring", nil)
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got []models.RecurringSchedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
}

func TestHandleSchedules_ListEmpty(t *testing.T) {
	deps := &Dependencies{Store: &MockStore{}}

	req := httptest.NewRequest(http.MethodGet, "/api/recurring", nil)
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHandleSchedules_GetNotFound(t *testing.T) {
	mockStore := &MockStore{
		GetScheduleFunc: func(ctx context.Context, id string) (*models.RecurringSchedule, error) {
			return nil, fmt.Errorf("schedule %s: %w", id, services.ErrNotFound)
		},
	}
	deps := &Dependencies{Store: mockStore}

	req := httptest.NewRequest(http.MethodGet, "/api/recurring?id=missing", nil)
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSchedules_Create(t *testing.T) {
	var gotToday models.Date
	mockEngine := &MockEngine{
		CreateScheduleFunc: func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
			gotToday = today
			assert.Equal(t, models.KindExpense, req.Kind)
			assert.True(t, req.Amount.Equal(decimal.RequireFromString("99.95")))
			assert.Equal(t, "2025-03-01", req.StartDate)
			return &recurring.CreateResult{
				Schedule:      &models.RecurringSchedule{ID: "sched-1", Description: req.Description},
				TransactionID: "tx-1",
			}, nil
		},
	}
	deps := &Dependencies{Engine: mockEngine, Clock: clock.NewFixed(testNow)}

	body := `{"kind":"expense","description":"Hosting","amount":"99.95","frequency":"monthly","start_date":"2025-03-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "2025-03-10", gotToday.String())

	var got recurring.CreateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "sched-1", got.Schedule.ID)
	assert.Equal(t, "tx-1", got.TransactionID)
	assert.Empty(t, got.Warning)
}

func TestHandleSchedules_CreateWithWarning(t *testing.T) {
	mockEngine := &MockEngine{
		CreateScheduleFunc: func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
			return &recurring.CreateResult{
				Schedule: &models.RecurringSchedule{ID: "sched-1"},
				Warning:  "schedule saved but the first payment was not recorded",
			}, nil
		},
	}
	deps := &Dependencies{Engine: mockEngine, Clock: clock.NewFixed(testNow)}

	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "first payment was not recorded")
}

func TestHandleSchedules_CreateValidationError(t *testing.T) {
	mockEngine := &MockEngine{
		CreateScheduleFunc: func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
			return nil, &recurring.ValidationError{Field: "amount", Reason: "must be greater than zero"}
		},
	}
	deps := &Dependencies{Engine: mockEngine, Clock: clock.NewFixed(testNow)}

	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString(`{"amount":0}`))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid amount")
}

func TestHandleSchedules_CreateStoreError(t *testing.T) {
	mockEngine := &MockEngine{
		CreateScheduleFunc: func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
			return nil, errors.New("failed to insert schedule: table unavailable")
		},
	}
	deps := &Dependencies{Engine: mockEngine, Clock: clock.NewFixed(testNow)}

	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSchedules_CreateExisting(t *testing.T) {
	mockEngine := &MockEngine{
		CreateScheduleFunc: func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
			assert.Equal(t, "rent-2025", req.ID)
			return nil, fmt.Errorf("failed to insert schedule: %w", recurring.ErrScheduleExists)
		},
	}
	deps := &Dependencies{Engine: mockEngine, Clock: clock.NewFixed(testNow)}

	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString(`{"id":"rent-2025"}`))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleSchedules_CreateInvalidBody(t *testing.T) {
	deps := &Dependencies{Engine: &MockEngine{}}

	req := httptest.NewRequest(http.MethodPost, "/api/recurring", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSchedules_Delete(t *testing.T) {
	deleted := ""
	mockStore := &MockStore{
		DeleteScheduleFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	deps := &Dependencies{Store: mockStore}

	req := httptest.NewRequest(http.MethodDelete, "/api/recurring?id=sched-1", nil)
	w := httptest.NewRecorder()
	deps.HandleSchedules(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sched-1", deleted)
}

func TestHandleSchedules_DeleteErrors(t *testing.T) {
	deps := &Dependencies{Store: &MockStore{
		DeleteScheduleFunc: func(ctx context.Context, id string) error {
			return fmt.Errorf("schedule %s: %w", id, services.ErrNotFound)
		},
	}}

	w := httptest.NewRecorder()
	deps.HandleSchedules(w, httptest.NewRequest(http.MethodDelete, "/api/recurring", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	deps.HandleSchedules(w, httptest.NewRequest(http.MethodDelete, "/api/recurring?id=gone", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSchedules_MethodNotAllowed(t *testing.T) {
	deps := &Dependencies{}

	w := httptest.NewRecorder()
	deps.HandleSchedules(w, httptest.NewRequest(http.MethodPut, "/api/recurring", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleLedger(t *testing.T) {
	var gotMonth string
	mockStore := &MockStore{
		ListLedgerTransactionsFunc: func(ctx context.Context, month string) ([]models.LedgerTransaction, error) {
			gotMonth = month
			return []models.LedgerTransaction{{ID: "tx-1", Source: models.SourceRecurring}}, nil
		},
	}
	deps := &Dependencies{Engine: &MockEngine{}, Store: mockStore, Clock: clock.NewFixed(testNow)}

	w := httptest.NewRecorder()
	deps.HandleLedger(w, httptest.NewRequest(http.MethodGet, "/api/ledger?month=2025-01", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-01", gotMonth)
	assert.Contains(t, w.Body.String(), "tx-1")

	w = httptest.NewRecorder()
	deps.HandleLedger(w, httptest.NewRequest(http.MethodGet, "/api/ledger", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-03", gotMonth)
}

func TestHandleLedger_InvalidMonth(t *testing.T) {
	deps := &Dependencies{Store: &MockStore{}}

	w := httptest.NewRecorder()
	deps.HandleLedger(w, httptest.NewRequest(http.MethodGet, "/api/ledger?month=March", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleLedger_StoreError(t *testing.T) {
	deps := &Dependencies{Store: &MockStore{
		ListLedgerTransactionsFunc: func(ctx context.Context, month string) ([]models.LedgerTransaction, error) {
			return nil, errors.New("boom")
		},
	}}

	w := httptest.NewRecorder()
	deps.HandleLedger(w, httptest.NewRequest(http.MethodGet, "/api/ledger?month=2025-02", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
