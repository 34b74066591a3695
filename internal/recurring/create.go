package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/shopspring/decimal"
)

// CreateResult is the outcome of CreateSchedule. Warning is set when the
// schedule was saved but its first occurrence could not be fully recorded.
type CreateResult struct {
	Schedule      *models.RecurringSchedule `json:"schedule"`
	TransactionID string                    `json:"transaction_id,omitempty"`
	Warning       string                    `json:"warning,omitempty"`
}

// CreateSchedule validates and stores a new schedule. When the schedule
// starts on or before today its first occurrence is written to the ledger
// straight away. A request whose ID is already stored fails with
// ErrScheduleExists and writes nothing.
func (e *Engine) CreateSchedule(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*CreateResult, error) {
	sched, err := newSchedule(req)
	if err != nil {
		return nil, err
	}

	if err := e.store.InsertSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to insert schedule: %w", err)
	}
	slog.Info("recurring schedule created",
		"schedule_id", sched.ID,
		"frequency", sched.Frequency,
		"start_date", sched.StartDate.String(),
		"amount", sched.Amount.StringFixed(2),
	)

	result := &CreateResult{Schedule: sched}
	if sched.StartDate.After(today) {
		return result, nil
	}

	txID, err := e.appendOccurrence(ctx, sched)
	if err != nil {
		slog.Warn("first occurrence not recorded; processor will retry it",
			"schedule_id", sched.ID, "due_date", sched.NextDueDate.String(), "error", err)
		result.Warning = fmt.Sprintf("schedule saved but the first payment was not recorded: %v", err)
		return result, nil
	}
	result.TransactionID = txID

	adv := advance(sched)
	if err := e.store.UpdateAfterImmediateCreation(ctx, sched, adv); err != nil {
		slog.Error("first occurrence recorded but schedule not advanced; it will be recorded again",
			"schedule_id", sched.ID, "transaction_id", txID, "error", err)
		result.Warning = fmt.Sprintf("first payment recorded as %s but the schedule was not advanced: %v", txID, err)
		return result, nil
	}
	adv.Apply(sched)

	slog.Info("first occurrence recorded",
		"schedule_id", sched.ID,
		"transaction_id", txID,
		"next_due_date", sched.NextDueDate.String(),
		"is_active", sched.IsActive,
	)
	return result, nil
}

func newSchedule(req models.CreateScheduleRequest) (*models.RecurringSchedule, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	} else if strings.ContainsAny(id, `/\#?`) {
		return nil, invalid("id", "must not contain '/', '\\', '#' or '?'")
	}

	if !req.Kind.IsValid() {
		return nil, invalid("kind", "must be %q or %q", models.KindIncome, models.KindExpense)
	}
	if !req.Amount.GreaterThan(decimal.Zero) {
		return nil, invalid("amount", "must be greater than zero")
	}

	freq, err := models.ParseFrequency(string(req.Frequency))
	if err != nil {
		return nil, invalid("frequency", "%v", err)
	}

	start, err := models.ParseDate(strings.TrimSpace(req.StartDate))
	if err != nil {
		return nil, invalid("start_date", "%v", err)
	}

	var end *models.Date
	if s := strings.TrimSpace(req.EndDate); s != "" {
		parsed, err := models.ParseDate(s)
		if err != nil {
			return nil, invalid("end_date", "%v", err)
		}
		if parsed.Before(start) {
			return nil, invalid("end_date", "must not be before start_date")
		}
		end = &parsed
	}

	if req.PaymentLimit != nil && *req.PaymentLimit < 1 {
		return nil, invalid("payment_limit", "must be at least 1")
	}
	if req.AnchorDayOfMonth != nil && (*req.AnchorDayOfMonth < 1 || *req.AnchorDayOfMonth > 31) {
		return nil, invalid("anchor_day_of_month", "must be between 1 and 31")
	}

	category := req.Category
	if category == "" {
		category = models.CategoryOther
	}

	return &models.RecurringSchedule{
		ID:                id,
		Kind:              req.Kind,
		Category:          category,
		Description:       strings.TrimSpace(req.Description),
		Amount:            req.Amount,
		Frequency:         freq,
		AnchorDayOfMonth:  req.AnchorDayOfMonth,
		StartDate:         start,
		EndDate:           end,
		NextDueDate:       start,
		PaymentsProcessed: 0,
		PaymentLimit:      req.PaymentLimit,
		IsActive:          true,
		Linkage:           req.Linkage,
	}, nil
}
