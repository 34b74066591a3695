package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// ProcessResult reports a due-payment run.
type ProcessResult struct {
	Today models.Date `json:"today"`
	// Processed counts schedules advanced at least once.
	Processed int `json:"processed"`
	// Occurrences counts ledger transactions written, including any whose
	// schedule could not be advanced afterwards.
	Occurrences int             `json:"occurrences"`
	Skipped     int             `json:"skipped"`
	Errors      []ScheduleError `json:"errors"`
	Cancelled   bool            `json:"cancelled,omitempty"`
}

// ProcessDuePayments materialises every active schedule due on or before
// today. Failures are isolated per schedule and returned in the result. Only
// a failure to take the lock or to read the due set is returned as an error.
//
// If ctx is cancelled the occurrence in flight is completed and no further
// occurrence is started.
func (e *Engine) ProcessDuePayments(ctx context.Context, today models.Date) (*ProcessResult, error) {
	if !e.running.TryLock() {
		return nil, ErrProcessorBusy
	}
	defer e.running.Unlock()

	if e.opts.Locker != nil {
		unlock, err := e.opts.Locker.TryLock(ctx)
		if err != nil {
			if errors.Is(err, ErrProcessorBusy) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to acquire processor lock: %w", err)
		}
		defer unlock()
	}

	due, unreadable, err := e.store.FindActiveDueOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to read due schedules: %w", err)
	}
	slog.Info("starting due-payment run", "today", today.String(), "due_count", len(due), "unreadable_count", len(unreadable))

	result := &ProcessResult{Today: today, Errors: []ScheduleError{}}
	for _, u := range unreadable {
		slog.Error("stored schedule could not be read", "schedule_id", u.ID, "error", u.Err)
		result.Errors = append(result.Errors, ScheduleError{
			ScheduleID: u.ID,
			Stage:      StageDecode,
			Message:    u.Err.Error(),
			Err:        u.Err,
		})
	}
	for i := range due {
		if ctx.Err() != nil {
			result.Cancelled = true
			slog.Warn("due-payment run cancelled", "remaining", len(due)-i)
			break
		}
		e.processSchedule(ctx, &due[i], today, result)
	}

	slog.Info("due-payment run complete",
		"today", today.String(),
		"processed", result.Processed,
		"occurrences", result.Occurrences,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

func (e *Engine) processSchedule(ctx context.Context, s *models.RecurringSchedule, today models.Date, result *ProcessResult) {
	written := 0
	for s.IsActive && !s.NextDueDate.After(today) && written < e.opts.MaxCatchUp {
		if s.EndsBefore(s.NextDueDate) {
			if written == 0 {
				result.Skipped++
			}
			slog.Info("schedule past its end date; not processed",
				"schedule_id", s.ID, "next_due_date", s.NextDueDate.String(), "end_date", s.EndDate.String())
			break
		}
		if written > 0 && ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		txID, err := e.appendOccurrence(ctx, s)
		if err != nil {
			slog.Error("failed to write ledger transaction",
				"schedule_id", s.ID, "due_date", s.NextDueDate.String(), "error", err)
			result.Errors = append(result.Errors, newScheduleError(s, StageLedgerWrite, err))
			break
		}
		result.Occurrences++

		adv := advance(s)
		if err := e.store.UpdateAfterProcessing(context.WithoutCancel(ctx), s, adv); err != nil {
			slog.Error("ledger transaction written but schedule not advanced; it will be written again next run",
				"schedule_id", s.ID, "transaction_id", txID, "due_date", s.NextDueDate.String(), "error", err)
			result.Errors = append(result.Errors, newScheduleError(s, StageAdvance, err))
			break
		}
		slog.Info("recurring occurrence processed",
			"schedule_id", s.ID,
			"transaction_id", txID,
			"due_date", s.NextDueDate.String(),
			"next_due_date", adv.NextDueDate.String(),
			"payments_processed", adv.PaymentsProcessed,
			"is_active", adv.IsActive,
		)
		adv.Apply(s)
		written++
	}

	if written > 0 {
		result.Processed++
	}
}

// RunSummary is the response of the "run due-payment processing now"
// operation.
type RunSummary struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// Summarize folds a run outcome into a RunSummary. Per-schedule failures
// leave Success true and are listed in Error.
func Summarize(result *ProcessResult, err error) RunSummary {
	if err != nil {
		return RunSummary{Success: false, Error: err.Error()}
	}
	summary := RunSummary{Success: true, Processed: result.Processed}
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, se := range result.Errors {
			msgs[i] = se.Error()
		}
		summary.Error = fmt.Sprintf("%d schedule(s) failed: %s", len(result.Errors), strings.Join(msgs, "; "))
	}
	return summary
}
