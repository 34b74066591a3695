package recurring

import (
	"errors"
	"fmt"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// ErrProcessorBusy is returned when another due-payment run holds the lock.
var ErrProcessorBusy = errors.New("due-payment processing is already running")

// ErrScheduleExists is returned when a schedule with the same id is already
// stored.
var ErrScheduleExists = errors.New("schedule already exists")

// ValidationError rejects a schedule request before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Stages at which a single schedule can fail during a run.
const (
	StageDecode      = "decode"
	StageLedgerWrite = "ledger_write"
	StageAdvance     = "advance"
)

// ScheduleError describes one schedule that could not be processed. The
// schedule stays due and is picked up again by the next run.
type ScheduleError struct {
	ScheduleID  string      `json:"schedule_id"`
	Description string      `json:"description"`
	DueDate     models.Date `json:"due_date"`
	Stage       string      `json:"stage"`
	Message     string      `json:"error"`

	Err error `json:"-"`
}

func newScheduleError(s *models.RecurringSchedule, stage string, err error) ScheduleError {
	return ScheduleError{
		ScheduleID:  s.ID,
		Description: s.Description,
		DueDate:     s.NextDueDate,
		Stage:       stage,
		Message:     err.Error(),
		Err:         err,
	}
}

func (e ScheduleError) Error() string {
	if e.DueDate.IsZero() {
		return fmt.Sprintf("schedule %s failed at %s: %s", e.ScheduleID, e.Stage, e.Message)
	}
	return fmt.Sprintf("schedule %s (%s) due %s failed at %s: %s", e.ScheduleID, e.Description, e.DueDate, e.Stage, e.Message)
}

func (e ScheduleError) Unwrap() error { return e.Err }
