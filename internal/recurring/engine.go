// Package recurring turns recurring payment schedules into ledger
// transactions.
//
// Every occurrence is materialised in two steps: the ledger transaction is
// appended first and the schedule is advanced afterwards. When the append
// succeeds but the advance fails, the schedule keeps its old due date and
// the next run appends the same occurrence again. Delivery is therefore
// at-least-once, and a duplicate ledger row is the accepted outcome of that
// partial failure.
package recurring

import (
	"context"
	"sync"
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// ScheduleStore persists recurring schedules.
//
// InsertSchedule returns ErrScheduleExists when the id is already stored.
// FindActiveDueOn returns stored rows it could not decode separately from
// the due set. The update methods must refuse to write when the stored
// schedule has changed since s was read, and must refresh s.ETag on success.
type ScheduleStore interface {
	InsertSchedule(ctx context.Context, s *models.RecurringSchedule) error
	FindActiveDueOn(ctx context.Context, today models.Date) ([]models.RecurringSchedule, []UnreadableSchedule, error)
	UpdateAfterProcessing(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error
	UpdateAfterImmediateCreation(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error
}

// UnreadableSchedule is a stored schedule row that could not be decoded.
type UnreadableSchedule struct {
	ID  string
	Err error
}

// LedgerWriter appends immutable transactions to the financial ledger.
type LedgerWriter interface {
	AppendTransaction(ctx context.Context, tx models.LedgerTransaction) (string, error)
}

// Locker serialises due-payment runs across processes. TryLock returns
// ErrProcessorBusy when another holder has the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}

const (
	DefaultLedgerTimeout = 10 * time.Second
	DefaultMaxCatchUp    = 1
)

// Options tune an Engine. Zero values pick the defaults.
type Options struct {
	// LedgerTimeout bounds every ledger append.
	LedgerTimeout time.Duration
	// MaxCatchUp caps the occurrences one schedule may materialise per run.
	MaxCatchUp int
	// Location decides which calendar day "now" falls on.
	Location *time.Location
	// Locker, when set, is held for the whole of a due-payment run in
	// addition to the in-process lock.
	Locker Locker
}

// Engine creates schedules and processes due payments.
type Engine struct {
	store  ScheduleStore
	ledger LedgerWriter
	opts   Options

	running sync.Mutex
}

// NewEngine creates a new Engine instance.
func NewEngine(store ScheduleStore, ledger LedgerWriter, opts Options) *Engine {
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = DefaultLedgerTimeout
	}
	if opts.MaxCatchUp <= 0 {
		opts.MaxCatchUp = DefaultMaxCatchUp
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{store: store, ledger: ledger, opts: opts}
}

// Today returns the business date that now falls on.
func (e *Engine) Today(now time.Time) models.Date {
	return models.DateOf(now, e.opts.Location)
}

// appendOccurrence writes the ledger row for the schedule's current due
// date. The write ignores caller cancellation and is bounded by the ledger
// timeout instead.
func (e *Engine) appendOccurrence(ctx context.Context, s *models.RecurringSchedule) (string, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.LedgerTimeout)
	defer cancel()
	return e.ledger.AppendTransaction(writeCtx, s.Occurrence())
}

// advance computes the lifecycle state after one more occurrence.
func advance(s *models.RecurringSchedule) models.ScheduleAdvance {
	count := s.PaymentsProcessed + 1
	return models.ScheduleAdvance{
		NextDueDate:       NextDueDate(s.NextDueDate, s.Frequency, s.AnchorDayOfMonth),
		PaymentsProcessed: count,
		IsActive:          !s.LimitReached(count),
	}
}
