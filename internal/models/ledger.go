package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source records where a ledger transaction came from.
type Source string

const (
	SourceRecurring Source = "recurring"
	SourceManual    Source = "manual"
)

// LedgerTransaction is one immutable row in the financial ledger.
type LedgerTransaction struct {
	ID                  string          `json:"id"`
	Kind                Kind            `json:"kind"`
	Category            Category        `json:"category"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	Date                Date            `json:"date"`
	Source              Source          `json:"source"`
	RecurringScheduleID string          `json:"recurring_schedule_id,omitempty"`
	Linkage
	CreatedAt time.Time `json:"created_at"`
}

// Occurrence builds the ledger transaction for the schedule's current due date.
func (s *RecurringSchedule) Occurrence() LedgerTransaction {
	return LedgerTransaction{
		Kind:                s.Kind,
		Category:            s.Category,
		Description:         s.Description,
		Amount:              s.Amount,
		Date:                s.NextDueDate,
		Source:              SourceRecurring,
		RecurringScheduleID: s.ID,
		Linkage:             s.Linkage,
	}
}
