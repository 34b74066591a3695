package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes money coming in from money going out.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// IsValid reports whether k is a supported kind.
func (k Kind) IsValid() bool {
	return k == KindIncome || k == KindExpense
}

// Frequency is how often a recurring schedule repeats.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// IsValid reports whether f is one of the supported frequencies.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// MonthStep returns the number of calendar months one period spans, or 0
// for day-based frequencies.
func (f Frequency) MonthStep() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// ParseFrequency accepts the canonical names case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("unsupported frequency %q", s)
	}
	return f, nil
}

// Linkage ties a schedule and its transactions to CRM records.
type Linkage struct {
	CustomerID    string `json:"customer_id,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
}

// RecurringSchedule is a repeating income or expense obligation.
type RecurringSchedule struct {
	ID                string          `json:"id"`
	Kind              Kind            `json:"kind"`
	Category          Category        `json:"category"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	Frequency         Frequency       `json:"frequency"`
	AnchorDayOfMonth  *int            `json:"anchor_day_of_month,omitempty"`
	StartDate         Date            `json:"start_date"`
	EndDate           *Date           `json:"end_date,omitempty"`
	NextDueDate       Date            `json:"next_due_date"`
	PaymentsProcessed int             `json:"payments_processed"`
	PaymentLimit      *int            `json:"payment_limit,omitempty"`
	IsActive          bool            `json:"is_active"`
	Linkage
	CreatedAt time.Time `json:"created_at"`

	// ETag is the storage version the schedule was read at.
	ETag string `json:"-"`
}

// EndsBefore reports whether the schedule's end date falls before d.
func (s *RecurringSchedule) EndsBefore(d Date) bool {
	return s.EndDate != nil && s.EndDate.Before(d)
}

// LimitReached reports whether count processed payments exhausts the limit.
func (s *RecurringSchedule) LimitReached(count int) bool {
	return s.PaymentLimit != nil && count >= *s.PaymentLimit
}

// ScheduleAdvance is the lifecycle state written back after an occurrence
// has been materialised.
type ScheduleAdvance struct {
	NextDueDate       Date
	PaymentsProcessed int
	IsActive          bool
}

// Apply copies the advance onto the schedule.
func (a ScheduleAdvance) Apply(s *RecurringSchedule) {
	s.NextDueDate = a.NextDueDate
	s.PaymentsProcessed = a.PaymentsProcessed
	s.IsActive = a.IsActive
}

// CreateScheduleRequest is the user input for a new schedule. Dates stay as
// strings so that parse failures surface as validation errors. ID is
// optional; a caller that sets it can retry the request without creating a
// second schedule.
type CreateScheduleRequest struct {
	ID               string          `json:"id,omitempty"`
	Kind             Kind            `json:"kind"`
	Category         Category        `json:"category"`
	Description      string          `json:"description"`
	Amount           decimal.Decimal `json:"amount"`
	Frequency        Frequency       `json:"frequency"`
	AnchorDayOfMonth *int            `json:"anchor_day_of_month,omitempty"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date,omitempty"`
	PaymentLimit     *int            `json:"payment_limit,omitempty"`
	Linkage
}
