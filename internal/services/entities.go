package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/shopspring/decimal"
)

const (
	schedulePartition = "SCHEDULES"
	ledgerPartition   = "ledger_"
)

// ledgerPartitionKey groups ledger rows by calendar month.
func ledgerPartitionKey(month string) string {
	return ledgerPartition + month
}

// entity wraps a decoded table row with typed accessors. Numbers arrive as
// float64 from JSON, but older rows may carry them as strings.
type entity map[string]any

func decodeEntity(data []byte) (entity, error) {
	var parsed entity
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode entity: %w", err)
	}
	return parsed, nil
}

func (e entity) getString(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

func (e entity) getBool(key string) bool {
	switch v := e[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (e entity) getInt(key string) (int, bool) {
	switch v := e[key].(type) {
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	}
	return 0, false
}

func (e entity) getIntPtr(key string) *int {
	if v, ok := e.getInt(key); ok {
		return &v
	}
	return nil
}

func (e entity) getDecimal(key string) (decimal.Decimal, error) {
	switch v := e[key].(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("missing %s", key)
}

func (e entity) getDate(key string) (models.Date, error) {
	return models.ParseDate(e.getString(key))
}

func (e entity) getTime(key string) time.Time {
	t, _ := time.Parse(time.RFC3339, e.getString(key))
	return t
}

func scheduleToEntity(s *models.RecurringSchedule) entity {
	e := entity{
		"PartitionKey":      schedulePartition,
		"RowKey":            s.ID,
		"Kind":              string(s.Kind),
		"Category":          string(s.Category),
		"Description":       s.Description,
		"Amount":            s.Amount.String(),
		"Frequency":         string(s.Frequency),
		"StartDate":         s.StartDate.String(),
		"NextDueDate":       s.NextDueDate.String(),
		"PaymentsProcessed": s.PaymentsProcessed,
		"IsActive":          s.IsActive,
		"CustomerID":        s.CustomerID,
		"InteractionID":     s.InteractionID,
		"CreatedAt":         s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.AnchorDayOfMonth != nil {
		e["AnchorDayOfMonth"] = *s.AnchorDayOfMonth
	}
	if s.EndDate != nil {
		e["EndDate"] = s.EndDate.String()
	}
	if s.PaymentLimit != nil {
		e["PaymentLimit"] = *s.PaymentLimit
	}
	return e
}

// rawToSchedule decodes a schedule row as returned by the table service.
func rawToSchedule(raw []byte) (models.RecurringSchedule, error) {
	e, err := decodeEntity(raw)
	if err != nil {
		return models.RecurringSchedule{}, err
	}
	return entityToSchedule(e)
}

// rawRowKey extracts the RowKey of a row that may not decode as a schedule.
func rawRowKey(raw []byte) string {
	var keys struct {
		RowKey string `json:"RowKey"`
	}
	if err := json.Unmarshal(raw, &keys); err != nil || keys.RowKey == "" {
		return "unknown"
	}
	return keys.RowKey
}

func entityToSchedule(e entity) (models.RecurringSchedule, error) {
	id := e.getString("RowKey")
	amount, err := e.getDecimal("Amount")
	if err != nil {
		return models.RecurringSchedule{}, fmt.Errorf("schedule %s: invalid Amount: %w", id, err)
	}
	start, err := e.getDate("StartDate")
	if err != nil {
		return models.RecurringSchedule{}, fmt.Errorf("schedule %s: %w", id, err)
	}
	next, err := e.getDate("NextDueDate")
	if err != nil {
		return models.RecurringSchedule{}, fmt.Errorf("schedule %s: %w", id, err)
	}

	s := models.RecurringSchedule{
		ID:               id,
		Kind:             models.Kind(e.getString("Kind")),
		Category:         models.Category(e.getString("Category")),
		Description:      e.getString("Description"),
		Amount:           amount,
		Frequency:        models.Frequency(e.getString("Frequency")),
		AnchorDayOfMonth: e.getIntPtr("AnchorDayOfMonth"),
		StartDate:        start,
		NextDueDate:      next,
		PaymentLimit:     e.getIntPtr("PaymentLimit"),
		IsActive:         e.getBool("IsActive"),
		Linkage: models.Linkage{
			CustomerID:    e.getString("CustomerID"),
			InteractionID: e.getString("InteractionID"),
		},
		CreatedAt: e.getTime("CreatedAt"),
		ETag:      e.getString("odata.etag"),
	}
	s.PaymentsProcessed, _ = e.getInt("PaymentsProcessed")

	if raw := e.getString("EndDate"); raw != "" {
		end, err := models.ParseDate(raw)
		if err != nil {
			return models.RecurringSchedule{}, fmt.Errorf("schedule %s: %w", id, err)
		}
		s.EndDate = &end
	}
	return s, nil
}

// advanceEntity is the merge patch written after an occurrence.
func advanceEntity(id string, adv models.ScheduleAdvance, at time.Time) entity {
	return entity{
		"PartitionKey":      schedulePartition,
		"RowKey":            id,
		"NextDueDate":       adv.NextDueDate.String(),
		"PaymentsProcessed": adv.PaymentsProcessed,
		"IsActive":          adv.IsActive,
		"LastProcessedAt":   at.UTC().Format(time.RFC3339),
	}
}

func transactionToEntity(tx models.LedgerTransaction) entity {
	return entity{
		"PartitionKey":        ledgerPartitionKey(tx.Date.MonthKey()),
		"RowKey":              tx.ID,
		"Kind":                string(tx.Kind),
		"Category":            string(tx.Category),
		"Description":         tx.Description,
		"Amount":              tx.Amount.String(),
		"Date":                tx.Date.String(),
		"Source":              string(tx.Source),
		"RecurringScheduleID": tx.RecurringScheduleID,
		"CustomerID":          tx.CustomerID,
		"InteractionID":       tx.InteractionID,
		"CreatedAt":           tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func entityToTransaction(e entity) (models.LedgerTransaction, error) {
	id := e.getString("RowKey")
	amount, err := e.getDecimal("Amount")
	if err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("transaction %s: invalid Amount: %w", id, err)
	}
	date, err := e.getDate("Date")
	if err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("transaction %s: %w", id, err)
	}
	return models.LedgerTransaction{
		ID:                  id,
		Kind:                models.Kind(e.getString("Kind")),
		Category:            models.Category(e.getString("Category")),
		Description:         e.getString("Description"),
		Amount:              amount,
		Date:                date,
		Source:              models.Source(e.getString("Source")),
		RecurringScheduleID: e.getString("RecurringScheduleID"),
		Linkage: models.Linkage{
			CustomerID:    e.getString("CustomerID"),
			InteractionID: e.getString("InteractionID"),
		},
		CreatedAt: e.getTime("CreatedAt"),
	}, nil
}
