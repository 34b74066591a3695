package csvparse

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/shopspring/decimal"
)

// Column headers of a schedule import file. Only Kind, Amount, Frequency
// and Start Date are required.
const (
	colKind          = "Kind"
	colCategory      = "Category"
	colDescription   = "Description"
	colAmount        = "Amount"
	colFrequency     = "Frequency"
	colStartDate     = "Start Date"
	colEndDate       = "End Date"
	colAnchorDay     = "Anchor Day"
	colPaymentLimit  = "Payment Limit"
	colCustomerID    = "Customer ID"
	colInteractionID = "Interaction ID"
)

// ParseScheduleCSV parses schedule requests from a CSV string.
// It returns the parsed requests and a list of error messages for invalid rows.
func ParseScheduleCSV(content string) ([]models.CreateScheduleRequest, []string) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, []string{fmt.Sprintf("Failed to read CSV: %v", err)}
	}

	if len(records) < 2 {
		return []models.CreateScheduleRequest{}, nil
	}

	headers := parseHeaders(records[0])
	for _, required := range []string{colKind, colAmount, colFrequency, colStartDate} {
		if !contains(headers, required) {
			return nil, []string{fmt.Sprintf("Missing required column: %s", required)}
		}
	}

	var requests []models.CreateScheduleRequest
	var errors []string

	for i, record := range records[1:] {
		rowNum := i + 2
		if isBlank(record) {
			continue
		}
		if len(record) < len(headers) {
			errors = append(errors, fmt.Sprintf("Row %d: Not enough fields", rowNum))
			continue
		}

		rowMap := make(map[string]string, len(headers))
		for j, header := range headers {
			rowMap[header] = strings.TrimSpace(record[j])
		}

		req, err := mapToRequest(rowMap)
		if err != nil {
			errors = append(errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		requests = append(requests, *req)
	}

	return requests, errors
}

func parseHeaders(row []string) []string {
	headers := make([]string, len(row))
	for i, h := range row {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return headers
}

func contains(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func mapToRequest(row map[string]string) (*models.CreateScheduleRequest, error) {
	kind := models.Kind(strings.ToLower(row[colKind]))
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid Kind: %q", row[colKind])
	}

	amountStr := row[colAmount]
	if amountStr == "" {
		return nil, fmt.Errorf("missing Amount")
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(amountStr, "$"), ",", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid Amount: %s", amountStr)
	}

	freq, err := models.ParseFrequency(row[colFrequency])
	if err != nil {
		return nil, fmt.Errorf("invalid Frequency: %q", row[colFrequency])
	}

	startStr := row[colStartDate]
	if startStr == "" {
		return nil, fmt.Errorf("missing Start Date")
	}
	if _, err := models.ParseDate(startStr); err != nil {
		return nil, fmt.Errorf("invalid Start Date format: %s", startStr)
	}
	if endStr := row[colEndDate]; endStr != "" {
		if _, err := models.ParseDate(endStr); err != nil {
			return nil, fmt.Errorf("invalid End Date format: %s", endStr)
		}
	}

	anchor, err := optionalInt(row, colAnchorDay)
	if err != nil {
		return nil, err
	}
	limit, err := optionalInt(row, colPaymentLimit)
	if err != nil {
		return nil, err
	}

	return &models.CreateScheduleRequest{
		Kind:             kind,
		Category:         models.Category(row[colCategory]),
		Description:      row[colDescription],
		Amount:           amount,
		Frequency:        freq,
		AnchorDayOfMonth: anchor,
		StartDate:        startStr,
		EndDate:          row[colEndDate],
		PaymentLimit:     limit,
		Linkage: models.Linkage{
			CustomerID:    row[colCustomerID],
			InteractionID: row[colInteractionID],
		},
	}, nil
}

func optionalInt(row map[string]string, col string) (*int, error) {
	raw := row[col]
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %s", col, raw)
	}
	return &v, nil
}
