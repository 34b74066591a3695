package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// DatabaseService stores schedules and ledger transactions in Azure Table
// Storage.
type DatabaseService struct {
	serviceClient  *aztables.ServiceClient
	schedulesTable string
	ledgerTable    string
}

// NewDatabaseService creates a new DatabaseService instance and ensures its
// tables exist.
func NewDatabaseService(ctx context.Context, tableURL, schedulesTable, ledgerTable string) (*DatabaseService, error) {
	if tableURL == "" {
		return nil, fmt.Errorf("table service URL is required")
	}

	var client *aztables.ServiceClient
	if isLocal(tableURL) {
		slog.Info("using Azurite credentials for database service")
		name, key := getAzuriteCredentials()
		cred, err := aztables.NewSharedKeyCredential(name, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = aztables.NewServiceClientWithSharedKey(tableURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create table service client with shared key: %w", err)
		}
	} else {
		cred, err := DefaultCredential()
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		client, err = aztables.NewServiceClient(tableURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create table service client: %w", err)
		}
	}

	svc := &DatabaseService{
		serviceClient:  client,
		schedulesTable: schedulesTable,
		ledgerTable:    ledgerTable,
	}
	if err := svc.CreateTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	slog.Info("database service initialized successfully",
		"table_url", tableURL,
		"schedules_table", schedulesTable,
		"ledger_table", ledgerTable,
	)
	return svc, nil
}

// CreateTables ensures all required tables exist.
func (s *DatabaseService) CreateTables(ctx context.Context) error {
	for _, tableName := range []string{s.schedulesTable, s.ledgerTable} {
		if _, err := s.serviceClient.CreateTable(ctx, tableName, nil); err != nil {
			if hasErrorCode(err, "TableAlreadyExists") {
				continue
			}
			return fmt.Errorf("failed to create table %s: %w", tableName, err)
		}
	}
	return nil
}

func (s *DatabaseService) getClient(tableName string) *aztables.Client {
	return s.serviceClient.NewClient(tableName)
}

// InsertSchedule adds a new schedule row.
func (s *DatabaseService) InsertSchedule(ctx context.Context, sched *models.RecurringSchedule) error {
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(scheduleToEntity(sched))
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	resp, err := s.getClient(s.schedulesTable).AddEntity(ctx, body, nil)
	if err != nil {
		if hasErrorCode(err, "EntityAlreadyExists") || hasStatus(err, http.StatusConflict) {
			return fmt.Errorf("schedule %s: %w", sched.ID, recurring.ErrScheduleExists)
		}
		return fmt.Errorf("failed to add schedule %s: %w", sched.ID, err)
	}
	sched.ETag = string(resp.ETag)
	return nil
}

// FindActiveDueOn returns active schedules whose next due date is on or
// before today, oldest first, and the matching rows that could not be
// decoded.
func (s *DatabaseService) FindActiveDueOn(ctx context.Context, today models.Date) ([]models.RecurringSchedule, []recurring.UnreadableSchedule, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and IsActive eq true and NextDueDate le '%s'", schedulePartition, today.String())
	schedules, unreadable, err := s.listSchedules(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(schedules, func(i, j int) bool {
		if !schedules[i].NextDueDate.Equal(schedules[j].NextDueDate) {
			return schedules[i].NextDueDate.Before(schedules[j].NextDueDate)
		}
		return schedules[i].ID < schedules[j].ID
	})
	return schedules, unreadable, nil
}

// ListSchedules returns every schedule. Rows that cannot be decoded are
// logged and left out.
func (s *DatabaseService) ListSchedules(ctx context.Context) ([]models.RecurringSchedule, error) {
	schedules, unreadable, err := s.listSchedules(ctx, fmt.Sprintf("PartitionKey eq '%s'", schedulePartition))
	if err != nil {
		return nil, err
	}
	for _, u := range unreadable {
		slog.Warn("skipping invalid schedule row", "row_key", u.ID, "error", u.Err)
	}
	return schedules, nil
}

func (s *DatabaseService) listSchedules(ctx context.Context, filter string) ([]models.RecurringSchedule, []recurring.UnreadableSchedule, error) {
	pager := s.getClient(s.schedulesTable).NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
	})

	schedules := []models.RecurringSchedule{}
	var unreadable []recurring.UnreadableSchedule
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list schedules: %w", err)
		}
		for _, raw := range resp.Entities {
			sched, err := rawToSchedule(raw)
			if err != nil {
				unreadable = append(unreadable, recurring.UnreadableSchedule{ID: rawRowKey(raw), Err: err})
				continue
			}
			schedules = append(schedules, sched)
		}
	}
	return schedules, unreadable, nil
}

// GetSchedule fetches one schedule by id.
func (s *DatabaseService) GetSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	resp, err := s.getClient(s.schedulesTable).GetEntity(ctx, schedulePartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule %s: %w", id, err)
	}
	sched, err := rawToSchedule(resp.Value)
	if err != nil {
		return nil, err
	}
	sched.ETag = string(resp.ETag)
	return &sched, nil
}

// UpdateAfterProcessing writes the advanced state of a schedule, guarded by
// the ETag it was read with.
func (s *DatabaseService) UpdateAfterProcessing(ctx context.Context, sched *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return s.writeAdvance(ctx, sched, adv)
}

// UpdateAfterImmediateCreation records the occurrence written while the
// schedule was being created.
func (s *DatabaseService) UpdateAfterImmediateCreation(ctx context.Context, sched *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return s.writeAdvance(ctx, sched, adv)
}

func (s *DatabaseService) writeAdvance(ctx context.Context, sched *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	body, err := json.Marshal(advanceEntity(sched.ID, adv, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal schedule update: %w", err)
	}

	etag := azcore.ETagAny
	if sched.ETag != "" {
		etag = azcore.ETag(sched.ETag)
	}
	resp, err := s.getClient(s.schedulesTable).UpdateEntity(ctx, body, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		if hasStatus(err, http.StatusPreconditionFailed) {
			return fmt.Errorf("schedule %s: %w", sched.ID, ErrConcurrentUpdate)
		}
		return fmt.Errorf("failed to update schedule %s: %w", sched.ID, err)
	}
	sched.ETag = string(resp.ETag)
	return nil
}

// DeleteSchedule removes a schedule row. Ledger rows it produced are kept.
func (s *DatabaseService) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.getClient(s.schedulesTable).DeleteEntity(ctx, schedulePartition, id, nil); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	return nil
}

// AppendTransaction adds an immutable ledger row and returns its id. Rows
// always get a fresh key, so a retried occurrence produces a second row.
func (s *DatabaseService) AppendTransaction(ctx context.Context, tx models.LedgerTransaction) (string, error) {
	tx.ID = uuid.New().String()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(transactionToEntity(tx))
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if _, err := s.getClient(s.ledgerTable).AddEntity(ctx, body, nil); err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}
	return tx.ID, nil
}

// ListLedgerTransactions returns the ledger rows for a YYYY-MM month.
func (s *DatabaseService) ListLedgerTransactions(ctx context.Context, month string) ([]models.LedgerTransaction, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", ledgerPartitionKey(month))
	pager := s.getClient(s.ledgerTable).NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
	})

	txs := []models.LedgerTransaction{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
		}
		for _, raw := range resp.Entities {
			e, err := decodeEntity(raw)
			if err != nil {
				continue
			}
			tx, err := entityToTransaction(e)
			if err != nil {
				slog.Warn("skipping invalid ledger row", "row_key", e.getString("RowKey"), "error", err)
				continue
			}
			txs = append(txs, tx)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	return txs, nil
}
