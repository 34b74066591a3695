package handler

import (
	"context"
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// MockEngine is a mock implementation of ScheduleEngine
type MockEngine struct {
	CreateScheduleFunc     func(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error)
	ProcessDuePaymentsFunc func(ctx context.Context, today models.Date) (*recurring.ProcessResult, error)
}

func (m *MockEngine) CreateSchedule(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error) {
	if m.CreateScheduleFunc != nil {
		return m.CreateScheduleFunc(ctx, req, today)
	}
	return &recurring.CreateResult{Schedule: &models.RecurringSchedule{ID: "new"}}, nil
}

func (m *MockEngine) ProcessDuePayments(ctx context.Context, today models.Date) (*recurring.ProcessResult, error) {
	if m.ProcessDuePaymentsFunc != nil {
		return m.ProcessDuePaymentsFunc(ctx, today)
	}
	return &recurring.ProcessResult{Today: today, Errors: []recurring.ScheduleError{}}, nil
}

func (m *MockEngine) Today(now time.Time) models.Date {
	return models.DateOf(now, time.UTC)
}

// MockStore is a mock implementation of ScheduleStore
type MockStore struct {
	ListSchedulesFunc          func(ctx context.Context) ([]models.RecurringSchedule, error)
	GetScheduleFunc            func(ctx context.Context, id string) (*models.RecurringSchedule, error)
	DeleteScheduleFunc         func(ctx context.Context, id string) error
	ListLedgerTransactionsFunc func(ctx context.Context, month string) ([]models.LedgerTransaction, error)
}

func (m *MockStore) ListSchedules(ctx context.Context) ([]models.RecurringSchedule, error) {
	if m.ListSchedulesFunc != nil {
		return m.ListSchedulesFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) GetSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	if m.GetScheduleFunc != nil {
		return m.GetScheduleFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStore) DeleteSchedule(ctx context.Context, id string) error {
	if m.DeleteScheduleFunc != nil {
		return m.DeleteScheduleFunc(ctx, id)
	}
	return nil
}

func (m *MockStore) ListLedgerTransactions(ctx context.Context, month string) ([]models.LedgerTransaction, error) {
	if m.ListLedgerTransactionsFunc != nil {
		return m.ListLedgerTransactionsFunc(ctx, month)
	}
	return nil, nil
}

// MockBlobClient is a mock implementation of BlobClient
type MockBlobClient struct {
	UploadTextFunc   func(ctx context.Context, containerName, blobName, content string) error
	DownloadTextFunc func(ctx context.Context, containerName, blobName string) (string, error)
}

func (m *MockBlobClient) UploadText(ctx context.Context, containerName, blobName, content string) error {
	if m.UploadTextFunc != nil {
		return m.UploadTextFunc(ctx, containerName, blobName, content)
	}
	return nil
}

func (m *MockBlobClient) DownloadText(ctx context.Context, containerName, blobName string) (string, error) {
	if m.DownloadTextFunc != nil {
		return m.DownloadTextFunc(ctx, containerName, blobName)
	}
	return "", nil
}

// MockQueueClient is a mock implementation of QueueClient
type MockQueueClient struct {
	EnqueueMessageFunc func(ctx context.Context, queueName string, message any) error
}

func (m *MockQueueClient) EnqueueMessage(ctx context.Context, queueName string, message any) error {
	if m.EnqueueMessageFunc != nil {
		return m.EnqueueMessageFunc(ctx, queueName, message)
	}
	return nil
}

// MockEmailClient is a mock implementation of EmailClient
type MockEmailClient struct {
	SendRunSummaryEmailFunc  func(ctx context.Context, recipients []string, result *recurring.ProcessResult) error
	SendImportErrorEmailFunc func(ctx context.Context, recipients []string, filename string, errors []string) error
}

func (m *MockEmailClient) SendRunSummaryEmail(ctx context.Context, recipients []string, result *recurring.ProcessResult) error {
	if m.SendRunSummaryEmailFunc != nil {
		return m.SendRunSummaryEmailFunc(ctx, recipients, result)
	}
	return nil
}

func (m *MockEmailClient) SendImportErrorEmail(ctx context.Context, recipients []string, filename string, errors []string) error {
	if m.SendImportErrorEmailFunc != nil {
		return m.SendImportErrorEmailFunc(ctx, recipients, filename, errors)
	}
	return nil
}
