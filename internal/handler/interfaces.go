package handler

import (
	"context"
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// ScheduleEngine creates schedules and runs due-payment processing.
type ScheduleEngine interface {
	CreateSchedule(ctx context.Context, req models.CreateScheduleRequest, today models.Date) (*recurring.CreateResult, error)
	ProcessDuePayments(ctx context.Context, today models.Date) (*recurring.ProcessResult, error)
	Today(now time.Time) models.Date
}

// ScheduleStore defines the read and delete operations used by handlers.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]models.RecurringSchedule, error)
	GetSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	ListLedgerTransactions(ctx context.Context, month string) ([]models.LedgerTransaction, error)
}

// BlobClient defines the interface for blob storage operations used by handlers.
type BlobClient interface {
	UploadText(ctx context.Context, containerName, blobName, content string) error
	DownloadText(ctx context.Context, containerName, blobName string) (string, error)
}

// QueueClient defines the interface for queue operations used by handlers.
type QueueClient interface {
	EnqueueMessage(ctx context.Context, queueName string, message any) error
}

// EmailClient defines the interface for email operations used by handlers.
type EmailClient interface {
	SendRunSummaryEmail(ctx context.Context, recipients []string, result *recurring.ProcessResult) error
	SendImportErrorEmail(ctx context.Context, recipients []string, filename string, errors []string) error
}
