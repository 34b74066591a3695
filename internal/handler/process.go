package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// alertMessage is enqueued once per schedule that a run could not process.
type alertMessage struct {
	RunDate  models.Date             `json:"run_date"`
	Schedule recurring.ScheduleError `json:"schedule"`
}

// RunDuePayments processes everything due today and then reports the
// outcome: failures are enqueued as alerts and emailed, and the run report
// is archived to blob storage. Reporting problems are logged, never returned.
func (d *Dependencies) RunDuePayments(ctx context.Context) (*recurring.ProcessResult, error) {
	today := d.today()
	result, err := d.Engine.ProcessDuePayments(ctx, today)
	if err != nil {
		return nil, err
	}
	d.reportRun(context.WithoutCancel(ctx), result)
	return result, nil
}

func (d *Dependencies) reportRun(ctx context.Context, result *recurring.ProcessResult) {
	if d.Queue != nil && d.Settings.AlertQueue != "" {
		for _, se := range result.Errors {
			msg := alertMessage{RunDate: result.Today, Schedule: se}
			if err := d.Queue.EnqueueMessage(ctx, d.Settings.AlertQueue, msg); err != nil {
				slog.Error("failed to enqueue schedule alert", "schedule_id", se.ScheduleID, "error", err)
			}
		}
	}

	if len(result.Errors) > 0 {
		switch {
		case d.Settings.UserEmail == "":
			slog.Warn("USER_EMAIL is not set; skipping run summary email", "errors", len(result.Errors))
		case d.Email == nil:
			slog.Warn("email service unavailable; skipping run summary email", "errors", len(result.Errors))
		default:
			if err := d.Email.SendRunSummaryEmail(ctx, []string{d.Settings.UserEmail}, result); err != nil {
				slog.Error("failed to send run summary email", "email", d.Settings.UserEmail, "error", err)
			}
		}
	}

	if d.Blob != nil && d.Settings.ReportContainer != "" {
		report, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			slog.Error("failed to marshal run report", "error", err)
			return
		}
		blobName := fmt.Sprintf("runs/%s-%s.json", result.Today, d.now().UTC().Format("150405"))
		if err := d.Blob.UploadText(ctx, d.Settings.ReportContainer, blobName, string(report)); err != nil {
			slog.Error("failed to archive run report", "blob_name", blobName, "error", err)
			return
		}
		slog.Info("archived run report", "container", d.Settings.ReportContainer, "blob_name", blobName)
	}
}

// HandleProcessDue runs due-payment processing on demand.
func (d *Dependencies) HandleProcessDue(w http.ResponseWriter, r *http.Request) {
	slog.Info("due-payment run requested", "method", r.Method, "path", r.URL.Path)
	result, err := d.RunDuePayments(r.Context())
	summary := recurring.Summarize(result, err)

	switch {
	case errors.Is(err, recurring.ErrProcessorBusy):
		slog.Warn("due-payment run rejected; another run is in progress")
		WriteJSON(w, http.StatusConflict, summary)
	case err != nil:
		slog.Error("due-payment run failed", "error", err)
		WriteJSON(w, http.StatusInternalServerError, summary)
	default:
		WriteJSON(w, http.StatusOK, summary)
	}
}
