package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/rocjay1/rm-recurring/internal/csvparse"
	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// importNamespace scopes the ids of schedules created from an import.
var importNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:rm-recurring:schedule-import"))

// importScheduleID is the id of the schedule created from one row of an
// uploaded file. A redelivered message maps every row to the schedule it
// already created.
func importScheduleID(blobName string, index int) string {
	return uuid.NewSHA1(importNamespace, []byte(fmt.Sprintf("%s#%d", blobName, index))).String()
}

// invokeRequest represents the payload from Azure Functions Custom Handler.
type invokeRequest struct {
	Data     map[string]any `json:"Data"`
	Metadata map[string]any `json:"Metadata"`
}

// queueItem extracts the queue message from the invocation. The host sends
// it as a JSON string, or as an object when the message body was JSON.
func (ir invokeRequest) queueItem() ([]byte, error) {
	val, ok := ir.Data["queueItem"]
	if !ok {
		val, ok = ir.Data["queueitem"]
		if !ok {
			return nil, fmt.Errorf("missing queueItem in Data")
		}
	}
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case map[string]any:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("queueItem has unexpected type %T", val)
	}
}

// ProcessQueue handles the queue trigger that imports an uploaded CSV of
// schedules. Once the file is downloaded the message is always consumed;
// rejected rows are reported by email instead of being retried. Rows that
// were already imported by an earlier delivery are skipped.
func (d *Dependencies) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	var invokeReq invokeRequest
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read queue request body", "error", err)
		WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := json.Unmarshal(bodyBytes, &invokeReq); err != nil {
		slog.Error("failed to unmarshal queue request", "error", err)
		WriteError(w, http.StatusBadRequest, "Failed to unmarshal request")
		return
	}

	item, err := invokeReq.queueItem()
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var msg importMessage
	if err := json.Unmarshal(item, &msg); err != nil {
		slog.Error("failed to unmarshal queueItem", "error", err)
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid queueItem JSON: %v", err))
		return
	}
	if msg.BlobName == "" {
		slog.Warn("queue message missing blob_name", "queue_item", string(item))
		WriteError(w, http.StatusBadRequest, "Missing blob_name")
		return
	}
	if msg.Filename == "" {
		msg.Filename = msg.BlobName
	}

	if d.Blob == nil {
		WriteError(w, http.StatusServiceUnavailable, "Import is not configured")
		return
	}

	ctx := r.Context()
	container := d.Settings.ImportContainer
	slog.Info("processing schedule import", "blob_name", msg.BlobName, "container", container)

	csvContent, err := d.Blob.DownloadText(ctx, container, msg.BlobName)
	if err != nil {
		slog.Error("failed to download CSV from blob", "blob_name", msg.BlobName, "container", container, "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to download CSV: %v", err))
		return
	}

	requests, problems := csvparse.ParseScheduleCSV(csvContent)
	slog.Info("parsed schedule CSV", "blob_name", msg.BlobName, "rows", len(requests), "errors_count", len(problems))

	today := d.today()
	created, existing := 0, 0
	for i, req := range requests {
		req.ID = importScheduleID(msg.BlobName, i)
		result, err := d.Engine.CreateSchedule(ctx, req, today)
		if errors.Is(err, recurring.ErrScheduleExists) {
			slog.Info("schedule already imported", "index", i, "schedule_id", req.ID)
			existing++
			continue
		}
		if err != nil {
			level := slog.LevelError
			if recurring.IsValidationError(err) {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "failed to import schedule", "index", i, "description", req.Description, "error", err)
			problems = append(problems, fmt.Sprintf("Schedule %d (%s): %v", i+1, req.Description, err))
			continue
		}
		created++
		if result.Warning != "" {
			problems = append(problems, fmt.Sprintf("Schedule %d (%s): %s", i+1, req.Description, result.Warning))
		}
	}

	if len(problems) > 0 {
		d.sendImportErrors(r, msg.Filename, problems)
	}

	slog.Info("schedule import complete", "blob_name", msg.BlobName, "created", created, "already_imported", existing, "errors_count", len(problems))
	w.WriteHeader(http.StatusOK)
}

func (d *Dependencies) sendImportErrors(r *http.Request, filename string, problems []string) {
	if d.Settings.UserEmail == "" || d.Email == nil {
		slog.Warn("import errors not emailed; email is not configured", "filename", filename, "errors_count", len(problems))
		return
	}
	if err := d.Email.SendImportErrorEmail(r.Context(), []string{d.Settings.UserEmail}, filename, problems); err != nil {
		slog.Error("failed to send import error email", "filename", filename, "error", err)
	}
}
