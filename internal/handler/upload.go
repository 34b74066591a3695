package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
)

const maxImportBytes = 10 << 20

// importMessage tells the queue trigger which uploaded file to import.
type importMessage struct {
	BlobName string `json:"blob_name"`
	Filename string `json:"filename"`
}

// HandleImport accepts a CSV of schedules, stores it and queues it for import.
func (d *Dependencies) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		slog.Warn("import attempt with invalid method", "method", r.Method, "path", r.URL.Path)
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if d.Blob == nil || d.Queue == nil {
		WriteError(w, http.StatusServiceUnavailable, "Import is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		slog.Warn("failed to parse multipart form", "error", err, "max_size_mb", maxImportBytes>>20)
		WriteError(w, http.StatusBadRequest, "File too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Warn("failed to get file from form", "error", err)
		WriteError(w, http.StatusBadRequest, "Failed to get file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes+1))
	if err != nil {
		slog.Error("failed to read uploaded file", "filename", header.Filename, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	if len(data) > maxImportBytes {
		WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	slog.Info("received schedule import", "filename", header.Filename, "size_bytes", len(data))

	filename := filepath.Base(header.Filename)
	msg := importMessage{
		BlobName: fmt.Sprintf("imports/%s-%s", d.now().UTC().Format("20060102-150405"), filename),
		Filename: filename,
	}

	if err := d.Blob.UploadText(r.Context(), d.Settings.ImportContainer, msg.BlobName, string(data)); err != nil {
		slog.Error("failed to upload blob", "blob_name", msg.BlobName, "container", d.Settings.ImportContainer, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to upload blob: "+err.Error())
		return
	}

	if err := d.Queue.EnqueueMessage(r.Context(), d.Settings.ImportQueue, msg); err != nil {
		slog.Error("failed to enqueue import", "queue", d.Settings.ImportQueue, "blob_name", msg.BlobName, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue message: "+err.Error())
		return
	}
	slog.Info("queued schedule import", "queue", d.Settings.ImportQueue, "blob_name", msg.BlobName)

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"blob_name": msg.BlobName,
	})
}
