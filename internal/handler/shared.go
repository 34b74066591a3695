package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rocjay1/rm-recurring/internal/clock"
	"github.com/rocjay1/rm-recurring/internal/models"
)

// Settings carries the resource names and recipients handlers need.
type Settings struct {
	UserEmail       string
	ImportContainer string
	ImportQueue     string
	AlertQueue      string
	ReportContainer string
}

// Dependencies holds the services required by the handlers. Blob, Queue and
// Email may be nil, in which case the features that need them are skipped.
type Dependencies struct {
	Engine   ScheduleEngine
	Store    ScheduleStore
	Blob     BlobClient
	Queue    QueueClient
	Email    EmailClient
	Clock    clock.Clock
	Settings Settings
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

func (d *Dependencies) now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

// today is the business date handlers pass to the engine.
func (d *Dependencies) today() models.Date {
	return d.Engine.Today(d.now())
}
