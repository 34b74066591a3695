package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocjay1/rm-recurring/internal/models"
	"github.com/rocjay1/rm-recurring/internal/recurring"
	"github.com/rocjay1/rm-recurring/internal/services"
)

// HandleSchedules handles GET, POST, and DELETE requests for recurring schedules.
func (d *Dependencies) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if id := r.URL.Query().Get("id"); id != "" {
			d.getSchedule(w, r, id)
			return
		}
		slog.Info("fetching recurring schedules", "method", r.Method, "path", r.URL.Path)
		schedules, err := d.Store.ListSchedules(r.Context())
		if err != nil {
			slog.Error("failed to list schedules", "error", err)
			WriteError(w, http.StatusInternalServerError, "Failed to list schedules: "+err.Error())
			return
		}
		if schedules == nil {
			schedules = []models.RecurringSchedule{}
		}
		slog.Info("successfully retrieved schedules", "count", len(schedules))
		WriteJSON(w, http.StatusOK, schedules)

	case http.MethodPost:
		var req models.CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("invalid schedule request body", "error", err)
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		today := d.today()
		slog.Info("creating recurring schedule", "description", req.Description, "start_date", req.StartDate, "today", today.String())
		result, err := d.Engine.CreateSchedule(r.Context(), req, today)
		if err != nil {
			if recurring.IsValidationError(err) {
				slog.Warn("rejected schedule request", "error", err)
				WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			if errors.Is(err, recurring.ErrScheduleExists) {
				WriteError(w, http.StatusConflict, "Schedule already exists")
				return
			}
			slog.Error("failed to create schedule", "description", req.Description, "error", err)
			WriteError(w, http.StatusInternalServerError, "Failed to create schedule: "+err.Error())
			return
		}
		if result.Warning != "" {
			slog.Warn("schedule created with warning", "schedule_id", result.Schedule.ID, "warning", result.Warning)
		}
		WriteJSON(w, http.StatusCreated, result)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "Missing schedule ID")
			return
		}

		slog.Info("deleting recurring schedule", "id", id)
		if err := d.Store.DeleteSchedule(r.Context(), id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "Schedule not found")
				return
			}
			slog.Error("failed to delete schedule", "id", id, "error", err)
			WriteError(w, http.StatusInternalServerError, "Failed to delete schedule: "+err.Error())
			return
		}

		slog.Info("successfully deleted schedule", "id", id)
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (d *Dependencies) getSchedule(w http.ResponseWriter, r *http.Request, id string) {
	sched, err := d.Store.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Schedule not found")
			return
		}
		slog.Error("failed to get schedule", "id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to get schedule: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, sched)
}
