package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// HandleNightlyTrigger runs the scheduled due-payment processing. Finding the
// processor busy is not a failure.
func (d *Dependencies) HandleNightlyTrigger(w http.ResponseWriter, r *http.Request) {
	slog.Info("Starting nightly trigger processing")

	result, err := d.RunDuePayments(r.Context())
	if err != nil {
		if errors.Is(err, recurring.ErrProcessorBusy) {
			slog.Warn("nightly run skipped; processor busy")
			w.WriteHeader(http.StatusOK)
			return
		}
		slog.Error("nightly run failed", "error", err)
		http.Error(w, "Failed to process due payments", http.StatusInternalServerError)
		return
	}

	slog.Info("Nightly trigger processing complete",
		"today", result.Today.String(),
		"processed", result.Processed,
		"errors", len(result.Errors),
	)
	w.WriteHeader(http.StatusOK)
}
