package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// HandleLedger lists the ledger transactions of one month. The month defaults
// to the current business month.
func (d *Dependencies) HandleLedger(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = d.today().MonthKey()
	} else if _, err := time.Parse("2006-01", month); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM")
		return
	}

	slog.Info("fetching ledger transactions", "month", month)
	txs, err := d.Store.ListLedgerTransactions(r.Context(), month)
	if err != nil {
		slog.Error("failed to list ledger transactions", "month", month, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to list ledger transactions: "+err.Error())
		return
	}
	if txs == nil {
		txs = []models.LedgerTransaction{}
	}
	WriteJSON(w, http.StatusOK, txs)
}
