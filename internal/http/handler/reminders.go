package handler

import (
	"net/http"

	"taskboard/internal/reminder"
)

type ReminderHandler struct {
	Store reminder.Store
}

// Stats reports job counts per status.
func (h *ReminderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.CountByStatus(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := map[string]int64{}
	for _, s := range []reminder.Status{
		reminder.StatusPending, reminder.StatusRunning, reminder.StatusSent,
		reminder.StatusSkipped, reminder.StatusFailed,
	} {
		out[string(s)] = counts[s]
	}
	writeJSON(w, http.StatusOK, out)
}
