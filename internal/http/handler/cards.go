package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/reminder"
)

type CardHandler struct {
	Svc       *board.Service
	Reminders reminder.Store
}

type cardResp struct {
	ID              uint64     `json:"id"`
	ListID          uint64     `json:"list_id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Labels          []string   `json:"labels"`
	DueAt           *time.Time `json:"due_at"`
	ReminderMinutes *int       `json:"reminder_minutes"`
	DueComplete     bool       `json:"due_complete"`
	Completed       bool       `json:"completed"`
	Position        int        `json:"position"`
}

func toCardResp(c board.Card) cardResp {
	labels := []string(c.Labels)
	if labels == nil {
		labels = []string{}
	}
	return cardResp{
		ID:              c.ID,
		ListID:          c.ListID,
		Name:            c.Name,
		Description:     c.Description,
		Labels:          labels,
		DueAt:           c.DueAt,
		ReminderMinutes: c.ReminderMinutes,
		DueComplete:     c.DueComplete,
		Completed:       c.Completed,
		Position:        c.Position,
	}
}

type createCardReq struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Labels          []string   `json:"labels"`
	DueAt           *time.Time `json:"due_at"`
	ReminderMinutes *int       `json:"reminder_minutes"`
}

func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	listID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req createCardReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	c, err := h.Svc.CreateCard(r.Context(), uid, listID, board.CardInput{
		Name:            req.Name,
		Description:     req.Description,
		Labels:          req.Labels,
		DueAt:           req.DueAt,
		ReminderMinutes: req.ReminderMinutes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResp(c))
}

func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	c, err := h.Svc.GetCard(r.Context(), uid, cardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResp(c))
}

// Update applies a partial change. An explicit null on due_at or
// reminder_minutes clears the field; an absent key leaves it alone.
func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	p, err := parsePatch(raw)
	if err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	c, err := h.Svc.UpdateCard(r.Context(), uid, cardID, p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResp(c))
}

var jsonNull = []byte("null")

func parsePatch(raw map[string]json.RawMessage) (board.CardPatch, error) {
	var p board.CardPatch

	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &p.Name); err != nil {
			return p, err
		}
	}
	if v, ok := raw["description"]; ok {
		if err := json.Unmarshal(v, &p.Description); err != nil {
			return p, err
		}
	}
	if v, ok := raw["labels"]; ok {
		var labels []string
		if err := json.Unmarshal(v, &labels); err != nil {
			return p, err
		}
		p.Labels = &labels
	}
	if v, ok := raw["due_at"]; ok {
		if bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			p.ClearDueAt = true
		} else if err := json.Unmarshal(v, &p.DueAt); err != nil {
			return p, err
		}
	}
	if v, ok := raw["reminder_minutes"]; ok {
		if bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			p.ClearReminderMinutes = true
		} else if err := json.Unmarshal(v, &p.ReminderMinutes); err != nil {
			return p, err
		}
	}
	if v, ok := raw["due_complete"]; ok {
		if err := json.Unmarshal(v, &p.DueComplete); err != nil {
			return p, err
		}
	}
	if v, ok := raw["completed"]; ok {
		if err := json.Unmarshal(v, &p.Completed); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Svc.DeleteCard(r.Context(), uid, cardID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignReq struct {
	UserID uint64 `json:"user_id"`
}

func (h *CardHandler) Assign(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req assignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if err := h.Svc.AssignMember(r.Context(), uid, cardID, req.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CardHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok1 := urlID(r, "id")
	userID, ok2 := urlID(r, "userID")
	if !ok1 || !ok2 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Svc.UnassignMember(r.Context(), uid, cardID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type jobResp struct {
	ID            uint64          `json:"id"`
	UserID        uint64          `json:"user_id"`
	Type          reminder.Type   `json:"reminder_type"`
	DueAtSnapshot time.Time       `json:"due_at_snapshot"`
	RunAt         time.Time       `json:"run_at"`
	Status        reminder.Status `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
}

// ListReminders lists every job ever planned for a card, oldest first.
func (h *CardHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if _, err := h.Svc.GetCard(r.Context(), uid, cardID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	jobs, err := h.Reminders.ListByCard(r.Context(), cardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]jobResp, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResp{
			ID:            j.ID,
			UserID:        j.UserID,
			Type:          j.ReminderType,
			DueAtSnapshot: j.DueAtSnapshot,
			RunAt:         j.RunAt,
			Status:        j.Status,
			Attempts:      j.Attempts,
			LastError:     j.LastError,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
