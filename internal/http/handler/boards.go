package handler

import (
	"encoding/json"
	"net/http"

	"taskboard/internal/auth"
	"taskboard/internal/board"
)

type BoardHandler struct {
	Svc *board.Service
}

type nameReq struct {
	Name string `json:"name"`
}

func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req nameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	b, err := h.Svc.CreateBoard(r.Context(), uid, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": b.ID, "name": b.Name})
}

type addMemberReq struct {
	Email string `json:"email"`
}

func (h *BoardHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	boardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req addMemberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	m, err := h.Svc.AddMember(r.Context(), uid, boardID, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"board_id": m.BoardID, "user_id": m.UserID, "role": m.Role})
}

func (h *BoardHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	boardID, ok1 := urlID(r, "id")
	userID, ok2 := urlID(r, "userID")
	if !ok1 || !ok2 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Svc.RemoveMember(r.Context(), uid, boardID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BoardHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	boardID, ok := urlID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req nameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	l, err := h.Svc.CreateList(r.Context(), uid, boardID, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": l.ID, "board_id": l.BoardID, "name": l.Name, "position": l.Position})
}
