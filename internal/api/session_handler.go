package api

import (
	"net/http"

	"github.com/google/uuid"
)

// SessionSummary — строка списка сессий.
type SessionSummary struct {
	SessionID uuid.UUID `json:"session_id"`
	TempoBPM  float64   `json:"tempo_bpm"`
	Rules     int       `json:"rules"`
	Agenda    int       `json:"agenda"`
}

// ListSessions — GET /api/v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.sessions.Sessions()

	out := make([]SessionSummary, 0, len(ids))
	for _, id := range ids {
		snap, err := h.sessions.Snapshot(r.Context(), id)
		if err != nil {
			// закрылась между Sessions и Snapshot
			continue
		}
		out = append(out, SessionSummary{
			SessionID: id,
			TempoBPM:  snap.TempoBPM,
			Rules:     len(snap.Rules),
			Agenda:    len(snap.Agenda),
		})
	}

	List(w, out, len(out))
}

// GetSession — GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid session id")
		return
	}

	snap, err := h.sessions.Snapshot(r.Context(), id)
	if HandleConductorError(w, h.logger, err) {
		return
	}

	Success(w, snap)
}

// GetGPU — GET /api/v1/gpu
func (h *Handler) GetGPU(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]bool{"busy": h.sessions.GPUBusy()})
}
