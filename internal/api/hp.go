package api

import (
	"net/http"

	"guild-bot/internal/regen"
)

func (h *Handler) regenFor(w http.ResponseWriter, r *http.Request) (*regen.Service, bool) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}
	svc, err := h.Regen.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) handleHP(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.regenFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc.ForceTick())
}

func (h *Handler) handleSetHP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HP    float64 `json:"hp"`
		MaxHP float64 `json:"max_hp"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, ok := h.regenFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc.SetStats(req.HP, req.MaxHP))
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Route string `json:"route"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, ok := h.regenFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc.Navigate(req.Route))
}

func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if !decode(w, r, &req) {
		return
	}
	svc, ok := h.regenFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc.SetVisible(req.Visible))
}
