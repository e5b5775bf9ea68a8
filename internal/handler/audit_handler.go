package handler

import (
	"net/http"
	"strconv"
	"strings"

	"rainbow-buyers/internal/middleware"
	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/service"
	"rainbow-buyers/internal/websocket"
)

type AuditHandler struct {
	service *service.AuditService
	resp    *Responder
}

func NewAuditHandler(service *service.AuditService, resp *Responder) *AuditHandler {
	return &AuditHandler{service: service, resp: resp}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := h.service.List(r.Context(), model.AuditQuery{
		Action:  strings.TrimSpace(query.Get("action")),
		ActorID: strings.TrimSpace(query.Get("actorId")),
		Email:   strings.TrimSpace(query.Get("email")),
		Status:  strings.TrimSpace(query.Get("status")),
		Page:    parseIntOrDefault(query.Get("page"), 1),
		Limit:   parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		h.resp.error(w, err)
		return
	}

	h.resp.success(w, http.StatusOK, "Audit entries fetched successfully", page)
}

// AuditFeedHandler streams audit events over a websocket as they happen.
type AuditFeedHandler struct {
	hub  *websocket.Hub
	resp *Responder
}

func NewAuditFeedHandler(hub *websocket.Hub, resp *Responder) *AuditFeedHandler {
	return &AuditFeedHandler{hub: hub, resp: resp}
}

func (h *AuditFeedHandler) Live(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.resp.error(w, model.ErrUnauthorized)
		return
	}

	h.hub.Serve(w, r, claims.UserID())
}

func parseIntOrDefault(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}
