package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/sajian-pos/api/internal/service"
	"github.com/sajian-pos/api/internal/ws"
)

// KitchenServicer defines the service methods needed by kitchen handlers.
// Satisfied by *service.OrderService.
type KitchenServicer interface {
	UpdateKitchenStatus(ctx context.Context, req service.UpdateKitchenStatusRequest) (database.OrderLine, error)
}

// KitchenHandler handles kitchen status updates on order lines.
type KitchenHandler struct {
	svc KitchenServicer
	hub Broadcaster
}

// NewKitchenHandler creates a new KitchenHandler.
func NewKitchenHandler(svc KitchenServicer, hub Broadcaster) *KitchenHandler {
	return &KitchenHandler{svc: svc, hub: hub}
}

type updateKitchenStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /outlets/{oid}/orders/{id}/lines/{lid}/kitchen-status.
func (h *KitchenHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	var req updateKitchenStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	status := enum.KitchenStatus(req.Status)
	if !status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	line, err := h.svc.UpdateKitchenStatus(r.Context(), service.UpdateKitchenStatusRequest{
		OutletID: outletID,
		OrderID:  orderID,
		LineID:   lineID,
		Status:   status,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrItemNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidKitchenMove):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: update kitchen status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := dbLineToResponse(line, nil)
	if event, err := ws.NewEvent(ws.EventKitchenUpdated, resp); err == nil {
		h.hub.BroadcastToOutlet(outletID, event)
	}
	writeJSON(w, http.StatusOK, resp)
}
