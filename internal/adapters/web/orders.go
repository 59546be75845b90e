package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"importdesk/internal/app"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	req := app.ListOrdersRequest{
		Status:          r.URL.Query().Get("status"),
		SKUGroup:        r.URL.Query().Get("sku_group"),
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	}
	if s := r.URL.Query().Get("supplier_id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, r, "invalid supplier_id", "VALIDATION_FAILED", http.StatusBadRequest)
			return
		}
		req.SupplierID = &id
	}
	result, err := h.svc.ListOrders(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	var req app.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	result, err := h.svc.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	result, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) transitionStage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	result, err := h.svc.TransitionStage(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) updateStageFields(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.UpdateFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	result, err := h.svc.UpdateStageFields(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) archiveOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	result, err := h.svc.ArchiveOrder(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) receiveInventory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.ReceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	result, err := h.svc.ReceiveInventory(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) generateMarks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	result, err := h.svc.GenerateShippingMarks(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	docs, err := h.svc.ListDocuments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) addDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	doc, err := h.svc.AddDocument(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	invoices, err := h.svc.ListInvoices(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) addInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.AddInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	inv, err := h.svc.AddInvoice(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) addForwardingCost(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		writeError(w, r, "missing or invalid X-User-ID header", "UNAUTHENTICATED", http.StatusUnauthorized)
		return
	}
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	var req app.ForwardingCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, "invalid request body", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	req.ActorID = actor
	req.OrderID = id
	fc, err := h.svc.RecordForwardingCost(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fc)
}

func (h *Handler) listAuditLog(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(r)
	if !ok {
		writeError(w, r, "invalid order id", "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}
	events, err := h.svc.ListAuditLog(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
