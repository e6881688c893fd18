package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/core/service"
)

type HTTPHandler struct {
	mutations  service.InventoryMutator
	queries    *service.QueryService
	stores     *service.StoreService
	reconciler *service.ReconciliationService
	log        *zap.Logger
}

// ApiResponse is the envelope of every JSON response.
type ApiResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type InventoryResponse struct {
	StoreID     string    `json:"storeId"`
	ProductID   string    `json:"productId"`
	Quantity    int       `json:"quantity"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type SummaryResponse struct {
	StoreID         string    `json:"storeId"`
	TotalProducts   int       `json:"totalProducts"`
	TotalQuantity   int       `json:"totalQuantity"`
	LowStockCount   int       `json:"lowStockCount"`
	OutOfStockCount int       `json:"outOfStockCount"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

type StoreRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   *bool  `json:"active"`
	Type     string `json:"type"`
}

type StoreResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Active   bool   `json:"active"`
	Type     string `json:"type"`
}

type SyncRunResponse struct {
	ID             string     `json:"syncId"`
	Scope          string     `json:"storeId"`
	Kind           string     `json:"syncType"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"startTime"`
	EndedAt        *time.Time `json:"endTime,omitempty"`
	ItemsProcessed int        `json:"itemsProcessed"`
	SuccessCount   int        `json:"successCount"`
	FailureCount   int        `json:"failureCount"`
	ConflictCount  int        `json:"conflictCount"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	DurationMillis int64      `json:"durationMs"`
}

type ConflictResponse struct {
	ID                   string     `json:"conflictId"`
	StoreID              string     `json:"storeId"`
	ProductID            string     `json:"productId"`
	StoreQuantity        int        `json:"storeQuantity"`
	CentralQuantity      int        `json:"centralQuantity"`
	StoreTimestamp       time.Time  `json:"storeTimestamp"`
	CentralTimestamp     time.Time  `json:"centralTimestamp"`
	DetectedAt           time.Time  `json:"detectedAt"`
	Resolved             bool       `json:"resolved"`
	RequiresManualReview bool       `json:"requiresManualReview"`
	Strategy             string     `json:"resolutionStrategy"`
	Outcome              string     `json:"outcome,omitempty"`
	ResolvedAt           *time.Time `json:"resolvedAt,omitempty"`
	Notes                string     `json:"resolutionNotes,omitempty"`
}

type ResolveConflictRequest struct {
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

func NewHTTPHandler(
	mutations service.InventoryMutator,
	queries *service.QueryService,
	stores *service.StoreService,
	reconciler *service.ReconciliationService,
	log *zap.Logger,
) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{
		mutations:  mutations,
		queries:    queries,
		stores:     stores,
		reconciler: reconciler,
		log:        log,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/inventory/{store}/{product}/{op}", h.Mutate)
	mux.HandleFunc("PUT /api/inventory/{store}/{product}", h.SetQuantity)
	mux.HandleFunc("GET /api/inventory/product/{product}", h.GetAcrossStores)
	mux.HandleFunc("GET /api/inventory/{store}/{product}", h.GetInventory)

	mux.HandleFunc("GET /api/stores", h.ListStores)
	mux.HandleFunc("POST /api/stores", h.CreateStore)
	mux.HandleFunc("GET /api/stores/ids", h.ListStoreIDs)
	mux.HandleFunc("GET /api/stores/{id}", h.GetStore)
	mux.HandleFunc("DELETE /api/stores/{id}", h.DeleteStore)

	mux.HandleFunc("POST /api/sync", h.SyncAll)
	mux.HandleFunc("POST /api/sync/{store}", h.SyncStore)
	mux.HandleFunc("GET /api/sync/{id}", h.GetSyncRun)

	mux.HandleFunc("GET /api/conflicts", h.ListConflicts)
	mux.HandleFunc("POST /api/conflicts/{id}/resolve", h.ResolveConflict)

	return mux
}

func (h *HTTPHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	storeID, productID := r.PathValue("store"), r.PathValue("product")

	quantity, err := intParam(r, "quantity", 0, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	publish, err := boolParam(r, "publishEvent", true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var rec *domain.InventoryRecord
	switch r.PathValue("op") {
	case "increment":
		rec, err = h.mutations.Increment(r.Context(), storeID, productID, quantity, publish)
	case "decrement":
		rec, err = h.mutations.Decrement(r.Context(), storeID, productID, quantity, publish)
	case "set":
		rec, err = h.mutations.SetQuantity(r.Context(), storeID, productID, quantity, publish)
	default:
		writeJSON(w, http.StatusNotFound, ApiResponse{Message: "unknown operation", ErrorCode: domain.CodeNotFound, Timestamp: time.Now()})
		return
	}
	h.writeMutation(w, rec, err)
}

func (h *HTTPHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	quantity, err := intParam(r, "quantity", 0, true)
	if err != nil {
		h.writeError(w, err)
		return
	}
	publish, err := boolParam(r, "publishEvent", true)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rec, err := h.mutations.SetQuantity(r.Context(), r.PathValue("store"), r.PathValue("product"), quantity, publish)
	h.writeMutation(w, rec, err)
}

// writeMutation reports a committed mutation as a success even when its
// event could not be published.
func (h *HTTPHandler) writeMutation(w http.ResponseWriter, rec *domain.InventoryRecord, err error) {
	if err != nil && !(rec != nil && errors.Is(err, domain.ErrEventPublish)) {
		h.writeError(w, err)
		return
	}

	message := "Inventory updated successfully"
	if err != nil {
		message = "Inventory updated, change event not published"
	}
	writeSuccess(w, http.StatusOK, message, toInventoryResponse(*rec))
}

// GetInventory also serves the per-store listing routes whose last segment
// would otherwise collide with the product wildcard.
func (h *HTTPHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	storeID, productID := r.PathValue("store"), r.PathValue("product")

	switch productID {
	case "products":
		records, err := h.queries.ListByStore(r.Context(), storeID)
		h.writeRecords(w, records, err)
	case "low-stock":
		threshold, err := intParam(r, "threshold", domain.DefaultLowStockThreshold, false)
		if err == nil && threshold < 1 {
			err = &domain.ValidationError{Field: "threshold", Reason: "must be at least 1"}
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		records, err := h.queries.GetLowStock(r.Context(), storeID, threshold)
		h.writeRecords(w, records, err)
	case "summary":
		summary, err := h.queries.GetSummary(r.Context(), storeID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "", SummaryResponse(*summary))
	default:
		rec, err := h.queries.Get(r.Context(), storeID, productID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "", toInventoryResponse(*rec))
	}
}

func (h *HTTPHandler) GetAcrossStores(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.GetAcrossStores(r.Context(), r.PathValue("product"))
	h.writeRecords(w, records, err)
}

func (h *HTTPHandler) writeRecords(w http.ResponseWriter, records []domain.InventoryRecord, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]InventoryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toInventoryResponse(rec))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *HTTPHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.stores.ListStores(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]StoreResponse, 0, len(stores))
	for _, s := range stores {
		out = append(out, toStoreResponse(s))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *HTTPHandler) ListStoreIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.stores.ListActiveStoreIDs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeSuccess(w, http.StatusOK, "", ids)
}

func (h *HTTPHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	store, err := h.stores.GetStore(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toStoreResponse(*store))
}

func (h *HTTPHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid request body"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	store, err := h.stores.CreateStore(r.Context(), domain.Store{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		Active:   active,
		Type:     domain.StoreType(req.Type),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Store created", toStoreResponse(*store))
}

func (h *HTTPHandler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := h.stores.DeleteStore(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Store deleted", nil)
}

func (h *HTTPHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	run, err := h.reconciler.SyncAllStores(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ApiResponse{
			Message:   err.Error(),
			Data:      toSyncRunResponse(*run),
			ErrorCode: domain.CodeSyncFailed,
			Timestamp: time.Now(),
		})
		return
	}
	writeSuccess(w, http.StatusOK, "Full sync completed", toSyncRunResponse(*run))
}

func (h *HTTPHandler) SyncStore(w http.ResponseWriter, r *http.Request) {
	run := h.reconciler.SyncStore(r.Context(), r.PathValue("store"))
	if run.Status == domain.SyncStatusFailed {
		writeJSON(w, http.StatusInternalServerError, ApiResponse{
			Message:   run.ErrorMessage,
			Data:      toSyncRunResponse(*run),
			ErrorCode: domain.CodeSyncFailed,
			Timestamp: time.Now(),
		})
		return
	}
	writeSuccess(w, http.StatusOK, "Store sync completed", toSyncRunResponse(*run))
}

func (h *HTTPHandler) GetSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.reconciler.GetSyncRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toSyncRunResponse(*run))
}

func (h *HTTPHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	openOnly, err := boolParam(r, "open", false)
	if err != nil {
		h.writeError(w, err)
		return
	}
	conflicts, err := h.reconciler.ListConflicts(r.Context(), openOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, toConflictResponse(c))
	}
	writeSuccess(w, http.StatusOK, "", out)
}

func (h *HTTPHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		h.writeError(w, &domain.ValidationError{Field: "quantity", Reason: "is required"})
		return
	}

	conflict, err := h.reconciler.ResolveConflict(r.Context(), r.PathValue("id"), *req.Quantity, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Conflict resolved", toConflictResponse(*conflict))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
		message = "internal error"
	}

	writeJSON(w, status, ApiResponse{Message: message, ErrorCode: code, Timestamp: time.Now()})
}

func statusFor(code string) int {
	switch code {
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeInventoryNotFound, domain.CodeStoreNotFound, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInsufficientInventory, domain.CodeInventoryConflict, domain.CodeStoreAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func intParam(r *http.Request, name string, def int, required bool) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, &domain.ValidationError{Field: name, Reason: "is required"}
		}
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &domain.ValidationError{Field: name, Reason: "must be a boolean"}
	}
	return v, nil
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	if message == "" {
		message = "Operation successful"
	}
	writeJSON(w, status, ApiResponse{Success: true, Message: message, Data: data, Timestamp: time.Now()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func toInventoryResponse(rec domain.InventoryRecord) InventoryResponse {
	return InventoryResponse(rec)
}

func toStoreResponse(s domain.Store) StoreResponse {
	return StoreResponse{ID: s.ID, Name: s.Name, Location: s.Location, Active: s.Active, Type: string(s.Type)}
}

func toSyncRunResponse(run domain.SyncRun) SyncRunResponse {
	out := SyncRunResponse{
		ID:             run.ID,
		Scope:          run.Scope,
		Kind:           string(run.Kind),
		Status:         string(run.Status),
		StartedAt:      run.StartedAt,
		ItemsProcessed: run.ItemsProcessed,
		SuccessCount:   run.SuccessCount,
		FailureCount:   run.FailureCount,
		ConflictCount:  run.ConflictCount,
		ErrorMessage:   run.ErrorMessage,
		DurationMillis: run.Duration().Milliseconds(),
	}
	if !run.EndedAt.IsZero() {
		ended := run.EndedAt
		out.EndedAt = &ended
	}
	return out
}

func toConflictResponse(c domain.InventoryConflict) ConflictResponse {
	return ConflictResponse{
		ID:                   c.ID,
		StoreID:              c.StoreID,
		ProductID:            c.ProductID,
		StoreQuantity:        c.StoreQuantity,
		CentralQuantity:      c.CentralQuantity,
		StoreTimestamp:       c.StoreTimestamp,
		CentralTimestamp:     c.CentralTimestamp,
		DetectedAt:           c.DetectedAt,
		Resolved:             c.Resolved,
		RequiresManualReview: c.RequiresManualReview,
		Strategy:             string(c.Strategy),
		Outcome:              string(c.Outcome),
		ResolvedAt:           c.ResolvedAt,
		Notes:                c.Notes,
	}
}
