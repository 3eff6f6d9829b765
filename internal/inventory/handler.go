package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.createItem)
		r.Get("/", h.listItems)
		r.Route("/{itemID}", func(r chi.Router) {
			r.Get("/", h.getItem)
			r.Put("/", h.updateItem)
			r.Delete("/", h.deactivateItem)
			r.Get("/status", h.getStatus)
			r.Get("/transactions", h.listTransactions)
			r.Post("/transactions", h.postTransaction)
			r.Post("/reserve", h.reserve)
			r.Post("/release", h.release)
		})
	})
	r.Get("/reorder-alerts", h.reorderAlerts)
	r.Get("/valuation", h.valuation)
}

type createItemRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=2000"`
	Category      string          `json:"category" validate:"max=100"`
	UnitOfMeasure string          `json:"unitOfMeasure" validate:"max=20"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	MinStock      int64           `json:"minStock" validate:"gte=0"`
	MaxStock      int64           `json:"maxStock" validate:"gte=0"`
	ReorderPoint  int64           `json:"reorderPoint" validate:"gte=0"`
	ReorderQty    int64           `json:"reorderQty" validate:"gte=0"`
	Location      string          `json:"location" validate:"max=100"`
}

type updateItemRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Category      string `json:"category" validate:"max=100"`
	UnitOfMeasure string `json:"unitOfMeasure" validate:"max=20"`
	MinStock      int64  `json:"minStock" validate:"gte=0"`
	MaxStock      int64  `json:"maxStock" validate:"gte=0"`
	ReorderPoint  int64  `json:"reorderPoint" validate:"gte=0"`
	ReorderQty    int64  `json:"reorderQty" validate:"gte=0"`
	Location      string `json:"location" validate:"max=100"`
}

type postTransactionRequest struct {
	Type            string          `json:"type" validate:"required,oneof=ISSUE RETURN PURCHASE ADJUSTMENT"`
	Quantity        int64           `json:"quantity" validate:"gte=0"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	WorkOrderID     *int64          `json:"workOrderId"`
	Reference       string          `json:"reference" validate:"max=100"`
	Note            string          `json:"note" validate:"max=2000"`
	ReleaseReserved bool            `json:"releaseReserved"`
}

type reservationRequest struct {
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"max=100"`
}

type itemResponse struct {
	ID             int64           `json:"id"`
	PartNumber     string          `json:"partNumber"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	UnitOfMeasure  string          `json:"unitOfMeasure"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	OnHand         int64           `json:"onHand"`
	Reserved       int64           `json:"reserved"`
	Available      int64           `json:"available"`
	Status         Status          `json:"status"`
	MinStock       int64           `json:"minStock"`
	MaxStock       int64           `json:"maxStock"`
	ReorderPoint   int64           `json:"reorderPoint"`
	ReorderQty     int64           `json:"reorderQty"`
	TotalIssued    int64           `json:"totalIssued"`
	TotalPurchased int64           `json:"totalPurchased"`
	TotalReturned  int64           `json:"totalReturned"`
	Location       string          `json:"location,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type transactionResponse struct {
	ID             int64           `json:"id"`
	ItemID         int64           `json:"itemId"`
	Type           TransactionType `json:"type"`
	Quantity       int64           `json:"quantity"`
	QuantityBefore int64           `json:"quantityBefore"`
	QuantityAfter  int64           `json:"quantityAfter"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	TotalValue     decimal.Decimal `json:"totalValue"`
	WorkOrderID    *int64          `json:"workOrderId,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Note           string          `json:"note,omitempty"`
	PerformedBy    int64           `json:"performedBy,omitempty"`
	PostedAt       time.Time       `json:"postedAt"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:             item.ID,
		PartNumber:     item.PartNumber,
		Name:           item.Name,
		Description:    item.Description,
		Category:       item.Category,
		UnitOfMeasure:  item.UnitOfMeasure,
		UnitCost:       item.UnitCost,
		OnHand:         item.OnHand,
		Reserved:       item.Reserved,
		Available:      item.Available(),
		Status:         StatusOf(item.OnHand, item.MinStock, item.MaxStock),
		MinStock:       item.MinStock,
		MaxStock:       item.MaxStock,
		ReorderPoint:   item.ReorderPoint,
		ReorderQty:     item.ReorderQty,
		TotalIssued:    item.TotalIssued,
		TotalPurchased: item.TotalPurchased,
		TotalReturned:  item.TotalReturned,
		Location:       item.Location,
		Active:         item.Active,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func toTransactionResponse(tx Transaction) transactionResponse {
	return transactionResponse{
		ID:             tx.ID,
		ItemID:         tx.ItemID,
		Type:           tx.Type,
		Quantity:       tx.Quantity,
		QuantityBefore: tx.QuantityBefore,
		QuantityAfter:  tx.QuantityAfter,
		UnitCost:       tx.UnitCost,
		TotalValue:     tx.TotalValue,
		WorkOrderID:    tx.WorkOrderID,
		Reference:      tx.Reference,
		Note:           tx.Note,
		PerformedBy:    tx.PerformedBy,
		PostedAt:       tx.PostedAt,
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		UnitOfMeasure: req.UnitOfMeasure,
		UnitCost:      req.UnitCost,
		MinStock:      req.MinStock,
		MaxStock:      req.MaxStock,
		ReorderPoint:  req.ReorderPoint,
		ReorderQty:    req.ReorderQty,
		Location:      req.Location,
	})
	if err != nil {
		h.logger.Error("create item failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("item created", slog.String("part_number", item.PartNumber))
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{
		Search:          q.Get("search"),
		Category:        q.Get("category"),
		BelowReorder:    q.Get("below_reorder") == "true",
		IncludeInactive: q.Get("include_inactive") == "true",
		Page:            parseIntParam(q.Get("page")),
		PerPage:         parseIntParam(q.Get("per_page")),
	}
	items, page, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	responses := make([]itemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": responses,
		"meta": map[string]any{
			"page":       page.Page,
			"perPage":    page.PerPage,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), UpdateItemInput{
		ItemID:        itemID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		UnitOfMeasure: req.UnitOfMeasure,
		MinStock:      req.MinStock,
		MaxStock:      req.MaxStock,
		ReorderPoint:  req.ReorderPoint,
		ReorderQty:    req.ReorderQty,
		Location:      req.Location,
	})
	if err != nil {
		h.logger.Error("update item failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeactivateItem(r.Context(), itemID, shared.ActorID(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetStockStatus(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := TransactionFilter{
		ItemID: itemID,
		Type:   TransactionType(q.Get("type")),
		Limit:  parseIntParam(q.Get("limit")),
	}
	if from := q.Get("from"); from != "" {
		parsed, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from date")
			return
		}
		filter.From = parsed
	}
	if to := q.Get("to"); to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid to date")
			return
		}
		filter.To = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	history, err := h.service.History(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	responses := make([]transactionResponse, 0, len(history))
	for _, tx := range history {
		responses = append(responses, toTransactionResponse(tx))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": responses})
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	tx, err := h.service.RecordTransaction(r.Context(), TransactionInput{
		ItemID:          itemID,
		Type:            TransactionType(req.Type),
		Quantity:        req.Quantity,
		UnitCost:        req.UnitCost,
		WorkOrderID:     req.WorkOrderID,
		Reference:       req.Reference,
		Note:            req.Note,
		ReleaseReserved: req.ReleaseReserved,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("post transaction failed",
			slog.Int64("item_id", itemID),
			slog.String("type", req.Type),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, apply func(context.Context, ReservationInput) (Item, error)) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	item, err := apply(r.Context(), ReservationInput{
		ItemID:    itemID,
		Quantity:  req.Quantity,
		Reference: req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) reorderAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.ReorderAlerts(r.Context())
	if err != nil {
		h.logger.Error("reorder alerts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Valuation(r.Context())
	if err != nil {
		h.logger.Error("valuation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return 0, false
	}
	return id, true
}

func (h *Handler) validateStruct(v any) map[string]string {
	if err := h.validator.Struct(v); err != nil {
		fields := make(map[string]string)
		for _, fieldErr := range err.(validator.ValidationErrors) {
			fields[fieldErr.Field()] = fieldErr.Error()
		}
		return fields
	}
	return nil
}

func parseIntParam(value string) int {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return v
}
