package workorders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for work orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs work order handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers work order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{workOrderID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/start", h.start)
		r.Post("/complete", h.complete)
		r.Post("/cancel", h.cancel)
	})
}

type createRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	EquipmentID int64      `json:"equipmentId" validate:"required,gt=0"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	AssigneeID  int64      `json:"assigneeId" validate:"gte=0"`
	DueAt       *time.Time `json:"dueAt"`
	Tasks       []Task     `json:"tasks" validate:"dive"`
}

type completeRequest struct {
	Note  string      `json:"note" validate:"max=5000"`
	Tasks []Task      `json:"tasks" validate:"dive"`
	Parts []PartUsage `json:"parts" validate:"dive"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	wo, err := h.service.Create(r.Context(), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		EquipmentID: req.EquipmentID,
		Priority:    Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
		Tasks:       req.Tasks,
	})
	if err != nil {
		h.logger.Error("create work order failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("work order created", slog.String("number", wo.Number))
	httpx.JSON(w, http.StatusCreated, wo)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Status: Status(q.Get("status"))}
	filter.EquipmentID, _ = strconv.ParseInt(q.Get("equipment_id"), 10, 64)
	filter.ScheduleID, _ = strconv.ParseInt(q.Get("schedule_id"), 10, 64)
	filter.AssigneeID, _ = strconv.ParseInt(q.Get("assignee_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	orders, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{
			"page":       page.Page,
			"perPage":    page.PerPage,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.workOrderID(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.workOrderID(w, r)
	if !ok {
		return
	}
	wo, err := h.service.Start(r.Context(), id, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.workOrderID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	wo, err := h.service.Complete(r.Context(), CompleteInput{
		WorkOrderID: id,
		Note:        req.Note,
		Tasks:       req.Tasks,
		Parts:       req.Parts,
	})
	if err != nil {
		h.logger.Error("complete work order failed", slog.Int64("work_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.workOrderID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	wo, err := h.service.Cancel(r.Context(), id, req.Reason, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wo)
}

func (h *Handler) workOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "workOrderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid work order id")
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
