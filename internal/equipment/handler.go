package equipment

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the asset registry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs equipment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers equipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{equipmentID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Patch("/status", h.setStatus)
	})
}

type equipmentRequest struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Description  string     `json:"description" validate:"max=2000"`
	Category     string     `json:"category" validate:"max=100"`
	Location     string     `json:"location" validate:"max=100"`
	Manufacturer string     `json:"manufacturer" validate:"max=100"`
	Model        string     `json:"model" validate:"max=100"`
	SerialNumber string     `json:"serialNumber" validate:"max=100"`
	InstalledAt  *time.Time `json:"installedAt"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPERATIONAL DOWN MAINTENANCE RETIRED"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req equipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	eq, err := h.service.Create(r.Context(), CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Location:     req.Location,
		Manufacturer: req.Manufacturer,
		Model:        req.Model,
		SerialNumber: req.SerialNumber,
		InstalledAt:  req.InstalledAt,
	})
	if err != nil {
		h.logger.Error("create equipment failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, eq)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Status:   Status(q.Get("status")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	assets, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": assets,
		"meta": map[string]any{
			"page":       page.Page,
			"perPage":    page.PerPage,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.equipmentID(w, r)
	if !ok {
		return
	}
	eq, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eq)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.equipmentID(w, r)
	if !ok {
		return
	}
	var req equipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	eq, err := h.service.Update(r.Context(), UpdateInput{
		EquipmentID:  id,
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Location:     req.Location,
		Manufacturer: req.Manufacturer,
		Model:        req.Model,
		SerialNumber: req.SerialNumber,
		InstalledAt:  req.InstalledAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eq)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.equipmentID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	eq, err := h.service.SetStatus(r.Context(), id, Status(req.Status), 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, eq)
}

func (h *Handler) equipmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "equipmentID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid equipment id")
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
