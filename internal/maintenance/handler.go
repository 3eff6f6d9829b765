package maintenance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// GenerateEnqueuer hands a generation run to the background queue. Nil
// when no queue is wired; the endpoint then only runs synchronously.
type GenerateEnqueuer interface {
	EnqueueGenerate(ctx context.Context, limit int, dryRun bool) (string, error)
}

// Handler exposes PM schedules and the generator over HTTP.
type Handler struct {
	service   *Service
	enqueuer  GenerateEnqueuer
	validator *validator.Validate
}

func NewHandler(service *Service, enqueuer GenerateEnqueuer) *Handler {
	return &Handler{service: service, enqueuer: enqueuer, validator: validator.New()}
}

// MountRoutes attaches maintenance schedule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.createSchedule)
		r.Get("/", h.listSchedules)
		r.Get("/due", h.listDue)
		r.Route("/{scheduleID}", func(r chi.Router) {
			r.Get("/", h.getSchedule)
			r.Put("/", h.updateSchedule)
		})
	})
	r.Post("/generate", h.generate)
}

type createScheduleRequest struct {
	EquipmentID      int64           `json:"equipmentId" validate:"required,gt=0"`
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description"`
	Frequency        string          `json:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY QUARTERLY SEMIANNUAL ANNUAL CUSTOM"`
	IntervalDays     int             `json:"intervalDays" validate:"gte=0"`
	NextDueAt        time.Time       `json:"nextDueAt" validate:"required"`
	AutoGenerate     *bool           `json:"autoGenerate"`
	AssigneeID       int64           `json:"assigneeId" validate:"gte=0"`
	Priority         string          `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	EstimatedMinutes int             `json:"estimatedMinutes" validate:"gte=0"`
	Checklist        []ChecklistTask `json:"checklist" validate:"dive"`
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	sched, err := h.service.CreateSchedule(r.Context(), CreateScheduleInput{
		EquipmentID:      req.EquipmentID,
		Title:            req.Title,
		Description:      req.Description,
		Frequency:        Frequency(req.Frequency),
		IntervalDays:     req.IntervalDays,
		NextDueAt:        req.NextDueAt,
		AutoGenerate:     req.AutoGenerate,
		AssigneeID:       req.AssigneeID,
		Priority:         req.Priority,
		EstimatedMinutes: req.EstimatedMinutes,
		Checklist:        req.Checklist,
		ActorID:          shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sched)
}

type updateScheduleRequest struct {
	Title            string          `json:"title" validate:"required,max=200"`
	Description      string          `json:"description"`
	Frequency        string          `json:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY QUARTERLY SEMIANNUAL ANNUAL CUSTOM"`
	IntervalDays     int             `json:"intervalDays" validate:"gte=0"`
	NextDueAt        time.Time       `json:"nextDueAt" validate:"required"`
	Active           bool            `json:"active"`
	AutoGenerate     bool            `json:"autoGenerate"`
	AssigneeID       int64           `json:"assigneeId" validate:"gte=0"`
	Priority         string          `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	EstimatedMinutes int             `json:"estimatedMinutes" validate:"gte=0"`
	Checklist        []ChecklistTask `json:"checklist" validate:"dive"`
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "schedule id must be numeric")
		return
	}
	var req updateScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	sched, err := h.service.UpdateSchedule(r.Context(), UpdateScheduleInput{
		ScheduleID:       id,
		Title:            req.Title,
		Description:      req.Description,
		Frequency:        Frequency(req.Frequency),
		IntervalDays:     req.IntervalDays,
		NextDueAt:        req.NextDueAt,
		Active:           req.Active,
		AutoGenerate:     req.AutoGenerate,
		AssigneeID:       req.AssigneeID,
		Priority:         req.Priority,
		EstimatedMinutes: req.EstimatedMinutes,
		Checklist:        req.Checklist,
		ActorID:          shared.ActorID(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "schedule id must be numeric")
		return
	}
	sched, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sched)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		IncludeInactive: q.Get("includeInactive") == "true",
	}
	if v := q.Get("equipmentId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "equipmentId must be numeric")
			return
		}
		filter.EquipmentID = id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))

	schedules, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"total":     total,
	})
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	schedules, err := h.service.ListDue(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

type generateRequest struct {
	DryRun bool `json:"dryRun"`
	Limit  int  `json:"limit" validate:"gte=0"`
	Async  bool `json:"async"`
}

// generate triggers a generator run. The default is synchronous and
// returns the full batch summary; async hands the run to the job queue
// and returns the task id. An empty body means a plain synchronous run.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}

	if req.Async {
		if h.enqueuer == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "background generation is not configured")
			return
		}
		taskID, err := h.enqueuer.EnqueueGenerate(r.Context(), req.Limit, req.DryRun)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"taskId": taskID})
		return
	}

	summary, err := h.service.GenerateDue(r.Context(), BatchOptions{DryRun: req.DryRun, Limit: req.Limit})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func scheduleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "scheduleID"), 10, 64)
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
