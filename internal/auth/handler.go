package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
)

// Handler exposes API key management. It is mounted behind the same
// auth middleware as everything else, so only holders of a live key can
// mint or revoke keys.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// MountRoutes attaches API key management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.mint)
	r.Get("/", h.list)
	r.Delete("/{keyID}", h.revoke)
}

type mintRequest struct {
	Name      string     `json:"name" validate:"required,max=100"`
	ActorID   int64      `json:"actorId" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type mintResponse struct {
	Key   string `json:"key"`
	Entry APIKey `json:"entry"`
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "request body is not valid JSON")
		return
	}
	if fields := h.validateStruct(req); fields != nil {
		httpx.FieldProblem(w, fields)
		return
	}
	token, key, err := h.service.Mint(r.Context(), MintInput{
		Name:      req.Name,
		ActorID:   req.ActorID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mintResponse{Key: token, Entry: key})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "keyID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "key id must be numeric")
		return
	}
	if err := h.service.Revoke(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
