package equipment

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Create(ctx context.Context, eq Equipment) (Equipment, error)
	Get(ctx context.Context, id int64) (Equipment, error)
	GetByAssetCode(ctx context.Context, code string) (Equipment, error)
	List(ctx context.Context, filter Filter) ([]Equipment, int, error)
	Update(ctx context.Context, eq Equipment) error
	SetStatus(ctx context.Context, id int64, status Status) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the asset registry.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a new asset. It starts operational.
func (s *Service) Create(ctx context.Context, input CreateInput) (Equipment, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Equipment{}, fmt.Errorf("equipment: asset name required: %w", shared.ErrValidation)
	}
	eq, err := s.repo.Create(ctx, Equipment{
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		Category:     strings.TrimSpace(input.Category),
		Location:     strings.TrimSpace(input.Location),
		Manufacturer: strings.TrimSpace(input.Manufacturer),
		Model:        strings.TrimSpace(input.Model),
		SerialNumber: strings.TrimSpace(input.SerialNumber),
		Status:       StatusOperational,
		InstalledAt:  input.InstalledAt,
	})
	if err != nil {
		return Equipment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "equipment:create", eq.AssetCode, map[string]any{"equipment_id": eq.ID, "name": eq.Name})
	return eq, nil
}

// Get loads one asset by id.
func (s *Service) Get(ctx context.Context, id int64) (Equipment, error) {
	if id == 0 {
		return Equipment{}, fmt.Errorf("equipment: asset id required: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// GetByAssetCode loads one asset by code.
func (s *Service) GetByAssetCode(ctx context.Context, code string) (Equipment, error) {
	if code == "" {
		return Equipment{}, fmt.Errorf("equipment: asset code required: %w", shared.ErrValidation)
	}
	return s.repo.GetByAssetCode(ctx, code)
}

// List returns a filtered page of assets with pagination metadata.
func (s *Service) List(ctx context.Context, filter Filter) ([]Equipment, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, ErrInvalidStatus
	}
	assets, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return assets, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Update rewrites the editable fields of an asset.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Equipment, error) {
	if input.EquipmentID == 0 {
		return Equipment{}, fmt.Errorf("equipment: asset id required: %w", shared.ErrValidation)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Equipment{}, fmt.Errorf("equipment: asset name required: %w", shared.ErrValidation)
	}
	eq, err := s.repo.Get(ctx, input.EquipmentID)
	if err != nil {
		return Equipment{}, err
	}
	eq.Name = name
	eq.Description = strings.TrimSpace(input.Description)
	eq.Category = strings.TrimSpace(input.Category)
	eq.Location = strings.TrimSpace(input.Location)
	eq.Manufacturer = strings.TrimSpace(input.Manufacturer)
	eq.Model = strings.TrimSpace(input.Model)
	eq.SerialNumber = strings.TrimSpace(input.SerialNumber)
	eq.InstalledAt = input.InstalledAt
	if err := s.repo.Update(ctx, eq); err != nil {
		return Equipment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "equipment:update", eq.AssetCode, map[string]any{"equipment_id": eq.ID})
	return eq, nil
}

// SetStatus moves an asset between lifecycle states.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status, actorID int64) (Equipment, error) {
	if id == 0 {
		return Equipment{}, fmt.Errorf("equipment: asset id required: %w", shared.ErrValidation)
	}
	if !status.Valid() {
		return Equipment{}, ErrInvalidStatus
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return Equipment{}, err
	}
	eq, err := s.repo.Get(ctx, id)
	if err != nil {
		return Equipment{}, err
	}
	s.recordAudit(ctx, actorID, "equipment:set_status", eq.AssetCode, map[string]any{"status": string(status)})
	return eq, nil
}

// Exists reports whether an asset id resolves, for cross-module reference
// checks.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.Get(ctx, id)
	return err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "equipment",
		EntityID: entityID,
		Meta:     meta,
	})
}
