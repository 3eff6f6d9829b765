package equipment

import (
	"fmt"
	"time"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// Status tracks whether an asset can take maintenance work.
type Status string

const (
	StatusOperational Status = "OPERATIONAL"
	StatusDown        Status = "DOWN"
	StatusMaintenance Status = "MAINTENANCE"
	StatusRetired     Status = "RETIRED"
)

// Valid reports whether s names a known asset status.
func (s Status) Valid() bool {
	switch s {
	case StatusOperational, StatusDown, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

// Equipment is a maintainable asset referenced by PM schedules and work
// orders. The registry stays thin; what happens to an asset lives in the
// work order history.
type Equipment struct {
	ID           int64      `json:"id"`
	AssetCode    string     `json:"assetCode"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category,omitempty"`
	Location     string     `json:"location,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	SerialNumber string     `json:"serialNumber,omitempty"`
	Status       Status     `json:"status"`
	InstalledAt  *time.Time `json:"installedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// CreateInput describes a new asset. The asset code is generated.
type CreateInput struct {
	Name         string
	Description  string
	Category     string
	Location     string
	Manufacturer string
	Model        string
	SerialNumber string
	InstalledAt  *time.Time
	ActorID      int64
}

// UpdateInput carries the editable fields of an asset.
type UpdateInput struct {
	EquipmentID  int64
	Name         string
	Description  string
	Category     string
	Location     string
	Manufacturer string
	Model        string
	SerialNumber string
	InstalledAt  *time.Time
	ActorID      int64
}

// Filter narrows asset listings.
type Filter struct {
	Search   string
	Category string
	Location string
	Status   Status
	Page     int
	PerPage  int
}

var (
	ErrNotFound      = fmt.Errorf("equipment: asset not found: %w", shared.ErrNotFound)
	ErrInvalidStatus = fmt.Errorf("equipment: unknown asset status: %w", shared.ErrValidation)
)
