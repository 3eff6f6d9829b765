package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeIssue removes stock, typically against a work order.
	TransactionTypeIssue TransactionType = "ISSUE"
	// TransactionTypeReturn puts previously issued stock back.
	TransactionTypeReturn TransactionType = "RETURN"
	// TransactionTypePurchase receives purchased stock.
	TransactionTypePurchase TransactionType = "PURCHASE"
	// TransactionTypeAdjustment sets the on-hand level to an absolute count.
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t names a known movement type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIssue, TransactionTypeReturn, TransactionTypePurchase, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Status classifies an item's on-hand level against its thresholds.
// It is derived on every read, never stored.
type Status string

const (
	StatusOK   Status = "OK"
	StatusLow  Status = "LOW"
	StatusOut  Status = "OUT"
	StatusOver Status = "OVER"
)

// Item is a stocked part. OnHand and Reserved are the only persisted
// quantities; availability is always derived from them. MaxStock zero
// means no upper bound.
type Item struct {
	ID              int64
	PartNumber      string
	Name            string
	Description     string
	Category        string
	UnitOfMeasure   string
	UnitCost        decimal.Decimal
	OnHand          int64
	Reserved        int64
	MinStock        int64
	MaxStock        int64
	ReorderPoint    int64
	ReorderQty      int64
	TotalIssued     int64
	TotalPurchased  int64
	TotalReturned   int64
	LastIssuedAt    *time.Time
	LastPurchasedAt *time.Time
	LastReturnedAt  *time.Time
	LastCountedAt   *time.Time
	Location        string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available returns on-hand minus reserved. The result can be negative
// when an adjustment lowers on-hand below outstanding reservations.
func (i Item) Available() int64 {
	return Available(i.OnHand, i.Reserved)
}

// Transaction is one immutable row of the stock ledger. Quantity carries
// the movement magnitude for delta types and the absolute target level for
// adjustments; QuantityBefore and QuantityAfter pin the on-hand level the
// row observed and produced, so the ledger replays to current stock.
type Transaction struct {
	ID             int64
	ItemID         int64
	Type           TransactionType
	Quantity       int64
	QuantityBefore int64
	QuantityAfter  int64
	UnitCost       decimal.Decimal
	TotalValue     decimal.Decimal
	WorkOrderID    *int64
	Reference      string
	Note           string
	PerformedBy    int64
	PostedAt       time.Time
	CreatedAt      time.Time
}

// TransactionInput describes a ledger posting request.
type TransactionInput struct {
	ItemID         int64
	Type           TransactionType
	Quantity       int64
	UnitCost       decimal.Decimal
	WorkOrderID    *int64
	Reference      string
	Note           string
	ActorID        int64
	IdempotencyKey string
	// ReleaseReserved releases up to Quantity from the item's reservation
	// alongside an issue, used when the stock was reserved beforehand.
	ReleaseReserved bool
}

// CreateItemInput describes a new part. The part number is assigned by the
// service and never supplied by callers.
type CreateItemInput struct {
	Name          string
	Description   string
	Category      string
	UnitOfMeasure string
	UnitCost      decimal.Decimal
	MinStock      int64
	MaxStock      int64
	ReorderPoint  int64
	ReorderQty    int64
	Location      string
	ActorID       int64
}

// UpdateItemInput carries the mutable descriptive fields of a part. Stock
// levels never change through this path.
type UpdateItemInput struct {
	ItemID        int64
	Name          string
	Description   string
	Category      string
	UnitOfMeasure string
	MinStock      int64
	MaxStock      int64
	ReorderPoint  int64
	ReorderQty    int64
	Location      string
	ActorID       int64
}

// ReservationInput reserves or releases stock for upcoming work.
type ReservationInput struct {
	ItemID    int64
	Quantity  int64
	Reference string
	ActorID   int64
}

// ItemFilter filters item listings.
type ItemFilter struct {
	Search          string
	Category        string
	BelowReorder    bool
	IncludeInactive bool
	Page            int
	PerPage         int
}

// TransactionFilter filters ledger history for one item.
type TransactionFilter struct {
	ItemID int64
	Type   TransactionType
	From   time.Time
	To     time.Time
	Limit  int
}

// StockStatus is the derived stock view of an item.
type StockStatus struct {
	ItemID       int64           `json:"itemId"`
	PartNumber   string          `json:"partNumber"`
	OnHand       int64           `json:"onHand"`
	Reserved     int64           `json:"reserved"`
	Available    int64           `json:"available"`
	Status       Status          `json:"status"`
	MinStock     int64           `json:"minStock"`
	MaxStock     int64           `json:"maxStock"`
	ReorderPoint int64           `json:"reorderPoint"`
	ReorderQty   int64           `json:"reorderQty"`
	BelowReorder bool            `json:"belowReorder"`
	StockValue   decimal.Decimal `json:"stockValue"`
}

// ValuationSummary totals the store room at standing unit costs.
type ValuationSummary struct {
	ItemCount  int64           `json:"itemCount"`
	TotalUnits int64           `json:"totalUnits"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// Sentinel errors wrap a shared kind so transports classify them without
// knowing this package.
var (
	ErrItemNotFound            = fmt.Errorf("inventory: item not found: %w", shared.ErrNotFound)
	ErrItemInactive            = fmt.Errorf("inventory: item is inactive: %w", shared.ErrValidation)
	ErrInvalidQuantity         = fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	ErrInvalidUnitCost         = fmt.Errorf("inventory: unit cost must not be negative: %w", shared.ErrValidation)
	ErrInvalidTransactionType  = fmt.Errorf("inventory: unknown transaction type: %w", shared.ErrValidation)
	ErrInsufficientStock       = fmt.Errorf("inventory: insufficient stock on hand: %w", shared.ErrValidation)
	ErrInsufficientReserved    = fmt.Errorf("inventory: release exceeds reserved quantity: %w", shared.ErrValidation)
	ErrReserveExceedsAvailable = fmt.Errorf("inventory: reservation exceeds available stock: %w", shared.ErrValidation)
	ErrTransactionConflict     = fmt.Errorf("inventory: stock changed concurrently, retries exhausted: %w", shared.ErrConflict)
)

// ErrLedgerDiverged reports that replaying the ledger no longer reproduces
// the recorded levels. It signals data corruption, not a caller mistake.
var ErrLedgerDiverged = errors.New("inventory: ledger replay diverged from recorded levels")
