package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetItemByPartNumber(ctx context.Context, partNumber string) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	ListBelowReorder(ctx context.Context) ([]Item, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	StockValuation(ctx context.Context) (ValuationSummary, error)
	UpdateItemInfo(ctx context.Context, item Item) error
	DeactivateItem(ctx context.Context, itemID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger postings and the item lifecycle. Every stock
// mutation runs through one retried transaction: read the item, validate
// the movement against what was read, write the new level and append the
// ledger row, then commit. A concurrent writer invalidates the snapshot and
// the whole sequence reruns against fresh state.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	alerts      *AlertCache
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, alerts *AlertCache) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, alerts: alerts}
}

// CreateItem registers a new part with a generated part number and zero
// stock. Initial stock enters through a PURCHASE posting so the ledger
// explains every unit from day one.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Item{}, fmt.Errorf("inventory: item name required: %w", shared.ErrValidation)
	}
	if input.UnitCost.IsNegative() {
		return Item{}, ErrInvalidUnitCost
	}
	if err := validateThresholds(input.MinStock, input.MaxStock, input.ReorderPoint, input.ReorderQty); err != nil {
		return Item{}, err
	}

	var created Item
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, "part_number")
		if err != nil {
			return err
		}
		item := Item{
			PartNumber:    fmt.Sprintf("PART-%07d", seq),
			Name:          name,
			Description:   strings.TrimSpace(input.Description),
			Category:      strings.TrimSpace(input.Category),
			UnitOfMeasure: defaultString(input.UnitOfMeasure, "EA"),
			UnitCost:      input.UnitCost,
			MinStock:      input.MinStock,
			MaxStock:      input.MaxStock,
			ReorderPoint:  input.ReorderPoint,
			ReorderQty:    input.ReorderQty,
			Location:      strings.TrimSpace(input.Location),
			Active:        true,
		}
		id, err := tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = id
		created = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:create_item", created.PartNumber, map[string]any{
		"item_id": created.ID,
		"name":    created.Name,
	})
	return created, nil
}

// UpdateItem rewrites descriptive fields. Stock levels are untouchable
// here; they only move through ledger postings.
func (s *Service) UpdateItem(ctx context.Context, input UpdateItemInput) (Item, error) {
	if input.ItemID == 0 {
		return Item{}, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Item{}, fmt.Errorf("inventory: item name required: %w", shared.ErrValidation)
	}
	if err := validateThresholds(input.MinStock, input.MaxStock, input.ReorderPoint, input.ReorderQty); err != nil {
		return Item{}, err
	}
	item, err := s.repo.GetItem(ctx, input.ItemID)
	if err != nil {
		return Item{}, err
	}
	item.Name = name
	item.Description = strings.TrimSpace(input.Description)
	item.Category = strings.TrimSpace(input.Category)
	item.UnitOfMeasure = defaultString(input.UnitOfMeasure, item.UnitOfMeasure)
	item.MinStock = input.MinStock
	item.MaxStock = input.MaxStock
	item.ReorderPoint = input.ReorderPoint
	item.ReorderQty = input.ReorderQty
	item.Location = strings.TrimSpace(input.Location)
	if err := s.repo.UpdateItemInfo(ctx, item); err != nil {
		return Item{}, err
	}
	s.invalidateAlerts(ctx)
	s.recordAudit(ctx, input.ActorID, "inventory:update_item", item.PartNumber, map[string]any{
		"item_id": item.ID,
	})
	return item, nil
}

// DeactivateItem soft deletes a part. Its ledger stays intact and
// readable; new postings against it are rejected.
func (s *Service) DeactivateItem(ctx context.Context, itemID, actorID int64) error {
	if itemID == 0 {
		return fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	if err := s.repo.DeactivateItem(ctx, itemID); err != nil {
		return err
	}
	s.invalidateAlerts(ctx)
	s.recordAudit(ctx, actorID, "inventory:deactivate_item", fmt.Sprintf("%d", itemID), nil)
	return nil
}

// Issue posts an outbound movement, typically parts consumed by a work
// order. Set ReleaseReserved when the stock was reserved beforehand.
func (s *Service) Issue(ctx context.Context, input TransactionInput) (Transaction, error) {
	input.Type = TransactionTypeIssue
	return s.RecordTransaction(ctx, input)
}

// Return posts previously issued stock back into the store room.
func (s *Service) Return(ctx context.Context, input TransactionInput) (Transaction, error) {
	input.Type = TransactionTypeReturn
	return s.RecordTransaction(ctx, input)
}

// Purchase receives bought stock and, when a cost is supplied, updates the
// item's standing unit cost to the latest purchase price.
func (s *Service) Purchase(ctx context.Context, input TransactionInput) (Transaction, error) {
	input.Type = TransactionTypePurchase
	return s.RecordTransaction(ctx, input)
}

// Adjust corrects the on-hand level to an absolute count, for example
// after a physical stock take. Quantity is the target level, not a delta,
// and zero is a valid target.
func (s *Service) Adjust(ctx context.Context, input TransactionInput) (Transaction, error) {
	input.Type = TransactionTypeAdjustment
	return s.RecordTransaction(ctx, input)
}

// RecordTransaction appends one ledger row and moves the stock level in a
// single atomic commit. The returned row carries the before and after
// levels the commit actually observed, which under retry may differ from
// what the caller saw before posting.
func (s *Service) RecordTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	if input.ItemID == 0 {
		return Transaction{}, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	if !input.Type.Valid() {
		return Transaction{}, ErrInvalidTransactionType
	}
	if input.UnitCost.IsNegative() {
		return Transaction{}, ErrInvalidUnitCost
	}
	now := time.Now().UTC()

	key := strings.TrimSpace(input.IdempotencyKey)
	insertedKey := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Transaction{}, err
		}
		insertedKey = true
	}

	var rec Transaction
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForCommit(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return ErrItemInactive
		}
		next, err := NextOnHand(item.OnHand, input.Type, input.Quantity)
		if err != nil {
			return err
		}
		cost := item.UnitCost
		if (input.Type == TransactionTypePurchase || input.Type == TransactionTypeAdjustment) && input.UnitCost.IsPositive() {
			cost = input.UnitCost
			item.UnitCost = input.UnitCost
		}
		if input.Type == TransactionTypeIssue && input.ReleaseReserved {
			item.Reserved -= min(item.Reserved, input.Quantity)
		}
		switch input.Type {
		case TransactionTypeIssue:
			item.TotalIssued += input.Quantity
			item.LastIssuedAt = &now
		case TransactionTypeReturn:
			item.TotalReturned += input.Quantity
			item.LastReturnedAt = &now
		case TransactionTypePurchase:
			item.TotalPurchased += input.Quantity
			item.LastPurchasedAt = &now
		case TransactionTypeAdjustment:
			item.LastCountedAt = &now
		}
		rec = Transaction{
			ItemID:         item.ID,
			Type:           input.Type,
			Quantity:       input.Quantity,
			QuantityBefore: item.OnHand,
			QuantityAfter:  next,
			UnitCost:       cost,
			TotalValue:     cost.Mul(decimal.NewFromInt(input.Quantity)),
			WorkOrderID:    input.WorkOrderID,
			Reference:      strings.TrimSpace(input.Reference),
			Note:           strings.TrimSpace(input.Note),
			PerformedBy:    s.actorID(ctx, input.ActorID),
			PostedAt:       now,
		}
		id, err := tx.InsertTransaction(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		item.OnHand = next
		return tx.UpdateItemStock(ctx, item)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Transaction{}, err
	}
	s.invalidateAlerts(ctx)
	s.recordAudit(ctx, rec.PerformedBy, fmt.Sprintf("inventory:%s", strings.ToLower(string(rec.Type))), fmt.Sprintf("%d", rec.ItemID), map[string]any{
		"transaction_id": rec.ID,
		"quantity":       rec.Quantity,
		"before":         rec.QuantityBefore,
		"after":          rec.QuantityAfter,
		"reference":      rec.Reference,
	})
	return rec, nil
}

// Reserve earmarks available stock for upcoming work. No ledger row is
// written: the stock has not moved, only its availability.
func (s *Service) Reserve(ctx context.Context, input ReservationInput) (Item, error) {
	if input.ItemID == 0 {
		return Item{}, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	var updated Item
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForCommit(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return ErrItemInactive
		}
		if input.Quantity > item.Available() {
			return ErrReserveExceedsAvailable
		}
		item.Reserved += input.Quantity
		updated = item
		return tx.UpdateItemStock(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:reserve", updated.PartNumber, map[string]any{
		"quantity":  input.Quantity,
		"reference": input.Reference,
	})
	return updated, nil
}

// Release frees reserved stock that the work no longer needs.
func (s *Service) Release(ctx context.Context, input ReservationInput) (Item, error) {
	if input.ItemID == 0 {
		return Item{}, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	var updated Item
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForCommit(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if input.Quantity > item.Reserved {
			return ErrInsufficientReserved
		}
		item.Reserved -= input.Quantity
		updated = item
		return tx.UpdateItemStock(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:release", updated.PartNumber, map[string]any{
		"quantity":  input.Quantity,
		"reference": input.Reference,
	})
	return updated, nil
}

func (s *Service) actorID(ctx context.Context, explicit int64) int64 {
	if explicit != 0 {
		return explicit
	}
	return shared.ActorID(ctx)
}

func (s *Service) invalidateAlerts(ctx context.Context) {
	if s.alerts != nil {
		_ = s.alerts.Bump(ctx)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: entityID,
		Meta:     meta,
	})
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

func validateThresholds(minStock, maxStock, reorderPoint, reorderQty int64) error {
	if minStock < 0 || maxStock < 0 || reorderPoint < 0 || reorderQty < 0 {
		return fmt.Errorf("inventory: stock thresholds must not be negative: %w", shared.ErrValidation)
	}
	if maxStock > 0 && maxStock < minStock {
		return fmt.Errorf("inventory: max stock below min stock: %w", shared.ErrValidation)
	}
	return nil
}
