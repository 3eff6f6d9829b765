package inventory

import "github.com/shopspring/decimal"

// Available returns on-hand minus reserved without clamping, so callers
// can surface reservation overruns instead of hiding them.
func Available(onHand, reserved int64) int64 {
	return onHand - reserved
}

// NextOnHand returns the on-hand level after applying one movement.
// ISSUE subtracts, RETURN and PURCHASE add, ADJUSTMENT replaces the level
// with the quantity itself. Delta types require a positive quantity; an
// adjustment to zero is a legitimate correction and passes.
func NextOnHand(current int64, txType TransactionType, quantity int64) (int64, error) {
	if quantity < 0 {
		return 0, ErrInvalidQuantity
	}
	switch txType {
	case TransactionTypeIssue:
		if quantity == 0 {
			return 0, ErrInvalidQuantity
		}
		next := current - quantity
		if next < 0 {
			return 0, ErrInsufficientStock
		}
		return next, nil
	case TransactionTypeReturn, TransactionTypePurchase:
		if quantity == 0 {
			return 0, ErrInvalidQuantity
		}
		return current + quantity, nil
	case TransactionTypeAdjustment:
		return quantity, nil
	default:
		return 0, ErrInvalidTransactionType
	}
}

// StockValue prices the on-hand level at the item's standing unit cost.
func StockValue(onHand int64, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(onHand))
}

// StatusOf classifies an on-hand level against min and max thresholds.
// OUT wins over LOW, and a max of zero means unbounded.
func StatusOf(onHand, minStock, maxStock int64) Status {
	switch {
	case onHand <= 0:
		return StatusOut
	case onHand < minStock:
		return StatusLow
	case maxStock > 0 && onHand > maxStock:
		return StatusOver
	default:
		return StatusOK
	}
}

// ComputeStatus derives the read-side stock view of an item. Reorder
// comparison uses on-hand, not available, so reservations alone never
// trigger replenishment alerts.
func ComputeStatus(item Item) StockStatus {
	return StockStatus{
		ItemID:       item.ID,
		PartNumber:   item.PartNumber,
		OnHand:       item.OnHand,
		Reserved:     item.Reserved,
		Available:    item.Available(),
		Status:       StatusOf(item.OnHand, item.MinStock, item.MaxStock),
		MinStock:     item.MinStock,
		MaxStock:     item.MaxStock,
		ReorderPoint: item.ReorderPoint,
		ReorderQty:   item.ReorderQty,
		BelowReorder: item.OnHand <= item.ReorderPoint,
		StockValue:   StockValue(item.OnHand, item.UnitCost),
	}
}

// Replay folds a ledger slice over a starting level and reports the final
// on-hand count, failing on the first movement whose recorded before or
// after level disagrees with the fold. Audits use it to prove the ledger
// still explains the stored stock.
func Replay(start int64, ledger []Transaction) (int64, error) {
	level := start
	for _, tx := range ledger {
		if tx.QuantityBefore != level {
			return level, ErrLedgerDiverged
		}
		next, err := NextOnHand(level, tx.Type, tx.Quantity)
		if err != nil {
			return level, err
		}
		if tx.QuantityAfter != next {
			return level, ErrLedgerDiverged
		}
		level = next
	}
	return level, nil
}
