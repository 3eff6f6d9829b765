package inventory

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

var alertsGroup singleflight.Group

// GetItem loads one item by id.
func (s *Service) GetItem(ctx context.Context, itemID int64) (Item, error) {
	if itemID == 0 {
		return Item{}, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	return s.repo.GetItem(ctx, itemID)
}

// GetItemByPartNumber loads one item by part number.
func (s *Service) GetItemByPartNumber(ctx context.Context, partNumber string) (Item, error) {
	if partNumber == "" {
		return Item{}, fmt.Errorf("inventory: part number required: %w", shared.ErrValidation)
	}
	return s.repo.GetItemByPartNumber(ctx, partNumber)
}

// GetStockStatus returns the derived stock view of one item.
func (s *Service) GetStockStatus(ctx context.Context, itemID int64) (StockStatus, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return StockStatus{}, err
	}
	return ComputeStatus(item), nil
}

// ListItems returns a filtered page of items with pagination metadata.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, shared.Pagination, error) {
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// History lists the item's ledger, newest first. The item must exist so
// an empty history is distinguishable from a bad id.
func (s *Service) History(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("inventory: item id required: %w", shared.ErrValidation)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, ErrInvalidTransactionType
	}
	if _, err := s.repo.GetItem(ctx, filter.ItemID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, filter)
}

// ReorderAlerts lists active items at or below their reorder point. The
// listing is served from the versioned cache; concurrent cold fetches
// collapse into one database read. Any cache trouble degrades to a direct
// read so alerting never depends on Redis health.
func (s *Service) ReorderAlerts(ctx context.Context) ([]StockStatus, error) {
	if s.alerts == nil {
		return s.loadAlerts(ctx)
	}
	key, err := s.alerts.BuildKey(ctx, "inventory", "alerts")
	if err != nil {
		return s.loadAlerts(ctx)
	}
	resultChan := alertsGroup.DoChan(key, func() (interface{}, error) {
		var cached []StockStatus
		if err := s.alerts.FetchJSON(ctx, key, &cached, func(ctx context.Context) (any, error) {
			return s.loadAlerts(ctx)
		}); err != nil {
			return nil, err
		}
		return cached, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return s.loadAlerts(ctx)
		}
		alerts, _ := res.Val.([]StockStatus)
		return alerts, nil
	}
}

func (s *Service) loadAlerts(ctx context.Context) ([]StockStatus, error) {
	items, err := s.repo.ListBelowReorder(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]StockStatus, 0, len(items))
	for _, item := range items {
		alerts = append(alerts, ComputeStatus(item))
	}
	return alerts, nil
}

// Valuation totals stock value across active items.
func (s *Service) Valuation(ctx context.Context) (ValuationSummary, error) {
	return s.repo.StockValuation(ctx)
}
