package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/db"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

const itemColumns = `id, part_number, name, description, category, unit_of_measure, unit_cost, on_hand, reserved, min_stock, max_stock, reorder_point, reorder_qty, total_issued, total_purchased, total_returned, last_issued_at, last_purchased_at, last_returned_at, last_counted_at, location, active, created_at, updated_at`

const transactionColumns = `id, item_id, tx_type, quantity, quantity_before, quantity_after, unit_cost, total_value, work_order_id, reference, note, performed_by, posted_at, created_at`

// Repository persists items and the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one atomic commit.
type TxRepository interface {
	GetItemForCommit(ctx context.Context, itemID int64) (Item, error)
	UpdateItemStock(ctx context.Context, item Item) error
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// InTx executes the callback inside a repeatable-read transaction and
// retries it when the commit loses a snapshot race, so the callback always
// revalidates against fresh rows. Exhausted retries surface as
// ErrTransactionConflict.
func (r *Repository) InTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.InTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if errors.Is(err, db.ErrTxConflict) {
		return ErrTransactionConflict
	}
	return err
}

// GetItem loads one item by id.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, itemID))
}

// GetItemByPartNumber loads one item by its assigned part number.
func (r *Repository) GetItemByPartNumber(ctx context.Context, partNumber string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE part_number=$1`, partNumber))
}

// ListItems returns a filtered page of items plus the unpaged total.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if !filter.IncludeInactive {
		where = append(where, "active")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR part_number ILIKE $%d)", len(args), len(args)))
	}
	if filter.BelowReorder {
		where = append(where, "on_hand <= reorder_point")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE `+cond+fmt.Sprintf(` ORDER BY part_number ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListBelowReorder returns active items at or below their reorder point,
// ordered by how far under the point they sit.
func (r *Repository) ListBelowReorder(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+`
FROM inventory_items
WHERE active AND on_hand <= reorder_point
ORDER BY (reorder_point - on_hand) DESC, part_number ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListTransactions returns ledger rows for one item, newest first. Callers
// reconstructing the replay chain reverse the slice.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	where := []string{"item_id=$1"}
	args := []any{filter.ItemID}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("tx_type=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("posted_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("posted_at <= $%d", len(args)))
	}
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`
FROM stock_transactions WHERE `+strings.Join(where, " AND ")+fmt.Sprintf(` ORDER BY posted_at DESC, id DESC LIMIT $%d`, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// StockValuation totals active stock at standing unit costs.
func (r *Repository) StockValuation(ctx context.Context) (ValuationSummary, error) {
	var summary ValuationSummary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(on_hand), 0), COALESCE(SUM(unit_cost * on_hand), 0)
FROM inventory_items WHERE active`).Scan(&summary.ItemCount, &summary.TotalUnits, &summary.TotalValue)
	if err != nil {
		return ValuationSummary{}, err
	}
	return summary, nil
}

// UpdateItemInfo rewrites the descriptive fields of an item. Stock columns
// are deliberately absent from the statement.
func (r *Repository) UpdateItemInfo(ctx context.Context, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inventory_items
SET name=$2, description=$3, category=$4, unit_of_measure=$5, min_stock=$6, max_stock=$7, reorder_point=$8, reorder_qty=$9, location=$10, updated_at=NOW()
WHERE id=$1`, item.ID, item.Name, item.Description, item.Category, item.UnitOfMeasure, item.MinStock, item.MaxStock, item.ReorderPoint, item.ReorderQty, item.Location)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeactivateItem soft deletes an item so history stays replayable.
func (r *Repository) DeactivateItem(ctx context.Context, itemID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inventory_items SET active=FALSE, updated_at=NOW() WHERE id=$1 AND active`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItemForCommit reads the item inside the transaction snapshot. There is
// no row lock here: a concurrent writer surfaces as a serialization failure
// at commit, which InTx resolves by retrying the whole callback.
func (r *txRepository) GetItemForCommit(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, itemID))
}

func (r *txRepository) UpdateItemStock(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items
SET on_hand=$2, reserved=$3, unit_cost=$4, total_issued=$5, total_purchased=$6, total_returned=$7, last_issued_at=$8, last_purchased_at=$9, last_returned_at=$10, last_counted_at=$11, updated_at=NOW()
WHERE id=$1`, item.ID, item.OnHand, item.Reserved, item.UnitCost, item.TotalIssued, item.TotalPurchased, item.TotalReturned, item.LastIssuedAt, item.LastPurchasedAt, item.LastReturnedAt, item.LastCountedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (item_id, tx_type, quantity, quantity_before, quantity_after, unit_cost, total_value, work_order_id, reference, note, performed_by, posted_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		tx.ItemID, string(tx.Type), tx.Quantity, tx.QuantityBefore, tx.QuantityAfter, tx.UnitCost, tx.TotalValue, tx.WorkOrderID, tx.Reference, tx.Note, nullInt(tx.PerformedBy), tx.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_items (part_number, name, description, category, unit_of_measure, unit_cost, on_hand, reserved, min_stock, max_stock, reorder_point, reorder_qty, location, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,TRUE,NOW(),NOW()) RETURNING id`,
		item.PartNumber, item.Name, item.Description, item.Category, item.UnitOfMeasure, item.UnitCost, item.OnHand, item.Reserved, item.MinStock, item.MaxStock, item.ReorderPoint, item.ReorderQty, item.Location).Scan(&id)
	return id, err
}

func (r *txRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	return shared.NextSequence(ctx, r.tx, name)
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.PartNumber, &item.Name, &item.Description, &item.Category, &item.UnitOfMeasure, &item.UnitCost, &item.OnHand, &item.Reserved, &item.MinStock, &item.MaxStock, &item.ReorderPoint, &item.ReorderQty, &item.TotalIssued, &item.TotalPurchased, &item.TotalReturned, &item.LastIssuedAt, &item.LastPurchasedAt, &item.LastReturnedAt, &item.LastCountedAt, &item.Location, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var performedBy *int64
	err := row.Scan(&tx.ID, &tx.ItemID, &tx.Type, &tx.Quantity, &tx.QuantityBefore, &tx.QuantityAfter, &tx.UnitCost, &tx.TotalValue, &tx.WorkOrderID, &tx.Reference, &tx.Note, &performedBy, &tx.PostedAt, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	if performedBy != nil {
		tx.PerformedBy = *performedBy
	}
	return tx, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
