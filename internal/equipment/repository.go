package equipment

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

const columns = `id, asset_code, name, description, category, location, manufacturer, model, serial_number, status, installed_at, created_at, updated_at`

// Repository persists the asset registry in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create assigns the next asset code and inserts the row in one commit, so
// codes stay unique under concurrent creation.
func (r *Repository) Create(ctx context.Context, eq Equipment) (Equipment, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		seq, err := shared.NextSequence(ctx, tx, "asset_code")
		if err != nil {
			return err
		}
		eq.AssetCode = fmt.Sprintf("EQ-%05d", seq)
		return tx.QueryRow(ctx, `INSERT INTO equipment (asset_code, name, description, category, location, manufacturer, model, serial_number, status, installed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id, created_at, updated_at`,
			eq.AssetCode, eq.Name, eq.Description, eq.Category, eq.Location, eq.Manufacturer, eq.Model, eq.SerialNumber, string(eq.Status), eq.InstalledAt).
			Scan(&eq.ID, &eq.CreatedAt, &eq.UpdatedAt)
	})
	if err != nil {
		return Equipment{}, err
	}
	return eq, nil
}

// Get loads one asset by id.
func (r *Repository) Get(ctx context.Context, id int64) (Equipment, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM equipment WHERE id=$1`, id))
}

// GetByAssetCode loads one asset by its generated code.
func (r *Repository) GetByAssetCode(ctx context.Context, code string) (Equipment, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM equipment WHERE asset_code=$1`, code))
}

// List returns a filtered page of assets plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Equipment, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		where = append(where, fmt.Sprintf("location=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR asset_code ILIKE $%d)", len(args), len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM equipment WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM equipment WHERE `+cond+fmt.Sprintf(` ORDER BY asset_code ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	assets := []Equipment{}
	for rows.Next() {
		eq, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, eq)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return assets, total, nil
}

// Update rewrites the editable fields of an asset.
func (r *Repository) Update(ctx context.Context, eq Equipment) error {
	tag, err := r.pool.Exec(ctx, `UPDATE equipment
SET name=$2, description=$3, category=$4, location=$5, manufacturer=$6, model=$7, serial_number=$8, installed_at=$9, updated_at=NOW()
WHERE id=$1`, eq.ID, eq.Name, eq.Description, eq.Category, eq.Location, eq.Manufacturer, eq.Model, eq.SerialNumber, eq.InstalledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus moves an asset between lifecycle states.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE equipment SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (Equipment, error) {
	var eq Equipment
	err := row.Scan(&eq.ID, &eq.AssetCode, &eq.Name, &eq.Description, &eq.Category, &eq.Location, &eq.Manufacturer, &eq.Model, &eq.SerialNumber, &eq.Status, &eq.InstalledAt, &eq.CreatedAt, &eq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Equipment{}, ErrNotFound
		}
		return Equipment{}, err
	}
	return eq, nil
}
