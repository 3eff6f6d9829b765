package workorders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/db"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

const columns = `id, number, title, description, equipment_id, schedule_id, status, priority, assignee_id, due_at, started_at, completed_at, completion_note, tasks, created_by, created_at, updated_at`

// Repository persists work orders in PostgreSQL. The checklist is stored
// as a JSONB document alongside the row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create assigns the next work order number and inserts the row in one
// commit, so numbers stay unique under concurrent creation.
func (r *Repository) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	tasks, err := json.Marshal(wo.Tasks)
	if err != nil {
		return WorkOrder{}, fmt.Errorf("workorders: encode tasks: %w", err)
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		seq, err := shared.NextSequence(ctx, tx, "work_order")
		if err != nil {
			return err
		}
		wo.Number = fmt.Sprintf("WO-%06d", seq)
		return tx.QueryRow(ctx, `INSERT INTO work_orders (number, title, description, equipment_id, schedule_id, status, priority, assignee_id, due_at, started_at, completed_at, completion_note, tasks, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULL,NULL,'',$10,$11,NOW(),NOW()) RETURNING id, created_at, updated_at`,
			wo.Number, wo.Title, wo.Description, wo.EquipmentID, wo.ScheduleID, string(wo.Status), string(wo.Priority), nullInt(wo.AssigneeID), wo.DueAt, tasks, nullInt(wo.CreatedBy)).
			Scan(&wo.ID, &wo.CreatedAt, &wo.UpdatedAt)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// Get loads one work order by id.
func (r *Repository) Get(ctx context.Context, id int64) (WorkOrder, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM work_orders WHERE id=$1`, id))
}

// GetByNumber loads one work order by its assigned number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (WorkOrder, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM work_orders WHERE number=$1`, number))
}

// List returns a filtered page of work orders plus the unpaged total,
// newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]WorkOrder, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.EquipmentID != 0 {
		args = append(args, filter.EquipmentID)
		where = append(where, fmt.Sprintf("equipment_id=$%d", len(args)))
	}
	if filter.ScheduleID != 0 {
		args = append(args, filter.ScheduleID)
		where = append(where, fmt.Sprintf("schedule_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.AssigneeID != 0 {
		args = append(args, filter.AssigneeID)
		where = append(where, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM work_orders WHERE `+cond+fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []WorkOrder{}
	for rows.Next() {
		wo, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, wo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Update rewrites the mutable fields of a work order: lifecycle state,
// timestamps, assignee, checklist and completion note.
func (r *Repository) Update(ctx context.Context, wo WorkOrder) error {
	tasks, err := json.Marshal(wo.Tasks)
	if err != nil {
		return fmt.Errorf("workorders: encode tasks: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE work_orders
SET status=$2, priority=$3, assignee_id=$4, due_at=$5, started_at=$6, completed_at=$7, completion_note=$8, tasks=$9, updated_at=NOW()
WHERE id=$1`, wo.ID, string(wo.Status), string(wo.Priority), nullInt(wo.AssigneeID), wo.DueAt, wo.StartedAt, wo.CompletedAt, wo.CompletionNote, tasks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	var tasks []byte
	var assignee, createdBy *int64
	err := row.Scan(&wo.ID, &wo.Number, &wo.Title, &wo.Description, &wo.EquipmentID, &wo.ScheduleID, &wo.Status, &wo.Priority, &assignee, &wo.DueAt, &wo.StartedAt, &wo.CompletedAt, &wo.CompletionNote, &tasks, &createdBy, &wo.CreatedAt, &wo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrNotFound
		}
		return WorkOrder{}, err
	}
	if assignee != nil {
		wo.AssigneeID = *assignee
	}
	if createdBy != nil {
		wo.CreatedBy = *createdBy
	}
	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &wo.Tasks); err != nil {
			return WorkOrder{}, fmt.Errorf("workorders: decode tasks: %w", err)
		}
	}
	return wo, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
