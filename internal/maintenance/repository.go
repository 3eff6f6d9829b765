package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/db"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

const scheduleColumns = `id, code, equipment_id, title, description, frequency, interval_days,
	next_due_at, last_generated_at, last_work_order_id, total_generated,
	is_active, auto_generate, assignee_id, priority, estimated_minutes,
	checklist, created_at, updated_at`

// Repository persists PM schedules in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create allocates the next schedule code and inserts the row in one
// transaction.
func (r *Repository) Create(ctx context.Context, s *PMSchedule) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		seq, err := shared.NextSequence(ctx, tx, "pm_schedule")
		if err != nil {
			return fmt.Errorf("maintenance: allocate schedule code: %w", err)
		}
		s.Code = fmt.Sprintf("PM-%05d", seq)

		checklist, err := json.Marshal(s.Checklist)
		if err != nil {
			return fmt.Errorf("maintenance: encode checklist: %w", err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO pm_schedules (
				code, equipment_id, title, description, frequency, interval_days,
				next_due_at, total_generated, is_active, auto_generate,
				assignee_id, priority, estimated_minutes, checklist
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at`,
			s.Code, s.EquipmentID, s.Title, s.Description, s.Frequency, s.IntervalDays,
			s.NextDueAt, s.Active, s.AutoGenerate,
			nullInt(s.AssigneeID), s.Priority, s.EstimatedMinutes, checklist,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("maintenance: insert schedule: %w", err)
		}
		return nil
	})
}

func (r *Repository) Get(ctx context.Context, id int64) (PMSchedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM pm_schedules WHERE id = $1`, id)
	return r.scan(row)
}

func (r *Repository) GetByCode(ctx context.Context, code string) (PMSchedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM pm_schedules WHERE code = $1`, code)
	return r.scan(row)
}

// List returns schedules ordered by due date, soonest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]PMSchedule, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.EquipmentID > 0 {
		args = append(args, filter.EquipmentID)
		where += fmt.Sprintf(" AND equipment_id = $%d", len(args))
	}
	if !filter.IncludeInactive {
		where += " AND is_active"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pm_schedules`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("maintenance: count schedules: %w", err)
	}

	p := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, p.PerPage, p.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM pm_schedules`+where+
		fmt.Sprintf(` ORDER BY next_due_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("maintenance: list schedules: %w", err)
	}
	defer rows.Close()

	schedules, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// Due returns schedules whose due date has passed, soonest first. It
// does not pre-filter on active or auto-generate flags: the generator
// evaluates those itself so that every schedule in the due set gets an
// explicit verdict in the batch summary.
func (r *Repository) Due(ctx context.Context, asOf time.Time, limit int) ([]PMSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM pm_schedules
		WHERE next_due_at <= $1
		ORDER BY next_due_at, id
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load due schedules: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// Update rewrites the externally editable fields. Generation tracking
// is untouched; MarkGenerated owns it.
func (r *Repository) Update(ctx context.Context, s *PMSchedule) error {
	checklist, err := json.Marshal(s.Checklist)
	if err != nil {
		return fmt.Errorf("maintenance: encode checklist: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE pm_schedules
		SET title = $2, description = $3, frequency = $4, interval_days = $5,
			next_due_at = $6, is_active = $7, auto_generate = $8,
			assignee_id = $9, priority = $10, estimated_minutes = $11,
			checklist = $12, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Title, s.Description, s.Frequency, s.IntervalDays,
		s.NextDueAt, s.Active, s.AutoGenerate,
		nullInt(s.AssigneeID), s.Priority, s.EstimatedMinutes, checklist)
	if err != nil {
		return fmt.Errorf("maintenance: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// MarkGenerated records that a work order covers the given due date.
// The due date and the work order id are written together so the
// eligibility check can rely on the pair.
func (r *Repository) MarkGenerated(ctx context.Context, scheduleID int64, dueAt time.Time, workOrderID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pm_schedules
		SET last_generated_at = $2, last_work_order_id = $3,
			total_generated = total_generated + 1, updated_at = NOW()
		WHERE id = $1`, scheduleID, dueAt, workOrderID)
	if err != nil {
		return fmt.Errorf("maintenance: mark schedule generated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// AdvanceNextDue moves a schedule to its next occurrence.
func (r *Repository) AdvanceNextDue(ctx context.Context, scheduleID int64, next time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pm_schedules SET next_due_at = $2, updated_at = NOW() WHERE id = $1`,
		scheduleID, next)
	if err != nil {
		return fmt.Errorf("maintenance: advance schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *Repository) collect(rows pgx.Rows) ([]PMSchedule, error) {
	var schedules []PMSchedule
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("maintenance: read schedules: %w", err)
	}
	return schedules, nil
}

func (r *Repository) scan(row pgx.Row) (PMSchedule, error) {
	var (
		s         PMSchedule
		assignee  *int64
		checklist []byte
	)
	err := row.Scan(
		&s.ID, &s.Code, &s.EquipmentID, &s.Title, &s.Description, &s.Frequency, &s.IntervalDays,
		&s.NextDueAt, &s.LastGeneratedAt, &s.LastWorkOrderID, &s.TotalGenerated,
		&s.Active, &s.AutoGenerate, &assignee, &s.Priority, &s.EstimatedMinutes,
		&checklist, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PMSchedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return PMSchedule{}, fmt.Errorf("maintenance: scan schedule: %w", err)
	}
	if assignee != nil {
		s.AssigneeID = *assignee
	}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &s.Checklist); err != nil {
			return PMSchedule{}, fmt.Errorf("maintenance: decode checklist: %w", err)
		}
	}
	if s.Checklist == nil {
		s.Checklist = []ChecklistTask{}
	}
	return s, nil
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
