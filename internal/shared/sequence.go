package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgx needed for sequence allocation. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so a number can be claimed inside
// the transaction that creates the document it identifies.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextSequence claims the next value of a named counter. The upsert is
// atomic on the counter row, so concurrent callers each observe a distinct,
// strictly increasing value.
func NextSequence(ctx context.Context, q Querier, name string) (int64, error) {
	var seq int64
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (name, seq)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, name).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("shared: next sequence %s: %w", name, err)
	}
	return seq, nil
}
