package equipment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

type memoryRepo struct {
	assets map[int64]Equipment
	nextID int64
	seq    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{assets: make(map[int64]Equipment)}
}

func (r *memoryRepo) Create(ctx context.Context, eq Equipment) (Equipment, error) {
	r.seq++
	r.nextID++
	eq.ID = r.nextID
	eq.AssetCode = fmt.Sprintf("EQ-%05d", r.seq)
	r.assets[eq.ID] = eq
	return eq, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Equipment, error) {
	eq, ok := r.assets[id]
	if !ok {
		return Equipment{}, ErrNotFound
	}
	return eq, nil
}

func (r *memoryRepo) GetByAssetCode(ctx context.Context, code string) (Equipment, error) {
	for _, eq := range r.assets {
		if eq.AssetCode == code {
			return eq, nil
		}
	}
	return Equipment{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Equipment, int, error) {
	matched := []Equipment{}
	for _, eq := range r.assets {
		if filter.Status != "" && eq.Status != filter.Status {
			continue
		}
		matched = append(matched, eq)
	}
	return matched, len(matched), nil
}

func (r *memoryRepo) Update(ctx context.Context, eq Equipment) error {
	if _, ok := r.assets[eq.ID]; !ok {
		return ErrNotFound
	}
	r.assets[eq.ID] = eq
	return nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	eq, ok := r.assets[id]
	if !ok {
		return ErrNotFound
	}
	eq.Status = status
	r.assets[id] = eq
	return nil
}

func TestCreateAssignsAssetCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{Name: "Conveyor 1"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Name: "Compressor 2"})
	require.NoError(t, err)

	require.Equal(t, "EQ-00001", first.AssetCode)
	require.Equal(t, "EQ-00002", second.AssetCode)
	require.Equal(t, StatusOperational, first.Status)

	_, err = svc.Create(ctx, CreateInput{Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetStatusValidatesTransitions(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	eq, err := svc.Create(ctx, CreateInput{Name: "Pump 4"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, eq.ID, StatusDown, 1)
	require.NoError(t, err)
	require.Equal(t, StatusDown, updated.Status)

	_, err = svc.SetStatus(ctx, eq.ID, Status("BROKEN"), 1)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SetStatus(ctx, 999, StatusDown, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestExistsResolvesReferences(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	eq, err := svc.Create(ctx, CreateInput{Name: "Boiler"})
	require.NoError(t, err)

	require.NoError(t, svc.Exists(ctx, eq.ID))
	require.ErrorIs(t, svc.Exists(ctx, 12345), ErrNotFound)
}
