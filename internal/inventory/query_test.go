package inventory

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newCachedService(t *testing.T) (*Service, *memoryRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, NewAlertCache(client, time.Minute))
	return svc, repo, mr
}

func TestReorderAlertsCachedUntilPosting(t *testing.T) {
	svc, repo, _ := newCachedService(t)
	ctx := context.Background()

	item := mustCreate(t, svc, "Fan Belt", "7.25", 5)
	if _, err := svc.Purchase(ctx, TransactionInput{ItemID: item.ID, Quantity: 3}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	callsAfterSetup := repo.belowReorderCalls

	alerts, err := svc.ReorderAlerts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if !alerts[0].BelowReorder {
		t.Fatalf("expected alert flagged below reorder")
	}
	if repo.belowReorderCalls != callsAfterSetup+1 {
		t.Fatalf("expected one repository read, got %d", repo.belowReorderCalls-callsAfterSetup)
	}

	// second read is served from cache
	if _, err := svc.ReorderAlerts(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.belowReorderCalls != callsAfterSetup+1 {
		t.Fatalf("expected cached read, repository was hit again")
	}

	// a posting bumps the version, the next read sees fresh data
	if _, err := svc.Purchase(ctx, TransactionInput{ItemID: item.ID, Quantity: 10}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	alerts, err = svc.ReorderAlerts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts after restock, got %d", len(alerts))
	}
	if repo.belowReorderCalls != callsAfterSetup+2 {
		t.Fatalf("expected repository reload after invalidation")
	}
}

func TestReorderAlertsSurviveRedisOutage(t *testing.T) {
	svc, repo, mr := newCachedService(t)
	ctx := context.Background()

	item := mustCreate(t, svc, "Oil Seal", "3.80", 4)
	if _, err := svc.Purchase(ctx, TransactionInput{ItemID: item.ID, Quantity: 2}); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	mr.Close()

	alerts, err := svc.ReorderAlerts(ctx)
	if err != nil {
		t.Fatalf("expected degraded read to succeed, got %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert from direct read, got %d", len(alerts))
	}
	if repo.belowReorderCalls == 0 {
		t.Fatalf("expected repository fallback")
	}
}

func TestValuationTotalsActiveStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	first := mustCreate(t, svc, "Contactor", "40.00", 1)
	second := mustCreate(t, svc, "Relay", "10.00", 1)
	if _, err := svc.Purchase(ctx, TransactionInput{ItemID: first.ID, Quantity: 2}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.Purchase(ctx, TransactionInput{ItemID: second.ID, Quantity: 3}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := svc.DeactivateItem(ctx, second.ID, 0); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	summary, err := svc.Valuation(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ItemCount != 1 {
		t.Fatalf("expected 1 active item, got %d", summary.ItemCount)
	}
	if !summary.TotalValue.Equal(decimal.RequireFromString("80.00")) {
		t.Fatalf("expected total 80.00, got %s", summary.TotalValue)
	}
}
