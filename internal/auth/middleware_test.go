package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

func TestRequireAPIKey(t *testing.T) {
	svc := NewService(newMemoryKeyRepo())
	token, _, err := svc.Mint(context.Background(), MintInput{Name: "probe", ActorID: 5})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var seenActor int64
	protected := RequireAPIKey(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenActor = shared.ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("bearer auth: got status %d", rec.Code)
	}
	if seenActor != 5 {
		t.Fatalf("actor not propagated, got %d", seenActor)
	}

	// the alternate header works the same way
	req = httptest.NewRequest(http.MethodGet, "/api/inventory/items", nil)
	req.Header.Set("X-API-Key", token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("header auth: got status %d", rec.Code)
	}
}

func TestRequireAPIKeyRejects(t *testing.T) {
	svc := NewService(newMemoryKeyRepo())
	protected := RequireAPIKey(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/items", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: got status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/inventory/items", nil)
	req.Header.Set("Authorization", "Bearer mk_bogus_bogus")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus key: got status %d", rec.Code)
	}
}
