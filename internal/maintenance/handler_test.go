package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-cmms/meridian-cmms/internal/platform/httpx"
)

type fakeEnqueuer struct {
	calls  int
	limit  int
	dryRun bool
	err    error
}

func (f *fakeEnqueuer) EnqueueGenerate(_ context.Context, limit int, dryRun bool) (string, error) {
	f.calls++
	f.limit = limit
	f.dryRun = dryRun
	if f.err != nil {
		return "", f.err
	}
	return "task-123", nil
}

func newTestRouter(svc *Service, enq GenerateEnqueuer) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(svc, enq).MountRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGenerateEndpointSync(t *testing.T) {
	svc, repo, wo := newTestService()
	seedDue(t, repo, nil)
	seedDue(t, repo, func(s *PMSchedule) {
		s.Title = "Not due yet"
		s.NextDueAt = time.Now().UTC().Add(30 * 24 * time.Hour)
	})
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/generate", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Generated)
	require.False(t, summary.DryRun)
	require.Len(t, wo.created, 1)
}

func TestGenerateEndpointEmptyBodyMeansPlainRun(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Zero(t, summary.Processed)
	require.False(t, summary.DryRun)
}

func TestGenerateEndpointRejectsBadJSON(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/generate", `{oops`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Invalid Request", problem.Title)
}

func TestGenerateEndpointDryRun(t *testing.T) {
	svc, repo, wo := newTestService()
	sched := seedDue(t, repo, nil)
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/generate", `{"dryRun":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.True(t, summary.DryRun)
	require.Equal(t, ResultPlanned, summary.Results[0].Status)
	require.Empty(t, wo.created)

	stored, err := repo.Get(context.Background(), sched.ID)
	require.NoError(t, err)
	require.Nil(t, stored.LastGeneratedAt)
}

func TestGenerateEndpointAsync(t *testing.T) {
	svc, repo, wo := newTestService()
	seedDue(t, repo, nil)
	enq := &fakeEnqueuer{}
	router := newTestRouter(svc, enq)

	rec := postJSON(t, router, "/generate", `{"async":true,"limit":25,"dryRun":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "task-123", resp["taskId"])

	require.Equal(t, 1, enq.calls)
	require.Equal(t, 25, enq.limit)
	require.True(t, enq.dryRun)
	require.Empty(t, wo.created, "async request must not run the generator inline")
}

func TestGenerateEndpointAsyncWithoutQueue(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/generate", `{"async":true}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Queue Unavailable", problem.Title)
}

func TestGenerateEndpointDueFetchFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.dueErr = errors.New("connection refused")
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/generate", `{}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusBadGateway, problem.Status)
}

func TestScheduleEndpointsRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	body := `{
		"equipmentId": 3,
		"title": "Quarterly belt inspection",
		"frequency": "QUARTERLY",
		"nextDueAt": "2026-10-01T00:00:00Z",
		"checklist": [{"title": "Check tension"}]
	}`
	rec := postJSON(t, router, "/schedules", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created PMSchedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "PM-00001", created.Code)
	require.True(t, created.Active)

	req := httptest.NewRequest(http.MethodGet, "/schedules/1", nil)
	get := httptest.NewRecorder()
	router.ServeHTTP(get, req)
	require.Equal(t, http.StatusOK, get.Code)

	req = httptest.NewRequest(http.MethodGet, "/schedules/999", nil)
	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, req)
	require.Equal(t, http.StatusNotFound, missing.Code)

	req = httptest.NewRequest(http.MethodGet, "/schedules/banana", nil)
	bad := httptest.NewRecorder()
	router.ServeHTTP(bad, req)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCreateScheduleEndpointValidation(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	rec := postJSON(t, router, "/schedules", `{"equipmentId": 3, "frequency": "WEEKLY"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Validation Failed", problem.Title)
	require.Contains(t, problem.Fields, "Title")
	require.Contains(t, problem.Fields, "NextDueAt")
}
