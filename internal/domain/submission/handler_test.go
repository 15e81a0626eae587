package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichub/clinichub/internal/platform/auth"
	"github.com/clinichub/clinichub/internal/platform/validate"
)

func newTestServer(env *testEnv) *echo.Echo {
	e := echo.New()
	e.Validator = validate.New()
	g := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(env.engine).Register(g)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_QueueBatch(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 2)
	e := newTestServer(env)

	rec := doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue",
		`{"method":"manual","priority":"high"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var got queueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.QueueItemID == uuid.Nil {
		t.Error("expected the queue item id in the response")
	}
	if got.Batch == nil || got.Batch.Status != StatusQueued {
		t.Errorf("expected queued batch in response, got %+v", got.Batch)
	}

	// Queueing twice conflicts.
	rec = doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue",
		`{"method":"manual"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on double queue, got %d", rec.Code)
	}
}

func TestHandler_QueueBatchRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 1)
	e := newTestServer(env)

	rec := doJSON(e, http.MethodPost, "/api/v1/submission-batches/not-a-uuid/queue", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue",
		`{"priority":"urgent"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad priority, got %d", rec.Code)
	}
}

func TestHandler_UnknownBatchIs404(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	e := newTestServer(env)

	rec := doJSON(e, http.MethodGet,
		"/api/v1/submission-batches/1b4e28ba-2fa1-11d2-883f-0016d3cca427/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RetryOfSubmittedBatchIs409(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 1)
	e := newTestServer(env)

	doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue", `{}`)
	env.drain(t, 1)

	rec := doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/retry", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_StatusIncludesLogAndReceipt(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 3)
	e := newTestServer(env)

	doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue", `{}`)
	env.drain(t, 1)

	rec := doJSON(e, http.MethodGet, "/api/v1/submission-batches/"+b.ID.String()+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view StatusView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != StatusSubmitted {
		t.Errorf("expected submitted, got %s", view.Status)
	}
	if view.ReportCount != 3 {
		t.Errorf("expected report count 3, got %d", view.ReportCount)
	}
	if len(view.Log) == 0 {
		t.Error("expected audit log in status view")
	}
	if view.Receipt == nil {
		t.Fatal("expected receipt in status view")
	}
	if view.Receipt.GovernmentReference == "" {
		t.Error("expected government reference on receipt")
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/submission-batches/"+b.ID.String()+"/receipt", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from receipt endpoint, got %d", rec.Code)
	}
}

func TestHandler_ListBatchesFilters(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	env.seedBatch(t, "2026-03", 1)
	env.seedBatch(t, "2026-04", 1)
	e := newTestServer(env)

	rec := doJSON(e, http.MethodGet, "/api/v1/submission-batches?month=2026-03", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []Batch `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("expected 1 match, got total=%d items=%d", resp.Total, len(resp.Data))
	}
	if resp.Data[0].Month != "2026-03" {
		t.Errorf("expected month 2026-03, got %s", resp.Data[0].Month)
	}
}

func TestHandler_StatisticsAndPeriod(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	e := newTestServer(env)

	rec := doJSON(e, http.MethodGet, "/api/v1/submission-statistics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: expected 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/v1/submission-period", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("period: expected 200, got %d", rec.Code)
	}
	var period struct {
		IsOpen bool `json:"is_open"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &period); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Test clock starts on April 7th, inside the default window.
	if !period.IsOpen {
		t.Error("expected window open on the 7th")
	}
}

func TestHandler_MutationsRequireStaffRole(t *testing.T) {
	env := newTestEnv(t, 5, 0)
	b := env.seedBatch(t, "2026-03", 1)

	e := echo.New()
	e.Validator = validate.New()
	viewer := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "viewer-1")
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"viewer"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	g := e.Group("/api/v1", viewer)
	NewHandler(env.engine).Register(g)

	rec := doJSON(e, http.MethodPost, "/api/v1/submission-batches/"+b.ID.String()+"/queue", `{}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer queueing, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/api/v1/submission-queue/process", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for viewer processing, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodGet, "/api/v1/submission-batches/"+b.ID.String()+"/status", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected reads open to authenticated viewers, got %d", rec.Code)
	}
}
