package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officeflow/internal/collection"
	"officeflow/internal/core"
	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/pkg/domain"
)

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	svc    *core.Service
	router *gin.Engine
	reg    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	clock := core.ClockFunc(func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC) })
	svc, err := core.NewService(t.TempDir(), core.WithClock(clock), core.WithMetricsRecorder(metrics))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	users := []domain.Record{
		{"id": "alice", "name": "Alice"},
		{"id": "bob", "name": "Bob"},
		{"id": "carol", "name": "Carol", "status": "suspended"},
		{"id": "admin", "name": "Admin", "roles": []any{core.AdminRole("d1")}},
	}
	require.NoError(t, svc.Collections().Replace(context.Background(), collection.Department("d1"), domain.CollectionUsers, users))
	return &fixture{svc: svc, router: NewRouter(svc, nil, reg), reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(userIDHeader, user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *fixture) createDocument(t *testing.T, user, title string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/departments/d1/documents", user, map[string]any{"title": title, "content": "body"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]any](t, w)["id"].(string)
}

func TestAPIRequiresUserHeader(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/departments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode[map[string]any](t, w)["code"])
}

func TestCreateAndMoveDocument(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "alice", "Budget memo")
	assert.Equal(t, "DOC_2024_0001", id)

	w := f.do(t, http.MethodPost, "/api/departments/d1/documents/"+id+"/move", "alice",
		map[string]any{"target": "bob", "status": "pending", "due_date": "2024-04-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	doc := decode[map[string]any](t, w)
	assert.Equal(t, "bob", doc["current_owner"])
	assert.Equal(t, "pending", doc["status"])
	assert.Equal(t, "2024-04-01", doc["due_date"])

	w = f.do(t, http.MethodGet, "/api/departments/d1/inbox", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[[]map[string]any](t, w)
	require.Len(t, inbox, 1)
	assert.Equal(t, id, inbox[0]["id"])

	w = f.do(t, http.MethodGet, "/api/departments/d1/outbox", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "alice", "Tender")

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"missing document", http.MethodGet, "/api/departments/d1/documents/DOC_2024_0099", "alice", nil, http.StatusNotFound, "not_found"},
		{"move by non owner", http.MethodPost, "/api/departments/d1/documents/" + id + "/move", "bob", map[string]any{"target": "alice"}, http.StatusForbidden, "forbidden"},
		{"suspended target", http.MethodPost, "/api/departments/d1/documents/" + id + "/move", "alice", map[string]any{"target": "carol"}, http.StatusNotFound, "not_found"},
		{"malformed due date", http.MethodPost, "/api/departments/d1/documents/" + id + "/move", "alice", map[string]any{"target": "bob", "due_date": "01/04/2024"}, http.StatusUnprocessableEntity, "validation_failure"},
		{"missing title", http.MethodPost, "/api/departments/d1/documents", "alice", map[string]any{"content": "x"}, http.StatusBadRequest, "bad_request"},
		{"pull by non admin", http.MethodPost, "/api/departments/d1/documents/" + id + "/pull", "alice", nil, http.StatusForbidden, "forbidden"},
		{"log by non admin", http.MethodGet, "/api/departments/d1/log", "alice", nil, http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, decode[map[string]any](t, w)["code"])
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/departments", "alice", nil)
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/departments", nil)
	req.Header.Set(userIDHeader, "alice")
	req.Header.Set(requestIDHeader, supplied)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, supplied, rec.Header().Get(requestIDHeader))
}

func TestHealthReflectsStorage(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, jsonfile.Write(filepath.Join(f.svc.Root(), "system", "global_config.json"), map[string]any{"office": "District"}))
	w = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "alice", "Counted")
	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `officeflow_operations_total{operation="create_document",status="success"} 1`)
}

func (f *fixture) upload(t *testing.T, id, user, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = part.Write(content)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/departments/d1/documents/"+id+"/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(userIDHeader, user)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAttachmentRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "alice", "Scanned letter")

	w := f.upload(t, id, "alice", "scan.pdf", []byte("%PDF-1.4 scanned contents"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	path := decode[map[string]any](t, w)["path"].(string)
	assert.True(t, strings.HasSuffix(path, "_scan.pdf"), path)

	w = f.do(t, http.MethodGet, "/api/departments/d1/documents/"+id+"/attachments?path="+path, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 scanned contents", w.Body.String())

	w = f.do(t, http.MethodDelete, "/api/departments/d1/documents/"+id+"/attachments?path="+path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, http.MethodDelete, "/api/departments/d1/documents/"+id+"/attachments?path="+path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAttachmentRejectsUnlistedExtension(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "alice", "Scanned letter")

	w := f.upload(t, id, "alice", "scan.txt", []byte("plain text"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "validation_failure", decode[map[string]any](t, w)["code"])

	w = f.do(t, http.MethodGet, "/api/departments/d1/documents/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string]any](t, w)["attachments"])
}

func TestAdminMayMoveDocumentTheyDoNotHold(t *testing.T) {
	f := newFixture(t)
	id := f.createDocument(t, "alice", "Escalated")

	w := f.do(t, http.MethodPost, "/api/departments/d1/documents/"+id+"/move", "admin", map[string]any{"target": "bob"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "bob", decode[map[string]any](t, w)["current_owner"])

	w = f.do(t, http.MethodPost, "/api/departments/d1/documents/DOC_2024_0099/move", "admin", map[string]any{"target": "bob"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterCSVRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.createDocument(t, "alice", "Register entry")

	w := f.do(t, http.MethodGet, "/api/departments/d1/register.csv", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/departments/d1/register.csv", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "DOC_2024_0001")
}

func TestDakRegistrationAndConversion(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/departments/d1/dak", "admin", map[string]any{
		"direction":     "incoming",
		"sender":        "Collectorate",
		"subject":       "Flood relief",
		"received_date": "2024-03-14",
		"physical_mode": "post",
		"assigned_to":   "alice",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ref := decode[map[string]any](t, w)["reference_no"].(string)

	w = f.do(t, http.MethodGet, "/api/departments/d1/dak?direction=incoming", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = f.do(t, http.MethodPost, "/api/departments/d1/dak/convert", "admin", map[string]any{"reference": ref})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[map[string]any](t, w)
	assert.Equal(t, "Flood relief", doc["title"])
}
