package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"RAGBot/internal/config"
	"RAGBot/internal/initial"
	"RAGBot/internal/modules/rag/application/dto/request"
	"RAGBot/internal/modules/rag/application/dto/respond"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIngest struct{}

func (stubIngest) Upload(context.Context, string, []request.UploadFile) (*respond.UploadRespond, error) {
	return &respond.UploadRespond{Message: "ok"}, nil
}

type panicQuery struct{}

func (panicQuery) Query(context.Context, request.QueryRequest) (*respond.QueryRespond, error) {
	panic("boom")
}

type stubAdmin struct{}

func (stubAdmin) DeleteUserData(context.Context, request.DeleteUserDataRequest) (*respond.MessageRespond, error) {
	return &respond.MessageRespond{Message: "deleted"}, nil
}

func (stubAdmin) DeleteCollection(context.Context) (*respond.MessageRespond, error) {
	return &respond.MessageRespond{Message: "dropped"}, nil
}

func (stubAdmin) Health(context.Context) *respond.HealthRespond {
	return &respond.HealthRespond{Status: "ok"}
}

func newTestRouter() http.Handler {
	conf := config.Default()
	conf.MainConfig.Debug = true
	return NewRouter(&initial.Components{
		Conf:      conf,
		IngestSvc: stubIngest{},
		QuerySvc:  panicQuery{},
		AdminSvc:  stubAdmin{},
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, ok := body["error"].(string)
	require.True(t, ok, "body: %s", w.Body.String())
	return msg
}

func TestRouter_Healthz(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route not found: GET /nope", decodeError(t, w))
}

func TestRouter_PanicBecomes500(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query/", strings.NewReader(`{"question":"q","user_id":"u"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w), "boom")
}

func TestRouter_AdminRoutes(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/delete_user_data/", strings.NewReader(`{"user_id":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"deleted"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/delete_collection/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"dropped"}`, w.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ragbot_http_requests_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/query/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
