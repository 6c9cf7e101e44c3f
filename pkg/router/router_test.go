package router

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func echo(name string) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, name+":"+Param(r, 0)+":"+Param(r, 1))
	}
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouterMatching(t *testing.T) {
	r := New().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.GET("/api/v1/extractions/*/results", echo("results"))
	r.GET("/api/v1/extractions/*", echo("get"))
	r.POST("/api/v1/extractions", echo("create"))
	r.GET("/api/v1/jobs/*/files/*", echo("file"))

	tests := []struct {
		method, path string
		status       int
		body         string
	}{
		{http.MethodGet, "/api/v1/extractions/abc/results", http.StatusOK, "results:abc:"},
		{http.MethodGet, "/api/v1/extractions/abc", http.StatusOK, "get:abc:"},
		{http.MethodPost, "/api/v1/extractions", http.StatusOK, "create::"},
		{http.MethodGet, "/api/v1/jobs/j1/files/mengen.csv", http.StatusOK, "file:j1:mengen.csv"},
		{http.MethodGet, "/api/v1/jobs/j1/files/sub/mengen.csv", http.StatusOK, "file:j1:sub/mengen.csv"},
		{http.MethodDelete, "/api/v1/extractions/abc", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound, ""},
		{http.MethodGet, "/api/v1/extractions//results", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRouterMountsComeFirst(t *testing.T) {
	r := New()
	r.GET("/metrics", echo("route"))
	r.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "mounted")
	}))
	assert.Equal(t, "mounted", serve(r, http.MethodGet, "/metrics").Body.String())
}

func TestRouterAccessLog(t *testing.T) {
	var buf bytes.Buffer
	r := New().WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	r.GET("/ok", echo("ok"))

	serve(r, http.MethodGet, "/ok")
	serve(r, http.MethodGet, "/missing")
	assert.Contains(t, buf.String(), "level=INFO msg=\"http request\" method=GET path=/ok status=200")
	assert.Contains(t, buf.String(), "level=WARN msg=\"http request\" method=GET path=/missing status=404")
}

func TestRoutes(t *testing.T) {
	r := New()
	r.GET("/a", echo("a"))
	r.PUT("/a", echo("a"))
	r.PATCH("/a", echo("a"))
	r.DELETE("/a", echo("a"))
	assert.Equal(t, []string{"GET:/a", "PUT:/a", "PATCH:/a", "DELETE:/a"}, r.Routes())
	assert.Equal(t, "", Param(httptest.NewRequest(http.MethodGet, "/a", nil), 0))
}
