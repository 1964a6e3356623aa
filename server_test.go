package main

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWithServerHeader(t *testing.T) {
	t.Parallel()

	called := false
	h := withServerHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	if rec.Code != http.StatusOK || called {
		t.Fatalf("HEAD / = %d, handler called = %v", rec.Code, called)
	}
	if got := rec.Header().Get("Server"); got != "jigsaw-map/"+CompileVersion {
		t.Fatalf("Server = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
	if rec.Code != http.StatusTeapot || !called {
		t.Fatalf("GET /api = %d, handler called = %v", rec.Code, called)
	}
}

func TestAccessLogCompresses(t *testing.T) {
	t.Parallel()

	body := "jigsaw"
	h := accessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != body {
		t.Fatalf("body = %q", got)
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" a:9092, ,b:9092,")
	if diff := cmp.Diff([]string{"a:9092", "b:9092"}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if splitList("") != nil {
		t.Fatal("empty list should be nil")
	}
}
