package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_Health(t *testing.T) {
	a := newTestApp(t, Config{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status %q", body.Status)
	}
}

func TestHandler_ConvertRejectsBadJSON(t *testing.T) {
	a := newTestApp(t, Config{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/convert", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "validation" {
		t.Fatalf("kind %q", body.Kind)
	}
}

func TestHandler_ConvertRejectsInvalidURL(t *testing.T) {
	a := newTestApp(t, Config{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/convert", "application/json",
		strings.NewReader(`{"url":"ftp://example.com/a"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "validation" {
		t.Fatalf("kind %q", body.Kind)
	}
}

func TestHandler_ConvertReturnsPDF(t *testing.T) {
	bars := barPNG(t, 400, 608)
	article := newArticleServer(t, [][]byte{bars, bars})
	a := newTestApp(t, Config{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	payload, _ := json.Marshal(Request{URL: article.URL + "/article"})
	resp, err := http.Post(srv.URL+"/api/convert", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatal("body is not a PDF")
	}
}

func TestHandler_ConvertMapsFetchFailure(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>no pictures</body></html>`))
	}))
	t.Cleanup(empty.Close)
	a := newTestApp(t, Config{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	payload, _ := json.Marshal(Request{URL: empty.URL})
	resp, err := http.Post(srv.URL+"/api/convert", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != "fetch" {
		t.Fatalf("kind %q", body.Kind)
	}
}
