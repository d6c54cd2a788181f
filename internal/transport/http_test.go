package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHTTPTransport_Perform(t *testing.T) {
	var gotMethod, gotPath, gotHeader string
	var gotBody []byte
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Token")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":7}`))
	}))
	defer backend.Close()

	tr := NewHTTP(backend.URL, map[string]string{"X-Token": "secret"}, 5*time.Second, 0, zerolog.Nop())
	defer tr.Close()

	res, err := tr.Perform(context.Background(), "/items", Params{
		"method": "POST",
		"body":   map[string]any{"name": "a"},
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/items" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotHeader != "secret" {
		t.Errorf("X-Token = %q", gotHeader)
	}
	if string(gotBody) != `{"name":"a"}` {
		t.Errorf("body = %s", gotBody)
	}
	if res.Status != http.StatusCreated {
		t.Errorf("status = %d", res.Status)
	}
	if string(res.Bytes()) != `{"id":7}` {
		t.Errorf("payload = %s", res.Bytes())
	}
	if res.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", res.Header.Get("Content-Type"))
	}
}

func TestHTTPTransport_DefaultsToGET(t *testing.T) {
	var gotMethod string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer backend.Close()

	tr := NewHTTP(backend.URL, nil, 5*time.Second, 0, zerolog.Nop())
	defer tr.Close()

	if _, err := tr.Perform(context.Background(), "/items", nil); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", gotMethod)
	}
}

func TestHTTPTransport_AbsoluteTargetSkipsBaseURL(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("direct"))
	}))
	defer backend.Close()

	tr := NewHTTP("http://unreachable.invalid", nil, 5*time.Second, 0, zerolog.Nop())
	defer tr.Close()

	res, err := tr.Perform(context.Background(), backend.URL+"/x", nil)
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}
	if string(res.Bytes()) != "direct" {
		t.Errorf("payload = %s", res.Bytes())
	}
}

func TestHTTPTransport_ContextCancelAborts(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	tr := NewHTTP(backend.URL, nil, 5*time.Second, 0, zerolog.Nop())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := tr.Perform(ctx, "/slow", nil); err == nil {
		t.Error("expected an error after context cancellation")
	}
}

func TestHTTPTransport_BodySizeLimit(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer backend.Close()

	tr := NewHTTP(backend.URL, nil, 5*time.Second, 1024, zerolog.Nop())
	defer tr.Close()

	if _, err := tr.Perform(context.Background(), "/big", nil); err == nil {
		t.Error("expected an error for an oversized response")
	}
}
