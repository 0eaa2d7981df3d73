package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewPooled(t *testing.T) {
	rt := New(Options{MaxIdleConnsPerHost: 16, MaxConnsPerHost: 32})
	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("New() = %T, want *http.Transport", rt)
	}
	if tr.MaxIdleConnsPerHost != 16 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 16", tr.MaxIdleConnsPerHost)
	}
	if tr.MaxConnsPerHost != 32 {
		t.Errorf("MaxConnsPerHost = %d, want 32", tr.MaxConnsPerHost)
	}
	if tr.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want default 90s", tr.IdleConnTimeout)
	}
}

func TestChromeTransportPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	rt := New(Options{ChromeTLS: true})
	if _, ok := rt.(*chromeTransport); !ok {
		t.Fatalf("New(ChromeTLS) = %T, want *chromeTransport", rt)
	}

	client := &http.Client{Transport: rt, Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	rt.(*chromeTransport).CloseIdleConnections()
}
