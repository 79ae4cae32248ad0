package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newReportsServer serves body on the first request and an empty page on
// every later one.
func newReportsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	var served atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if served.Swap(true) {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}
