package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflict"))
	})
	h := chimiddleware.RequestID(Logger(zap.New(core))(next))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auctions/a1/bids", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusConflict) {
		t.Fatalf("status field = %v, want %d", fields["status"], http.StatusConflict)
	}
	if fields["size"] != int64(len("conflict")) {
		t.Fatalf("size field = %v, want %d", fields["size"], len("conflict"))
	}
	if fields["requestID"] == "" {
		t.Fatal("requestID field is empty")
	}
}
