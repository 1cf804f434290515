package listing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func itemServer(t *testing.T, item Item) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/items/"+item.ID {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(item); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
}

func TestItemOwnedBy(t *testing.T) {
	ts := itemServer(t, Item{ID: "car-1", SellerID: "seller", Status: StatusAuction})
	defer ts.Close()

	client := NewClient(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tests := []struct {
		name   string
		itemID string
		seller string
		want   bool
	}{
		{name: "owner", itemID: "car-1", seller: "seller", want: true},
		{name: "another seller", itemID: "car-1", seller: "intruder", want: false},
		{name: "unknown item", itemID: "car-2", seller: "seller", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.ItemOwnedBy(ctx, tt.itemID, tt.seller)
			if err != nil {
				t.Fatalf("ItemOwnedBy error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ItemOwnedBy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemOwnedBy_NotOnAuction(t *testing.T) {
	ts := itemServer(t, Item{ID: "car-1", SellerID: "seller", Status: "draft"})
	defer ts.Close()

	client := NewClient(strings.TrimPrefix(ts.URL, "http://"), zap.NewNop())

	got, err := client.ItemOwnedBy(context.Background(), "car-1", "seller")
	if err != nil {
		t.Fatalf("ItemOwnedBy error: %v", err)
	}
	if got {
		t.Fatal("item outside auction must not be eligible")
	}
}

func TestGetItem_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Item{ID: "car-1", SellerID: "seller", Status: StatusAuction})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zap.NewNop())

	item, err := client.GetItem(context.Background(), "car-1")
	if err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	if item == nil || item.SellerID != "seller" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestGetItem_BadRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zap.NewNop())

	if _, err := client.GetItem(context.Background(), "car-1"); err == nil {
		t.Fatal("expected error for 400")
	}
}
