package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractLocation(t *testing.T) {
	cases := map[string]string{
		"issue near Connaught Place today":        "Connaught Place",
		"garbage pile at HAUZ KHAS, please clean": "Hauz Khas",
		"overflow in sarojini nagar market area":  "Sarojini Nagar Market", // longest match wins
		"no locality mentioned at all":            "",
		"":                                        "",
		"rohiniX is not a whole word match":       "",
	}
	for text, want := range cases {
		if got := ExtractLocation(text); got != want {
			t.Fatalf("ExtractLocation(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestReverseGeocodeLadder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"neighbourhood":"Shahpur Jat","city":"Delhi"}}`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, time.Second)
	if got := n.ReverseGeocode(context.Background(), 28.6, 77.2); got != "Shahpur Jat" {
		t.Fatalf("unexpected locality: %q", got)
	}
}

func TestReverseGeocodeDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, time.Second)
	if got := n.ReverseGeocode(context.Background(), 28.6, 77.2); got != "" {
		t.Fatalf("expected empty result on server error, got %q", got)
	}

	// Unreachable endpoint must also degrade, not propagate.
	dead := NewNominatim("http://127.0.0.1:1", 200*time.Millisecond)
	if got := dead.ReverseGeocode(context.Background(), 28.6, 77.2); got != "" {
		t.Fatalf("expected empty result on dial failure, got %q", got)
	}
}

func TestResolvePolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver(NewNominatim(srv.URL, time.Second))
	ctx := context.Background()

	if got := r.Resolve(ctx, "overflowing bin near Connaught Place", &Coords{Lat: 1, Lng: 2}); got != "Connaught Place" {
		t.Fatalf("text match should win, got %q", got)
	}
	if got := r.Resolve(ctx, "no place here", &Coords{Lat: 28.6, Lng: 77.2}); got != "28.6,77.2" {
		t.Fatalf("expected lat,lng fallback, got %q", got)
	}
	if got := r.Resolve(ctx, "no place here", nil); got != Unknown {
		t.Fatalf("expected %q, got %q", Unknown, got)
	}
}
