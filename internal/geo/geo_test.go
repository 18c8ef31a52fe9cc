package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/hously/config"
)

func TestNormalizePlaceExpandsAbbreviations(t *testing.T) {
	cases := map[string]string{
		// The expansion already names Singapore, so no suffix is appended.
		"NUS":      "National University of Singapore",
		"nus":      "National University of Singapore",
		"amk":      "Ang Mo Kio, Singapore",
		"Tampines": "Tampines, Singapore",
		"Raffles Place, Singapore": "Raffles Place, Singapore",
		"":                         "",
	}
	for in, want := range cases {
		if got := NormalizePlace(in); got != want {
			t.Errorf("NormalizePlace(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMode(t *testing.T) {
	if got := normalizeMode("Transit "); got != "transit" {
		t.Fatalf("mode = %q", got)
	}
	if got := normalizeMode("hoverboard"); got != "driving" {
		t.Fatalf("unknown mode = %q, want driving default", got)
	}
}

func TestStripTags(t *testing.T) {
	in := `Turn <b>left</b> onto <div style="x">Orchard Road</div>`
	if got := stripTags(in); got != "Turn left onto Orchard Road" {
		t.Fatalf("got %q", got)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MapsConfig{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		Region:       "sg",
		SearchRadius: 1000,
		MaxResults:   2,
		Timeout:      2 * time.Second,
	})
}

func TestGeocodeCachesResults(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("address"); got != "Ang Mo Kio, Singapore" {
			t.Errorf("address = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "OK",
			"results": []map[string]interface{}{{
				"formatted_address": "Ang Mo Kio, Singapore",
				"geometry":          map[string]interface{}{"location": map[string]float64{"lat": 1.37, "lng": 103.84}},
			}},
		})
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		loc, err := c.Geocode(ctx, "amk")
		if err != nil {
			t.Fatal(err)
		}
		if loc.Lat != 1.37 {
			t.Fatalf("lat = %f", loc.Lat)
		}
	}
	if calls != 1 {
		t.Fatalf("geocode calls = %d, want 1 (cached)", calls)
	}
}

func TestCommuteZeroResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "OK",
			"rows": []map[string]interface{}{{
				"elements": []map[string]interface{}{{"status": "ZERO_RESULTS"}},
			}},
		})
	})
	_, err := c.Commute(context.Background(), "here", "there", "transit")
	if err != ErrNoResults {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestNearbyCapsResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geocode/json":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "OK",
				"results": []map[string]interface{}{{
					"formatted_address": "Bishan, Singapore",
					"geometry":          map[string]interface{}{"location": map[string]float64{"lat": 1.35, "lng": 103.85}},
				}},
			})
		case "/place/nearbysearch/json":
			if got := r.URL.Query().Get("radius"); got != "1000" {
				t.Errorf("radius = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "OK",
				"results": []map[string]interface{}{
					{"name": "School A", "vicinity": "1 Bishan St"},
					{"name": "School B", "vicinity": "2 Bishan St"},
					{"name": "School C", "vicinity": "3 Bishan St"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	places, err := c.Nearby(context.Background(), "Bishan", "primary school")
	if err != nil {
		t.Fatal(err)
	}
	if len(places) != 2 {
		t.Fatalf("places = %d, want cap of 2", len(places))
	}
	if places[0].Name != "School A" {
		t.Fatalf("first place = %+v", places[0])
	}
}

func TestAPIErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "REQUEST_DENIED"})
	})
	if _, err := c.Geocode(context.Background(), "Bedok"); err == nil {
		t.Fatal("expected error for REQUEST_DENIED")
	}
}
