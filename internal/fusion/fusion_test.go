package fusion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pcl-radar/internal/types"
)

func TestReportTracksPostsExpectedSchema(t *testing.T) {
	t.Parallel()
	var captured DataRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/data" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	tracks := []types.TrackSnapshot{{ID: 7, Range: 10, Doppler: -2}}
	if err := c.ReportTracks(context.Background(), tracks); err != nil {
		t.Fatal(err)
	}
	if len(captured.Tracks) != 1 || captured.Tracks[0].ID != 7 {
		t.Fatalf("captured = %+v", captured)
	}
}

func TestFusedTracksParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(TracksResponse{Tracks: []FusedTarget{{ID: 1, Position: [3]float64{1, 2, 3}}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	targets, err := c.FusedTracks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].ID != 1 {
		t.Fatalf("targets = %+v", targets)
	}
}

func TestReportTracksReturnsErrorOnServerFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.ReportTracks(context.Background(), nil); err == nil {
		t.Fatal("expected an error on 500 response")
	}
}
