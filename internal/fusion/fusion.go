// Package fusion implements the outbound HTTP client for the fusion
// collaborator interface (spec §6 "Fusion collaborator"). Only the
// request/response schemas are this core's contract; the collaborator's
// fusion logic is external.
package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pcl-radar/internal/types"
)

// TrackReport is one outbound track in a POST /data body.
type TrackReport struct {
	ID       uint64     `json:"id"`
	Position [3]float64 `json:"position"`
	SNR      float64    `json:"snr"`
}

// DataRequest is the POST /data body.
type DataRequest struct {
	Tracks []TrackReport `json:"tracks"`
}

// FusedTarget is one entry of the GET /tracks response.
type FusedTarget struct {
	ID       uint64     `json:"id"`
	Position [3]float64 `json:"position"`
}

// TracksResponse is the GET /tracks body.
type TracksResponse struct {
	Tracks []FusedTarget `json:"tracks"`
}

// Client posts local track state to a fusion collaborator and can query it
// back for fused targets.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client bound to baseURL (spec §6 fusion.url).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// ReportTracks converts tracker snapshots to the wire schema (range/doppler
// mapped to a flat x/y plane, z=0) and posts them. SNR is not populated and
// is always sent as 0.
func (c *Client) ReportTracks(ctx context.Context, tracks []types.TrackSnapshot) error {
	req := DataRequest{Tracks: make([]TrackReport, len(tracks))}
	for i, t := range tracks {
		req.Tracks[i] = TrackReport{
			ID:       t.ID,
			Position: [3]float64{t.Range, t.Doppler, 0},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("fusion: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fusion: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fusion: post /data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fusion: post /data: status %s", resp.Status)
	}
	return nil
}

// FusedTracks fetches the collaborator's current fused target list.
func (c *Client) FusedTracks(ctx context.Context) ([]FusedTarget, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tracks", nil)
	if err != nil {
		return nil, fmt.Errorf("fusion: build request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fusion: get /tracks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fusion: get /tracks: status %s", resp.Status)
	}

	var out TracksResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fusion: decode response: %w", err)
	}
	return out.Tracks, nil
}
