package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/pkg/logger"
)

// Client consumes the marketplace backend's broadcast-state endpoint.
// The record it returns is authoritative for "is this broadcast live";
// the console only ever reads it.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type broadcastStateResponse struct {
	Status string        `json:"status"`
	Data   broadcastData `json:"data"`
}

type broadcastData struct {
	IsLive           bool                    `json:"is_live"`
	VideoID          string                  `json:"video_id"`
	CurrentCar       *domain.CarInfo         `json:"current_car"`
	CurrentAuction   *domain.AuctionSnapshot `json:"current_auction"`
	ViewersCount     int                     `json:"viewers_count"`
	BiddersCount     int                     `json:"bidders_count"`
	ActiveBroadcasts []string                `json:"active_broadcasts"`
}

func (c *Client) FetchBroadcastState(ctx context.Context) (*domain.BroadcastRecord, error) {
	url := c.baseURL + "/broadcast/state"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broadcast state request failed: %s", resp.Status)
	}

	var payload broadcastStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode broadcast state: %w", err)
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("broadcast state returned status %q", payload.Status)
	}

	return &domain.BroadcastRecord{
		IsLive:           payload.Data.IsLive,
		VideoID:          payload.Data.VideoID,
		CurrentCar:       payload.Data.CurrentCar,
		CurrentAuction:   payload.Data.CurrentAuction,
		ViewersCount:     payload.Data.ViewersCount,
		BiddersCount:     payload.Data.BiddersCount,
		ActiveBroadcasts: payload.Data.ActiveBroadcasts,
	}, nil
}
