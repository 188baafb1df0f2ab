package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DepositEvent is one confirmed deposit observed on-chain by the indexer.
// SpawnAmount buys the player's starting mass; WorldAmount funds pellets.
type DepositEvent struct {
	ID          string    `json:"id"`
	ServerID    string    `json:"server_id"`
	Player      string    `json:"player"`
	SpawnAmount int64     `json:"spawn_amount"`
	WorldAmount int64     `json:"world_amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExitEvent is one confirmed ticket redemption observed on-chain.
type ExitEvent struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"server_id"`
	SessionID string    `json:"session_id"`
	Player    string    `json:"player"`
	Payout    int64     `json:"payout"`
	Timestamp time.Time `json:"timestamp"`
}

// Client reads the chain indexer's paged event feeds. Each page carries an
// opaque cursor; passing it back resumes after the last event delivered.
type Client struct {
	baseURL    string
	serverID   string
	pageSize   int
	httpClient *http.Client
}

func NewClient(baseURL, serverID string, pageSize int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serverID:   serverID,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type depositPage struct {
	Events     []DepositEvent `json:"events"`
	NextCursor string         `json:"next_cursor"`
}

type exitPage struct {
	Events     []ExitEvent `json:"events"`
	NextCursor string      `json:"next_cursor"`
}

// Deposits fetches the next page of deposit events after cursor. An empty
// cursor starts from the beginning of the feed.
func (c *Client) Deposits(ctx context.Context, cursor string) ([]DepositEvent, string, error) {
	var page depositPage
	if err := c.getPage(ctx, "/v1/deposits", cursor, &page); err != nil {
		return nil, "", err
	}
	return page.Events, page.NextCursor, nil
}

// Exits fetches the next page of confirmed exit events after cursor.
func (c *Client) Exits(ctx context.Context, cursor string) ([]ExitEvent, string, error) {
	var page exitPage
	if err := c.getPage(ctx, "/v1/exits", cursor, &page); err != nil {
		return nil, "", err
	}
	return page.Events, page.NextCursor, nil
}

func (c *Client) getPage(ctx context.Context, path, cursor string, out interface{}) error {
	q := url.Values{}
	q.Set("server_id", c.serverID)
	q.Set("limit", fmt.Sprintf("%d", c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("feed request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode feed page: %w", err)
	}
	return nil
}
