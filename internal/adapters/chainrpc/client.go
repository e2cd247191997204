// Package chainrpc implements the chain-observer port against a node's HTTP
// API. The endpoint is expected to answer
// GET {base}/tx/{hash}/confirmations with {"confirmations": n}.
package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Confirmations(ctx context.Context, txHash string) (int, error) {
	endpoint := fmt.Sprintf("%s/tx/%s/confirmations", c.base, url.PathEscape(txHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("observer returned %s", resp.Status)
	}
	var body struct {
		Confirmations int `json:"confirmations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("observer response: %w", err)
	}
	return body.Confirmations, nil
}
