package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIClient provides HTTP client functionality to query a running gateway
type APIClient struct {
	baseURL    string
	statusPath string
	client     *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, statusPath string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if statusPath == "" {
		statusPath = "/api/status"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		statusPath: statusPath,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable checks if the gateway is running and reachable
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + c.statusPath)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// GetStatus fetches the agent status from the gateway
func (c *APIClient) GetStatus() (map[string]any, error) {
	resp, err := c.client.Get(c.baseURL + c.statusPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("API error: %s", errorResp.Error)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}
