package slotclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a slotcore settlement API client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	token      string
}

// NewClient creates a new settlement API client
func NewClient(config *ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// NewClientWithHTTPClient creates a new settlement API client with a custom HTTP client
func NewClientWithHTTPClient(config *ClientConfig, httpClient *http.Client) *Client {
	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// SetToken sets the bearer token for authenticated calls. Login sets it
// automatically.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.token
}

// doRequest performs an HTTP request and unwraps the response envelope
func (c *Client) doRequest(ctx context.Context, method, endpoint string, reqBody, result interface{}) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	retryCount := c.config.RetryCount
	if retryCount == 0 {
		retryCount = 1
	}

	url := c.config.BaseURL + endpoint
	var resp *http.Response
	var lastErr error
	for i := 0; i < retryCount; i++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		break
	}

	if resp == nil {
		return fmt.Errorf("request failed after %d retries: %w", retryCount, lastErr)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if env.Error != nil {
		return env.Error
	}

	if result != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

// Health checks the server and RNG health
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var result HealthResult
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register creates a new player account
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	var result RegisterResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login authenticates a player and stores the session token on the client
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	req := map[string]string{
		"username": username,
		"password": password,
	}

	var result LoginResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &result); err != nil {
		return nil, err
	}

	c.token = result.Token
	return &result, nil
}

// Logout terminates the current session and clears the stored token
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// Balance retrieves the player's balance and promotional pools
func (c *Client) Balance(ctx context.Context) (*BalanceResult, error) {
	var result BalanceResult
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/wallet/balance", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Games retrieves the game catalogue
func (c *Client) Games(ctx context.Context) ([]GameInfo, error) {
	var result []GameInfo
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/games", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Spin settles one round and returns the materialized diff
func (c *Client) Spin(ctx context.Context, req *SpinRequest) (*SpinResult, error) {
	var result SpinResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/rounds/spin", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History retrieves the player's most recent rounds, newest first
func (c *Client) History(ctx context.Context, limit int) ([]RoundLogEntry, error) {
	endpoint := "/api/v1/rounds/history"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}

	var result []RoundLogEntry
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
