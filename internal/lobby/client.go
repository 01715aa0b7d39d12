package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client is the HTTP client of the lobby service. It implements both
// Reporter and Validator.
type Client struct {
	baseURL    string
	token      string
	serverID   string
	timeout    time.Duration
	httpClient *http.Client
	log        *zerolog.Logger

	inflight sync.WaitGroup
}

// NewClient builds a lobby client for baseURL. token is sent as a bearer
// credential on every call.
func NewClient(baseURL, token, serverID string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse lobby url: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		serverID:   serverID,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}, nil
}

// ReportRoomState posts the room status in the background.
func (c *Client) ReportRoomState(status RoomStatus) {
	if status.ServerID == "" {
		status.ServerID = c.serverID
	}
	c.fire("/servers/"+url.PathEscape(c.serverID)+"/state", status)
}

// ReportDeparture posts a departure in the background.
func (c *Client) ReportDeparture(dep Departure) {
	if dep.ServerID == "" {
		dep.ServerID = c.serverID
	}
	c.fire("/servers/"+url.PathEscape(c.serverID)+"/departures", dep)
}

func (c *Client) fire(path string, body any) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		resp, err := c.post(ctx, path, body)
		if err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("lobby notification failed")
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("lobby notification rejected")
		}
	}()
}

type validateRequest struct {
	Token string `json:"token"`
}

// ValidateSession asks the lobby who owns token.
func (c *Client) ValidateSession(ctx context.Context, token string) (Identity, error) {
	resp, err := c.post(ctx, "/sessions/validate", validateRequest{Token: token})
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrRejected
	case resp.StatusCode != http.StatusOK:
		return Identity{}, fmt.Errorf("validate session: unexpected status %d", resp.StatusCode)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return ident, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

// Close waits for in-flight notifications.
func (c *Client) Close() {
	c.inflight.Wait()
}

var (
	_ Reporter  = (*Client)(nil)
	_ Validator = (*Client)(nil)
)
