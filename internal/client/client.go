// Package client talks to the analysis server over HTTP and WebSocket.
package client

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

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/internal/model"
)

// Event mirrors handler.WSEvent for client-side deserialization.
type Event struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// StatusError is returned for any response with a status of 400 or above.
type StatusError struct {
	Method, Path string
	Code         int
	Body         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client is an authenticated client for one server.
type Client struct {
	baseURL  string
	token    string
	wsConn   *websocket.Conn
	events   chan Event
	httpC    *http.Client
	mu       sync.Mutex
	closedWS bool
}

// New creates a client that sends token as its bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		events:  make(chan Event, 64),
		// Analysis runs inside the request, so no client-wide timeout.
		httpC: &http.Client{},
	}
}

// RunAnalysis asks for a comparison against a guest AI level.
func (c *Client) RunAnalysis(ctx context.Context, difficulty string) (*model.AnalysisResponse, error) {
	var resp model.AnalysisResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/ai/analysis", model.AnalysisRequest{GuestAIDifficulty: difficulty}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQTable fetches the policy summary of one side.
func (c *Client) GetQTable(ctx context.Context, player string) (*model.QTableResponse, error) {
	var resp model.QTableResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/q-table/"+url.PathEscape(player), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartTraining starts a training job on the server.
func (c *Client) StartTraining(ctx context.Context, req model.TrainingRequest) (*model.TrainingStatus, error) {
	var st model.TrainingStatus
	if err := c.do(ctx, http.MethodPost, "/api/v1/ai/training", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// TrainingStatus fetches the status of a side's most recent job.
func (c *Client) TrainingStatus(ctx context.Context, player string) (*model.TrainingStatus, error) {
	var st model.TrainingStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/training/"+url.PathEscape(player), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CancelTraining stops a side's running job.
func (c *Client) CancelTraining(ctx context.Context, player string) (*model.TrainingStatus, error) {
	var st model.TrainingStatus
	if err := c.do(ctx, http.MethodDelete, "/api/v1/ai/training/"+url.PathEscape(player), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListPolicies lists the policies saved on the server.
func (c *Client) ListPolicies(ctx context.Context) (*model.PolicyListResponse, error) {
	var resp model.PolicyListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/policies", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConnectWS opens a WebSocket connection and starts listening for events.
func (c *Client) ConnectWS(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/v1/ws?token=" + url.QueryEscape(c.token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("ws dial: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("ws dial: %w", err)
	}
	c.wsConn = conn

	go c.readWSLoop()
	return nil
}

// Subscribe sends a subscribe message for the given channel.
func (c *Client) Subscribe(channel string) error {
	msg := map[string]string{"action": "subscribe", "channel": channel}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsConn.WriteJSON(msg)
}

// Events returns the channel of incoming WebSocket events. It is closed
// when the connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// CloseWS closes the WebSocket connection.
func (c *Client) CloseWS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wsConn != nil && !c.closedWS {
		c.closedWS = true
		c.wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wsConn.Close()
	}
}

func (c *Client) readWSLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closedWS
			c.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Msg("WS read error")
			}
			return
		}
		// The server may batch several events into one frame, newline separated
		for _, part := range bytes.Split(msg, []byte{'\n'}) {
			if len(bytes.TrimSpace(part)) == 0 {
				continue
			}
			var event Event
			if err := json.Unmarshal(part, &event); err != nil {
				log.Debug().Err(err).Msg("WS decode error")
				continue
			}
			c.events <- event
		}
	}
}

// do sends payload as JSON, if non-nil, and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
