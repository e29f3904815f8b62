package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"smartlauncher/internal/models"
)

const DefaultHTTPTimeout = 2 * time.Minute

// RemoteError is a structured {success:false, error} answer from the daemon.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("launcher: %s (status %d)", e.Message, e.Status)
}

// Client talks to the launcher daemon over its HTTP RPC endpoint and the
// per-tab websocket.
type Client struct {
	baseURL    *url.URL
	token      string
	origin     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

type ClientOption func(*Client)

// WithToken sends the shared secret as a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithOrigin sets the Origin header, as a destination page would.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) { c.origin = origin }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse launcher url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("launcher url must be http(s): %s", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call performs one RPC round trip. A success:false answer becomes a
// *RemoteError, or ErrRetryFromExtension for a missing session.
func (c *Client) Call(ctx context.Context, req models.Request) (*models.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/api/rpc", "application/json", bytes.NewReader(body))
}

// Upload sends files as multipart form data to /api/transfers.
func (c *Client) Upload(ctx context.Context, contentType string, body io.Reader) (*models.Response, error) {
	return c.do(ctx, http.MethodPost, "/api/transfers", contentType, body)
}

func (c *Client) GetStoredFiles(ctx context.Context, sessionID string) (*models.StoredRecord, error) {
	resp, err := c.Call(ctx, models.Request{Action: models.ActionGetStoredFiles, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrRetryFromExtension
	}
	return resp.Data, nil
}

func (c *Client) Cleanup(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), "", nil)
	return err
}

func (c *Client) SiteReady(ctx context.Context, pageURL string) error {
	_, err := c.Call(ctx, models.Request{Action: models.ActionSiteReady, URL: pageURL})
	return err
}

// Listen attaches to a tab channel and answers every pushed message with
// handle's ack until ctx ends or the daemon closes the channel.
func (c *Client) Listen(ctx context.Context, tabID string, handle func(models.TabMessage) models.TabAck) error {
	wsURL := *c.baseURL
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/api/tabs/" + url.PathEscape(tabID) + "/ws"

	conn, _, err := c.dialer.DialContext(ctx, wsURL.String(), c.headers())
	if err != nil {
		return fmt.Errorf("dial tab channel: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg models.TabMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read tab message: %w", err)
		}
		ack := handle(msg)
		if err := conn.WriteJSON(ack); err != nil {
			return fmt.Errorf("write ack: %w", err)
		}
		log.Printf("bridge acked %s on tab %s (success=%v)", msg.SessionID, tabID, ack.Success)
	}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.origin != "" {
		h.Set("Origin", c.origin)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*models.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers() {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode launcher response (%s): %w", resp.Status, err)
	}
	if !out.Success {
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrRetryFromExtension
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: out.Error}
	}
	return &out, nil
}

// Serve feeds every message pushed to tabID through b.Receive.
func (b *Bridge) Serve(ctx context.Context, c *Client, tabID string) error {
	return c.Listen(ctx, tabID, func(msg models.TabMessage) models.TabAck {
		return b.Receive(ctx, msg)
	})
}
