// Package appium talks to an Appium server over the W3C WebDriver protocol
// and manages the server process.
package appium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/automation"
)

// elementKey is the W3C web element identifier.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// Error is a WebDriver error response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdriver %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Is maps "no such element" onto automation.ErrNoSuchElement.
func (e *Error) Is(target error) bool {
	return target == automation.ErrNoSuchElement && e.Code == "no such element"
}

// Client is a WebDriver session client.
type Client struct {
	baseURL   string
	http      *http.Client
	sessionID string
	log       *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(cl *Client) { cl.log = l }
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:4723".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ automation.Driver = (*Client)(nil)

// SessionID returns the active session, or "" before NewSession.
func (c *Client) SessionID() string { return c.sessionID }

// do sends body as JSON and decodes the response's "value" into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	c.log.Debug("webdriver call", zap.String("method", method), zap.String("path", path),
		zap.Int("status", res.StatusCode), zap.Duration("elapsed", time.Since(start)))

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return &Error{Status: res.StatusCode, Code: "unknown error", Message: http.StatusText(res.StatusCode)}
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		werr := &Error{Status: res.StatusCode}
		if err := json.Unmarshal(envelope.Value, werr); err != nil || werr.Code == "" {
			werr.Code = "unknown error"
		}
		return werr
	}
	if out != nil && len(envelope.Value) > 0 {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return fmt.Errorf("decode %s value: %w", path, err)
		}
	}
	return nil
}

func (c *Client) session(path string) (string, error) {
	if c.sessionID == "" {
		return "", errors.New("no active webdriver session")
	}
	return "/session/" + c.sessionID + path, nil
}

// NewSession creates a session with the given capabilities as alwaysMatch.
func (c *Client) NewSession(ctx context.Context, caps map[string]any) error {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	body := map[string]any{"capabilities": map[string]any{"alwaysMatch": caps}}
	if err := c.do(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return err
	}
	if resp.SessionID == "" {
		return errors.New("new session: server returned no session id")
	}
	c.sessionID = resp.SessionID
	c.log.Info("webdriver session created", zap.String("session", c.sessionID))
	return nil
}

// DeleteSession ends the active session. It is a no-op without one.
func (c *Client) DeleteSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	path, _ := c.session("")
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.log.Info("webdriver session deleted", zap.String("session", c.sessionID))
	c.sessionID = ""
	return nil
}

// FindElement returns the element id of the first element matching the
// XPath selector.
func (c *Client) FindElement(ctx context.Context, selector string) (string, error) {
	path, err := c.session("/element")
	if err != nil {
		return "", err
	}
	var ref map[string]string
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"using": "xpath", "value": selector}, &ref); err != nil {
		return "", err
	}
	id := ref[elementKey]
	if id == "" {
		return "", fmt.Errorf("find %s: response has no element reference", selector)
	}
	return id, nil
}

// IsExisting reports whether any element matches the XPath selector.
func (c *Client) IsExisting(ctx context.Context, selector string) (bool, error) {
	path, err := c.session("/elements")
	if err != nil {
		return false, err
	}
	var refs []map[string]string
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"using": "xpath", "value": selector}, &refs); err != nil {
		if errors.Is(err, automation.ErrNoSuchElement) {
			return false, nil
		}
		return false, err
	}
	return len(refs) > 0, nil
}

// Click clicks the first element matching the XPath selector.
func (c *Client) Click(ctx context.Context, selector string) error {
	id, err := c.FindElement(ctx, selector)
	if err != nil {
		return err
	}
	path, err := c.session("/element/" + id + "/click")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, map[string]any{}, nil)
}

// SendKeys types keys into whatever element has focus.
func (c *Client) SendKeys(ctx context.Context, keys string) error {
	path, err := c.session("/actions")
	if err != nil {
		return err
	}
	actions := make([]map[string]string, 0, 2*len(keys))
	for _, r := range keys {
		actions = append(actions,
			map[string]string{"type": "keyDown", "value": string(r)},
			map[string]string{"type": "keyUp", "value": string(r)})
	}
	body := map[string]any{"actions": []map[string]any{{
		"type":    "key",
		"id":      "keyboard",
		"actions": actions,
	}}}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Source returns the page source of the current session.
func (c *Client) Source(ctx context.Context) (string, error) {
	path, err := c.session("/source")
	if err != nil {
		return "", err
	}
	var src string
	if err := c.do(ctx, http.MethodGet, path, nil, &src); err != nil {
		return "", err
	}
	return src, nil
}

// Status reports whether the server is ready to create sessions.
func (c *Client) Status(ctx context.Context) (bool, error) {
	var st struct {
		Ready *bool `json:"ready"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return false, err
	}
	// Appium 1.x omits "ready"; a successful reply means it is up.
	return st.Ready == nil || *st.Ready, nil
}
