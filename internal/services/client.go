package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vgen/internal/shared"
)

const (
	headerAPIKey    = "apikey"
	headerRequestID = "X-Request-ID"
)

// ClientConfig configures a [Client].
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestsPerSec float64 // zero disables rate limiting
	Logger         *log.Logger
}

// Client is the HTTP transport shared by the gateway, catalog and storage collaborators.
//
// Every request carries the project api key and a fresh request id; authenticated calls add a bearer token.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient creates a [Client]; missing fields fall back to [http.DefaultClient] and a stderr logger.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	if cfg.RequestsPerSec > 0 {
		burst := max(1, int(cfg.RequestsPerSec))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}
	return c
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is a non-2xx response. It unwraps to [shared.ErrGateway].
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", shared.ErrGateway, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", shared.ErrGateway, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return shared.ErrGateway }

// IsNotFound reports whether err is a 404 [StatusError].
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// newRequest builds a request with the project headers set.
func (c *Client) newRequest(ctx context.Context, method, path, credential string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerRequestID, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	return req, nil
}

// do sends req after waiting on the limiter.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrGateway, err)
	}
	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "request_id", req.Header.Get(headerRequestID))
	return resp, nil
}

// doJSON sends body encoded as JSON and decodes a 2xx response into result.
//
// A nil body sends no payload; a nil result discards the response.
func (c *Client) doJSON(ctx context.Context, method, path, credential string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, credential, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, result)
}

// doUpload streams r as the request body with the given content type.
func (c *Client) doUpload(ctx context.Context, method, path, credential, contentType string, r io.Reader, result any) error {
	req, err := c.newRequest(ctx, method, path, credential, r)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: malformed response: %v", shared.ErrGateway, err)
		}
	}
	return nil
}

// decodeError reads the backend's {message|error|detail} error body.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Detail           string `json:"detail"`
		Msg              string `json:"msg"`
	}
	se := &StatusError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, msg := range []string{body.Message, body.ErrorDescription, body.Error, body.Detail, body.Msg} {
			if msg != "" {
				se.Message = msg
				break
			}
		}
	} else if text := strings.TrimSpace(string(data)); text != "" && len(text) < 512 {
		se.Message = text
	}
	return se
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Raw performs an arbitrary request and returns the response without interpreting the status code.
//
// Used by the `api` debugging commands.
func (c *Client) Raw(ctx context.Context, method, path, credential string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, credential, body)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       payload,
	}

	var jsonData any
	if err := json.Unmarshal(payload, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
