package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentdesk/internal/thread"
	"agentdesk/pkg/logger"
)

// DefaultTimeout bounds non-streaming requests and stream response headers.
const DefaultTimeout = 30 * time.Second

// Config configures the HTTP client.
type Config struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP implementation of Transport.
type Client struct {
	apiURL       string
	apiKey       string
	httpClient   *http.Client // non-streaming requests, overall timeout
	streamClient *http.Client // run streams, header timeout only
	log          zerolog.Logger
}

// NewClient creates a client for the agent server at cfg.APIURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		apiURL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		// http.Client.Timeout includes body read time and would kill long runs.
		streamClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		log: logger.Named("transport"),
	}
}

// APIURL returns the server base URL.
func (c *Client) APIURL() string {
	return c.apiURL
}

// CreateThread creates a thread on the server.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode thread: %v", ErrTransport, err)
	}
	if out.ThreadID == "" {
		return "", fmt.Errorf("%w: server returned no thread id", ErrTransport)
	}
	return out.ThreadID, nil
}

// Stream starts a run and returns its event stream. The stream stays bound to ctx:
// cancelling ctx ends it.
func (c *Client) Stream(ctx context.Context, threadID string, req RunRequest) (Stream, error) {
	if threadID == "" {
		return nil, ErrNoThread
	}
	path := "/threads/" + url.PathEscape(threadID) + "/runs/stream"

	resp, err := c.do(ctx, c.streamClient, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("thread_id", threadID).
		Str("content_type", resp.Header.Get("Content-Type")).
		Bool("resume", req.Command != nil).
		Msg("Run stream opened")

	return &httpStream{
		body:   resp.Body,
		reader: newSSEReader(resp.Body),
		log:    c.log,
	}, nil
}

// Cancel cancels a run on the server.
func (c *Client) Cancel(ctx context.Context, threadID, runID string) error {
	if threadID == "" {
		return ErrNoThread
	}
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/cancel"
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Info probes the server.
func (c *Client) Info(ctx context.Context) (*ServerInfo, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/info", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode info: %v", ErrTransport, err)
	}
	return &info, nil
}

// do sends a JSON request and maps non-2xx responses to *RequestError.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		reqErr := mapRequestError(resp.StatusCode, data)
		c.log.Debug().Err(reqErr).Str("method", method).Str("path", path).Msg("Request rejected")
		return nil, reqErr
	}
	return resp, nil
}

// httpStream decodes a run's SSE body.
type httpStream struct {
	body      io.ReadCloser
	reader    *sseReader
	log       zerolog.Logger
	closeOnce sync.Once
	closeErr  error
}

// Next returns the next decoded event. Undecodable frames come back as
// EventUnknown; only read failures are errors.
func (s *httpStream) Next() (thread.Event, error) {
	frame, err := s.reader.Next()
	if err != nil {
		if err == io.EOF {
			return thread.Event{}, io.EOF
		}
		return thread.Event{}, fmt.Errorf("%w: read stream: %w", ErrTransport, err)
	}
	return DecodeFrame(frame, s.log), nil
}

func (s *httpStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
