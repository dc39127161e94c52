// Package backend is the REST client for the chat backend.
package backend

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

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// DefaultTimeout bounds every REST call.
const DefaultTimeout = 15 * time.Second

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// StaticToken is a fixed token.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zerolog.Logger
	// OnUnauthorized is called whenever the backend answers 401.
	OnUnauthorized func()
}

// Client calls the chat backend REST API. Every failure it returns is a *core.CoreError.
type Client struct {
	baseURL        string
	timeout        time.Duration
	http           *http.Client
	tokens         TokenSource
	mapper         *proto.Mapper
	log            *zerolog.Logger
	onUnauthorized func()
}

// New constructs a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Tokens == nil {
		opts.Tokens = StaticToken("")
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		timeout:        opts.Timeout,
		http:           opts.HTTPClient,
		tokens:         opts.Tokens,
		mapper:         proto.NewMapper(opts.Logger),
		log:            opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}
}

// Mapper returns the wire mapper used by the client.
func (c *Client) Mapper() *proto.Mapper {
	return c.mapper
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return core.NewError(core.KindMalformedResponse, op, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, op, method, path, "application/json", reader, out)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return core.NewError(core.KindNetworkFailure, op, "create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return core.NewError(core.KindNetworkFailure, op, "request timed out", err)
		}
		return core.NewError(core.KindNetworkFailure, op, "", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode >= 300 {
		return c.statusError(op, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("malformed backend response")
		return core.NewError(core.KindMalformedResponse, op, "malformed response", err)
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	msg := ""
	if json.Unmarshal(raw, &eb) == nil {
		msg = eb.Error
		if msg == "" {
			msg = eb.Message
		}
	}

	kind := core.KindNetworkFailure
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = core.KindNotFound
	case http.StatusForbidden:
		kind = core.KindForbidden
	case http.StatusConflict:
		kind = core.KindConflict
	case http.StatusUnauthorized:
		kind = core.KindUnauthorized
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}

	ce := core.NewError(kind, op, msg, fmt.Errorf("status %d", resp.StatusCode))
	ce.Status = resp.StatusCode
	return ce
}
