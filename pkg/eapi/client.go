// Package eapi is the command channel to the switch: CLI command batches sent
// as JSON-RPC "executeCmds" requests over HTTPS.
//
// Each Send is one HTTP request. The device executes the commands in order and
// reports a result per command; a rejected command shows up as an error code in
// its own result and does not fail the request. Failures of the channel itself
// (dial, TLS, timeout, HTTP status, malformed reply) are returned as
// *util.TransportError.
//
// A Client holds no per-request state and builds a fresh request body for every
// call, but it is owned by one Session and is not meant to be shared.
package eapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// Default client configuration values
const (
	DefaultScheme  = "https"
	DefaultPath    = "/command-api"
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 32 << 20
)

// Format selects how the device renders each command's output.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Client sends command batches to one device.
type Client struct {
	Host    string
	Port    int
	Scheme  string
	Path    string
	Timeout time.Duration

	username string
	password string

	// TLS verification is on unless explicitly disabled.
	insecureSkipVerify bool

	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient creates a client for host. No connection is made until Send.
func NewClient(host string, opts ...func(*Client)) *Client {
	c := &Client{
		Host:    host,
		Scheme:  DefaultScheme,
		Path:    DefaultPath,
		Timeout: DefaultTimeout,
		log:     util.WithDevice(host),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: c.insecureSkipVerify}, //nolint:gosec // opt-in only
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	if c.insecureSkipVerify {
		c.log.Warn("TLS certificate verification disabled for command channel")
	}
	return c
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	u := url.URL{Scheme: c.Scheme, Host: host, Path: c.Path}
	return u.String()
}

// Send submits cmds as one batch and returns one Result per command, in order.
// When the device returns fewer results than commands, the missing ones are
// reported as errors so that callers never read a skipped command as accepted.
func (c *Client) Send(ctx context.Context, cmds []string, format Format) ([]Result, error) {
	body, err := newRequest(cmds, format).bytes()
	if err != nil {
		return nil, util.NewTransportError("executeCmds", 0, err)
	}

	c.log.WithFields(logrus.Fields{"format": format, "cmds": cmds}).Debug("executeCmds")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, util.NewTransportError("executeCmds", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, util.NewTransportError("executeCmds", 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, util.NewTransportError("executeCmds", resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, util.NewTransportError("executeCmds", resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	results, err := ParseResponse(data, cmds)
	if err != nil {
		return nil, util.NewTransportError("executeCmds", resp.StatusCode, err)
	}

	c.log.WithFields(logrus.Fields{
		"duration": time.Since(start).Round(time.Millisecond),
		"errors":   CountErrors(results),
	}).Debug("executeCmds done")
	return results, nil
}

// Run sends cmds with JSON output.
func (c *Client) Run(ctx context.Context, cmds ...string) ([]Result, error) {
	return c.Send(ctx, cmds, FormatJSON)
}

// RunText sends cmds with raw text output.
func (c *Client) RunText(ctx context.Context, cmds ...string) ([]Result, error) {
	return c.Send(ctx, cmds, FormatText)
}

// ParseResponse decodes an executeCmds reply into one Result per command. A
// reply carrying an "error" member with per-command data (devices that stop at
// the first failing command) is decoded like a normal result list; any other
// "error" is a channel failure.
func ParseResponse(data []byte, cmds []string) ([]Result, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("malformed JSON-RPC response")
	}
	reply := gjson.ParseBytes(data)

	entries := reply.Get("result")
	if rpcErr := reply.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		if perCmd := rpcErr.Get("data"); perCmd.IsArray() {
			entries = perCmd
		} else {
			return nil, fmt.Errorf("JSON-RPC error %d: %s", rpcErr.Get("code").Int(), rpcErr.Get("message").String())
		}
	}
	if !entries.IsArray() {
		return nil, errors.New("JSON-RPC response has no result list")
	}

	items := entries.Array()
	results := make([]Result, len(cmds))
	for i, cmd := range cmds {
		if i >= len(items) {
			results[i] = Result{Command: cmd, ErrorCode: -1, ErrorMessage: "no result returned", hasError: true}
			continue
		}
		results[i] = newResult(cmd, items[i])
	}
	return results, nil
}

// ============================================================================
// Options
// ============================================================================

// Credentials sets the HTTP basic auth username and password.
func Credentials(username, password string) func(*Client) {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// Port sets the HTTPS port (default: scheme default)
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// Scheme sets the URL scheme; "http" is only useful against lab devices.
func Scheme(scheme string) func(*Client) {
	return func(c *Client) {
		c.Scheme = scheme
	}
}

// Timeout bounds each request (default: 60s).
func Timeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// InsecureSkipVerify disables TLS certificate verification.
//
// WARNING: only for lab devices with self-signed certificates.
func InsecureSkipVerify(skip bool) func(*Client) {
	return func(c *Client) {
		c.insecureSkipVerify = skip
	}
}

// HTTPClient replaces the underlying HTTP client (tests, custom transports).
// Timeout and InsecureSkipVerify are not applied to a supplied client.
func HTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Logger sets the log entry used for request tracing.
func Logger(entry *logrus.Entry) func(*Client) {
	return func(c *Client) {
		if entry != nil {
			c.log = entry
		}
	}
}
