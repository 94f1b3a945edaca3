// Package auth implements the HTTP side channel: server config discovery and
// challenge-response login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/luciancaetano/roomwire"
)

const (
	configMarker      = "var config = "
	assertionPrefix   = "]"
	failurePrefix     = ";;"
	registeredMarker  = ";"
	heavyLoadNotice   = "heavy load"
	minResponseLength = 50
	websocketPath     = "/showdown/websocket"
)

// Config defines the side channel endpoints
type Config struct {
	// ConfigURL serves a script containing "var config = {...};"
	ConfigURL string
	// LoginURL is the action endpoint used for login and assertions
	LoginURL string
	// HTTPClient is used for every request. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// Client talks to the login server.
type Client struct {
	configURL  string
	loginURL   string
	httpClient *http.Client
}

// New creates a side channel client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		configURL:  cfg.ConfigURL,
		loginURL:   cfg.LoginURL,
		httpClient: hc,
	}
}

// ServerConfig is the published endpoint description.
type ServerConfig struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port port   `json:"port"`
}

// port accepts both numeric and string encodings.
type port int

func (p *port) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", s, err)
	}
	*p = port(n)
	return nil
}

// WebsocketURL derives the socket endpoint. Port 443 selects TLS.
func (s *ServerConfig) WebsocketURL() string {
	scheme := "ws"
	hostport := s.Host
	switch s.Port {
	case 0:
	case 443:
		scheme = "wss"
	default:
		hostport = fmt.Sprintf("%s:%d", s.Host, s.Port)
	}
	return scheme + "://" + hostport + websocketPath
}

// Discover fetches and parses the server config.
func (c *Client) Discover(ctx context.Context) (*ServerConfig, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth.Discover: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("auth.Discover: %s: HTTP %d", roomwire.ErrConfigDiscovery, status)
	}
	cfg, err := ParseServerConfig(body)
	if err != nil {
		return nil, fmt.Errorf("auth.Discover: %w", err)
	}
	return cfg, nil
}

// ParseServerConfig extracts the config assignment from a script body. The
// value is either a JSON object or a JSON string holding one.
func ParseServerConfig(body string) (*ServerConfig, error) {
	idx := strings.Index(body, configMarker)
	if idx < 0 {
		return nil, fmt.Errorf("%s: no config assignment", roomwire.ErrConfigDiscovery)
	}
	value := body[idx+len(configMarker):]
	if end := strings.IndexByte(value, '\n'); end >= 0 {
		value = value[:end]
	}
	value = strings.TrimSuffix(strings.TrimSpace(value), ";")

	raw := []byte(value)
	if strings.HasPrefix(value, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%s: %w", roomwire.ErrConfigDiscovery, err)
		}
		raw = []byte(inner)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", roomwire.ErrConfigDiscovery, err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%s: config has no host", roomwire.ErrConfigDiscovery)
	}
	return &cfg, nil
}

type loginResponse struct {
	ActionSuccess bool   `json:"actionsuccess"`
	Assertion     string `json:"assertion"`
	CurUser       struct {
		LoggedIn bool   `json:"loggedin"`
		Username string `json:"username"`
		UserID   string `json:"userid"`
	} `json:"curuser"`
}

// Login obtains an assertion for name. With a password the credentials are
// POSTed; without one an unregistered-name assertion is requested.
func (c *Client) Login(ctx context.Context, name, password, challstr string) (string, error) {
	if password == "" {
		return c.getAssertion(ctx, name, challstr)
	}

	form := url.Values{}
	form.Set("act", "login")
	form.Set("name", name)
	form.Set("pass", password)
	form.Set("challstr", challstr)

	body, status, err := c.do(ctx, http.MethodPost, c.loginURL, form)
	if err != nil {
		return "", &roomwire.LoginError{Reason: "request failed", Retryable: true, Err: err}
	}
	if status != http.StatusOK {
		return "", &roomwire.LoginError{Reason: fmt.Sprintf("HTTP %d", status), Retryable: status >= 500}
	}
	return ParseLoginResponse(body)
}

// ParseLoginResponse validates a "]<json>" login reply and returns its
// assertion.
func ParseLoginResponse(body string) (string, error) {
	if strings.Contains(body, heavyLoadNotice) {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginHeavyLoad, Retryable: true}
	}
	if len(body) < minResponseLength {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginShortResponse, Retryable: true}
	}
	if !strings.HasPrefix(body, assertionPrefix) {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginMalformed}
	}

	var resp loginResponse
	if err := json.Unmarshal([]byte(body[len(assertionPrefix):]), &resp); err != nil {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginMalformed, Err: err}
	}
	if !resp.ActionSuccess {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginRejected}
	}
	if strings.HasPrefix(resp.Assertion, failurePrefix) {
		return "", &roomwire.LoginError{Reason: strings.TrimPrefix(resp.Assertion, failurePrefix)}
	}
	if resp.Assertion == "" {
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginMalformed, Err: errors.New("no assertion")}
	}
	return resp.Assertion, nil
}

func (c *Client) getAssertion(ctx context.Context, name, challstr string) (string, error) {
	q := url.Values{}
	q.Set("act", "getassertion")
	q.Set("userid", roomwire.ToID(name))
	q.Set("challstr", challstr)

	target := c.loginURL
	if strings.Contains(target, "?") {
		target += "&" + q.Encode()
	} else {
		target += "?" + q.Encode()
	}

	body, status, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &roomwire.LoginError{Reason: "request failed", Retryable: true, Err: err}
	}
	if status != http.StatusOK {
		return "", &roomwire.LoginError{Reason: fmt.Sprintf("HTTP %d", status), Retryable: status >= 500}
	}

	body = strings.TrimSpace(body)
	switch {
	case strings.Contains(body, heavyLoadNotice):
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginHeavyLoad, Retryable: true}
	case strings.HasPrefix(body, failurePrefix):
		return "", &roomwire.LoginError{Reason: strings.TrimPrefix(body, failurePrefix)}
	case strings.HasPrefix(body, registeredMarker):
		return "", &roomwire.LoginError{Reason: "name is registered and needs a password"}
	case len(body) < minResponseLength:
		return "", &roomwire.LoginError{Reason: roomwire.ErrLoginShortResponse, Retryable: true}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, target string, form url.Values) (string, int, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return "", 0, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(data), resp.StatusCode, nil
}
