package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-cookie-auth/users"
	"github.com/rs/zerolog"
)

// Wire names shared with the auth service.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	HeaderAuthReason   = "X-Auth-Reason"

	ReasonTokenMissing = "TOKEN_MISSING"
	ReasonTokenExpired = "TOKEN_EXPIRED"
	ReasonTokenInvalid = "TOKEN_INVALID"
	ReasonUserNotFound = "USER_NOT_FOUND"

	pathLogin        = "/login"
	pathRegister     = "/register"
	pathRefreshToken = "/refresh-token"
	pathLogout       = "/logout"
	pathLoggedInUser = "/logged-in-user"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response decoded from the service's error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%d %s/%s: %s", e.StatusCode, e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// Client talks to the auth service (directly or through the gateway) with cookie
// credentials and renews the access token transparently.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	coord          *Coordinator
	onExpired      func(error)
	refreshTimeout time.Duration
	log            zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport. A cookie jar is added if it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// WithRefreshTimeout bounds the shared POST /refresh-token exchange.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = timeout
	}
}

// WithSessionExpiredHook is called once whenever a refresh fails, after the local
// cookies have been discarded. Hosts typically route to their login page here.
func WithSessionExpiredHook(hook func(error)) Option {
	return func(c *Client) {
		c.onExpired = hook
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[client New] invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[client New] base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:        u,
		refreshTimeout: DefaultRefreshTimeout,
		log:            zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("[client New] cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	c.coord = NewCoordinator(c.refresh,
		WithTimeout(c.refreshTimeout),
		WithCoordinatorLogger(c.log),
		WithSessionExpired(c.sessionExpired),
	)
	return c, nil
}

// Do sends req through the refresh coordinator. The body is buffered so the request
// can be replayed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("[client Do] read body: %w", err)
		}
	}

	call := func(ctx context.Context) (*http.Response, error) {
		attempt := req.Clone(ctx)
		if body != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(body))
			attempt.ContentLength = int64(len(body))
			attempt.GetBody = func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(body)), nil
			}
		}
		return c.http.Do(attempt)
	}
	return c.coord.Execute(ctx, call)
}

// NewRequest builds a request for path relative to the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("[client NewRequest] encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Get issues a guarded GET and decodes a 2xx JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.send(ctx, http.MethodPost, path, body, out)
}

type userEnvelope struct {
	Message string         `json:"message"`
	User    users.Identity `json:"user"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (c *Client) Login(ctx context.Context, username, password string) (*users.Identity, error) {
	var env userEnvelope
	if err := c.Post(ctx, pathLogin, credentials{Username: username, Password: password}, &env); err != nil {
		return nil, err
	}
	return &env.User, nil
}

func (c *Client) Register(ctx context.Context, username, password, role string) (*users.Identity, error) {
	var env userEnvelope
	if err := c.Post(ctx, pathRegister, credentials{Username: username, Password: password, Role: role}, &env); err != nil {
		return nil, err
	}
	return &env.User, nil
}

func (c *Client) LoggedInUser(ctx context.Context) (*users.Identity, error) {
	var env userEnvelope
	if err := c.Get(ctx, pathLoggedInUser, &env); err != nil {
		return nil, err
	}
	return &env.User, nil
}

// Logout asks the service to clear the cookies and drops them locally either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Post(ctx, pathLogout, nil, nil)
	c.clearCookies()
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[client] decode %s %s: %w", method, path, err)
	}
	return nil
}

// refresh is the coordinator's Refresher. It bypasses the coordinator.
func (c *Client) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathRefreshToken), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("[client refresh] %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) sessionExpired(err error) {
	c.clearCookies()
	c.log.Info().Err(err).Msg("session expired")
	if c.onExpired != nil {
		c.onExpired(err)
	}
}

func (c *Client) clearCookies() {
	root := &url.URL{Scheme: c.baseURL.Scheme, Host: c.baseURL.Host, Path: "/"}
	c.http.Jar.SetCookies(root, []*http.Cookie{
		{Name: AccessTokenCookie, Path: "/", MaxAge: -1},
		{Name: RefreshTokenCookie, Path: "/", MaxAge: -1},
	})
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Reason == "" {
		apiErr.Reason = resp.Header.Get(HeaderAuthReason)
	}
	return apiErr
}

// IsSessionExpired reports whether err means the caller has to log in again: a failed
// refresh, or a 401 that rejected the session itself. Bad credentials on Login are not
// a session failure.
func IsSessionExpired(err error) bool {
	if errors.Is(err, ErrRefreshFailed) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return false
	}
	switch apiErr.Reason {
	case ReasonTokenMissing, ReasonTokenExpired, ReasonTokenInvalid, ReasonUserNotFound:
		return true
	}
	return false
}
