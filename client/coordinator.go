package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultRefreshTimeout = 10 * time.Second

// Call issues one request. It is invoked again, unchanged, when the request is
// replayed after a refresh, so it must be safe to call more than once.
type Call func(ctx context.Context) (*http.Response, error)

// Refresher exchanges the refresh credential for a new access credential.
type Refresher func(ctx context.Context) error

// ErrRefreshFailed wraps the refresher's error for every call rejected because the
// session could not be renewed.
var ErrRefreshFailed = errors.New("session refresh failed")

type result struct {
	resp *http.Response
	err  error
}

type waiter struct {
	ctx    context.Context
	call   Call
	result chan result
}

// Coordinator makes concurrent calls that fail with an expired access token share a
// single refresh. The first such call runs the refresher; the rest queue behind it and
// are replayed in the order they queued once it settles. A call is retried at most once.
type Coordinator struct {
	refresh   Refresher
	onExpired func(error)
	timeout   time.Duration
	log       zerolog.Logger

	mu         sync.Mutex
	inFlight   bool
	waiters    []*waiter
	generation uint64
}

type CoordinatorOption func(*Coordinator)

// WithSessionExpired registers a hook run once per failed refresh.
func WithSessionExpired(hook func(error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onExpired = hook
	}
}

// WithTimeout bounds each refresh exchange.
func WithTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

func WithCoordinatorLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = logger
	}
}

func NewCoordinator(refresh Refresher, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		refresh: refresh,
		timeout: DefaultRefreshTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Execute runs call and, if it is rejected because the access token expired,
// refreshes once and replays it. Any other response is returned unchanged.
func (c *Coordinator) Execute(ctx context.Context, call Call) (*http.Response, error) {
	c.mu.Lock()
	issuedAt := c.generation
	c.mu.Unlock()

	resp, err := call(ctx)
	if err != nil || !IsTokenExpired(resp) {
		return resp, err
	}
	discard(resp)

	w := &waiter{ctx: ctx, call: call, result: make(chan result, 1)}

	c.mu.Lock()
	if c.generation != issuedAt && !c.inFlight {
		// a refresh finished after this call went out
		c.mu.Unlock()
		c.log.Debug().Msg("access token renewed meanwhile, replaying")
		return call(ctx)
	}
	c.waiters = append(c.waiters, w)
	if c.inFlight {
		c.mu.Unlock()
		return c.wait(w)
	}
	c.inFlight = true
	c.mu.Unlock()

	go c.runRefresh(ctx)
	return c.wait(w)
}

func (c *Coordinator) runRefresh(ctx context.Context) {
	// the exchange is shared, so the leader's cancellation must not abort it
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	err := c.refresh(rctx)
	cancel()

	c.mu.Lock()
	queue := c.waiters
	c.waiters = nil
	c.inFlight = false
	if err == nil {
		c.generation++
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Int("waiters", len(queue)).Msg("refresh failed, rejecting queued requests")
		err = errors.Join(ErrRefreshFailed, err)
		for _, w := range queue {
			w.result <- result{err: err}
		}
		if c.onExpired != nil {
			c.onExpired(err)
		}
		return
	}

	c.log.Debug().Int("waiters", len(queue)).Msg("refresh succeeded, replaying queued requests")
	for _, w := range queue {
		if w.ctx.Err() != nil {
			w.result <- result{err: w.ctx.Err()}
			continue
		}
		resp, err := w.call(w.ctx)
		w.result <- result{resp: resp, err: err}
	}
}

func (c *Coordinator) wait(w *waiter) (*http.Response, error) {
	select {
	case r := <-w.result:
		return r.resp, r.err
	case <-w.ctx.Done():
		// the slot is still settled; close whatever it produces
		go func() {
			if r := <-w.result; r.resp != nil {
				discard(r.resp)
			}
		}()
		return nil, w.ctx.Err()
	}
}

// IsTokenExpired reports whether resp is a 401 whose reason is TOKEN_EXPIRED. The reason
// is read from the X-Auth-Reason header, falling back to the JSON body; the body is
// restored for the caller.
func IsTokenExpired(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized && ReasonOf(resp) == ReasonTokenExpired
}

// ReasonOf returns the AUTH failure reason of resp, or "" if there is none.
func ReasonOf(resp *http.Response) string {
	if reason := resp.Header.Get(HeaderAuthReason); reason != "" {
		return reason
	}
	if resp.Body == nil || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var e struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Reason
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
