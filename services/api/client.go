package apisvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/session"
	"github.com/trezcool/lms-portal/core/user"
)

const (
	loginPath     = "/auth/login"
	otpSendPath   = "/auth/otp/send"
	otpVerifyPath = "/auth/otp/verify"
	joinPath      = "/auth/join"
	mePath        = "/auth/me"
)

// Client talks to the remote authentication API on behalf of one tab.
// Calls made while a bearer token is set carry it; a 401 answer to such a call
// notifies every OnAuthorizationExpired subscriber.
type Client struct {
	baseURL string
	rest    *rest.Client

	mu     sync.RWMutex
	bearer string
	subs   map[int]func()
	nextID int
}

var (
	_ auth.API           = (*Client)(nil)
	_ session.Authorizer = (*Client)(nil)
)

// NewClient returns a Client for the API rooted at baseURL. httpClient carries the
// timeout and may be shared between clients.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		rest:    &rest.Client{HTTPClient: httpClient},
		subs:    make(map[int]func()),
	}
}

func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

func (c *Client) ClearBearer() {
	c.SetBearer("")
}

func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

func (c *Client) OnAuthorizationExpired(fn func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Client) expired() {
	c.mu.RLock()
	subs := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

func (c *Client) Login(ctx context.Context, req auth.LoginRequest) (auth.Credentials, error) {
	var creds auth.Credentials
	err := c.exchange(ctx, loginPath, req, &creds)
	return creds, err
}

func (c *Client) SendOtp(ctx context.Context, req auth.OtpSendRequest) error {
	return c.exchange(ctx, otpSendPath, req, nil)
}

func (c *Client) VerifyOtp(ctx context.Context, req auth.OtpVerifyRequest) (auth.Credentials, error) {
	var creds auth.Credentials
	err := c.exchange(ctx, otpVerifyPath, req, &creds)
	return creds, err
}

func (c *Client) Join(ctx context.Context, req auth.JoinRequest) (auth.Credentials, error) {
	var creds auth.Credentials
	err := c.exchange(ctx, joinPath, req, &creds)
	return creds, err
}

func (c *Client) Me(ctx context.Context) (user.Profile, error) {
	var usr user.Profile
	err := c.do(ctx, rest.Get, mePath, c.Bearer(), nil, &usr)
	return usr, err
}

// credential exchanges never carry the tab's current token
func (c *Client) exchange(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, rest.Post, path, "", body, out)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method rest.Method, path, bearer string, body, out interface{}) error {
	op := string(method) + " " + path

	req := rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: map[string]string{"Accept": "application/json"},
	}
	if bearer != "" {
		req.Headers["Authorization"] = "Bearer " + bearer
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding "+op)
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}

	hreq, err := rest.BuildRequestObject(req)
	if err != nil {
		return errors.Wrap(err, "building "+op)
	}
	hresp, err := c.rest.MakeRequest(hreq.WithContext(ctx))
	if err != nil {
		return &auth.TransportError{Op: op, Err: err}
	}
	resp, err := rest.BuildResponse(hresp)
	if err != nil {
		return &auth.TransportError{Op: op, Err: errors.Wrap(err, "reading response")}
	}

	var env envelope
	decodeErr := json.Unmarshal([]byte(resp.Body), &env)

	if resp.StatusCode >= http.StatusBadRequest || (decodeErr == nil && !env.Success) {
		apiErr := &auth.APIError{Status: resp.StatusCode, Authenticated: bearer != ""}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		} else {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		if apiErr.Unauthorized() {
			c.expired()
		}
		return apiErr
	}
	if decodeErr != nil {
		return &auth.TransportError{Op: op, Err: errors.Wrap(decodeErr, "decoding response")}
	}
	if out != nil {
		if err = json.Unmarshal(env.Data, out); err != nil {
			return &auth.TransportError{Op: op, Err: errors.Wrap(err, "decoding data")}
		}
	}
	return nil
}
