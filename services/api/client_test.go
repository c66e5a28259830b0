package apisvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/lms-portal/core/auth"
	"github.com/trezcool/lms-portal/core/user"
)

var student = user.Profile{ID: 3, Name: "Sam Student", Email: "sam@lms.local", Role: user.RoleStudent}

type recorded struct {
	method string
	path   string
	auth   string
	ctype  string
	body   string
}

func setup(t *testing.T, status int, body string) (*Client, *recorded) {
	rec := new(recorded)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*rec = recorded{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			ctype:  r.Header.Get("Content-Type"),
			body:   string(data),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/", &http.Client{Timeout: 5 * time.Second}), rec
}

func ok(t *testing.T, data interface{}) string {
	b, err := json.Marshal(map[string]interface{}{"success": true, "data": data})
	require.NoError(t, err)
	return string(b)
}

func fail(code, msg string) string {
	return `{"success":false,"error":{"code":"` + code + `","message":"` + msg + `"}}`
}

func TestClient_Login(t *testing.T) {
	c, rec := setup(t, http.StatusOK, ok(t, auth.Credentials{Token: "jwt", User: student}))
	c.SetBearer("stale") // exchanges never carry the current token

	creds, err := c.Login(context.Background(), auth.LoginRequest{Email: "sam@lms.local", Password: "pwd"})
	require.NoError(t, err)
	assert.Equal(t, auth.Credentials{Token: "jwt", User: student}, creds)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/v1/auth/login", rec.path)
	assert.Empty(t, rec.auth)
	assert.Equal(t, "application/json", rec.ctype)
	assert.JSONEq(t, `{"email":"sam@lms.local","password":"pwd"}`, rec.body)
}

func TestClient_exchanges(t *testing.T) {
	creds := auth.Credentials{Token: "jwt", User: student}

	c, rec := setup(t, http.StatusOK, ok(t, creds))
	got, err := c.VerifyOtp(context.Background(), auth.OtpVerifyRequest{Identifier: "sam@lms.local", Otp: "123456"})
	require.NoError(t, err)
	assert.Equal(t, creds, got)
	assert.Equal(t, "/api/v1/auth/otp/verify", rec.path)
	assert.JSONEq(t, `{"identifier":"sam@lms.local","otp":"123456"}`, rec.body)

	got, err = c.Join(context.Background(), auth.JoinRequest{JoinCode: "JAVA42", Name: "Sam", Contact: "sam@lms.local"})
	require.NoError(t, err)
	assert.Equal(t, creds, got)
	assert.Equal(t, "/api/v1/auth/join", rec.path)
	assert.JSONEq(t, `{"joinCode":"JAVA42","name":"Sam","contact":"sam@lms.local"}`, rec.body)

	c, rec = setup(t, http.StatusOK, `{"success":true,"data":null}`)
	require.NoError(t, c.SendOtp(context.Background(), auth.OtpSendRequest{Identifier: "sam@lms.local"}))
	assert.Equal(t, "/api/v1/auth/otp/send", rec.path)
}

func TestClient_Me(t *testing.T) {
	c, rec := setup(t, http.StatusOK, ok(t, student))
	c.SetBearer("jwt")

	got, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, student, got)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/v1/auth/me", rec.path)
	assert.Equal(t, "Bearer jwt", rec.auth)
	assert.Empty(t, rec.body)

	c.ClearBearer()
	assert.Empty(t, c.Bearer())
	_, _ = c.Me(context.Background())
	assert.Empty(t, rec.auth)
}

func TestClient_errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		bearer      string
		call        func(c *Client) error
		wantAPI     *auth.APIError
		wantExpired bool
	}{
		{
			name: "login rejected", status: http.StatusUnauthorized, body: fail("UNAUTHORIZED", "Invalid credentials"), bearer: "old",
			call:    func(c *Client) error { _, err := c.Login(context.Background(), auth.LoginRequest{}); return err },
			wantAPI: &auth.APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Invalid credentials"},
		},
		{
			name: "inactive", status: http.StatusForbidden, body: fail("FORBIDDEN", "Account is not active"),
			call:    func(c *Client) error { _, err := c.Login(context.Background(), auth.LoginRequest{}); return err },
			wantAPI: &auth.APIError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Account is not active"},
		},
		{
			name: "me expired", status: http.StatusUnauthorized, body: fail("UNAUTHORIZED", "Token expired"), bearer: "jwt",
			call:        func(c *Client) error { _, err := c.Me(context.Background()); return err },
			wantAPI:     &auth.APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Token expired", Authenticated: true},
			wantExpired: true,
		},
		{
			name: "me without token", status: http.StatusUnauthorized, body: fail("UNAUTHORIZED", "missing or malformed jwt"),
			call:    func(c *Client) error { _, err := c.Me(context.Background()); return err },
			wantAPI: &auth.APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "missing or malformed jwt"},
		},
		{
			name: "non-JSON error", status: http.StatusBadGateway, body: "<html>bad gateway</html>",
			call:    func(c *Client) error { return c.SendOtp(context.Background(), auth.OtpSendRequest{}) },
			wantAPI: &auth.APIError{Status: http.StatusBadGateway, Code: "Bad Gateway"},
		},
		{
			name: "unsuccessful envelope", status: http.StatusOK, body: fail("BAD_REQUEST", "nope"),
			call:    func(c *Client) error { return c.SendOtp(context.Background(), auth.OtpSendRequest{}) },
			wantAPI: &auth.APIError{Status: http.StatusOK, Code: "BAD_REQUEST", Message: "nope"},
		},
		{
			name: "garbage", status: http.StatusOK, body: "not json",
			call: func(c *Client) error { return c.SendOtp(context.Background(), auth.OtpSendRequest{}) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setup(t, tt.status, tt.body)
			c.SetBearer(tt.bearer)
			var expired int
			cancel := c.OnAuthorizationExpired(func() { expired++ })
			defer cancel()

			err := tt.call(c)
			if tt.wantAPI != nil {
				var apiErr *auth.APIError
				if assert.True(t, errors.As(err, &apiErr), "err = %v", err) {
					assert.Equal(t, tt.wantAPI, apiErr)
				}
			} else {
				var tErr *auth.TransportError
				assert.True(t, errors.As(err, &tErr), "err = %v", err)
			}
			assert.Equal(t, tt.wantExpired, expired == 1)
		})
	}
}

func TestClient_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.Login(context.Background(), auth.LoginRequest{Email: "a@b.cd", Password: "x"})
	var tErr *auth.TransportError
	if assert.True(t, errors.As(err, &tErr)) {
		assert.Equal(t, "POST /auth/login", tErr.Op)
	}
}

func TestClient_OnAuthorizationExpired_cancel(t *testing.T) {
	c, _ := setup(t, http.StatusUnauthorized, fail("UNAUTHORIZED", "expired"))
	c.SetBearer("jwt")

	var first, second int
	cancel := c.OnAuthorizationExpired(func() { first++ })
	c.OnAuthorizationExpired(func() { second++ })

	_, _ = c.Me(context.Background())
	cancel()
	_, _ = c.Me(context.Background())

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestClient_contextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	c := NewClient(srv.URL, &http.Client{Timeout: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Login(ctx, auth.LoginRequest{Email: "a@b.cd", Password: "x"})
	assert.Less(t, int64(time.Since(start)), int64(10*time.Second))

	var tErr *auth.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
}
