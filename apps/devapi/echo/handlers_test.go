package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/lms-portal/apps/shared"
	"github.com/trezcool/lms-portal/core"
	"github.com/trezcool/lms-portal/core/user"
	"github.com/trezcool/lms-portal/services/email"
	"github.com/trezcool/lms-portal/storage/database/inmem"
	"github.com/trezcool/lms-portal/tests"
)

type testAPI struct {
	conf    *core.Config
	repo    user.Repository
	mailSvc *emailsvc.ConsoleService
	tokens  *Tokens
	srv     *shared.Server
}

func setup(t *testing.T) *testAPI {
	t.Helper()
	conf := testutil.NewConfig(t)
	logger := testutil.NewLogger()
	v := testutil.NewValidator()

	api := &testAPI{
		conf:    conf,
		repo:    inmemdb.NewAccountRepository(inmemdb.Open()),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		tokens:  NewTokens(conf),
	}
	api.srv = NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		Validator:      v,
		UserSvc:        user.NewService(api.repo, v, api.mailSvc, logger, conf),
		DisableReqLogs: true,
	})
	return api
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *errorDetail    `json:"error"`
}

func (api *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, BasePath+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.srv.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (api *testAPI) token(t *testing.T, acc user.Account) string {
	t.Helper()
	token, err := api.tokens.GenerateToken(api.tokens.GetAccountClaims(acc))
	require.NoError(t, err)
	return token
}

type credentials struct {
	Token string       `json:"token"`
	User  user.Profile `json:"user"`
}

func decodeCredentials(t *testing.T, resp response) credentials {
	t.Helper()
	var creds credentials
	require.NoError(t, json.Unmarshal(resp.Data, &creds))
	return creds
}

func TestAuthAPI_login(t *testing.T) {
	api := setup(t)
	admin := testutil.CreateAccount(t, api.repo, "Ada Admin", "admin@lms.local", "", "Admin@12345", user.RoleAdmin, true)
	testutil.CreateAccount(t, api.repo, "Ina Inactive", "ina@lms.local", "", "Admin@12345", user.RoleStudent, false)

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		errCode  string
		errMsg   string
	}{
		{"missing fields", map[string]string{}, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"},
		{"invalid email", map[string]string{"email": "admin", "password": "x"}, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed"},
		{"unknown email", map[string]string{"email": "who@lms.local", "password": "Admin@12345"}, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials"},
		{"wrong password", map[string]string{"email": "admin@lms.local", "password": "nope"}, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials"},
		{"inactive", map[string]string{"email": "ina@lms.local", "password": "Admin@12345"}, http.StatusForbidden, "FORBIDDEN", "Account is not active"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := api.do(t, http.MethodPost, "/auth/login", "", tc.body)
			assert.Equal(t, tc.wantCode, code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.errCode, resp.Error.Code)
			assert.Equal(t, tc.errMsg, resp.Error.Message)
		})
	}

	t.Run("success", func(t *testing.T) {
		code, resp := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": " Admin@LMS.local", "password": "Admin@12345"})
		require.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Success)

		creds := decodeCredentials(t, resp)
		assert.Equal(t, admin.Profile(), creds.User)
		assert.NotEmpty(t, creds.Token)

		acc, err := api.repo.GetAccountByID(context.Background(), admin.ID)
		require.NoError(t, err)
		assert.False(t, acc.LastLogin.IsZero())

		// the token is accepted by /auth/me
		code, resp = api.do(t, http.MethodGet, "/auth/me", creds.Token, nil)
		require.Equal(t, http.StatusOK, code)
		var me user.Profile
		require.NoError(t, json.Unmarshal(resp.Data, &me))
		assert.Equal(t, admin.Profile(), me)
	})
}

func TestAuthAPI_me(t *testing.T) {
	api := setup(t)
	student := testutil.CreateAccount(t, api.repo, "Sam Student", "sam@lms.local", "", "", user.RoleStudent, true)
	inactive := testutil.CreateAccount(t, api.repo, "Ina Inactive", "ina@lms.local", "", "", user.RoleStudent, false)

	expired := api.tokens.GetAccountClaims(student)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := api.tokens.GenerateToken(expired)
	require.NoError(t, err)

	other := NewTokens(api.conf)
	other.conf.SigningKey = []byte("another secret")
	forged, err := other.GenerateToken(other.GetAccountClaims(student))
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
		{"expired", expiredToken, http.StatusUnauthorized},
		{"forged", forged, http.StatusUnauthorized},
		{"deleted account", api.token(t, user.Account{ID: 999, Role: user.RoleStudent}), http.StatusUnauthorized},
		{"inactive account", api.token(t, inactive), http.StatusUnauthorized},
		{"valid", api.token(t, student), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := api.do(t, http.MethodGet, "/auth/me", tc.token, nil)
			assert.Equal(t, tc.wantCode, code)
			if tc.wantCode == http.StatusOK {
				var me user.Profile
				require.NoError(t, json.Unmarshal(resp.Data, &me))
				assert.Equal(t, student.Profile(), me)
				return
			}
			require.NotNil(t, resp.Error)
			assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
		})
	}
}

func TestAuthAPI_otp(t *testing.T) {
	api := setup(t)
	faculty := testutil.CreateAccount(t, api.repo, "Fred Faculty", "fred@lms.local", "", "", user.RoleFaculty, true)

	// unknown identifiers are accepted silently
	code, resp := api.do(t, http.MethodPost, "/auth/otp/send", "", map[string]string{"identifier": "who@lms.local"})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Empty(t, api.mailSvc.SentMessages())

	code, _ = api.do(t, http.MethodPost, "/auth/otp/send", "", map[string]string{"identifier": "Fred@lms.local"})
	require.Equal(t, http.StatusOK, code)
	sent := api.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "fred@lms.local", sent[0].To[0].Address)
	otp := sent[0].TemplateData.(map[string]interface{})["Code"].(string)
	require.Len(t, otp, api.conf.DevAPI.OtpLength)

	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}
	code, resp = api.do(t, http.MethodPost, "/auth/otp/verify", "", map[string]string{"identifier": "fred@lms.local", "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	code, resp = api.do(t, http.MethodPost, "/auth/otp/verify", "", map[string]string{"identifier": "fred@lms.local", "otp": otp})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, faculty.Profile(), decodeCredentials(t, resp).User)

	// codes are single use
	code, _ = api.do(t, http.MethodPost, "/auth/otp/verify", "", map[string]string{"identifier": "fred@lms.local", "otp": otp})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthAPI_join(t *testing.T) {
	api := setup(t)
	testutil.CreateAccount(t, api.repo, "Fred Faculty", "fred@lms.local", "", "", user.RoleFaculty, true)

	code, resp := api.do(t, http.MethodPost, "/auth/join", "", map[string]string{"joinCode": "NOPE42", "name": "Joe", "contact": "joe@lms.local"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid join code", resp.Error.Message)

	code, resp = api.do(t, http.MethodPost, "/auth/join", "", map[string]string{"joinCode": "java42", "name": "Joe", "contact": "joe@lms.local"})
	require.Equal(t, http.StatusOK, code)
	joe := decodeCredentials(t, resp).User
	assert.Equal(t, user.RoleStudent, joe.Role)
	assert.Equal(t, "joe@lms.local", joe.Email)

	// joining again signs the student back in
	code, resp = api.do(t, http.MethodPost, "/auth/join", "", map[string]string{"joinCode": "JAVA42", "name": "Joe", "contact": "joe@lms.local"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, joe.ID, decodeCredentials(t, resp).User.ID)

	// staff accounts cannot join a batch
	code, _ = api.do(t, http.MethodPost, "/auth/join", "", map[string]string{"joinCode": "JAVA42", "name": "Fred", "contact": "fred@lms.local"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuthAPI_register(t *testing.T) {
	api := setup(t)
	admin := testutil.CreateAccount(t, api.repo, "Ada Admin", "admin@lms.local", "", "", user.RoleAdmin, true)
	faculty := testutil.CreateAccount(t, api.repo, "Fred Faculty", "fred@lms.local", "", "", user.RoleFaculty, true)

	body := map[string]string{"name": "Tina Teacher", "email": "tina@lms.local", "role": "FACULTY", "password": "Teach@12345"}

	code, _ := api.do(t, http.MethodPost, "/auth/register", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp := api.do(t, http.MethodPost, "/auth/register", api.token(t, faculty), body)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "permission denied", resp.Error.Message)

	code, resp = api.do(t, http.MethodPost, "/auth/register", api.token(t, admin), body)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "User registered successfully", resp.Message)
	var tina user.Profile
	require.NoError(t, json.Unmarshal(resp.Data, &tina))
	assert.Equal(t, user.RoleFaculty, tina.Role)

	code, resp = api.do(t, http.MethodPost, "/auth/register", api.token(t, admin), body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "email")

	code, _ = api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "tina@lms.local", "password": "Teach@12345"})
	assert.Equal(t, http.StatusOK, code)
}
