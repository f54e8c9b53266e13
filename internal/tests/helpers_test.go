package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type client struct {
	t       *testing.T
	baseURL string
	http    *http.Client
}

func newClient(t *testing.T, s *Stack) *client {
	t.Helper()
	server := httptest.NewServer(s.Router)
	t.Cleanup(server.Close)
	return &client{t: t, baseURL: server.URL, http: server.Client()}
}

// do sends body as JSON and decodes the response into out (if non-nil).
func (c *client) do(method, path, token string, body interface{}, out interface{}) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (c *client) post(path string, body, out interface{}) int {
	return c.do(http.MethodPost, path, "", body, out)
}

type userBody struct {
	ID          string  `json:"id"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	IsVerified  bool    `json:"is_verified"`
}

type initiateBody struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number"`
	IsNewUser   bool   `json:"is_new_user"`
}

type sessionBody struct {
	Access    string   `json:"access"`
	Refresh   string   `json:"refresh"`
	User      userBody `json:"user"`
	IsNewUser bool     `json:"is_new_user"`
	Message   string   `json:"message"`
}

type federatedBody struct {
	Message     string   `json:"message"`
	IsNewUser   bool     `json:"is_new_user"`
	FederatedID string   `json:"federated_id"`
	PhoneNumber string   `json:"phone_number"`
	User        userBody `json:"user"`
	Access      string   `json:"access"`
	Refresh     string   `json:"refresh"`
}

type errorBody struct {
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	FieldErrors map[string]string `json:"field_errors"`
}
