package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Client talks to the auth platform's admin REST API with a service-role key.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewClient() *Client {
	viper.SetDefault("identity.base_url", "http://localhost:9999")
	viper.SetDefault("identity.timeout", 10*time.Second)

	return &Client{
		baseURL:    viper.GetString("identity.base_url"),
		serviceKey: viper.GetString("identity.service_key"),
		httpClient: &http.Client{Timeout: viper.GetDuration("identity.timeout")},
	}
}

func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*AuthUser, error) {
	var user AuthUser
	status, err := c.do(ctx, http.MethodPost, "/admin/users", params, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return nil, ErrDuplicateEmail
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("identity: create user returned %d", status)
	}
	return &user, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*AuthUser, error) {
	var user AuthUser
	status, err := c.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), params, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity: update user returned %d", status)
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	status, err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrUserNotFound
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("identity: delete user returned %d", status)
	}
	return nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*AuthUser, error) {
	var result struct {
		Users []AuthUser `json:"users"`
	}
	path := "/admin/users?email=" + url.QueryEscape(email)
	status, err := c.do(ctx, http.MethodGet, path, nil, &result)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity: lookup returned %d", status)
	}
	if len(result.Users) == 0 {
		return nil, ErrUserNotFound
	}
	return &result.Users[0], nil
}

func (c *Client) VerifyPassword(ctx context.Context, email, password string) (*AuthUser, error) {
	body := map[string]string{"email": email, "password": password}
	var user AuthUser
	status, err := c.do(ctx, http.MethodPost, "/token?grant_type=password", body, &user)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusBadRequest {
		return nil, ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("identity: password grant returned %d", status)
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("identity: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("identity: decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
