// Package client talks to the admin endpoints of the registration server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/devsoc/devsoc-backend/internal/server/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap lets callers match common sentinels with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusBadRequest:
		return common.ErrValidation
	}
	return nil
}

// Setting mirrors the server's setting view.
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func New(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (string, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Message, nil
}

func (c *Client) PendingPayments(ctx context.Context) ([]*models.PaymentWithUser, error) {
	var out []*models.PaymentWithUser
	_, err := c.do(ctx, http.MethodGet, "/api/admin/payments/pending", nil, nil, &out)
	return out, err
}

func (c *Client) EventRegistrations(ctx context.Context, eventSlug string) ([]*models.Registration, error) {
	var out []*models.Registration
	_, err := c.do(ctx, http.MethodGet, "/api/admin/registrations", url.Values{"eventSlug": {eventSlug}}, nil, &out)
	return out, err
}

func (c *Client) LookupRegistration(ctx context.Context, email, eventSlug string) (*models.Registration, error) {
	var out models.Registration
	q := url.Values{"email": {email}, "eventSlug": {eventSlug}}
	if _, err := c.do(ctx, http.MethodGet, "/api/admin/registrations/lookup", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus, verifiedBy string) (string, error) {
	body := map[string]string{"status": string(status), "verifiedBy": verifiedBy}
	return c.do(ctx, http.MethodPost, "/api/admin/payments/"+url.PathEscape(paymentID)+"/status", nil, body, nil)
}

func (c *Client) Settings(ctx context.Context) ([]*Setting, error) {
	var out []*Setting
	_, err := c.do(ctx, http.MethodGet, "/api/admin/settings", nil, nil, &out)
	return out, err
}

func (c *Client) Setting(ctx context.Context, key string) (*Setting, error) {
	var out Setting
	if _, err := c.do(ctx, http.MethodGet, "/api/admin/settings", url.Values{"key": {key}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetSetting stores value, which must be valid JSON. JSON strings are
// stored unquoted by the server.
func (c *Client) SetSetting(ctx context.Context, key string, value json.RawMessage, description string) (string, error) {
	body := struct {
		Key         string          `json:"key"`
		Value       json.RawMessage `json:"value"`
		Description string          `json:"description,omitempty"`
	}{key, value, description}
	return c.do(ctx, http.MethodPost, "/api/admin/settings", nil, body, nil)
}

func (c *Client) DeleteSetting(ctx context.Context, key string) (string, error) {
	return c.do(ctx, http.MethodDelete, "/api/admin/settings", url.Values{"key": {key}}, nil, nil)
}
