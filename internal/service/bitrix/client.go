// Package bitrix is a minimal client of the CRM REST API used by the open
// line connector.
package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/lib/sl"
)

// TokenSource hands out usable portal credentials.
type TokenSource interface {
	EnsureValid(ctx context.Context, domain string) (*entity.PortalAuth, error)
	ForceRefresh(ctx context.Context, domain string) (*entity.PortalAuth, error)
}

// APIError is an error answer of the REST endpoint.
type APIError struct {
	Code        string
	Description string
	Status      int
	Body        interface{}
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

var authCodes = map[string]bool{
	"expired_token":   true,
	"invalid_token":   true,
	"no_auth_found":   true,
	"wrong_auth_type": true,
}

// IsAuthFailure reports whether the CRM rejected the access token.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || authCodes[strings.ToLower(apiErr.Code)]
}

type Client struct {
	tokens     TokenSource
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(tokens TokenSource, log *slog.Logger) *Client {
	return &Client{
		tokens:     tokens,
		httpClient: &http.Client{},
		log:        log.With(sl.Module("bitrix")),
	}
}

func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Call invokes a REST method on behalf of a portal. An authorization failure
// triggers one forced token refresh and one retry; any other failure, or a
// second one, is returned as a RemoteSendError.
func (c *Client) Call(ctx context.Context, portal, method string, params map[string]interface{}) (interface{}, error) {
	log := c.log.With(slog.String("method", method), slog.String("portal", portal))
	t := time.Now()
	defer func() {
		log.With(slog.Duration("duration", time.Since(t))).Debug("rest call")
	}()

	auth, err := c.tokens.EnsureValid(ctx, portal)
	if err != nil {
		return nil, err
	}
	if auth.ClientEndpoint == "" {
		return nil, &entity.ConfigurationError{Missing: []string{"B24_ENDPOINT"}}
	}

	result, err := c.do(ctx, auth, method, params)
	if err != nil && IsAuthFailure(err) {
		log.With(sl.Err(err)).Warn("token rejected, refreshing")
		auth, err = c.tokens.ForceRefresh(ctx, auth.PortalDomain)
		if err != nil {
			return nil, err
		}
		result, err = c.do(ctx, auth, method, params)
	}
	if err != nil {
		log.With(sl.Err(err)).Error("rest call failed")
		return nil, remoteError(err)
	}
	return result, nil
}

func remoteError(err error) *entity.RemoteSendError {
	re := &entity.RemoteSendError{Target: "bitrix", Code: entity.CodeBitrix, Err: err}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		re.Status = apiErr.Status
		re.Body = apiErr.Body
	}
	return re
}

func (c *Client) do(ctx context.Context, auth *entity.PortalAuth, method string, params map[string]interface{}) (interface{}, error) {
	endpoint := auth.ClientEndpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	form := Encode(params)
	form.Set("auth", auth.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw)
}

// parseResponse keeps a body that is not JSON as raw text.
func parseResponse(status int, raw []byte) (interface{}, error) {
	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	if m, ok := body.(map[string]interface{}); ok {
		if code, _ := m["error"].(string); code != "" {
			desc, _ := m["error_description"].(string)
			return nil, &APIError{Code: code, Description: desc, Status: status, Body: body}
		}
		if status >= 200 && status < 300 {
			if result, ok := m["result"]; ok {
				return result, nil
			}
		}
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Code: fmt.Sprintf("HTTP_%d", status), Status: status, Body: body}
	}
	return body, nil
}
