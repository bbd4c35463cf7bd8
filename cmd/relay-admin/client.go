package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API response structures
type ClientResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	APIKey    string           `json:"api_key"`
	CreatedAt string           `json:"created_at"`
	Domains   []DomainResponse `json:"domains,omitempty"`
}

type DomainResponse struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	Name       string `json:"domain"`
	Verified   bool   `json:"verified"`
	VerifiedAt string `json:"verified_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type VerifyResponse struct {
	Outcome     string         `json:"outcome"`
	ExpectedTXT string         `json:"expected_txt"`
	Detail      string         `json:"detail,omitempty"`
	Domain      DomainResponse `json:"domain"`
	Verified    bool           `json:"verified"`
}

type LogResponse struct {
	ID         int64  `json:"id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	SentAt     string `json:"sent_at"`
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body,omitempty"`
}

type SettingResponse struct {
	Key      string `json:"key"`
	ClientID string `json:"client_id,omitempty"`
	Value    string `json:"value"`
	Secret   bool   `json:"is_secret"`
}

type DashboardResponse struct {
	TotalEmails   int64          `json:"total_emails"`
	EmailsLast24h int64          `json:"emails_last_24h"`
	TotalClients  int64          `json:"total_clients"`
	Recent        []LogResponse  `json:"recent"`
	Queue         map[string]any `json:"queue,omitempty"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Time         string `json:"time"`
	DB           string `json:"db"`
	Cache        string `json:"cache"`
	QueuePending int    `json:"queue_pending"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	MessageID string `json:"message_id,omitempty"`
}

// APIError is returned for any 4xx/5xx answer from the relay.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("API error (%d): %s", e.Status, e.Message) }

// AdminClient talks to the relay's basic-auth protected admin API.
type AdminClient struct {
	BaseURL  string
	User     string
	Password string
	HTTP     *http.Client
}

func NewAdminClient(baseURL, user, password string) *AdminClient {
	return &AdminClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		User:     user,
		Password: password,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, target any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := c.BaseURL + path
	logVerbose("Making %s request to %s", method, u)

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	logVerbose("Response status: %s", resp.Status)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		var er ErrorResponse
		if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: er.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if target != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *AdminClient) ListClients(ctx context.Context) ([]ClientResponse, error) {
	var out []ClientResponse
	return out, c.do(ctx, http.MethodGet, "/admin/api/clients", nil, &out)
}

func (c *AdminClient) CreateClient(ctx context.Context, name string) (ClientResponse, error) {
	var out ClientResponse
	return out, c.do(ctx, http.MethodPost, "/admin/api/clients", map[string]string{"name": name}, &out)
}

func (c *AdminClient) GetClient(ctx context.Context, id string) (ClientResponse, error) {
	var out ClientResponse
	return out, c.do(ctx, http.MethodGet, "/admin/api/clients/"+url.PathEscape(id), nil, &out)
}

func (c *AdminClient) DeleteClient(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/api/clients/"+url.PathEscape(id), nil, nil)
}

func (c *AdminClient) ListDomains(ctx context.Context, clientID string) ([]DomainResponse, error) {
	var out []DomainResponse
	return out, c.do(ctx, http.MethodGet, "/admin/api/clients/"+url.PathEscape(clientID)+"/domains", nil, &out)
}

func (c *AdminClient) AddDomain(ctx context.Context, clientID, name string) (DomainResponse, error) {
	var out DomainResponse
	path := "/admin/api/clients/" + url.PathEscape(clientID) + "/domains"
	return out, c.do(ctx, http.MethodPost, path, map[string]string{"domain": name}, &out)
}

func (c *AdminClient) VerifyDomain(ctx context.Context, clientID, domainID string) (VerifyResponse, error) {
	var out VerifyResponse
	path := "/admin/api/clients/" + url.PathEscape(clientID) + "/domains/" + url.PathEscape(domainID) + "/verify"
	return out, c.do(ctx, http.MethodPost, path, nil, &out)
}

func (c *AdminClient) Dashboard(ctx context.Context) (DashboardResponse, error) {
	var out DashboardResponse
	return out, c.do(ctx, http.MethodGet, "/admin/api/dashboard", nil, &out)
}

func (c *AdminClient) RecentLogs(ctx context.Context, limit int) ([]LogResponse, error) {
	var out []LogResponse
	path := "/admin/api/logs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *AdminClient) GetLog(ctx context.Context, id int64) (LogResponse, error) {
	var out LogResponse
	return out, c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/api/logs/%d", id), nil, &out)
}

// PurgeLogs removes logs older than age; zero removes everything.
func (c *AdminClient) PurgeLogs(ctx context.Context, age time.Duration) (int64, error) {
	path := "/admin/api/logs/purge"
	if age > 0 {
		path += "?older_than=" + url.QueryEscape(age.String())
	}
	var out struct {
		Removed int64 `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out.Removed, err
}

func (c *AdminClient) SetSetting(ctx context.Context, key, value, clientID string) error {
	body := map[string]string{"value": value}
	if clientID != "" {
		body["client_id"] = clientID
	}
	return c.do(ctx, http.MethodPut, "/admin/api/settings/"+url.PathEscape(key), body, nil)
}

// ListSettings returns global rows, or one client's overrides when clientID is set.
func (c *AdminClient) ListSettings(ctx context.Context, clientID string) ([]SettingResponse, error) {
	var out []SettingResponse
	path := "/admin/api/settings"
	if clientID != "" {
		path += "?client_id=" + url.QueryEscape(clientID)
	}
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *AdminClient) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	return out, c.do(ctx, http.MethodGet, "/healthz", nil, &out)
}
