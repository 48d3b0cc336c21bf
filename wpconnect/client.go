// Package wpconnect talks to remote WordPress sites over the REST API
// using application-password credentials, and diagnoses why a
// connection fails when it does.
package wpconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client performs REST calls against a single WordPress site.
type Client struct {
	baseURL     string
	username    string
	appPassword string
	httpClient  *http.Client
}

// New builds a client for the site at baseURL. Trailing slashes are
// tolerated.
func New(baseURL, username, appPassword string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:    username,
		appPassword: appPassword,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
}

// SiteStatus is the result of a site check.
type SiteStatus struct {
	Reachable     bool   `json:"reachable"`
	RESTEnabled   bool   `json:"rest_enabled"`
	Authenticated bool   `json:"authenticated"`
	SiteName      string `json:"site_name,omitempty"`
	SiteURL       string `json:"site_url"`
}

// SiteCheck probes the site's REST root and the authenticated identity
// endpoint. It returns a status rather than an error for expected
// degradations; only request construction failures error out.
func (c *Client) SiteCheck(ctx context.Context) (*SiteStatus, error) {
	status := &SiteStatus{SiteURL: c.baseURL}

	resp, body, err := c.get(ctx, "/wp-json/", false)
	if err != nil {
		return status, nil
	}
	status.Reachable = true
	if resp.StatusCode != http.StatusOK {
		return status, nil
	}

	var root struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(body, &root) != nil || root.Name == "" {
		return status, nil
	}
	status.RESTEnabled = true
	status.SiteName = root.Name

	resp, _, err = c.get(ctx, "/wp-json/wp/v2/users/me", true)
	if err == nil && resp.StatusCode == http.StatusOK {
		status.Authenticated = true
	}
	return status, nil
}

// TogglePlugin activates or deactivates a plugin. The plugin argument
// is the WordPress plugin slug, e.g. "akismet/akismet".
func (c *Client) TogglePlugin(ctx context.Context, plugin string, active bool) error {
	state := "inactive"
	if active {
		state = "active"
	}
	resp, body, err := c.post(ctx, "/wp-json/wp/v2/plugins/"+plugin, map[string]string{"status": state})
	if err != nil {
		return fmt.Errorf("toggle plugin %s: %w", plugin, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toggle plugin %s: %s", plugin, restError(resp, body))
	}
	return nil
}

// UpdatePage applies the given fields (title, content, status...) to a
// page by id.
func (c *Client) UpdatePage(ctx context.Context, pageID string, fields map[string]any) error {
	resp, body, err := c.post(ctx, "/wp-json/wp/v2/pages/"+pageID, fields)
	if err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update page %s: %s", pageID, restError(resp, body))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, authed bool) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	return c.send(req, authed)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, true)
}

func (c *Client) send(req *http.Request, authed bool) (*http.Response, []byte, error) {
	if authed {
		req.SetBasicAuth(c.username, c.appPassword)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

// restError extracts the code/message pair WordPress puts in REST error
// bodies, falling back to the HTTP status.
func restError(resp *http.Response, body []byte) string {
	var wpErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wpErr) == nil && wpErr.Code != "" {
		return fmt.Sprintf("%s (%s)", wpErr.Message, wpErr.Code)
	}
	return resp.Status
}
