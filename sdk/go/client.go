package tracklinesdk

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

// Client is a minimal Trackline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	LawFirmID   *string `json:"law_firm_id,omitempty"`
	ProjectType *string `json:"project_type,omitempty"`
	Bucket      string  `json:"bucket"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// LogEntry represents a workflow log record.
type LogEntry struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Action      string `json:"action"`
	DetailsJSON string `json:"details_json,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// RunSummary reports one automaton invocation.
type RunSummary struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Result    string `json:"result"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Run triggers one automaton pass.
func (c *Client) Run(ctx context.Context) (RunSummary, error) {
	var resp RunSummary
	err := c.do(ctx, http.MethodPost, c.apiPath("automaton/run"), nil, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, title string, fields map[string]any) (Project, error) {
	body := map[string]any{"title": title}
	for k, v := range fields {
		body[k] = v
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, c.apiPath("projects"), body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.apiPath("projects/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListProjects returns projects, optionally filtered by bucket.
func (c *Client) ListProjects(ctx context.Context, bucket string) ([]Project, error) {
	endpoint := c.apiPath("projects")
	if bucket != "" {
		endpoint += "?bucket=" + url.QueryEscape(bucket)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateProject applies a partial update.
func (c *Client) UpdateProject(ctx context.Context, id string, fields map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, c.apiPath("projects/"+url.PathEscape(id)), fields, &resp)
	return resp, err
}

// ProjectLogs returns the workflow log for a project, newest first.
func (c *Client) ProjectLogs(ctx context.Context, id string, limit int) ([]LogEntry, error) {
	endpoint := c.apiPath(fmt.Sprintf("projects/%s/logs", url.PathEscape(id)))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []LogEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	return "api/v1/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
