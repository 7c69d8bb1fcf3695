package clickup

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
)

const (
	defaultBaseURL = "https://api.clickup.com/api/v2"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4096
)

// Config holds settings for a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a thin wrapper around the ClickUp v2 REST API. It never retries;
// callers own retry policy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client. The API key is mandatory.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("clickup: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// CreateTask creates a task in a list.
func (c *Client) CreateTask(ctx context.Context, listID string, req CreateTaskRequest) (*Task, error) {
	var task Task
	endpoint := fmt.Sprintf("list/%s/task", url.PathEscape(listID))
	if err := c.do(ctx, http.MethodPost, endpoint, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask edits task fields.
func (c *Client) UpdateTask(ctx context.Context, taskID string, req UpdateTaskRequest) (*Task, error) {
	var task Task
	endpoint := fmt.Sprintf("task/%s", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodPut, endpoint, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTaskStatus moves a task to the given status label.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) (*Task, error) {
	return c.UpdateTask(ctx, taskID, UpdateTaskRequest{Status: &status})
}

// SetCustomField writes one custom field value on a task.
func (c *Client) SetCustomField(ctx context.Context, taskID, fieldID string, value any) error {
	endpoint := fmt.Sprintf("task/%s/field/%s", url.PathEscape(taskID), url.PathEscape(fieldID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"value": value}, nil)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	endpoint := fmt.Sprintf("task/%s", url.PathEscape(taskID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetTask fetches a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	endpoint := fmt.Sprintf("task/%s", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// TaskExists returns false only when ClickUp reports the task as not found.
// Every other failure is returned to the caller.
func (c *Client) TaskExists(ctx context.Context, taskID string) (bool, error) {
	if _, err := c.GetTask(ctx, taskID); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListTasks returns one page of tasks in a list and whether it was the last page.
func (c *Client) ListTasks(ctx context.Context, listID string, page int) ([]Task, bool, error) {
	var resp struct {
		Tasks    []Task `json:"tasks"`
		LastPage bool   `json:"last_page"`
	}
	endpoint := fmt.Sprintf("list/%s/task?page=%d&include_closed=true", url.PathEscape(listID), page)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Tasks, resp.LastPage, nil
}

// GetList fetches list metadata, including its provisioned statuses.
func (c *Client) GetList(ctx context.Context, listID string) (*List, error) {
	var list List
	endpoint := fmt.Sprintf("list/%s", url.PathEscape(listID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ListWorkspaces returns the workspaces the credential can see.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var resp struct {
		Teams []Workspace `json:"teams"`
	}
	if err := c.do(ctx, http.MethodGet, "team", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Teams, nil
}

// ListSpaces returns the spaces of a workspace.
func (c *Client) ListSpaces(ctx context.Context, workspaceID string) ([]Space, error) {
	var resp struct {
		Spaces []Space `json:"spaces"`
	}
	endpoint := fmt.Sprintf("team/%s/space", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Spaces, nil
}

// ListLists returns the folderless lists of a space.
func (c *Client) ListLists(ctx context.Context, spaceID string) ([]List, error) {
	var resp struct {
		Lists []List `json:"lists"`
	}
	endpoint := fmt.Sprintf("space/%s/list", url.PathEscape(spaceID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lists, nil
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID, text string) (*Comment, error) {
	body := map[string]any{
		"comment_text": text,
		"notify_all":   false,
	}
	var comment Comment
	endpoint := fmt.Sprintf("task/%s/comment", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodPost, endpoint, body, &comment); err != nil {
		return nil, err
	}
	if comment.CommentText == "" {
		comment.CommentText = text
	}
	return &comment, nil
}

// ListComments returns the comments of a task.
func (c *Client) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	endpoint := fmt.Sprintf("task/%s/comment", url.PathEscape(taskID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

type errorBody struct {
	Err   string `json:"err"`
	ECode string `json:"ECODE"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Endpoint: method + " " + endpointPath(endpoint), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var parsed errorBody
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Err != "" {
			message = parsed.Err
		}
		return &APIError{
			Kind:       classify(resp.StatusCode, message),
			StatusCode: resp.StatusCode,
			Message:    message,
			ErrCode:    parsed.ECode,
			Endpoint:   method + " " + endpointPath(endpoint),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("clickup: decode %s response: %w", endpointPath(endpoint), err)
	}
	return nil
}

func endpointPath(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return "/" + endpoint[:i]
	}
	return "/" + endpoint
}
