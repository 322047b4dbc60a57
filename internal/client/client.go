// Package client talks to the task API over HTTP. The dispatcher, the CLI
// and the board all go through it, even when the server is in-process.
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
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/smstask/internal/api"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
)

// ErrTransport marks a request that never produced a usable API answer:
// connection failures, timeouts and 5xx responses.
var ErrTransport = errors.New("task api unreachable")

// ErrNotFound is returned by Get and Update when no task matched.
var ErrNotFound = errors.New("task not found")

const defaultTimeout = 10 * time.Second

// Client is a task API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL (e.g. http://127.0.0.1:8007).
// A nil httpClient gets a default with a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Create adds a task for owner.
func (c *Client) Create(ctx context.Context, owner, description string) (model.Summary, error) {
	var out api.CreatedResponse
	err := c.do(ctx, http.MethodPost, "/tasks", api.CreateRequest{Owner: owner, Description: description}, &out)
	if err != nil {
		return model.Summary{}, err
	}
	return out.Created, nil
}

// List returns every task.
func (c *Client) List(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByOwner returns the tasks of owner.
func (c *Client) ListByOwner(ctx context.Context, owner string) ([]model.Task, error) {
	var out []model.Task
	path := "/tasks?" + url.Values{"owner": {owner}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one task.
func (c *Client) Get(ctx context.Context, id int) (model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &out); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

// Delete removes the task with id. found is false when no such task exists.
func (c *Client) Delete(ctx context.Context, id int) (deleted model.Summary, found bool, err error) {
	var out api.DeletedResponse
	err = c.do(ctx, http.MethodDelete, taskPath(id), nil, &out)
	if errors.Is(err, ErrNotFound) {
		return model.Summary{}, false, nil
	}
	if err != nil {
		return model.Summary{}, false, err
	}
	return out.Deleted, true, nil
}

// Update applies fields (status, description) to the task with id.
func (c *Client) Update(ctx context.Context, id int, fields map[string]any) (int, error) {
	var out api.UpdatedResponse
	if err := c.do(ctx, http.MethodPut, taskPath(id), fields, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/ping", nil, &out)
}

func taskPath(id int) string {
	return "/tasks/" + strconv.Itoa(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}
	return nil
}

// decodeError maps an API error body back onto the store's error kinds.
func decodeError(status int, data []byte) error {
	var body api.ErrorBody
	_ = json.Unmarshal(data, &body)
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}

	switch {
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransport, status, body.Error)
	case body.Code == api.CodeValidation:
		return fmt.Errorf("%w: %s", store.ErrValidation, body.Error)
	case body.Code == api.CodeCapacityExceeded:
		return fmt.Errorf("%w: %s", store.ErrCapacityExceeded, body.Error)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body.Error)
	default:
		return fmt.Errorf("api error (status %d): %s", status, body.Error)
	}
}
