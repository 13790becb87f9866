package backend

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

	"mocksync/internal/document/model"
)

const exportTimeout = 5 * time.Minute

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the project CRUD service. Every request carries the bearer
// token from the local session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

type projectResponse struct {
	Name              string          `json:"name"`
	SerializedContent json.RawMessage `json:"serializedContent"`
}

type saveRequest struct {
	SerializedContent string `json:"serializedContent"`
}

func (c *Client) LoadProject(ctx context.Context, projectID string) (model.Project, error) {
	var out projectResponse
	if err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return model.Project{}, err
	}
	project := model.Project{ID: projectID, Name: out.Name}
	if len(out.SerializedContent) > 0 && string(out.SerializedContent) != "null" {
		project.Content = out.SerializedContent
	}
	return project, nil
}

func (c *Client) SaveContent(ctx context.Context, projectID string, content []byte) error {
	body := saveRequest{SerializedContent: string(content)}
	return c.doJSON(ctx, http.MethodPut, "/projects/"+url.PathEscape(projectID), body, nil)
}

// ExportArchive streams the project's zip export into w.
func (c *Client) ExportArchive(ctx context.Context, projectID string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/projects/exportArchive/"+url.PathEscape(projectID), nil)
	if err != nil {
		return 0, err
	}
	// The shared client's timeout is too short for large archives.
	httpClient := *c.httpClient
	httpClient.Timeout = 0
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}
