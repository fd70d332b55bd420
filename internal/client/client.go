// Package client talks to the docflow HTTP API.
package client

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

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/handler"
	"github.com/gogotex/docflow/internal/document/optimistic"
	"github.com/gogotex/docflow/internal/document/workflow"
)

// Client is an authenticated API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// compile-time check
var _ optimistic.Remote = (*Client)(nil)

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a failure reported by the server. It unwraps to the matching
// document error, so errors.Is works across the wire.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d", e.Status)
	}
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

var sentinels = map[string]error{
	document.KindNotFound:               document.ErrNotFound,
	document.KindPermissionDenied:       document.ErrPermissionDenied,
	document.KindInvalidTransition:      document.ErrInvalidTransition,
	document.KindDocumentLocked:         document.ErrDocumentLocked,
	document.KindConcurrentModification: document.ErrConcurrentModification,
	document.KindPersistence:            document.ErrPersistence,
	document.KindValidation:             document.ErrValidation,
}

func (e *APIError) Unwrap() error { return sentinels[e.Kind] }

// --- HTTP helpers ---

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func decodeResponse[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var zero T
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Message, apiErr.Kind = body.Error, body.Kind
		}
		return zero, apiErr
	}
	if resp.StatusCode == http.StatusNoContent {
		return zero, nil
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return zero, fmt.Errorf("decoding response: %w", err)
	}
	return v, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	resp, err := c.doJSON(ctx, method, path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeResponse[T](resp)
}

func docPath(id string, rest ...string) string {
	p := "/api/documents/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// --- Documents ---

func (c *Client) CreateDocument(ctx context.Context, in workflow.NewDocument) (*document.Document, error) {
	return call[*document.Document](ctx, c, http.MethodPost, "/api/documents", newBody(in))
}

func (c *Client) CreateTemplate(ctx context.Context, in workflow.NewDocument) (*document.Document, error) {
	return call[*document.Document](ctx, c, http.MethodPost, "/api/templates", newBody(in))
}

func (c *Client) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	return call[*document.Document](ctx, c, http.MethodGet, docPath(id), nil)
}

// UpdateDocument sends an author's content update.
func (c *Client) UpdateDocument(ctx context.Context, id string, p workflow.ContentPatch) (*document.Document, error) {
	return call[*document.Document](ctx, c, http.MethodPatch, docPath(id), handler.UpdateRequest(p))
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := call[struct{}](ctx, c, http.MethodDelete, docPath(id), nil)
	return err
}

func (c *Client) ListRevisions(ctx context.Context, id string) ([]*document.Revision, error) {
	return call[[]*document.Revision](ctx, c, http.MethodGet, docPath(id, "revisions"), nil)
}

// Result is the answer of a review action.
type Result struct {
	Document *document.Document      `json:"document"`
	Review   *document.ReviewRequest `json:"review"`
}

// RequestReview asks reviewerID to review the document.
func (c *Client) RequestReview(ctx context.Context, id, reviewerID, message string) (Result, error) {
	body := map[string]string{"reviewerId": reviewerID}
	if message != "" {
		body["message"] = message
	}
	return call[Result](ctx, c, http.MethodPost, docPath(id, "request-review"), body)
}

// Decide posts a reviewer decision: approve, request-changes, revoke or
// decline.
func (c *Client) Decide(ctx context.Context, id, action string, in workflow.Decision) (Result, error) {
	body := map[string]any{}
	if in.Message != "" {
		body["message"] = in.Message
	}
	if in.ExpectedVersion > 0 {
		body["expectedVersion"] = in.ExpectedVersion
	}
	return call[Result](ctx, c, http.MethodPost, docPath(id, action), body)
}

// Lifecycle posts archive, restore or publish.
func (c *Client) Lifecycle(ctx context.Context, id, action string) (*document.Document, error) {
	return call[*document.Document](ctx, c, http.MethodPost, docPath(id, action), nil)
}

func newBody(in workflow.NewDocument) map[string]string {
	return map[string]string{"projectId": in.ProjectID, "title": in.Title, "body": in.Body}
}
