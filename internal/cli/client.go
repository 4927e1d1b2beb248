// Package cli implements the streamctl command line client.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	httpapi "github.com/arkilian/streamcatalog/internal/api/http"
	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// Client talks to the stream catalog HTTP API. It implements the same
// StreamService surface the server exposes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ httpapi.StreamService = (*Client)(nil)

// GetStream fetches one stream descriptor.
func (c *Client) GetStream(ctx context.Context, org, name string, streamType types.StreamType) (types.StreamDescriptor, error) {
	var desc types.StreamDescriptor
	q := url.Values{"type": {string(streamType)}}
	err := c.do(ctx, http.MethodGet, c.streamPath(org, name), q, nil, &desc)
	return desc, err
}

// ListStreams lists the streams of an org, optionally filtered by type.
func (c *Client) ListStreams(ctx context.Context, org string, streamType *types.StreamType, fetchSchema bool) ([]types.StreamDescriptor, error) {
	q := url.Values{"fetch_schema": {strconv.FormatBool(fetchSchema)}}
	if streamType != nil {
		q.Set("type", string(*streamType))
	}
	var resp httpapi.ListStreamsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/"+url.PathEscape(org)+"/streams", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.List, nil
}

// DeleteStream deletes a stream.
func (c *Client) DeleteStream(ctx context.Context, org, name string, streamType types.StreamType) error {
	q := url.Values{"type": {string(streamType)}}
	return c.do(ctx, http.MethodDelete, c.streamPath(org, name), q, nil, nil)
}

// SaveSettings replaces the settings of a stream.
func (c *Client) SaveSettings(ctx context.Context, org, name string, streamType types.StreamType, settings types.StreamSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("cli: failed to encode settings: %w", err)
	}
	q := url.Values{"type": {string(streamType)}}
	return c.do(ctx, http.MethodPut, c.streamPath(org, name)+"/settings", q, body, nil)
}

func (c *Client) streamPath(org, name string) string {
	return "/v1/" + url.PathEscape(org) + "/streams/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return fmt.Errorf("cli: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cli: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cli: failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an API error body back into the catalog error taxonomy.
func decodeError(resp *http.Response) error {
	var e httpapi.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		e.Error = resp.Status
	}

	switch {
	case e.Code == errs.CodeStreamNotFound:
		return errs.New(errs.ErrCategoryNotFound, e.Code, e.Error)
	case e.Code == errs.CodeStreamDeleting:
		return errs.New(errs.ErrCategoryConflict, e.Code, e.Error)
	case e.Code == errs.CodeMalformedSettings || e.Code == errs.CodeInvalidArgument:
		return errs.New(errs.ErrCategoryValidation, e.Code, e.Error)
	case e.Stage != "":
		ce := errs.New(errs.ErrCategorySubsystem, errs.CodeStageFailed, e.Error)
		ce.Stage = e.Stage
		return ce
	}
	return fmt.Errorf("cli: server returned %s: %s", resp.Status, e.Error)
}
