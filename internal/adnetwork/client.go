// Package adnetwork talks to the advertising network's REST API: offline
// conversion uploads and the OAuth flow that links destination accounts.
package adnetwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"
)

// RowError is an API-reported problem with one uploaded row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// UploadResult is the API's verdict on a batch.
type UploadResult struct {
	RowErrors []RowError `json:"row_errors"`
}

// Uploader submits a named file as a new offline-conversion batch for a
// sub-account. Row-level errors come back inline with the response.
type Uploader interface {
	Upload(ctx context.Context, destAccountID, filename string, data []byte, accessToken string) (*UploadResult, error)
}

// Client implements Uploader against the network's REST endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient constructs an upload client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// Upload POSTs the batch as a multipart file.
func (c *Client) Upload(ctx context.Context, destAccountID, filename string, data []byte, accessToken string) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/offline-conversions/%s/uploads", c.BaseURL, destAccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload api: unexpected status %d", resp.StatusCode)
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload api: decode: %w", err)
	}
	return &out, nil
}
