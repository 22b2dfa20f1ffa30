package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// apiClient talks to a running kotae server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// do sends a request and decodes a JSON response into out. Non-2xx responses
// become errors carrying the server's error message.
func (c *apiClient) do(method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Ask(question string) (*models.QueryResponse, error) {
	body, err := json.Marshal(models.QueryRequest{Query: question})
	if err != nil {
		return nil, err
	}
	var out models.QueryResponse
	if err := c.do(http.MethodPost, "/query", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Upload(path string) (*models.UploadResponse, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out models.UploadResponse
	if err := c.do(http.MethodPost, "/upload", mw.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) History() (*models.HistoryResponse, error) {
	var out models.HistoryResponse
	if err := c.do(http.MethodGet, "/conversation", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) ClearHistory() error {
	return c.do(http.MethodDelete, "/conversation", "", nil, nil)
}

func (c *apiClient) Documents(offset, limit int) ([]*models.StoredDocument, error) {
	var out struct {
		Documents []*models.StoredDocument `json:"documents"`
	}
	path := fmt.Sprintf("/documents?offset=%d&limit=%d", offset, limit)
	if err := c.do(http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *apiClient) Status() (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(http.MethodGet, "/status", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
