package masterdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Result is the raw outcome of one batch write.
type Result struct {
	Status int
	Body   json.RawMessage
}

// Writer performs a single-batch write of rows into table.
// A returned error is a transport failure; any response is a Result.
type Writer interface {
	Write(ctx context.Context, table string, rows []Row) (Result, error)
}

type httpWriter struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPWriter creates a Writer posting batches to the master-data REST API.
func NewHTTPWriter(cfg *Config, client *http.Client) Writer {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpWriter{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

func (w *httpWriter) Write(ctx context.Context, table string, rows []Row) (Result, error) {
	body, err := json.Marshal(map[string]any{"rows": rows})
	if err != nil {
		return Result{}, fmt.Errorf("encode rows: %w", err)
	}

	endpoint := fmt.Sprintf("%s/tables/%s/rows", w.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	return Result{Status: resp.StatusCode, Body: payload(resp.StatusCode, raw)}, nil
}

// payload keeps JSON bodies verbatim and wraps anything else with its status.
func payload(status int, raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}

	wrapped, _ := json.Marshal(struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}{status, string(raw)})
	return wrapped
}
