// Package apiclient 는 aicam ingest 서버의 HTTP API 클라이언트 (aicamctl 용).
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"aicam-ingest/internal/model"

	json "github.com/goccy/go-json"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError 는 2xx 가 아닌 응답.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type RegisterRequest struct {
	ID              string `json:"id"`
	Context         string `json:"context,omitempty"`
	EscalationPhone string `json:"escalation_phone_number,omitempty"`
}

func (c *Client) RegisterStream(ctx context.Context, req RegisterRequest) (model.StreamConfig, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.StreamConfig{}, err
	}
	var out model.StreamConfig
	err = c.do(ctx, http.MethodPost, "/streams", "application/json", bytes.NewReader(body), &out)
	return out, err
}

func (c *Client) GetStream(ctx context.Context, id string) (model.StreamConfig, error) {
	var out model.StreamConfig
	err := c.do(ctx, http.MethodGet, "/streams/"+url.PathEscape(id), "", nil, &out)
	return out, err
}

func (c *Client) ListStreams(ctx context.Context) ([]model.StreamConfig, error) {
	var out struct {
		Items []model.StreamConfig `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/streams", "", nil, &out)
	return out.Items, err
}

func (c *Client) DeleteStream(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/streams/"+url.PathEscape(id), "", nil, nil)
}

// Analyze
//
// error outcome 도 Result 로 돌려준다 (서버가 4xx/5xx 와 함께 Result body 를 준다).
// Result 를 해석할 수 없는 응답만 error 다.
func (c *Client) Analyze(ctx context.Context, streamID, timestamp string, video []byte) (model.Result, error) {
	q := url.Values{"stream_id": {streamID}}
	if timestamp != "" {
		q.Set("timestamp", timestamp)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze?"+q.Encode(), bytes.NewReader(video))
	if err != nil {
		return model.Result{}, err
	}
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Result{}, fmt.Errorf("read analyze response: %w", err)
	}
	var res model.Result
	if err := json.Unmarshal(body, &res); err != nil || res.Outcome == "" {
		return model.Result{}, apiError(resp.StatusCode, body)
	}
	return res, nil
}

type EventsPage struct {
	Items []model.Event `json:"items"`
	Error string        `json:"error,omitempty"`
}

// ListEvents 는 서버의 조회 실패(500 + error 필드)를 error 로 바꿔 돌려준다.
func (c *Client) ListEvents(ctx context.Context, streamID string, limit int) ([]model.Event, error) {
	q := url.Values{"stream_id": {streamID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page EventsPage
	err := c.do(ctx, http.MethodGet, "/events?"+q.Encode(), "", nil, &page)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &APIError{Status: status, Message: msg}
}
