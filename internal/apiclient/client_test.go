package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aicam-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestRegisterStream(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/streams", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id":"lobby","context":"store entrance"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"lobby","context":"store entrance","escalation_phone_number":"+15550000"}`))
	})

	cfg, err := c.RegisterStream(context.Background(), RegisterRequest{ID: "lobby", Context: "store entrance"})
	require.NoError(t, err)
	assert.Equal(t, "+15550000", cfg.EscalationPhone)
}

func TestGetStream_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/streams/back door", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"resolve back door: stream not found"}`))
	})

	_, err := c.GetStream(context.Background(), "back door")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "stream not found")
}

func TestDeleteStream(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.DeleteStream(context.Background(), "lobby"))
}

func TestAnalyze(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lobby", r.URL.Query().Get("stream_id"))
		assert.Equal(t, "2024-10-01T12:00:00Z", r.URL.Query().Get("timestamp"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "mp4", string(body))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"outcome":"error","error_kind":"NotificationError","event_stored":true}`))
	})

	res, err := c.Analyze(context.Background(), "lobby", "2024-10-01T12:00:00Z", []byte("mp4"))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeError, res.Outcome)
	assert.Equal(t, model.KindNotificationError, res.ErrorKind)
	assert.True(t, res.EventStored)
}

func TestAnalyze_NonResultBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"error":"clip exceeds MAX_BODY_SIZE"}`))
	})

	_, err := c.Analyze(context.Background(), "lobby", "", []byte("mp4"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
}

func TestListEvents(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"stream_id":"lobby","timestamp":"2024-10-01T12:00:00.000000000Z","severity":"log"}]}`))
	})

	items, err := c.ListEvents(context.Background(), "lobby", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.SeverityLog, items[0].Severity)
}

func TestListEvents_ServerFailure(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"items":[],"error":"table not found"}`))
	})

	_, err := c.ListEvents(context.Background(), "lobby", 0)
	assert.ErrorContains(t, err, "table not found")
}
