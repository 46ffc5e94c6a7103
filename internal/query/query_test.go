package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"aicam-ingest/internal/model"
	"aicam-ingest/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	*store.SQLiteStore
}

func (brokenStore) QueryEvents(context.Context, string, int, bool) ([]model.Event, error) {
	return nil, errors.New("table not found")
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s store.EventStore, streamID string, n int) {
	t.Helper()
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := model.CanonicalTimestamp(base.Add(time.Duration(i) * 1500 * time.Millisecond))
		ev := model.NewEvent(streamID, ts, model.Classification{
			Severity: model.SeverityLog, ThreatType: model.ThreatOther, Summary: "s", Confidence: 0.5,
		}, "d", "", "file://clips/x/"+ts+".mp4")
		require.NoError(t, s.PutEvent(context.Background(), ev))
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{1, 1},
		{250, 250},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), tt.in)
	}
}

func TestListEvents_NewestFirst(t *testing.T) {
	s := newStore(t)
	seed(t, s, "lobby", 5)
	seed(t, s, "garage", 2)

	items, err := New(s).ListEvents(context.Background(), "lobby", 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Greater(t, items[0].Timestamp, items[1].Timestamp)
	assert.Greater(t, items[1].Timestamp, items[2].Timestamp)
	for _, ev := range items {
		assert.Equal(t, "lobby", ev.StreamID)
	}
}

func TestListEvents_UnknownStreamIsEmpty(t *testing.T) {
	s := newStore(t)

	items, err := New(s).ListEvents(context.Background(), "nope", 0)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = New(s).ListEvents(context.Background(), "", 10)
	require.NoError(t, err)
	assert.NotNil(t, items)
}

func TestListEvents_StoreFailureDegrades(t *testing.T) {
	q := New(brokenStore{newStore(t)})
	var seen error
	q.OnError = func(err error) { seen = err }

	items, err := q.ListEvents(context.Background(), "lobby", 10)
	assert.Error(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, err, seen)
}
