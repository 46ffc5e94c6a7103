package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"aicam-ingest/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(streamID string, at time.Time, sev model.Severity) model.Event {
	return model.Event{
		StreamID:         streamID,
		Timestamp:        model.CanonicalTimestamp(at),
		Severity:         sev,
		ThreatType:       model.ThreatFire,
		Summary:          "visible flames",
		Confidence:       0.95,
		SuggestedAction:  "call fire department",
		VideoDescription: "smoke rising near the door",
		Context:          "store entrance",
		BlobLocation:     "clips/lobby/x.mp4",
	}
}

func TestSQLite_Metadata(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	created := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	cfg := model.StreamConfig{ID: "lobby", Context: "store entrance", EscalationPhone: "+15550100", CreatedAt: created}
	require.NoError(t, s.PutMetadata(ctx, cfg))

	t.Run("get returns stored config", func(t *testing.T) {
		got, ok, err := s.GetMetadata(ctx, "lobby")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cfg, got)
	})

	t.Run("duplicate put is rejected and does not overwrite", func(t *testing.T) {
		err := s.PutMetadata(ctx, model.StreamConfig{ID: "lobby", Context: "other", CreatedAt: created})
		require.ErrorIs(t, err, model.ErrAlreadyExists)

		got, _, err := s.GetMetadata(ctx, "lobby")
		require.NoError(t, err)
		assert.Equal(t, "store entrance", got.Context)
	})

	t.Run("missing stream", func(t *testing.T) {
		_, ok, err := s.GetMetadata(ctx, "garage")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, s.PutMetadata(ctx, model.StreamConfig{ID: "garage", CreatedAt: created}))
		all, err := s.ListMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "garage", all[0].ID)

		require.NoError(t, s.DeleteMetadata(ctx, "garage"))
		_, ok, err := s.GetMetadata(ctx, "garage")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSQLite_EventsOrderingAndLimit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

	// 소수점 자리수가 다른 timestamp 도 문자열 정렬 = 시간 정렬이어야 한다
	offsets := []time.Duration{0, 500 * time.Millisecond, time.Second, 1500 * time.Microsecond, 10 * time.Second}
	for _, off := range offsets {
		require.NoError(t, s.PutEvent(ctx, testEvent("lobby", base.Add(off), model.SeverityLog)))
	}
	require.NoError(t, s.PutEvent(ctx, testEvent("garage", base, model.SeverityCritical)))

	newest, err := s.QueryEvents(ctx, "lobby", 3, true)
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, model.CanonicalTimestamp(base.Add(10*time.Second)), newest[0].Timestamp)
	assert.Equal(t, model.CanonicalTimestamp(base.Add(time.Second)), newest[1].Timestamp)
	assert.Equal(t, model.CanonicalTimestamp(base.Add(500*time.Millisecond)), newest[2].Timestamp)

	oldest, err := s.QueryEvents(ctx, "lobby", 100, false)
	require.NoError(t, err)
	require.Len(t, oldest, len(offsets))
	assert.Equal(t, model.CanonicalTimestamp(base), oldest[0].Timestamp)

	none, err := s.QueryEvents(ctx, "unknown", 10, true)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestSQLite_EventRoundTripAndDuplicate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	ev := testEvent("lobby", time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC), model.SeverityCritical)
	ev.Confidence = 0.123456

	require.NoError(t, s.PutEvent(ctx, ev))
	err := s.PutEvent(ctx, ev)
	require.ErrorIs(t, err, model.ErrDuplicateEvent)

	got, err := s.QueryEvents(ctx, "lobby", 1, true)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := ev
	want.Confidence = 0.1235 // 4자리 고정 소수점으로 정규화
	assert.Equal(t, want, got[0])

	require.NoError(t, s.DeleteEvent(ctx, "lobby", ev.Timestamp))
	got, err = s.QueryEvents(ctx, "lobby", 1, true)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.95, "0.9500"},
		{1, "1.0000"},
		{0, "0.0000"},
		{1.7, "1.0000"},
		{-0.2, "0.0000"},
		{0.33333, "0.3333"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, FormatConfidence(tt.in))
		})
	}

	_, err := ParseConfidence("high")
	assert.Error(t, err)
}
