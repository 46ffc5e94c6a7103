package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"aicam-ingest/internal/blob"
	"aicam-ingest/internal/model"
	"aicam-ingest/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDelete struct {
	*blob.FSStore
}

func (failingDelete) Delete(context.Context, string) error {
	return errors.New("access denied")
}

func newTestDeps(t *testing.T) (*store.SQLiteStore, *blob.FSStore) {
	t.Helper()
	events, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	return events, blobs
}

// seedEvent 는 blob 과 event 를 파이프라인과 같은 순서로 저장한다.
func seedEvent(t *testing.T, events store.EventStore, blobs blob.Store, streamID string, at time.Time) (string, model.Event) {
	t.Helper()
	ctx := context.Background()
	ts := model.CanonicalTimestamp(at)
	key := blob.Key("clips", streamID, ts)
	loc, err := blobs.Put(ctx, key, []byte("mp4"))
	require.NoError(t, err)

	ev := model.NewEvent(streamID, ts, model.Classification{
		Severity: model.SeverityLog, ThreatType: model.ThreatIntrusion, Summary: "door forced", Confidence: 0.7,
	}, "a person forces a door", "back door", loc)
	require.NoError(t, events.PutEvent(ctx, ev))
	return key, ev
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "+15550000")

	cfg, err := r.Register(ctx, " lobby ", "store entrance", "")
	require.NoError(t, err)
	assert.Equal(t, "lobby", cfg.ID)
	assert.Equal(t, "+15550000", cfg.EscalationPhone, "empty phone falls back to the default")

	got, err := r.Resolve("lobby")
	require.NoError(t, err)
	assert.Equal(t, "store entrance", got.Context)

	stored, ok, err := events.GetMetadata(ctx, "lobby")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "+15550000", stored.EscalationPhone)

	cfg, err = r.Register(ctx, "garage", "", "+15551234")
	require.NoError(t, err)
	assert.Equal(t, "+15551234", cfg.EscalationPhone)

	ids := []string{}
	for _, c := range r.List() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"garage", "lobby"}, ids)
}

func TestRegister_NoDefaultPhone(t *testing.T) {
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	cfg, err := r.Register(context.Background(), "lobby", "", "")
	require.NoError(t, err)
	assert.Empty(t, cfg.EscalationPhone)
}

func TestRegister_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	_, err := r.Register(ctx, "lobby", "store entrance", "+15550001")
	require.NoError(t, err)

	_, err = r.Register(ctx, "lobby", "something else", "+15559999")
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	got, err := r.Resolve("lobby")
	require.NoError(t, err)
	assert.Equal(t, "store entrance", got.Context)
	assert.Equal(t, "+15550001", got.EscalationPhone)
}

func TestRegister_AlreadyExistsInStore(t *testing.T) {
	ctx := context.Background()
	events, blobs := newTestDeps(t)

	// 다른 프로세스가 먼저 등록한 경우: cache 에는 없지만 조건부 쓰기가 막는다.
	require.NoError(t, events.PutMetadata(ctx, model.StreamConfig{ID: "lobby", CreatedAt: time.Now().UTC()}))

	r := New(events, blobs, "")
	_, err := r.Register(ctx, "lobby", "", "")
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	_, err = r.Resolve("lobby")
	assert.ErrorIs(t, err, model.ErrStreamNotFound)
}

func TestRegister_EmptyID(t *testing.T) {
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	_, err := r.Register(context.Background(), "  ", "", "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestResolve_NotFound(t *testing.T) {
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	_, err := r.Resolve("nope")
	assert.ErrorIs(t, err, model.ErrStreamNotFound)
}

func TestDeregister(t *testing.T) {
	ctx := context.Background()
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	_, err := r.Register(ctx, "lobby", "store entrance", "")
	require.NoError(t, err)
	_, err = r.Register(ctx, "garage", "", "")
	require.NoError(t, err)

	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	var keys []string
	// deleteBatch 보다 많이 넣어서 여러 번 나눠 지우는 경로를 탄다.
	for i := 0; i < deleteBatch+5; i++ {
		key, _ := seedEvent(t, events, blobs, "lobby", base.Add(time.Duration(i)*time.Second))
		keys = append(keys, key)
	}
	otherKey, _ := seedEvent(t, events, blobs, "garage", base)

	require.NoError(t, r.Deregister(ctx, "lobby"))

	left, err := events.QueryEvents(ctx, "lobby", 1000, false)
	require.NoError(t, err)
	assert.Empty(t, left)
	for _, k := range []string{keys[0], keys[len(keys)-1]} {
		assert.False(t, blobs.Exists(k), k)
	}

	_, ok, err := events.GetMetadata(ctx, "lobby")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = r.Resolve("lobby")
	assert.ErrorIs(t, err, model.ErrStreamNotFound)

	// 다른 스트림은 그대로
	others, err := events.QueryEvents(ctx, "garage", 10, false)
	require.NoError(t, err)
	assert.Len(t, others, 1)
	assert.True(t, blobs.Exists(otherKey))

	// 재등록 가능
	_, err = r.Register(ctx, "lobby", "", "")
	assert.NoError(t, err)
}

func TestDeregister_BlobDeleteFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	events, fs := newTestDeps(t)
	blobs := failingDelete{fs}
	r := New(events, blobs, "")

	var failures int
	r.OnBlobDeleteError = func(error) { failures++ }

	_, err := r.Register(ctx, "lobby", "", "")
	require.NoError(t, err)
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	seedEvent(t, events, blobs, "lobby", base)
	seedEvent(t, events, blobs, "lobby", base.Add(time.Second))

	require.NoError(t, r.Deregister(ctx, "lobby"))
	assert.Equal(t, 2, failures)

	left, err := events.QueryEvents(ctx, "lobby", 10, false)
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = r.Resolve("lobby")
	assert.ErrorIs(t, err, model.ErrStreamNotFound)
}

func TestDeregister_NotFound(t *testing.T) {
	events, blobs := newTestDeps(t)
	r := New(events, blobs, "")

	err := r.Deregister(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrStreamNotFound)
}

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	events, blobs := newTestDeps(t)

	first := New(events, blobs, "")
	_, err := first.Register(ctx, "lobby", "store entrance", "+15550001")
	require.NoError(t, err)
	_, err = first.Register(ctx, "garage", "", "")
	require.NoError(t, err)

	second := New(events, blobs, "")
	n, err := second.Rehydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := second.Resolve("lobby")
	require.NoError(t, err)
	assert.Equal(t, "+15550001", got.EscalationPhone)

	_, err = second.Register(ctx, "lobby", "", "")
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}
