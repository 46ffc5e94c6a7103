// Package registry 는 활성 스트림과 그 설정을 관리한다.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"aicam-ingest/internal/blob"
	"aicam-ingest/internal/model"
	"aicam-ingest/internal/store"

	"github.com/rs/zerolog/log"
)

// deleteBatch 는 스트림 삭제 시 한 번에 읽어오는 이벤트 수.
const deleteBatch = 100

// Registry
//
// 활성 스트림의 in-memory cache + durable 메타데이터.
//   - 모든 변경은 durable write 가 성공한 뒤에만 cache 에 반영된다.
//   - cache 는 프로세스 수명 동안 유지되며 만료되지 않는다.
//   - I/O 중에는 lock 을 잡지 않는다. 같은 id 에 대한 동시 Register/Deregister 는
//     store 의 단일 키 원자성에만 의존한다.
type Registry struct {
	events       store.EventStore
	blobs        blob.Store
	defaultPhone string
	now          func() time.Time

	// OnBlobDeleteError 는 best-effort blob 삭제 실패 시 호출된다 (metrics 연결용).
	OnBlobDeleteError func(error)

	mu      sync.RWMutex
	streams map[string]model.StreamConfig
}

// New 는 빈 cache 로 Registry 를 만든다. 기존 스트림은 Rehydrate 로 불러온다.
func New(events store.EventStore, blobs blob.Store, defaultPhone string) *Registry {
	return &Registry{
		events:       events,
		blobs:        blobs,
		defaultPhone: strings.TrimSpace(defaultPhone),
		now:          time.Now,
		streams:      make(map[string]model.StreamConfig),
	}
}

// Rehydrate 는 durable 메타데이터를 cache 로 읽어들인다 (프로세스 시작 시 1회).
func (r *Registry) Rehydrate(ctx context.Context) (int, error) {
	cfgs, err := r.events.ListMetadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("rehydrate registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range cfgs {
		r.streams[cfg.ID] = cfg
	}
	return len(cfgs), nil
}

// Register
//
// 새 스트림을 등록한다. 이미 활성인 id 면 ErrAlreadyExists (upsert 아님, 기존 설정은 그대로).
// phone 이 비어 있으면 프로세스 기본 번호를 쓴다.
func (r *Registry) Register(ctx context.Context, id, streamContext, phone string) (model.StreamConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.StreamConfig{}, fmt.Errorf("%w: stream id is required", model.ErrInvalidArgument)
	}

	if _, ok := r.lookup(id); ok {
		return model.StreamConfig{}, fmt.Errorf("register %s: %w", id, model.ErrAlreadyExists)
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = r.defaultPhone
	}
	cfg := model.StreamConfig{
		ID:              id,
		Context:         strings.TrimSpace(streamContext),
		EscalationPhone: phone,
		CreatedAt:       r.now().UTC(),
	}

	// durable write 먼저. 다른 프로세스가 같은 id 를 먼저 등록했다면 조건부 쓰기가 막는다.
	if err := r.events.PutMetadata(ctx, cfg); err != nil {
		return model.StreamConfig{}, fmt.Errorf("register %s: %w", id, err)
	}

	r.mu.Lock()
	r.streams[id] = cfg
	r.mu.Unlock()

	log.Info().Str("stream_id", id).Bool("escalation", phone != "").Msg("stream registered")
	return cfg, nil
}

// Resolve 는 cache 만 읽는다.
func (r *Registry) Resolve(id string) (model.StreamConfig, error) {
	cfg, ok := r.lookup(id)
	if !ok {
		return model.StreamConfig{}, fmt.Errorf("resolve %s: %w", id, model.ErrStreamNotFound)
	}
	return cfg, nil
}

// List 는 활성 스트림을 id 순으로 돌려준다.
func (r *Registry) List() []model.StreamConfig {
	r.mu.RLock()
	out := make([]model.StreamConfig, 0, len(r.streams))
	for _, cfg := range r.streams {
		out = append(out, cfg)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deregister
//
// 순서:
//  1. 스트림의 모든 이벤트 삭제 (각 이벤트의 blob 은 best-effort 삭제, 실패는 로그만)
//  2. 메타데이터 삭제
//  3. cache 에서 제거
//
// 1, 2 가 실패하면 cache 는 그대로 두고 에러를 돌려준다 (재시도하면 이어서 지운다).
func (r *Registry) Deregister(ctx context.Context, id string) error {
	if _, ok := r.lookup(id); !ok {
		return fmt.Errorf("deregister %s: %w", id, model.ErrStreamNotFound)
	}

	deleted, err := r.purgeEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("deregister %s: %w", id, err)
	}
	if err := r.events.DeleteMetadata(ctx, id); err != nil {
		return fmt.Errorf("deregister %s: %w", id, err)
	}

	r.mu.Lock()
	delete(r.streams, id)
	r.mu.Unlock()

	log.Info().Str("stream_id", id).Int("events_deleted", deleted).Msg("stream deregistered")
	return nil
}

func (r *Registry) purgeEvents(ctx context.Context, id string) (int, error) {
	total := 0
	for {
		batch, err := r.events.QueryEvents(ctx, id, deleteBatch, false)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		for _, ev := range batch {
			if ev.BlobLocation != "" {
				r.deleteBlob(ctx, ev)
			}
			if err := r.events.DeleteEvent(ctx, id, ev.Timestamp); err != nil {
				return total, err
			}
			total++
		}
	}
}

// deleteBlob 은 실패해도 스트림 삭제를 막지 않는다.
func (r *Registry) deleteBlob(ctx context.Context, ev model.Event) {
	key, err := blob.KeyFromLocation(ev.BlobLocation)
	if err == nil {
		err = r.blobs.Delete(ctx, key)
	}
	if err == nil {
		return
	}
	log.Warn().Err(err).
		Str("stream_id", ev.StreamID).
		Str("timestamp", ev.Timestamp).
		Str("blob_location", ev.BlobLocation).
		Msg("blob delete failed, continuing teardown")
	if r.OnBlobDeleteError != nil {
		r.OnBlobDeleteError(err)
	}
}

func (r *Registry) lookup(id string) (model.StreamConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.streams[id]
	return cfg, ok
}
