// Package query 는 스트림별 이벤트 조회 (읽기 전용).
package query

import (
	"context"

	"aicam-ingest/internal/model"
	"aicam-ingest/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Service
//
// 조회 실패를 hard error 로 만들지 않는다.
// 항상 non-nil slice 를 돌려주고, 실패 사유는 두 번째 반환값으로만 전달한다.
type Service struct {
	events store.EventStore

	// OnError 는 store 조회 실패 시 호출된다 (metrics 연결용).
	OnError func(error)
}

func New(events store.EventStore) *Service {
	return &Service{events: events}
}

// ClampLimit 은 limit<=0 이면 기본값, MaxLimit 초과면 MaxLimit 으로 맞춘다.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// ListEvents 는 최신순으로 최대 limit 건을 돌려준다. 모르는 스트림이면 빈 결과.
func (s *Service) ListEvents(ctx context.Context, streamID string, limit int) ([]model.Event, error) {
	if streamID == "" {
		return []model.Event{}, nil
	}

	items, err := s.events.QueryEvents(ctx, streamID, ClampLimit(limit), true)
	if err != nil {
		log.Error().Err(err).Str("stream_id", streamID).Msg("event query failed")
		if s.OnError != nil {
			s.OnError(err)
		}
		return []model.Event{}, err
	}
	if items == nil {
		items = []model.Event{}
	}
	return items, nil
}
