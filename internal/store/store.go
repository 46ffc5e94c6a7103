// Package store 는 스트림 메타데이터와 스트림별 이벤트 로그의 durable 저장소다.
package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"aicam-ingest/internal/model"
)

// EventStore
//
// 메타데이터 파티션: stream_id 당 레코드 1개.
// 이벤트 파티션: (stream_id, timestamp) 키, 스트림 내에서 timestamp 순으로 조회 가능.
//
// 구현체는 단일 키 쓰기에 대해 원자성을 보장해야 한다.
//   - PutMetadata: 이미 존재하면 model.ErrAlreadyExists (덮어쓰지 않음)
//   - PutEvent:    같은 (stream_id, timestamp) 가 있으면 model.ErrDuplicateEvent
//   - GetMetadata: 없으면 (zero, false, nil)
type EventStore interface {
	PutMetadata(ctx context.Context, cfg model.StreamConfig) error
	GetMetadata(ctx context.Context, streamID string) (model.StreamConfig, bool, error)
	ListMetadata(ctx context.Context) ([]model.StreamConfig, error)
	DeleteMetadata(ctx context.Context, streamID string) error

	PutEvent(ctx context.Context, ev model.Event) error
	QueryEvents(ctx context.Context, streamID string, limit int, newestFirst bool) ([]model.Event, error)
	DeleteEvent(ctx context.Context, streamID, timestamp string) error

	Close() error
}

// confidenceScale
//
// confidence 는 저장소 종류와 무관하게 소수점 4자리 고정 decimal 문자열 하나로 저장한다.
// DynamoDB Number 와 SQLite TEXT 가 같은 표현을 쓰므로 backend 간 이동 시에도 값이 변하지 않는다.
const confidenceScale = 4

// FormatConfidence 는 [0,1] 범위로 clamp 한 뒤 고정 소수점 문자열로 만든다.
func FormatConfidence(c float64) string {
	if math.IsNaN(c) {
		c = 0
	}
	c = math.Max(0, math.Min(1, c))
	return strconv.FormatFloat(c, 'f', confidenceScale, 64)
}

// ParseConfidence 는 FormatConfidence 의 역변환.
func ParseConfidence(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse confidence %q: %w", s, err)
	}
	return f, nil
}
