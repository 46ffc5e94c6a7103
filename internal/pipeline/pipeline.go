// Package pipeline 은 clip 1건을 분류하고, 결과에 따라 저장/에스컬레이션한다.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aicam-ingest/internal/blob"
	"aicam-ingest/internal/classifier"
	"aicam-ingest/internal/model"
	"aicam-ingest/internal/notifier"
	"aicam-ingest/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resolver 는 stream id → 설정 조회 (registry.Registry 가 만족).
type Resolver interface {
	Resolve(id string) (model.StreamConfig, error)
}

// Request 는 analyze 호출 1건의 입력.
// Timestamp 가 비어 있으면 호출 시작 시각을 쓴다.
type Request struct {
	StreamID  string
	Video     []byte
	Timestamp string
}

// Pipeline
//
// Classifier → severity 분기 → (blob 저장 → event 저장) → (전화) 순서를 조율한다.
//
// 상태 머신:
//
//	describe ─fail─▶ error(ClassificationError)
//	   │
//	classify ─fail/malformed─▶ degraded(log)
//	   │
//	normal   ─▶ safe
//	log      ─▶ blob ─▶ event ─▶ logged
//	critical ─▶ blob ─▶ event ─▶ phone? ─yes─▶ call ─▶ called
//	                                   └─no──▶ critical-no-call
//
// 분류 이후의 저장/전화 실패는 재시도하지 않고 error outcome 으로 돌려준다.
// 재시도 여부는 호출자(ingestion harness)가 결정한다.
type Pipeline struct {
	streams    Resolver
	classifier classifier.Classifier
	blobs      blob.Store
	events     store.EventStore
	notifier   notifier.Notifier
	blobPrefix string

	now   func() time.Time
	newID func() string
}

func New(
	streams Resolver,
	c classifier.Classifier,
	blobs blob.Store,
	events store.EventStore,
	n notifier.Notifier,
	blobPrefix string,
) *Pipeline {
	return &Pipeline{
		streams:    streams,
		classifier: c,
		blobs:      blobs,
		events:     events,
		notifier:   n,
		blobPrefix: blobPrefix,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Analyze
//
// 항상 model.Result 를 돌려준다. panic 도 경계 밖으로 내보내지 않고 UnknownError 로 바꾼다.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (res model.Result) {
	started := p.now()
	res = model.Result{
		InvocationID: p.newID(),
		StreamID:     req.StreamID,
	}
	lg := log.With().Str("invocation_id", res.InvocationID).Str("stream_id", req.StreamID).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			lg.Error().Interface("panic", rec).Msg("analyze panicked")
			res = res.Failed(model.KindUnknownError, fmt.Errorf("internal error: %v", rec))
		}
		logResult(lg, res)
	}()

	// --------------------------------------------------------------------
	// 사전 조건: 스트림 / payload / timestamp
	// --------------------------------------------------------------------
	cfg, err := p.streams.Resolve(req.StreamID)
	if err != nil {
		return res.Failed(model.KindStreamNotFound, err)
	}
	if len(req.Video) == 0 {
		return res.Failed(model.KindEmptyPayload, model.ErrEmptyPayload)
	}

	ts := model.CanonicalTimestamp(started)
	if strings.TrimSpace(req.Timestamp) != "" {
		if ts, err = model.ParseTimestamp(req.Timestamp); err != nil {
			return res.Failed(model.KindInvalidTimestamp, err)
		}
	}
	res.Timestamp = ts

	// --------------------------------------------------------------------
	// 1) Describe: 실패하면 분류 자체가 불가능 → 치명적
	// --------------------------------------------------------------------
	description, err := p.classifier.Describe(ctx, req.Video, cfg.Context)
	if err != nil {
		return res.Failed(model.KindClassificationError, fmt.Errorf("describe: %w", err))
	}
	res.VideoDescription = description

	// --------------------------------------------------------------------
	// 2) Classify: 실패/형식 위반은 degraded(log) 로 명시적 fallback
	// --------------------------------------------------------------------
	c := p.classify(ctx, lg, description, cfg.Context, &res)
	res.Classification = &c

	// --------------------------------------------------------------------
	// 3) severity 분기
	// --------------------------------------------------------------------
	if c.Severity == model.SeverityNormal {
		res.Outcome = model.OutcomeSafe
		return res
	}

	if kind, err := p.persist(ctx, cfg, ts, req.Video, description, c, &res); err != nil {
		return res.Failed(kind, err)
	}

	if c.Severity != model.SeverityCritical {
		res.Outcome = model.OutcomeLogged
		return res
	}

	if cfg.EscalationPhone == "" {
		res.Outcome = model.OutcomeCriticalNoCall
		return res
	}

	// 이벤트는 이미 durable. 전화 실패는 error outcome 이지만 로그는 남아 있다.
	callID, err := p.notifier.PlaceCall(ctx, cfg.EscalationPhone, ts, c.Summary)
	if err != nil {
		res.FailedStep = model.StepCall
		return res.Failed(model.KindNotificationError, fmt.Errorf("place call: %w", err))
	}
	res.CallID = callID
	res.Outcome = model.OutcomeCalled
	return res
}

func (p *Pipeline) classify(ctx context.Context, lg zerolog.Logger, description, streamContext string, res *model.Result) model.Classification {
	verdict, err := p.classifier.Classify(ctx, description, streamContext)
	switch {
	case err != nil:
		lg.Warn().Err(err).Msg("classify call failed, using degraded classification")
		res.Degraded = true
		return classifier.Degraded(verdict.Raw)
	case verdict.Malformed:
		lg.Warn().Err(verdict.Reason).Str("raw", classifier.Truncate(verdict.Raw, 200)).
			Msg("classifier output malformed, using degraded classification")
		res.Degraded = true
		return classifier.Degraded(verdict.Raw)
	default:
		return verdict.Classification
	}
}

// persist
//
// blob → event 순서로 저장한다.
// blob 저장이 실패하면 event 를 쓰지 않는다 (존재하지 않는 blob 을 가리키는 로그 방지).
// blob Put 은 create-only 이므로 같은 (stream, timestamp) 의 clip 이 이미 있으면
// 기존 clip 을 건드리지 않고 ErrDuplicateEvent 로 거절한다.
func (p *Pipeline) persist(
	ctx context.Context,
	cfg model.StreamConfig,
	ts string,
	video []byte,
	description string,
	c model.Classification,
	res *model.Result,
) (model.ErrorKind, error) {
	key := blob.Key(p.blobPrefix, cfg.ID, ts)
	location, err := p.blobs.Put(ctx, key, video)
	if err != nil {
		res.FailedStep = model.StepBlobPut
		if errors.Is(err, blob.ErrExists) {
			return model.KindStorageError, fmt.Errorf("store clip: %w: %w", model.ErrDuplicateEvent, err)
		}
		return model.KindStorageError, fmt.Errorf("store clip: %w", err)
	}
	res.BlobLocation = location

	ev := model.NewEvent(cfg.ID, ts, c, description, cfg.Context, location)
	if err := p.events.PutEvent(ctx, ev); err != nil {
		res.BlobLocation = ""
		res.FailedStep = model.StepEventPut
		p.orphanCleanup(ctx, key)
		return model.KindStorageError, fmt.Errorf("store event: %w", err)
	}
	res.EventStored = true
	return "", nil
}

// orphanCleanup 은 event 쓰기 실패 후 방금 올린 blob 을 best-effort 로 지운다.
// Put 이 create-only 라서 이 key 의 blob 은 이번 호출이 만든 것이다.
func (p *Pipeline) orphanCleanup(ctx context.Context, key string) {
	if err := p.blobs.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("blob_key", key).Msg("orphan clip cleanup failed")
	}
}

func logResult(lg zerolog.Logger, res model.Result) {
	e := lg.Info()
	if res.Outcome == model.OutcomeError {
		e = lg.Warn().Str("error_kind", string(res.ErrorKind)).Str("error", res.Error)
	}
	if res.Classification != nil {
		e = e.Str("severity", string(res.Classification.Severity)).
			Str("threat_type", res.Classification.ThreatType)
	}
	e.Str("outcome", string(res.Outcome)).
		Str("timestamp", res.Timestamp).
		Bool("degraded", res.Degraded).
		Bool("event_stored", res.EventStored).
		Msg("analyze done")
}
