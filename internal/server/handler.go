package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"aicam-ingest/internal/config"
	"aicam-ingest/internal/metrics"
	"aicam-ingest/internal/model"
	"aicam-ingest/internal/pipeline"
	"aicam-ingest/internal/pool"
	"aicam-ingest/internal/query"
	"aicam-ingest/internal/registry"
	"aicam-ingest/internal/transcode"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Analyzer 는 clip 1건을 분석한다 (pipeline.Pipeline 이 만족).
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) model.Result
}

// Transcoder 는 업로드 clip 을 MP4 로 바꾼다. nil 이면 변환 없이 원본을 쓴다.
type Transcoder interface {
	ToMP4(ctx context.Context, data []byte) transcode.Result
}

type Handler struct {
	cfg        config.Config
	metrics    *metrics.Metrics
	streams    *registry.Registry
	analyzer   Analyzer
	events     *query.Service
	transcoder Transcoder
}

func NewHandler(
	cfg config.Config,
	m *metrics.Metrics,
	streams *registry.Registry,
	analyzer Analyzer,
	events *query.Service,
	transcoder Transcoder,
) *Handler {
	return &Handler{
		cfg:        cfg,
		metrics:    m,
		streams:    streams,
		analyzer:   analyzer,
		events:     events,
		transcoder: transcoder,
	}
}

// Routes
//
//	POST   /streams          스트림 등록
//	GET    /streams          활성 스트림 목록
//	GET    /streams/{id}     스트림 설정 조회
//	DELETE /streams/{id}     스트림 + 이벤트 + clip 삭제
//	POST   /analyze          clip 분석 (body = 영상 bytes)
//	GET    /events           이벤트 조회 (최신순)
//	GET    /health           ALB health check
//	GET    /metrics          prometheus
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /streams", h.HandleRegister)
	mux.HandleFunc("GET /streams", h.HandleListStreams)
	mux.HandleFunc("GET /streams/{id}", h.HandleGetStream)
	mux.HandleFunc("DELETE /streams/{id}", h.HandleDeregister)
	mux.HandleFunc("POST /analyze", h.HandleAnalyze)
	mux.HandleFunc("GET /events", h.HandleEvents)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /metrics", h.metrics.Handler())
	return accessLog(mux)
}

// ============================================================================
// Streams
// ============================================================================

type registerRequest struct {
	ID              string `json:"id"`
	Context         string `json:"context"`
	EscalationPhone string `json:"escalation_phone_number"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	defer r.Body.Close()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	cfg, err := h.streams.Register(r.Context(), req.ID, req.Context, req.EscalationPhone)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) HandleListStreams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.streams.List()})
}

func (h *Handler) HandleGetStream(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.streams.Resolve(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) HandleDeregister(w http.ResponseWriter, r *http.Request) {
	if err := h.streams.Deregister(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Analyze
// ============================================================================

// HandleAnalyze
//
// POST /analyze?stream_id=<id>[&timestamp=<RFC3339>]
// body 는 영상 bytes 그대로 (multipart 아님).
//
// 공통 동작:
//  1. 요청 길이 제한(MaxBodySize), BodyPool 버퍼로 읽기
//  2. (옵션) ffmpeg 변환. 실패하면 원본 그대로
//  3. AnalyzeTimeout 을 건 context 로 pipeline 호출
//  4. Result 를 그대로 JSON 으로 응답. error outcome 이면 kind 에 맞는 status
//
// Result 는 항상 well-formed 이므로, 호출 장치는 status 와 body 만 보고 재시도를 결정한다.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.HTTPRequestsRejectedBodyTooLarge.Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "clip exceeds MAX_BODY_SIZE")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.AnalyzeTimeout)
	defer cancel()

	video := buf.Bytes()
	if h.transcoder != nil && len(video) > 0 {
		tr := h.transcoder.ToMP4(ctx, video)
		if !tr.Converted {
			h.metrics.TranscodeFallbacks.Inc()
		}
		video = tr.Data
	}

	q := r.URL.Query()
	res := h.analyzer.Analyze(ctx, pipeline.Request{
		StreamID:  q.Get("stream_id"),
		Video:     video,
		Timestamp: q.Get("timestamp"),
	})
	h.metrics.ObserveResult(res)

	writeJSON(w, statusForResult(res), res)
}

// ============================================================================
// Events
// ============================================================================

type eventsResponse struct {
	Items []model.Event `json:"items"`
	Error string        `json:"error,omitempty"`
}

// HandleEvents
//
// GET /events?stream_id=<id>&limit=<n>
// 조회 실패는 빈 items + error 문자열 (status 500). 잘못된 limit 은 기본값으로 처리한다.
// Accept-Encoding 에 gzip 이 있으면 압축해서 내려준다.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.events.ListEvents(r.Context(), q.Get("stream_id"), limit)
	status := http.StatusOK
	resp := eventsResponse{Items: items}
	if err != nil {
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	}

	body, mErr := json.Marshal(resp)
	if mErr != nil {
		writeError(w, http.StatusInternalServerError, mErr.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")
	if !acceptsGzip(r) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	out := pool.GetBuffer()
	defer pool.PutBuffer(out)
	if err := pool.Gzip(out, body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(status)
	_, _ = w.Write(out.Bytes())
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// helpers
// ============================================================================

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func statusForResult(res model.Result) int {
	if res.Outcome != model.OutcomeError {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case model.KindStreamNotFound:
		return http.StatusNotFound
	case model.KindEmptyPayload, model.KindInvalidTimestamp:
		return http.StatusBadRequest
	case model.KindClassificationError, model.KindStorageError, model.KindNotificationError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
