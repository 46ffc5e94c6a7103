package metrics

import (
	"net/http"

	"aicam-ingest/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 는 서버 상태를 나타내는 카운터 모음이다.
// 프로세스마다 별도 registry 를 써서 테스트끼리 전역 등록이 충돌하지 않게 한다.
type Metrics struct {
	registry *prometheus.Registry

	// AnalyzeOutcomes
	// - analyze 호출 결과별 카운트 (safe / logged / called / critical-no-call / error).
	// - error 비율이 튀면 Bedrock / DynamoDB / S3 / Vapi 중 하나가 불안정하다는 신호.
	AnalyzeOutcomes *prometheus.CounterVec

	// AnalyzeErrors
	// - error outcome 의 원인(kind)별 카운트.
	AnalyzeErrors *prometheus.CounterVec

	// ClassificationsDegraded
	// - 모델 출력이 JSON 계약을 지키지 않아 fallback(log) 분류가 쓰인 횟수.
	// - 프롬프트/모델 버전 변경 직후 이 값이 늘면 프롬프트 회귀를 의심한다.
	ClassificationsDegraded prometheus.Counter

	BlobPutErrors    prometheus.Counter
	BlobDeleteErrors prometheus.Counter // 스트림 삭제 중 blob 삭제 실패 (best-effort, 전파 안 함)
	EventPutErrors   prometheus.Counter
	CallsPlaced      prometheus.Counter
	CallErrors       prometheus.Counter
	QueryErrors      prometheus.Counter

	// TranscodeFallbacks
	// - ffmpeg 변환이 불가능해서 원본 bytes 로 분석한 횟수.
	TranscodeFallbacks prometheus.Counter

	// HTTPRequestsRejectedBodyTooLarge
	// - 업로드 clip 이 MaxBodySize 를 초과해서 413 으로 거절된 요청 수.
	HTTPRequestsRejectedBodyTooLarge prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aicam", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}

	m := &Metrics{
		registry: reg,
		AnalyzeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aicam",
			Name:      "analyze_outcomes_total",
			Help:      "Analyze invocations by terminal outcome",
		}, []string{"outcome"}),
		AnalyzeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aicam",
			Name:      "analyze_errors_total",
			Help:      "Analyze invocations that ended in error, by error kind",
		}, []string{"kind"}),
		ClassificationsDegraded:          f("classifications_degraded_total", "Classifier outputs that failed to parse and fell back to severity=log"),
		BlobPutErrors:                    f("blob_put_errors_total", "Failed clip uploads"),
		BlobDeleteErrors:                 f("blob_delete_errors_total", "Failed clip deletions during stream teardown"),
		EventPutErrors:                   f("event_put_errors_total", "Failed event log writes"),
		CallsPlaced:                      f("calls_placed_total", "Outbound escalation calls placed"),
		CallErrors:                       f("call_errors_total", "Failed outbound escalation calls"),
		QueryErrors:                      f("query_errors_total", "Event queries that failed at the store"),
		TranscodeFallbacks:               f("transcode_fallbacks_total", "Clips analyzed with original bytes because transcoding was unavailable"),
		HTTPRequestsRejectedBodyTooLarge: f("http_requests_rejected_body_too_large_total", "Uploads rejected for exceeding MAX_BODY_SIZE"),
	}
	reg.MustRegister(m.AnalyzeOutcomes, m.AnalyzeErrors)
	return m
}

// ObserveResult 는 analyze 결과 1건을 카운트한다.
func (m *Metrics) ObserveResult(r model.Result) {
	m.AnalyzeOutcomes.WithLabelValues(string(r.Outcome)).Inc()
	if r.Outcome == model.OutcomeError {
		m.AnalyzeErrors.WithLabelValues(string(r.ErrorKind)).Inc()
	}
	if r.Degraded {
		m.ClassificationsDegraded.Inc()
	}
	if r.CallID != "" {
		m.CallsPlaced.Inc()
	}
	switch r.FailedStep {
	case model.StepBlobPut:
		m.BlobPutErrors.Inc()
	case model.StepEventPut:
		m.EventPutErrors.Inc()
	case model.StepCall:
		m.CallErrors.Inc()
	}
}

// Handler 는 /metrics 용 promhttp 핸들러.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 는 테스트에서 값을 꺼내 보기 위해 노출한다.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
