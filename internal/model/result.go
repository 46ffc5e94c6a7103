package model

// Result
// ------------------------------------------------------------
// analyze 호출 1건의 응답. 파이프라인 경계 밖으로는 error 대신 항상 이 값이 나간다.
// Outcome == OutcomeError 인 경우 ErrorKind / Error 가 채워진다.
type Result struct {
	InvocationID     string          `json:"invocation_id"`
	StreamID         string          `json:"stream_id"`
	Timestamp        string          `json:"timestamp,omitempty"`
	Outcome          Outcome         `json:"outcome"`
	Classification   *Classification `json:"classification,omitempty"`
	Degraded         bool            `json:"degraded,omitempty"` // 모델 출력 파싱 실패로 fallback 분류가 쓰였는지
	VideoDescription string          `json:"video_description,omitempty"`
	BlobLocation     string          `json:"blob_location,omitempty"`
	EventStored      bool            `json:"event_stored"`
	CallID           string          `json:"call_id,omitempty"`
	ErrorKind        ErrorKind       `json:"error_kind,omitempty"`
	FailedStep       Step            `json:"failed_step,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Step 은 분류 이후 side effect 단계. error outcome 이 어느 단계에서 났는지 표시한다.
type Step string

const (
	StepBlobPut  Step = "blob_put"
	StepEventPut Step = "event_put"
	StepCall     Step = "call"
)

// Failed 는 error outcome 으로 Result 를 마감한다.
func (r *Result) Failed(kind ErrorKind, err error) Result {
	r.Outcome = OutcomeError
	r.ErrorKind = kind
	if err != nil {
		r.Error = err.Error()
	}
	return *r
}
