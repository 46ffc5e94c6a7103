// internal/model/event.go
package model

import (
	"fmt"
	"strings"
	"time"
)

// StreamConfig
// ------------------------------------------------------------
// 감시 대상 스트림 하나의 설정.
// Register 시점에 한 번 만들어지고, Deregister 전까지 변경되지 않는다.
//
// EscalationPhone 이 비어 있으면 critical 이벤트가 발생해도 전화를 걸지 않는다
// (Registry 가 등록 시점에 프로세스 기본 번호로 채워 넣는다).
type StreamConfig struct {
	ID              string    `json:"id"`
	Context         string    `json:"context,omitempty"`                 // 무엇을 감시하는지 (예: "store entrance")
	EscalationPhone string    `json:"escalation_phone_number,omitempty"` // E.164 형식 전화번호
	CreatedAt       time.Time `json:"created_at"`
}

// Classification
// ------------------------------------------------------------
// 분류 모델이 clip 설명을 보고 내린 판단 결과.
// 직접 저장되지 않고 Event 안에 포함되어 저장된다.
type Classification struct {
	Severity        Severity `json:"severity"`
	ThreatType      string   `json:"threat_type"`
	Summary         string   `json:"summary"`
	Confidence      float64  `json:"confidence"`
	SuggestedAction string   `json:"suggested_action"`
}

// Validate 는 Severity 와 Confidence 범위를 검사한다.
func (c Classification) Validate() error {
	if !c.Severity.Valid() {
		return fmt.Errorf("unrecognized severity %q", c.Severity)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", c.Confidence)
	}
	return nil
}

// Threat types
//
// threat_type 은 열린 enum 이다. 모델이 목록 밖의 값을 주더라도 그대로 보존한다.
const (
	ThreatNone      = "none"
	ThreatFire      = "fire"
	ThreatSmoke     = "smoke"
	ThreatWeapon    = "weapon"
	ThreatViolence  = "violence"
	ThreatMedical   = "medical"
	ThreatIntrusion = "intrusion"
	ThreatVandalism = "vandalism"
	ThreatAccident  = "accident"
	ThreatHazard    = "hazard"
	ThreatOther     = "other"
)

// KnownThreatTypes 는 분류 프롬프트에 나열되는 threat_type 목록이다.
var KnownThreatTypes = []string{
	ThreatNone, ThreatFire, ThreatSmoke, ThreatWeapon, ThreatViolence, ThreatMedical,
	ThreatIntrusion, ThreatVandalism, ThreatAccident, ThreatHazard, ThreatOther,
}

// NormalizeThreatType 은 공백/대소문자를 정리하고, 비어 있으면 severity 에 맞는 기본값을 준다.
func NormalizeThreatType(s string, sev Severity) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s != "" {
		return s
	}
	if sev == SeverityNormal {
		return ThreatNone
	}
	return ThreatOther
}

// Event
// ------------------------------------------------------------
// 스트림 하나에 대해 durable 하게 저장된 분류 결과 1건.
// (StreamID, Timestamp) 가 복합 키이며, 한 번 쓰이면 변경되지 않는다(append-only).
//
// BlobLocation 은 severity != normal 인 경우에만 채워진다.
// 이 값만으로 Blob Store 의 key 를 복원할 수 있어야 한다 (스트림 삭제 시 필요).
type Event struct {
	StreamID         string   `json:"stream_id"`
	Timestamp        string   `json:"timestamp"` // CanonicalTimestamp 형식 (UTC, 고정폭)
	Severity         Severity `json:"severity"`
	ThreatType       string   `json:"threat_type"`
	Summary          string   `json:"summary"`
	Confidence       float64  `json:"confidence"`
	SuggestedAction  string   `json:"suggested_action"`
	VideoDescription string   `json:"video_description"`
	Context          string   `json:"context,omitempty"`
	BlobLocation     string   `json:"blob_location,omitempty"`
}

// NewEvent 는 분류 결과와 설명, 스트림 context 를 묶어 Event 를 만든다.
func NewEvent(streamID, ts string, c Classification, description, streamContext, blobLocation string) Event {
	return Event{
		StreamID:         streamID,
		Timestamp:        ts,
		Severity:         c.Severity,
		ThreatType:       c.ThreatType,
		Summary:          c.Summary,
		Confidence:       c.Confidence,
		SuggestedAction:  c.SuggestedAction,
		VideoDescription: description,
		Context:          streamContext,
		BlobLocation:     blobLocation,
	}
}

// Classification 은 Event 에 포함된 분류 필드만 다시 꺼낸다.
func (e Event) Classification() Classification {
	return Classification{
		Severity:        e.Severity,
		ThreatType:      e.ThreatType,
		Summary:         e.Summary,
		Confidence:      e.Confidence,
		SuggestedAction: e.SuggestedAction,
	}
}

// timestampLayout 은 고정폭 UTC 포맷이다.
// 문자열 정렬 순서 = 시간 순서 가 되도록 fractional 자리수를 9자리로 고정한다
// (DynamoDB sort key / SQLite ORDER BY 모두 문자열 비교).
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// CanonicalTimestamp 는 시각을 저장용 키 문자열로 변환한다.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp
//
// 호출자가 넘긴 ISO-8601 timestamp 를 파싱한다.
// timezone 정보가 없는 값은 거부한다 (RFC 3339 는 offset 필수).
// 반환값은 CanonicalTimestamp 로 정규화된 문자열이다.
func ParseTimestamp(s string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, s, err)
	}
	return CanonicalTimestamp(t), nil
}
