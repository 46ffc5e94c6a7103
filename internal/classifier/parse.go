package classifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"aicam-ingest/internal/model"

	json "github.com/goccy/go-json"
)

// Verdict
//
// 분류 모델 응답의 파싱 결과 (tagged result).
//   - Malformed == false: Classification 이 계약을 만족하는 값
//   - Malformed == true : Raw 에 원본 응답, Reason 에 실패 사유
//
// fallback 분류를 만들지는 호출자(pipeline)가 명시적으로 결정한다.
type Verdict struct {
	Classification model.Classification
	Malformed      bool
	Raw            string
	Reason         error
}

func Parsed(c model.Classification, raw string) Verdict {
	return Verdict{Classification: c, Raw: raw}
}

func Malformed(raw string, reason error) Verdict {
	return Verdict{Malformed: true, Raw: raw, Reason: reason}
}

// wireClassification 은 모델이 돌려주는 JSON 형태.
// confidence 는 숫자 대신 "0.7" 같은 문자열로 오는 경우도 있어서 any 로 받는다.
type wireClassification struct {
	Severity        string `json:"severity"`
	ThreatType      string `json:"threat_type"`
	Summary         string `json:"summary"`
	Description     string `json:"description"` // case-list 프롬프트 시절 필드명
	Confidence      any    `json:"confidence"`
	SuggestedAction string `json:"suggested_action"`
}

var errNoJSONObject = errors.New("no JSON object in model output")

// Parse
//
// 모델 출력 문자열을 Verdict 로 변환한다.
//   - ```json 코드펜스나 앞뒤 설명문이 붙어 있어도 첫 번째 {...} 블록을 찾아 파싱한다.
//   - severity 가 normal/log/critical 이 아니면 Malformed (normal 로 강제 변환하지 않는다).
//   - confidence 누락은 0.5, 범위 밖/숫자 아님은 Malformed.
func Parse(raw string) Verdict {
	obj, err := extractObject(raw)
	if err != nil {
		return Malformed(raw, err)
	}

	var w wireClassification
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return Malformed(raw, fmt.Errorf("decode classification: %w", err))
	}

	sev, ok := model.ParseSeverity(w.Severity)
	if !ok {
		return Malformed(raw, fmt.Errorf("unrecognized severity %q", w.Severity))
	}

	confidence, err := parseConfidence(w.Confidence)
	if err != nil {
		return Malformed(raw, err)
	}

	summary := strings.TrimSpace(w.Summary)
	if summary == "" {
		summary = strings.TrimSpace(w.Description)
	}

	c := model.Classification{
		Severity:        sev,
		ThreatType:      model.NormalizeThreatType(w.ThreatType, sev),
		Summary:         summary,
		Confidence:      confidence,
		SuggestedAction: strings.TrimSpace(w.SuggestedAction),
	}
	if err := c.Validate(); err != nil {
		return Malformed(raw, err)
	}
	return Parsed(c, raw)
}

func parseConfidence(v any) (float64, error) {
	switch c := v.(type) {
	case nil:
		return DegradedConfidence, nil
	case float64:
		return c, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not a number", c)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("confidence has unexpected type %T", v)
	}
}

func extractObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return raw[start : end+1], nil
}

// Degraded 관련 상수
const (
	DegradedConfidence = 0.5
	DegradedAction     = "Review manually"
	DegradedSummary    = "Classification unavailable"
	maxDegradedSummary = 200
)

// Degraded
//
// 모델 출력이 계약을 어겼을 때 쓰는 fallback 분류.
// 위험할 수 있는 clip 이 조용히 normal 로 떨어지지 않도록 severity=log 로 기록한다.
// raw 가 비어 있으면 (모델 호출 자체가 실패) 고정 문구를 요약으로 쓴다.
func Degraded(raw string) model.Classification {
	summary := Truncate(strings.TrimSpace(raw), maxDegradedSummary)
	if summary == "" {
		summary = DegradedSummary
	}
	return model.Classification{
		Severity:        model.SeverityLog,
		ThreatType:      model.ThreatOther,
		Summary:         summary,
		Confidence:      DegradedConfidence,
		SuggestedAction: DegradedAction,
	}
}

// Truncate 는 rune 단위로 자르고 잘렸으면 "..." 를 붙인다.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
