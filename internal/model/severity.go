package model

import "strings"

// Severity 는 normal < log < critical 순서의 에스컬레이션 등급이다.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityLog      Severity = "log"
	SeverityCritical Severity = "critical"
)

// ParseSeverity 는 인식 가능한 세 값만 허용한다.
// 알 수 없는 값을 normal 로 강제 변환하지 않는다.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityNormal, SeverityLog, SeverityCritical:
		return true
	}
	return false
}

// Weight 는 에스컬레이션 가중치 (정렬/비교용).
func (s Severity) Weight() int {
	switch s {
	case SeverityLog:
		return 1
	case SeverityCritical:
		return 2
	}
	return 0
}

// Outcome 은 analyze 1회 호출의 최종 상태다. 저장되지 않는다.
type Outcome string

const (
	OutcomeSafe           Outcome = "safe"
	OutcomeLogged         Outcome = "logged"
	OutcomeCalled         Outcome = "called"
	OutcomeCriticalNoCall Outcome = "critical-no-call"
	OutcomeError          Outcome = "error"
)
