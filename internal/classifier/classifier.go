// Package classifier 는 멀티모달 모델 호출을 감싼다.
//
// 두 단계로 나뉜다.
//  1. Describe: 영상 clip → 자연어 설명 (스트림 context 를 system prompt 로 전달)
//  2. Classify: 설명 → {severity, threat_type, summary, confidence, suggested_action}
package classifier

import (
	"context"
	"fmt"
	"strings"

	"aicam-ingest/internal/model"
)

// Classifier
//
// Describe 실패는 호출자에게 치명적이다 (설명 없이는 분류할 수 없음).
// Classify 는 모델 호출 자체가 실패하면 error 를, 응답 형식이 틀리면 Malformed Verdict 를 돌려준다.
type Classifier interface {
	Describe(ctx context.Context, video []byte, streamContext string) (string, error)
	Classify(ctx context.Context, description, streamContext string) (Verdict, error)
}

const defaultContext = "a monitored area"

func watching(streamContext string) string {
	if c := strings.TrimSpace(streamContext); c != "" {
		return c
	}
	return defaultContext
}

// DescribePrompt 는 설명 단계의 system prompt.
func DescribePrompt(streamContext string) string {
	return fmt.Sprintf("You are a helpful assistant watching %s that accurately describes videos in detail. "+
		"Provide a comprehensive description of the content, actions, and context within the video.",
		watching(streamContext))
}

// ClassifyPrompt
//
// 분류 단계의 system prompt. 스트림별 free-text context 를 기준으로 판단하게 한다.
// 화재/연기/무기/폭력/폭발 같은 생명 안전 위험은 context 가 애매해도 critical 로 분류하도록 못박는다
// (파이프라인은 별도 재분류를 하지 않으므로 이 규칙이 에스컬레이션 정확도를 좌우한다).
func ClassifyPrompt(streamContext string) string {
	return fmt.Sprintf(`You are a security guard monitoring footage of %s. You will be given a description of the last few seconds of footage.
Classify the situation into exactly one severity:
- "normal": routine activity, nothing worth recording.
- "log": unusual or noteworthy activity that should be recorded for later review but is not an emergency.
- "critical": an emergency that needs a human to be called right now.

Any obvious life-safety hazard (fire, smoke, weapon, active violence, explosion, a person collapsed or injured) is always "critical", even if the context is ambiguous.

Respond strictly with a single JSON object and no other text:
{
  "severity": "normal" | "log" | "critical",
  "threat_type": one of %s,
  "summary": "one or two sentences describing what happened",
  "confidence": a number between 0.0 and 1.0,
  "suggested_action": "what the operator should do"
}`, watching(streamContext), quotedList(model.KnownThreatTypes))
}

func quotedList(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = `"` + s + `"`
	}
	return strings.Join(q, " | ")
}
