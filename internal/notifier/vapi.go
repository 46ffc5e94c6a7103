// Package notifier 는 critical 이벤트를 음성 전화로 알린다.
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Notifier
//
// PlaceCall 은 phone 으로 발신을 요청하고 provider 가 부여한 call id 를 돌려준다.
// 파이프라인 입장에서는 fire-and-forget 이다 (통화 결과를 기다리지 않음).
type Notifier interface {
	PlaceCall(ctx context.Context, phone, timestamp, summary string) (string, error)
}

// VapiConfig 는 Vapi 발신에 필요한 값들.
type VapiConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	Timeout       time.Duration
	VoiceID       string
	AssistantName string
	LLMModel      string
}

const (
	defaultVoiceID       = "cgSgspJ2msm6clMCkdW9"
	defaultAssistantName = "Jamie"
	defaultLLMModel      = "gpt-4o"
)

// Vapi 는 Vapi REST API (POST /call) 로 outbound call 을 만든다.
// assistant 는 통화마다 transient 로 정의해서, 이벤트 요약과 시각을 system/first message 에 넣는다.
type Vapi struct {
	cfg    VapiConfig
	client *http.Client
}

func NewVapi(cfg VapiConfig) *Vapi {
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = defaultAssistantName
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultLLMModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Vapi{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type vapiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type vapiAssistant struct {
	Name  string `json:"name"`
	Model struct {
		Provider string        `json:"provider"`
		Model    string        `json:"model"`
		Messages []vapiMessage `json:"messages"`
	} `json:"model"`
	Voice struct {
		Provider string `json:"provider"`
		VoiceID  string `json:"voiceId"`
	} `json:"voice"`
	FirstMessage string `json:"firstMessage"`
}

type vapiCallRequest struct {
	PhoneNumberID string        `json:"phoneNumberId"`
	Customer      vapiCustomer  `json:"customer"`
	Assistant     vapiAssistant `json:"assistant"`
}

type vapiCustomer struct {
	Number string `json:"number"`
}

type vapiCallResponse struct {
	ID string `json:"id"`
}

func (v *Vapi) PlaceCall(ctx context.Context, phone, timestamp, summary string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", fmt.Errorf("vapi call: empty phone number")
	}

	payload := vapiCallRequest{
		PhoneNumberID: v.cfg.PhoneNumberID,
		Customer:      vapiCustomer{Number: phone},
		Assistant:     v.assistant(timestamp, summary),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal vapi payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create vapi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send vapi call: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("vapi returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	// 2xx 면 전화는 이미 걸린 것으로 본다. body 를 못 읽어도 성공 (call id 만 비어 있음).
	var out vapiCallResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("vapi call placed but response is not decodable")
		return "", nil
	}
	if out.ID == "" {
		log.Warn().Int("status", resp.StatusCode).Msg("vapi call placed but response has no call id")
	}
	return out.ID, nil
}

func (v *Vapi) assistant(timestamp, summary string) vapiAssistant {
	var a vapiAssistant
	a.Name = v.cfg.AssistantName
	a.Model.Provider = "openai"
	a.Model.Model = v.cfg.LLMModel
	a.Model.Messages = []vapiMessage{{
		Role: "system",
		Content: fmt.Sprintf("You are an assistant that makes outbound calls to users to notify them of critical events "+
			"detected by a security system. Inform the user that %s occurred at %s.", summary, timestamp),
	}}
	a.Voice.Provider = "11labs"
	a.Voice.VoiceID = v.cfg.VoiceID
	a.FirstMessage = fmt.Sprintf("Hey there, I'm calling to inform you that a critical event was detected by your "+
		"security system at %s. Do you have time to discuss it now?", timestamp)
	return a
}

// Disabled 는 Vapi 자격 증명이 없을 때 쓰는 Notifier.
// 항상 실패하므로, 번호가 설정된 스트림의 critical 이벤트는 error outcome 으로 드러난다.
type Disabled struct{}

var ErrCallsDisabled = errors.New("outbound calls are not configured")

func (Disabled) PlaceCall(context.Context, string, string, string) (string, error) {
	return "", ErrCallsDisabled
}
