package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aicam-ingest/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		malformed bool
		want      model.Classification
	}{
		{
			name: "well formed",
			raw:  `{"severity":"critical","threat_type":"fire","summary":"visible flames","confidence":0.95,"suggested_action":"Call 911"}`,
			want: model.Classification{Severity: model.SeverityCritical, ThreatType: "fire", Summary: "visible flames", Confidence: 0.95, SuggestedAction: "Call 911"},
		},
		{
			name: "code fence and prose",
			raw:  "Here is my answer:\n```json\n{\"severity\": \"LOG\", \"threat_type\": \"Intrusion\", \"summary\": \"door forced\", \"confidence\": \"0.7\"}\n```",
			want: model.Classification{Severity: model.SeverityLog, ThreatType: "intrusion", Summary: "door forced", Confidence: 0.7},
		},
		{
			name: "legacy description field and defaults",
			raw:  `{"severity":"normal","description":"a customer enters"}`,
			want: model.Classification{Severity: model.SeverityNormal, ThreatType: model.ThreatNone, Summary: "a customer enters", Confidence: 0.5},
		},
		{name: "unknown severity", raw: `{"severity":"urgent","summary":"x"}`, malformed: true},
		{name: "missing severity", raw: `{"summary":"x"}`, malformed: true},
		{name: "confidence out of range", raw: `{"severity":"log","confidence":3}`, malformed: true},
		{name: "confidence not a number", raw: `{"severity":"log","confidence":"high"}`, malformed: true},
		{name: "not json", raw: `The video shows a fire.`, malformed: true},
		{name: "broken json", raw: `{"severity": "log",`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Parse(tt.raw)
			assert.Equal(t, tt.malformed, v.Malformed)
			assert.Equal(t, tt.raw, v.Raw)
			if tt.malformed {
				assert.Error(t, v.Reason)
				return
			}
			assert.Equal(t, tt.want, v.Classification)
		})
	}
}

func TestDegraded(t *testing.T) {
	long := strings.Repeat("화", 300)
	c := Degraded("  " + long + "  ")

	assert.Equal(t, model.SeverityLog, c.Severity)
	assert.Equal(t, model.ThreatOther, c.ThreatType)
	assert.Equal(t, DegradedConfidence, c.Confidence)
	assert.Equal(t, DegradedAction, c.SuggestedAction)
	assert.Equal(t, strings.Repeat("화", 200)+"...", c.Summary)
	assert.NoError(t, c.Validate())

	assert.Equal(t, DegradedSummary, Degraded(" ").Summary)
}

func TestClassifyPrompt(t *testing.T) {
	p := ClassifyPrompt("store entrance")
	assert.Contains(t, p, "footage of store entrance")
	assert.Contains(t, p, `"weapon"`)
	assert.Contains(t, p, "always \"critical\"")

	assert.Contains(t, DescribePrompt(""), defaultContext)
}

type fakeConverse struct {
	inputs []*bedrockruntime.ConverseInput
	reply  string
	err    error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: f.reply}},
		}},
	}, nil
}

func TestBedrock_Describe(t *testing.T) {
	fake := &fakeConverse{reply: "  A person walks in.  "}
	b := NewBedrockWithClient(fake, "describe-model", "classify-model", time.Second)

	text, err := b.Describe(context.Background(), []byte("mp4"), "store entrance")
	require.NoError(t, err)
	assert.Equal(t, "A person walks in.", text)

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "describe-model", *in.ModelId)
	video, ok := in.Messages[0].Content[1].(*types.ContentBlockMemberVideo)
	require.True(t, ok)
	assert.Equal(t, types.VideoFormatMp4, video.Value.Format)
	assert.Equal(t, []byte("mp4"), video.Value.Source.(*types.VideoSourceMemberBytes).Value)
}

func TestBedrock_DescribeError(t *testing.T) {
	b := NewBedrockWithClient(&fakeConverse{err: errors.New("throttled")}, "d", "c", time.Second)
	_, err := b.Describe(context.Background(), []byte("mp4"), "")
	assert.ErrorContains(t, err, "throttled")

	b = NewBedrockWithClient(&fakeConverse{reply: "   "}, "d", "c", time.Second)
	_, err = b.Describe(context.Background(), []byte("mp4"), "")
	assert.Error(t, err)
}

func TestBedrock_Classify(t *testing.T) {
	fake := &fakeConverse{reply: `{"severity":"critical","threat_type":"weapon","summary":"person holding a knife","confidence":0.9,"suggested_action":"call security"}`}
	b := NewBedrockWithClient(fake, "d", "classify-model", time.Second)

	v, err := b.Classify(context.Background(), "a person holds a knife", "parking lot")
	require.NoError(t, err)
	require.False(t, v.Malformed)
	assert.Equal(t, model.SeverityCritical, v.Classification.Severity)
	assert.Equal(t, "classify-model", *fake.inputs[0].ModelId)

	fake.reply = "I cannot help with that."
	v, err = b.Classify(context.Background(), "x", "")
	require.NoError(t, err)
	assert.True(t, v.Malformed)
}
