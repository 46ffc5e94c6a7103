package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// ConverseAPI 는 Bedrock 이 쓰는 SDK 메서드 (*bedrockruntime.Client 가 만족).
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock
//
// Amazon Bedrock Converse API 기반 Classifier.
//   - Describe: 멀티모달 모델 (기본 nova-lite) 에 mp4 bytes 를 그대로 전달
//   - Classify: 텍스트 모델 (기본 nova-micro) 에 설명을 전달하고 JSON 응답을 Parse
type Bedrock struct {
	client        ConverseAPI
	describeModel string
	classifyModel string
	timeout       time.Duration
}

func NewBedrock(awsCfg aws.Config, describeModel, classifyModel string, timeout time.Duration) *Bedrock {
	return NewBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg), describeModel, classifyModel, timeout)
}

func NewBedrockWithClient(client ConverseAPI, describeModel, classifyModel string, timeout time.Duration) *Bedrock {
	return &Bedrock{
		client:        client,
		describeModel: describeModel,
		classifyModel: classifyModel,
		timeout:       timeout,
	}
}

var errEmptyResponse = errors.New("model returned no text content")

func (b *Bedrock) Describe(ctx context.Context, video []byte, streamContext string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.describeModel),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: DescribePrompt(streamContext)},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Describe the following video in detail."},
				&types.ContentBlockMemberVideo{Value: types.VideoBlock{
					Format: types.VideoFormatMp4,
					Source: &types.VideoSourceMemberBytes{Value: video},
				}},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(300),
			TopP:        aws.Float32(0.1),
			Temperature: aws.Float32(0.3),
		},
		AdditionalModelRequestFields: document.NewLazyDocument(map[string]any{
			"inferenceConfig": map[string]any{"topK": 20},
		}),
	})
	if err != nil {
		return "", fmt.Errorf("bedrock describe (%s): %w", b.describeModel, err)
	}

	text, err := outputText(out)
	if err != nil {
		return "", fmt.Errorf("bedrock describe (%s): %w", b.describeModel, err)
	}
	return text, nil
}

func (b *Bedrock) Classify(ctx context.Context, description, streamContext string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.classifyModel),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: ClassifyPrompt(streamContext)},
		},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: description}},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(400),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("bedrock classify (%s): %w", b.classifyModel, err)
	}

	text, err := outputText(out)
	if err != nil {
		// 빈 응답도 모델 출력 계약 위반으로 본다
		return Malformed("", err), nil
	}
	return Parse(text), nil
}

// outputText 는 응답 메시지의 text block 들을 이어 붙인다.
func outputText(out *bedrockruntime.ConverseOutput) (string, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errEmptyResponse
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}
