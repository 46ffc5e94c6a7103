package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aicam-ingest/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoAPI 는 DynamoStore 가 쓰는 SDK 메서드 집합 (*dynamodb.Client 가 만족).
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore
//
// 운영용 EventStore.
//   - 메타데이터 테이블: hash key "stream_id"
//   - 이벤트 테이블:     hash key "stream_id", range key "timestamp"
//
// timestamp 는 model.CanonicalTimestamp 고정폭 문자열이라
// ScanIndexForward=false 만으로 newest-first 조회가 된다.
type DynamoStore struct {
	client        DynamoAPI
	metadataTable string
	eventsTable   string
}

// NewDynamo 는 이미 로드된 AWS config 로 client 를 만든다.
func NewDynamo(awsCfg aws.Config, metadataTable, eventsTable string) *DynamoStore {
	return NewDynamoWithClient(dynamodb.NewFromConfig(awsCfg), metadataTable, eventsTable)
}

func NewDynamoWithClient(client DynamoAPI, metadataTable, eventsTable string) *DynamoStore {
	return &DynamoStore{client: client, metadataTable: metadataTable, eventsTable: eventsTable}
}

func (s *DynamoStore) Close() error { return nil }

type metadataItem struct {
	StreamID        string `dynamodbav:"stream_id"`
	Context         string `dynamodbav:"context"`
	EscalationPhone string `dynamodbav:"escalation_phone_number,omitempty"`
	CreatedAt       string `dynamodbav:"created_at"`
}

// eventItem 의 confidence 는 attributevalue 를 거치지 않고
// FormatConfidence 결과를 Number 로 직접 넣는다 (float64 변환 오차 방지).
type eventItem struct {
	StreamID         string `dynamodbav:"stream_id"`
	Timestamp        string `dynamodbav:"timestamp"`
	Severity         string `dynamodbav:"severity"`
	ThreatType       string `dynamodbav:"threat_type"`
	Summary          string `dynamodbav:"summary"`
	SuggestedAction  string `dynamodbav:"suggested_action"`
	VideoDescription string `dynamodbav:"video_description"`
	Context          string `dynamodbav:"context"`
	BlobLocation     string `dynamodbav:"blob_location,omitempty"`
}

const confidenceAttr = "confidence"

func (s *DynamoStore) PutMetadata(ctx context.Context, cfg model.StreamConfig) error {
	item, err := attributevalue.MarshalMap(metadataItem{
		StreamID:        cfg.ID,
		Context:         cfg.Context,
		EscalationPhone: cfg.EscalationPhone,
		CreatedAt:       cfg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal metadata %s: %w", cfg.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.metadataTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(stream_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("put metadata %s: %w", cfg.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("put metadata %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *DynamoStore) GetMetadata(ctx context.Context, streamID string) (model.StreamConfig, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.metadataTable),
		Key:            map[string]types.AttributeValue{"stream_id": &types.AttributeValueMemberS{Value: streamID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.StreamConfig{}, false, fmt.Errorf("get metadata %s: %w", streamID, err)
	}
	if len(out.Item) == 0 {
		return model.StreamConfig{}, false, nil
	}
	cfg, err := decodeMetadata(out.Item)
	if err != nil {
		return model.StreamConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *DynamoStore) ListMetadata(ctx context.Context) ([]model.StreamConfig, error) {
	var (
		out   []model.StreamConfig
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.metadataTable),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("list metadata: %w", err)
		}
		for _, item := range page.Items {
			cfg, err := decodeMetadata(item)
			if err != nil {
				return nil, err
			}
			out = append(out, cfg)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

func (s *DynamoStore) DeleteMetadata(ctx context.Context, streamID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.metadataTable),
		Key:       map[string]types.AttributeValue{"stream_id": &types.AttributeValueMemberS{Value: streamID}},
	})
	if err != nil {
		return fmt.Errorf("delete metadata %s: %w", streamID, err)
	}
	return nil
}

func (s *DynamoStore) PutEvent(ctx context.Context, ev model.Event) error {
	item, err := attributevalue.MarshalMap(eventItem{
		StreamID:         ev.StreamID,
		Timestamp:        ev.Timestamp,
		Severity:         string(ev.Severity),
		ThreatType:       ev.ThreatType,
		Summary:          ev.Summary,
		SuggestedAction:  ev.SuggestedAction,
		VideoDescription: ev.VideoDescription,
		Context:          ev.Context,
		BlobLocation:     ev.BlobLocation,
	})
	if err != nil {
		return fmt.Errorf("marshal event %s@%s: %w", ev.StreamID, ev.Timestamp, err)
	}
	item[confidenceAttr] = &types.AttributeValueMemberN{Value: FormatConfidence(ev.Confidence)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.eventsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#ts)"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "timestamp", // timestamp 는 DynamoDB 예약어
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("put event %s@%s: %w", ev.StreamID, ev.Timestamp, model.ErrDuplicateEvent)
	}
	if err != nil {
		return fmt.Errorf("put event %s@%s: %w", ev.StreamID, ev.Timestamp, err)
	}
	return nil
}

// QueryEvents
//
// Limit 은 페이지당 평가 개수라서, 1MB 페이지 경계에서 잘리면 다음 페이지를 이어 읽는다.
func (s *DynamoStore) QueryEvents(ctx context.Context, streamID string, limit int, newestFirst bool) ([]model.Event, error) {
	out := make([]model.Event, 0, limit)
	var start map[string]types.AttributeValue

	for len(out) < limit {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.eventsTable),
			KeyConditionExpression: aws.String("stream_id = :sid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: streamID},
			},
			ScanIndexForward:  aws.Bool(!newestFirst),
			Limit:             aws.Int32(int32(limit - len(out))),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query events %s: %w", streamID, err)
		}
		for _, item := range page.Items {
			ev, err := decodeEvent(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	return out, nil
}

func (s *DynamoStore) DeleteEvent(ctx context.Context, streamID, timestamp string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.eventsTable),
		Key: map[string]types.AttributeValue{
			"stream_id": &types.AttributeValueMemberS{Value: streamID},
			"timestamp": &types.AttributeValueMemberS{Value: timestamp},
		},
	})
	if err != nil {
		return fmt.Errorf("delete event %s@%s: %w", streamID, timestamp, err)
	}
	return nil
}

func decodeMetadata(item map[string]types.AttributeValue) (model.StreamConfig, error) {
	var mi metadataItem
	if err := attributevalue.UnmarshalMap(item, &mi); err != nil {
		return model.StreamConfig{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, mi.CreatedAt)
	return model.StreamConfig{
		ID:              mi.StreamID,
		Context:         mi.Context,
		EscalationPhone: mi.EscalationPhone,
		CreatedAt:       created,
	}, nil
}

func decodeEvent(item map[string]types.AttributeValue) (model.Event, error) {
	var ei eventItem
	if err := attributevalue.UnmarshalMap(item, &ei); err != nil {
		return model.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	var confidence float64
	switch v := item[confidenceAttr].(type) {
	case *types.AttributeValueMemberN:
		c, err := ParseConfidence(v.Value)
		if err != nil {
			return model.Event{}, err
		}
		confidence = c
	case *types.AttributeValueMemberS:
		// 초기 버전 데이터는 문자열로 저장되어 있을 수 있다
		c, err := ParseConfidence(v.Value)
		if err != nil {
			return model.Event{}, err
		}
		confidence = c
	}

	return model.Event{
		StreamID:         ei.StreamID,
		Timestamp:        ei.Timestamp,
		Severity:         model.Severity(ei.Severity),
		ThreatType:       ei.ThreatType,
		Summary:          ei.Summary,
		Confidence:       confidence,
		SuggestedAction:  ei.SuggestedAction,
		VideoDescription: ei.VideoDescription,
		Context:          ei.Context,
		BlobLocation:     ei.BlobLocation,
	}, nil
}

func isConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
