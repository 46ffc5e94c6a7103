package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// S3API 는 S3Store 가 쓰는 SDK 메서드 (*s3.Client 가 만족).
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store 는 clip 을 S3 에 저장한다.
//   - 각 시도는 Timeout 으로 제한 (context 기반, cancel-safe)
//   - 재시도 횟수는 Attempts 하나로만 제어 (SDK retry 는 0)
type S3Store struct {
	client   S3API
	bucket   string
	timeout  time.Duration
	attempts int
}

// NewS3 는 이미 로드된 AWS config 로 client 를 만든다.
// SDK 기본 retry 와 애플리케이션 retry 가 겹치지 않도록 SDK 쪽은 0 으로 고정한다.
func NewS3(awsCfg aws.Config, bucket string, timeout time.Duration, attempts int) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return NewS3WithClient(client, bucket, timeout, attempts)
}

func NewS3WithClient(client S3API, bucket string, timeout time.Duration, attempts int) *S3Store {
	if attempts < 1 {
		attempts = 1
	}
	return &S3Store{client: client, bucket: bucket, timeout: timeout, attempts: attempts}
}

// Put
// ---
// clip bytes 를 업로드한다.
// body 는 매 시도마다 reader 를 새로 만들어야 하므로 bytes.NewReader 사용.
// If-None-Match: * 로 보내서 같은 key 가 있으면 S3 가 거절한다 (ErrExists, 재시도 안 함).
func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		err := s.putObject(ctx, key, data)
		if err == nil {
			return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
		}
		if isConditionFailed(err) {
			return "", fmt.Errorf("s3 put %s: %w", key, ErrExists)
		}
		lastErr = err
		log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("s3 put failed")

		if attempt == s.attempts {
			break
		}

		// backoff 적용 (최대 2초)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}
	return "", fmt.Errorf("s3 put %s: %w", key, lastErr)
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("video/mp4"),
		IfNoneMatch:   aws.String("*"),
	})
	return err
}

// isConditionFailed: 412 PreconditionFailed 는 key 가 이미 있음,
// 409 ConditionalRequestConflict 는 같은 key 에 대한 동시 업로드가 경합 중임.
func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

// Delete 는 1회만 시도한다. 없는 key 를 지워도 S3 는 성공을 돌려준다.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx2, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx2, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
