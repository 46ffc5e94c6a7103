// Package blob 은 non-normal 이벤트의 원본 clip 을 저장한다.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrExists: Put 대상 key 에 이미 객체가 있다.
var ErrExists = errors.New("blob already exists")

// Store
//
// Put 은 data 를 key 에 저장하고, Event.BlobLocation 에 기록할 위치 문자열을 돌려준다.
// Put 은 create-only 다. key 가 이미 있으면 덮어쓰지 않고 ErrExists 를 돌려준다.
// Delete 는 best-effort 이며, 호출자는 실패를 로그만 남긴다.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (location string, err error)
	Delete(ctx context.Context, key string) error
}

// Key
//
// (streamID, timestamp) 로부터 결정적으로 key 를 만든다.
//   - 같은 스트림이라도 timestamp 가 다르면 key 가 겹치지 않는다.
//   - stream id 는 path escape 해서 "/" 가 들어와도 디렉토리 구조가 깨지지 않게 한다.
//   - "." / ".." 같은 점만 있는 segment 는 %2E 로 바꾼다 (경로 정규화로 사라지지 않게).
//
// 예: prefix="clips", stream="lobby", ts="2024-10-01T12:00:00.000000000Z"
//
//	→ clips/lobby/2024-10-01T12:00:00.000000000Z.mp4
func Key(prefix, streamID, timestamp string) string {
	name := escapeSegment(streamID) + "/" + escapeSegment(timestamp) + ".mp4"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func escapeSegment(v string) string {
	s := url.PathEscape(v)
	if strings.Trim(s, ".") == "" {
		return strings.ReplaceAll(s, ".", "%2E")
	}
	return s
}

// KeyFromLocation 은 Put 이 돌려준 location 에서 key 를 복원한다.
// 스트림 삭제 시 Event 레코드만으로 blob 을 지울 수 있어야 한다.
func KeyFromLocation(location string) (string, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		rest := strings.TrimPrefix(location, "s3://")
		i := strings.IndexByte(rest, '/')
		if i < 0 || i == len(rest)-1 {
			return "", fmt.Errorf("malformed s3 location %q", location)
		}
		return rest[i+1:], nil
	case strings.HasPrefix(location, "file://"):
		return strings.TrimPrefix(location, "file://"), nil
	case location == "":
		return "", fmt.Errorf("empty blob location")
	default:
		return location, nil
	}
}
