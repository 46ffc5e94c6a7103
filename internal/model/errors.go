package model

import "errors"

// 공통 sentinel error.
// 각 계층은 fmt.Errorf("...: %w", err) 로 감싸고, 상위에서는 errors.Is 로 판별한다.
var (
	ErrStreamNotFound   = errors.New("stream not found")
	ErrAlreadyExists    = errors.New("stream already exists")
	ErrEmptyPayload     = errors.New("empty video payload")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDuplicateEvent   = errors.New("event already exists for timestamp")
)

// ErrorKind 는 Result 에 실리는 에러 분류 태그다.
// ClassificationParseError 는 내부에서 degraded fallback 으로 처리되므로 여기 없다.
type ErrorKind string

const (
	KindStreamNotFound      ErrorKind = "StreamNotFound"
	KindAlreadyExists       ErrorKind = "AlreadyExists"
	KindEmptyPayload        ErrorKind = "EmptyPayload"
	KindInvalidTimestamp    ErrorKind = "InvalidTimestamp"
	KindClassificationError ErrorKind = "ClassificationError"
	KindStorageError        ErrorKind = "StorageError"
	KindNotificationError   ErrorKind = "NotificationError"
	KindUnknownError        ErrorKind = "UnknownError"
)
