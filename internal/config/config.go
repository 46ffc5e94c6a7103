// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 서비스 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
type Config struct {

	// ---------------------------
	// 서비스 식별자 / 네트워크
	// ---------------------------

	ServiceName string // 로그 service 필드 (예: aicam-ingest)
	InstanceID  string // 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP 서버 bind 주소 (예: ":8080")
	AWSRegion   string // AWS 리전 (Bedrock / DynamoDB / S3 공통)

	// ---------------------------
	// 로그
	// ---------------------------

	LogLevel   string // debug | info | warn | error
	LogPretty  bool   // true: ConsoleWriter (로컬 개발), false: JSON (운영)
	LogSampleN uint32 // Debug/Info 샘플링 비율 (1 이하이면 샘플링 없음)

	// ---------------------------
	// 요청 처리 파라미터
	// ---------------------------

	MaxBodySize    int64         // 업로드 clip 최대 크기 (바이트)
	AnalyzeTimeout time.Duration // analyze 1회 호출 전체 timeout (harness 측 제한)

	// ---------------------------
	// Event Store
	// ---------------------------

	StoreBackend  string // dynamodb | sqlite
	MetadataTable string // DynamoDB 스트림 메타데이터 테이블 (hash key: stream_id)
	EventsTable   string // DynamoDB 이벤트 테이블 (hash: stream_id, range: timestamp)
	SQLitePath    string // 로컬 개발용 SQLite 파일 경로

	// ---------------------------
	// Blob Store
	// ---------------------------
	// SDK retry 는 0 으로 고정하고, 재시도 횟수는 S3AppRetries 하나로만 관리한다.
	// 기본값 1 = 재시도 없음 (재시도 정책은 호출자 몫).

	BlobBackend  string        // s3 | fs
	BlobBucket   string        // clip 을 저장할 S3 버킷
	BlobPrefix   string        // key prefix (예: clips)
	BlobDir      string        // fs backend 루트 디렉토리
	S3Timeout    time.Duration // PutObject/DeleteObject 시도당 timeout
	S3AppRetries int           // 업로드 시도 횟수

	// ---------------------------
	// Classifier (Bedrock)
	// ---------------------------

	DescribeModel  string        // 영상 설명용 멀티모달 모델
	ClassifyModel  string        // 설명 → 분류용 텍스트 모델
	BedrockTimeout time.Duration // Converse 호출당 timeout

	// ---------------------------
	// Notifier (Vapi)
	// ---------------------------

	VapiAPIKey             string
	VapiPhoneNumberID      string
	VapiBaseURL            string
	VapiTimeout            time.Duration
	DefaultEscalationPhone string // 스트림 등록 시 번호가 없으면 사용 (비어 있으면 전화 안 함)

	// ---------------------------
	// Transcode (ffmpeg)
	// ---------------------------

	TranscodeEnabled bool
	FFmpegPath       string
	TranscodeTimeout time.Duration
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 필수 env 가 비어있으면 즉시 프로세스를 종료(fail-fast).
// backend 선택에 따라 필요한 값만 필수로 요구한다.
func Load() Config {
	cfg := Config{
		ServiceName: get("SERVICE_NAME", "aicam-ingest"),
		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    get("HTTP_ADDR", ":8080"),
		AWSRegion:   get("AWS_REGION", "us-east-2"),

		LogLevel:   get("LOG_LEVEL", "info"),
		LogPretty:  getBool("LOG_PRETTY", false),
		LogSampleN: uint32(getInt("LOG_SAMPLE_N", 1)),

		MaxBodySize:    getInt64("MAX_BODY_SIZE", 64<<20),
		AnalyzeTimeout: getDur("ANALYZE_TIMEOUT", 90*time.Second),

		StoreBackend: strings.ToLower(get("STORE_BACKEND", "dynamodb")),
		SQLitePath:   get("SQLITE_PATH", "aicam.db"),

		BlobBackend:  strings.ToLower(get("BLOB_BACKEND", "s3")),
		BlobPrefix:   get("BLOB_PREFIX", "clips"),
		BlobDir:      get("BLOB_DIR", "data/clips"),
		S3Timeout:    getDur("S3_TIMEOUT", 30*time.Second),
		S3AppRetries: getInt("S3_APP_RETRIES", 1),

		DescribeModel:  get("BEDROCK_DESCRIBE_MODEL", "us.amazon.nova-lite-v1:0"),
		ClassifyModel:  get("BEDROCK_CLASSIFY_MODEL", "us.amazon.nova-micro-v1:0"),
		BedrockTimeout: getDur("BEDROCK_TIMEOUT", 60*time.Second),

		VapiBaseURL:            get("VAPI_BASE_URL", "https://api.vapi.ai"),
		VapiTimeout:            getDur("VAPI_TIMEOUT", 15*time.Second),
		DefaultEscalationPhone: os.Getenv("DEFAULT_ESCALATION_PHONE"),

		TranscodeEnabled: getBool("TRANSCODE_ENABLED", false),
		FFmpegPath:       get("FFMPEG_PATH", "ffmpeg"),
		TranscodeTimeout: getDur("TRANSCODE_TIMEOUT", 60*time.Second),
	}

	switch cfg.StoreBackend {
	case "dynamodb":
		cfg.MetadataTable = must("DYNAMODB_METADATA_TABLE")
		cfg.EventsTable = must("DYNAMODB_EVENTS_TABLE")
	case "sqlite":
	default:
		log.Fatalf("invalid STORE_BACKEND=%q (dynamodb|sqlite)", cfg.StoreBackend)
	}

	switch cfg.BlobBackend {
	case "s3":
		cfg.BlobBucket = must("BLOB_BUCKET")
	case "fs":
	default:
		log.Fatalf("invalid BLOB_BACKEND=%q (s3|fs)", cfg.BlobBackend)
	}

	// 전화 발신은 키가 모두 있을 때만 활성화된다. 한쪽만 있으면 설정 실수로 본다.
	cfg.VapiAPIKey = os.Getenv("VAPI_API_KEY")
	cfg.VapiPhoneNumberID = os.Getenv("VAPI_PHONE_NUMBER_ID")
	if (cfg.VapiAPIKey == "") != (cfg.VapiPhoneNumberID == "") {
		log.Fatalf("VAPI_API_KEY and VAPI_PHONE_NUMBER_ID must be set together")
	}

	if cfg.S3AppRetries < 1 {
		cfg.S3AppRetries = 1
	}
	return cfg
}

// CallsEnabled 는 Vapi 자격 증명이 설정되어 있는지 여부.
func (c Config) CallsEnabled() bool {
	return c.VapiAPIKey != "" && c.VapiPhoneNumberID != ""
}

// must
//
// 필수 환경변수가 없으면 즉시 로그 출력 후 종료(fail-fast).
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

// get / getInt / getInt64 / getDur / getBool
//
// 선택 환경변수. 비어 있으면 기본값을 쓰고,
// 값이 있는데 형식이 잘못되었으면 fail-fast 한다 (조용히 기본값으로 돌아가지 않음).
func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func getInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func getDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

// fallbackInstanceID
//
// 이 서버 인스턴스를 식별하는 고유 값.
//   - 기본: hostname (ECS/Fargate에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
