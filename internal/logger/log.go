// internal/logger/log.go
package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"aicam-ingest/internal/config"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 로거 초기화 함수.
//
//  1. 로그 포맷 전환
//     - LOG_PRETTY=true : ConsoleWriter (로컬 개발)
//     - LOG_PRETTY=false: JSON (CloudWatch 등에서 검색/분석)
//  2. 모든 로그에 service / instance 필드 부착
//  3. Debug/Info 샘플링 (LOG_SAMPLE_N > 1). Warn/Error 는 항상 100% 기록
//
// analyze 결과(outcome), 전화 발신, 저장 실패 로그는 Warn 이상으로 남기므로
// 샘플링 대상이 아니다.
func Init(cfg config.Config) {
	zerolog.SetGlobalLevel(ParseLevel(cfg.LogLevel))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	zlog.Logger = New(cfg, writer(cfg.LogPretty))

	// 표준 log 패키지도 zerolog 로 흘려보낸다 (config.Load 의 fatal 로그 등)
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New 는 공통 필드와 샘플링이 적용된 logger 를 만든다.
// 테스트에서는 bytes.Buffer 를 넘겨 출력 내용을 검사한다.
func New(cfg config.Config, w io.Writer) zerolog.Logger {
	base := zerolog.New(w).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}

// ParseLevel 은 알 수 없는 값이면 info 를 돌려준다.
func ParseLevel(s string) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil && l != zerolog.NoLevel {
		return l
	}
	return zerolog.InfoLevel
}

func writer(pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}
	return os.Stdout
}
