package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"aicam-ingest/internal/blob"
	"aicam-ingest/internal/classifier"
	"aicam-ingest/internal/config"
	"aicam-ingest/internal/logger"
	"aicam-ingest/internal/metrics"
	"aicam-ingest/internal/notifier"
	"aicam-ingest/internal/pipeline"
	"aicam-ingest/internal/query"
	"aicam-ingest/internal/registry"
	"aicam-ingest/internal/server"
	"aicam-ingest/internal/store"
	"aicam-ingest/internal/transcode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU 설정 (Fargate vCPU 대응)
	// ====================================================================
	//
	// analyze 요청 처리 시간의 대부분은 Bedrock / DynamoDB / S3 / Vapi 대기다.
	// CPU 를 쓰는 건 JSON 인코딩과 (옵션) ffmpeg 자식 프로세스 정도라서
	// Task 의 vCPU 수에 맞춰 GOMAXPROCS 를 지정한다. 기본 1.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1)
	}

	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	awsCfg, err := awsCfgLib.LoadDefaultConfig(rootCtx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// ====================================================================
	// Collaborators (backend 선택)
	// ====================================================================
	events := newEventStore(cfg, awsCfg)
	defer events.Close()

	blobs := newBlobStore(cfg, awsCfg)
	cls := classifier.NewBedrock(awsCfg, cfg.DescribeModel, cfg.ClassifyModel, cfg.BedrockTimeout)
	caller := newNotifier(cfg)

	// ====================================================================
	// Registry: durable 메타데이터로 cache 를 채운 뒤 요청을 받는다.
	// ====================================================================
	streams := registry.New(events, blobs, cfg.DefaultEscalationPhone)
	streams.OnBlobDeleteError = func(error) { m.BlobDeleteErrors.Inc() }

	n, err := streams.Rehydrate(rootCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load stream registry")
	}
	log.Info().Int("streams", n).Msg("stream registry loaded")

	pl := pipeline.New(streams, cls, blobs, events, caller, cfg.BlobPrefix)

	q := query.New(events)
	q.OnError = func(error) { m.QueryErrors.Inc() }

	var tr server.Transcoder
	if cfg.TranscodeEnabled {
		ff := transcode.NewFFmpeg(cfg.FFmpegPath, cfg.TranscodeTimeout)
		if !ff.Available() {
			log.Warn().Str("ffmpeg", cfg.FFmpegPath).Msg("ffmpeg not found, clips will be analyzed as uploaded")
		}
		tr = ff
	}

	h := server.NewHandler(cfg, m, streams, pl, q, tr)

	// ====================================================================
	// HTTP 서버 설정
	// ====================================================================
	//
	// ReadTimeout: 큰 clip 업로드를 허용해야 하므로 넉넉하게.
	// WriteTimeout: analyze 는 Bedrock 호출 2회 + 저장 + 전화까지 기다린다.
	//               AnalyzeTimeout 보다 짧으면 결과를 못 돌려준다.
	// ====================================================================
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      cfg.AnalyzeTimeout + cfg.TranscodeTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// ====================================================================
	// Graceful Shutdown (ECS scale-in / rolling deploy)
	// ====================================================================
	//
	// SIGTERM 수신 시 새 요청을 받지 않고, 진행 중인 analyze 가 끝날 때까지 기다린다.
	// serve 는 drain 이 끝난 뒤에 리턴하고, 그 다음에 store 를 닫는다 (defer events.Close).
	// ====================================================================
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.HTTPAddr).Msg("failed to listen")
	}

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreBackend).
		Str("blob", cfg.BlobBackend).
		Bool("calls", cfg.CallsEnabled()).
		Bool("transcode", cfg.TranscodeEnabled).
		Msg("aicam ingest server listening")

	if err := serve(rootCtx, srv, ln, srv.WriteTimeout); err != nil {
		log.Fatal().Err(err).Msg("http server terminated")
	}
	log.Info().Msg("shutdown complete")
}

// serve 는 ctx 가 끝나면 Shutdown 으로 drain 하고, 진행 중인 요청이 모두 끝나거나
// drain 시간이 지나야 리턴한다. Serve 는 Shutdown 직후 바로 ErrServerClosed 를 돌려주므로
// done 을 기다려야 한다.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

func newEventStore(cfg config.Config, awsCfg aws.Config) store.EventStore {
	if cfg.StoreBackend == "sqlite" {
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open sqlite store")
		}
		return s
	}
	return store.NewDynamo(awsCfg, cfg.MetadataTable, cfg.EventsTable)
}

func newBlobStore(cfg config.Config, awsCfg aws.Config) blob.Store {
	if cfg.BlobBackend == "fs" {
		s, err := blob.NewFS(cfg.BlobDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open blob dir")
		}
		return s
	}
	return blob.NewS3(awsCfg, cfg.BlobBucket, cfg.S3Timeout, cfg.S3AppRetries)
}

// newNotifier: 자격 증명이 없으면 전화를 걸 수 없다.
// 번호가 설정된 스트림의 critical 이벤트는 NotificationError 로 드러난다.
func newNotifier(cfg config.Config) notifier.Notifier {
	if !cfg.CallsEnabled() {
		log.Warn().Msg("VAPI_API_KEY not set, outbound calls disabled")
		return notifier.Disabled{}
	}
	return notifier.NewVapi(notifier.VapiConfig{
		BaseURL:       cfg.VapiBaseURL,
		APIKey:        cfg.VapiAPIKey,
		PhoneNumberID: cfg.VapiPhoneNumberID,
		Timeout:       cfg.VapiTimeout,
	})
}
