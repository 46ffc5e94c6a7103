// Package transcode 는 업로드된 clip 을 분류 모델이 받는 H.264/AAC MP4 로 변환한다.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Result
//
// Converted == true 이면 Data 는 변환된 MP4.
// 아니면 Data 는 원본 bytes 이고 Reason 에 변환하지 못한 이유가 들어 있다.
// 변환 실패는 에러가 아니다. 호출자는 항상 Data 를 그대로 쓰면 된다.
type Result struct {
	Data      []byte
	Converted bool
	Reason    string
}

func unavailable(data []byte, reason string) Result {
	return Result{Data: data, Reason: reason}
}

// FFmpeg 는 외부 ffmpeg 바이너리로 변환한다.
type FFmpeg struct {
	path    string
	timeout time.Duration
	tmpDir  string
}

func NewFFmpeg(path string, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path, timeout: timeout}
}

// Available 는 바이너리를 PATH 에서 찾을 수 있는지 본다.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.path)
	return err == nil
}

// ToMP4
//
// 입력/출력 모두 임시 파일을 쓴다 (+faststart 는 출력 파일 seek 가 필요).
func (f *FFmpeg) ToMP4(ctx context.Context, data []byte) Result {
	if len(data) == 0 {
		return unavailable(data, "empty input")
	}
	if !f.Available() {
		return unavailable(data, "ffmpeg not found: "+f.path)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(f.tmpDir, "transcode-*")
	if err != nil {
		return unavailable(data, "create temp dir: "+err.Error())
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.input")
	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return unavailable(data, "write input: "+err.Error())
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", in,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", out,
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		reason := fmt.Sprintf("ffmpeg failed: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
		log.Warn().Str("reason", reason).Int("bytes", len(data)).Msg("transcode failed, using original clip")
		return unavailable(data, reason)
	}

	converted, err := os.ReadFile(out)
	if err != nil || len(converted) == 0 {
		return unavailable(data, "ffmpeg produced no output")
	}
	log.Debug().
		Int("in_bytes", len(data)).
		Int("out_bytes", len(converted)).
		Dur("took", time.Since(start)).
		Msg("clip transcoded")
	return Result{Data: converted, Converted: true}
}
