package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// analyze 요청은 수 MB 짜리 clip 을 통째로 메모리에 올리고,
// /events 응답은 수백 건의 이벤트를 JSON + gzip 으로 내려준다.
// 요청마다 큰 버퍼와 gzip.Writer 를 새로 만들지 않도록 재사용한다.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - 업로드 clip 을 읽어 두는 버퍼
	//   - 초기 용량 1MB (짧은 clip 은 대부분 여기에 수용됨)
	//   - 너무 커진 버퍼는 caller(maxCap 조건)에서 재사용하지 않음
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 1024*1024))
		},
	}

	// BufferPool:
	//   - JSON / gzip 응답을 담는 임시 버퍼
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용 (매번 new 하면 비용 큼)
	//   - BestSpeed: 조회 응답은 지연시간 우선
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// Pool에 되돌려줄 최대 응답 버퍼 용량
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// GetBody 는 비어 있는 body 버퍼를 꺼낸다.
func GetBody() *bytes.Buffer {
	buf := BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBody:
//   - maxCap(보통 MaxBodySize)보다 크면 버려서 GC로.
//   - 큰 clip 이 한 번 들어왔다고 그 메모리를 계속 보유하지 않는다.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer:
//   - 1MB 이하이면 풀에 재사용
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}

// Gzip
//
// src 를 gzip 으로 압축해 dst 에 쓴다. Writer 는 GzipPool 에서 빌려 쓴다.
func Gzip(dst io.Writer, src []byte) error {
	zw := GzipPool.Get().(*gzip.Writer)
	defer GzipPool.Put(zw)

	zw.Reset(dst)
	if _, err := zw.Write(src); err != nil {
		return err
	}
	return zw.Close()
}
