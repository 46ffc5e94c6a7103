package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aicam-ingest/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore 는 로컬 개발/테스트용 EventStore 구현이다.
// 테이블 구조는 DynamoDB 쪽 키 설계(stream_id + timestamp)를 그대로 따른다.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS streams (
	stream_id        TEXT PRIMARY KEY,
	context          TEXT NOT NULL DEFAULT '',
	escalation_phone TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	stream_id         TEXT NOT NULL,
	ts                TEXT NOT NULL,
	severity          TEXT NOT NULL,
	threat_type       TEXT NOT NULL,
	summary           TEXT NOT NULL,
	confidence        TEXT NOT NULL,
	suggested_action  TEXT NOT NULL,
	video_description TEXT NOT NULL,
	context           TEXT NOT NULL DEFAULT '',
	blob_location     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (stream_id, ts)
);`

// NewSQLite 는 DB 를 열고 스키마를 만든다.
// path 가 ":memory:" 이면 연결을 1개로 제한한다 (연결마다 별도 DB 가 생기므로).
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutMetadata(ctx context.Context, cfg model.StreamConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (stream_id, context, escalation_phone, created_at) VALUES (?, ?, ?, ?)`,
		cfg.ID, cfg.Context, cfg.EscalationPhone, cfg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if isUniqueViolation(err) {
		return fmt.Errorf("put metadata %s: %w", cfg.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("put metadata %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, streamID string) (model.StreamConfig, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT stream_id, context, escalation_phone, created_at FROM streams WHERE stream_id = ?`, streamID)
	cfg, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StreamConfig{}, false, nil
	}
	if err != nil {
		return model.StreamConfig{}, false, fmt.Errorf("get metadata %s: %w", streamID, err)
	}
	return cfg, true, nil
}

func (s *SQLiteStore) ListMetadata(ctx context.Context) ([]model.StreamConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stream_id, context, escalation_phone, created_at FROM streams ORDER BY stream_id`)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var out []model.StreamConfig
	for rows.Next() {
		cfg, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("list metadata: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMetadata(ctx context.Context, streamID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM streams WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("delete metadata %s: %w", streamID, err)
	}
	return nil
}

func (s *SQLiteStore) PutEvent(ctx context.Context, ev model.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (stream_id, ts, severity, threat_type, summary, confidence,
			suggested_action, video_description, context, blob_location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.StreamID, ev.Timestamp, string(ev.Severity), ev.ThreatType, ev.Summary,
		FormatConfidence(ev.Confidence), ev.SuggestedAction, ev.VideoDescription, ev.Context, ev.BlobLocation)
	if isUniqueViolation(err) {
		return fmt.Errorf("put event %s@%s: %w", ev.StreamID, ev.Timestamp, model.ErrDuplicateEvent)
	}
	if err != nil {
		return fmt.Errorf("put event %s@%s: %w", ev.StreamID, ev.Timestamp, err)
	}
	return nil
}

func (s *SQLiteStore) QueryEvents(ctx context.Context, streamID string, limit int, newestFirst bool) ([]model.Event, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_id, ts, severity, threat_type, summary, confidence,
			suggested_action, video_description, context, blob_location
		FROM events WHERE stream_id = ? ORDER BY ts `+order+` LIMIT ?`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events %s: %w", streamID, err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		var (
			ev         model.Event
			severity   string
			confidence string
		)
		if err := rows.Scan(&ev.StreamID, &ev.Timestamp, &severity, &ev.ThreatType, &ev.Summary, &confidence,
			&ev.SuggestedAction, &ev.VideoDescription, &ev.Context, &ev.BlobLocation); err != nil {
			return nil, fmt.Errorf("query events %s: %w", streamID, err)
		}
		ev.Severity = model.Severity(severity)
		if ev.Confidence, err = ParseConfidence(confidence); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteEvent(ctx context.Context, streamID, timestamp string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE stream_id = ? AND ts = ?`, streamID, timestamp); err != nil {
		return fmt.Errorf("delete event %s@%s: %w", streamID, timestamp, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(r rowScanner) (model.StreamConfig, error) {
	var (
		cfg     model.StreamConfig
		created string
	)
	if err := r.Scan(&cfg.ID, &cfg.Context, &cfg.EscalationPhone, &created); err != nil {
		return model.StreamConfig{}, err
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return cfg, nil
}

// modernc sqlite 는 제약 위반을 "constraint failed: UNIQUE ..." 메시지로 돌려준다.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
