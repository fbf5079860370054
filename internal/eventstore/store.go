package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
	_ "modernc.org/sqlite"
)

// Request is a recorded synthesis request.
type Request struct {
	RequestID string
	SessionID string
	TraceID   string
	Text      string
	Options   synth.Option
	CreatedAt time.Time
}

// Result is the recorded outcome of a request.
type Result struct {
	ID         int64
	RequestID  string
	SessionID  string
	Completed  bool
	ErrorKind  string
	Error      string
	Samples    int
	SampleRate int
	Duration   time.Duration
	CreatedAt  time.Time
}

// Store wraps a SQLite-backed synthesis history.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral retention
// yields a store that records nothing.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS requests (
    request_id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    trace_id TEXT,
    text TEXT NOT NULL,
    options BLOB,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    completed INTEGER NOT NULL,
    error_kind TEXT,
    error TEXT,
    samples INTEGER NOT NULL,
    sample_rate INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(request_id) REFERENCES requests(request_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_requests_session_created ON requests(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_results_request ON results(request_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// AppendRequest records a request. Recording the same request id twice
// keeps the first row.
func (s *Store) AppendRequest(ctx context.Context, req Request) error {
	if s.disabled() {
		return nil
	}
	if req.RequestID == "" {
		return errors.New("request id must not be empty")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.clock().UTC()
	}
	options, err := json.Marshal(req.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requests(request_id, session_id, trace_id, text, options, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO NOTHING`,
		req.RequestID, req.SessionID, req.TraceID, req.Text, options, req.CreatedAt.UnixMilli())
	return err
}

// AppendResult records the outcome of a previously appended request.
func (s *Store) AppendResult(ctx context.Context, res Result) error {
	if s.disabled() {
		return nil
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results(request_id, completed, error_kind, error, samples, sample_rate, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RequestID, res.Completed, res.ErrorKind, res.Error, res.Samples, res.SampleRate,
		res.Duration.Milliseconds(), res.CreatedAt.UnixMilli())
	return err
}

// GetRequest returns the recorded request, or sql.ErrNoRows.
func (s *Store) GetRequest(ctx context.Context, requestID string) (Request, error) {
	if s.disabled() {
		return Request{}, sql.ErrNoRows
	}
	var (
		req     Request
		traceID sql.NullString
		options []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT request_id, session_id, trace_id, text, options, created_at FROM requests WHERE request_id = ?`,
		requestID).Scan(&req.RequestID, &req.SessionID, &traceID, &req.Text, &options, &created)
	if err != nil {
		return Request{}, err
	}
	req.TraceID = traceID.String
	req.CreatedAt = time.UnixMilli(created).UTC()
	if len(options) > 0 {
		if err := json.Unmarshal(options, &req.Options); err != nil {
			return Request{}, fmt.Errorf("decode options: %w", err)
		}
	}
	return req, nil
}

const resultColumns = `r.id, r.request_id, q.session_id, r.completed, r.error_kind, r.error,
	r.samples, r.sample_rate, r.duration_ms, r.created_at`

// ListResults returns the results of one request, oldest first.
func (s *Store) ListResults(ctx context.Context, requestID string) ([]Result, error) {
	if s.disabled() {
		return nil, nil
	}
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM results r JOIN requests q ON q.request_id = r.request_id
		 WHERE r.request_id = ? ORDER BY r.id ASC`, requestID)
}

// ListSessionResults retrieves up to limit results for a session ordered
// ascending by time.
func (s *Store) ListSessionResults(ctx context.Context, sessionID string, limit int) ([]Result, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM results r JOIN requests q ON q.request_id = r.request_id
		 WHERE q.session_id = ? ORDER BY r.created_at ASC, r.id ASC LIMIT ?`, sessionID, limit)
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			errorKind  sql.NullString
			errMessage sql.NullString
			durationMS int64
			created    int64
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.SessionID, &r.Completed, &errorKind, &errMessage,
			&r.Samples, &r.SampleRate, &durationMS, &created); err != nil {
			return nil, err
		}
		r.ErrorKind = errorKind.String
		r.Error = errMessage.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, cutoff.UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRequests > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE request_id IN (
			SELECT request_id FROM requests ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRequests)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure reports an inconsistent ephemeral store.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}
