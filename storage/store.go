// Package storage persists compile audit records and completion calls in
// SQLite. The Store implements both llm.CallRecorder and compiler.Auditor,
// so one database correlates every completion call with its compile.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Register the "sqlite" driver

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
)

// DefaultBusyTimeout is how long a writer waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// Store is a SQLite-backed audit store. It is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
	logger      *slog.Logger
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens (creating if needed) the database at path and migrates its
// schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		abs, o.busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent compiles.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: o.logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for i, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS compiles (
		id TEXT PRIMARY KEY,
		instruction TEXT NOT NULL,
		to_code INTEGER NOT NULL DEFAULT 0,
		interactive INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		output TEXT,
		error TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_compiles_started ON compiles(started_at);`,
	`CREATE TABLE IF NOT EXISTS completion_calls (
		request_id TEXT PRIMARY KEY,
		trace_id TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT '',
		capability TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		max_tokens INTEGER NOT NULL DEFAULT 0,
		finish_reason TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		retries INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_completion_calls_trace ON completion_calls(trace_id, started_at);`,
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// compileRow is the compiles table shape. Times are unix nanoseconds.
type compileRow struct {
	ID          string         `db:"id"`
	Instruction string         `db:"instruction"`
	ToCode      bool           `db:"to_code"`
	Interactive bool           `db:"interactive"`
	Outcome     string         `db:"outcome"`
	Output      sql.NullString `db:"output"`
	Error       string         `db:"error"`
	Raw         string         `db:"raw"`
	StartedAt   int64          `db:"started_at"`
	DurationMs  int64          `db:"duration_ms"`
}

func (r compileRow) record() (*compiler.Record, error) {
	rec := &compiler.Record{
		ID:          r.ID,
		Instruction: r.Instruction,
		ToCode:      r.ToCode,
		Interactive: r.Interactive,
		Outcome:     r.Outcome,
		Error:       r.Error,
		Raw:         r.Raw,
		StartedAt:   time.Unix(0, r.StartedAt).UTC(),
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
	}
	if r.Output.Valid {
		var out logic.CompilerOutput
		if err := json.Unmarshal([]byte(r.Output.String), &out); err != nil {
			return nil, fmt.Errorf("decode output of compile %s: %w", r.ID, err)
		}
		rec.Output = &out
	}
	return rec, nil
}

// callRow is the completion_calls table shape.
type callRow struct {
	RequestID        string `db:"request_id"`
	TraceID          string `db:"trace_id"`
	Stage            string `db:"stage"`
	Capability       string `db:"capability"`
	Model            string `db:"model"`
	Provider         string `db:"provider"`
	Prompt           string `db:"prompt"`
	Response         string `db:"response"`
	PromptTokens     int    `db:"prompt_tokens"`
	CompletionTokens int    `db:"completion_tokens"`
	TotalTokens      int    `db:"total_tokens"`
	MaxTokens        int    `db:"max_tokens"`
	FinishReason     string `db:"finish_reason"`
	StartedAt        int64  `db:"started_at"`
	DurationMs       int64  `db:"duration_ms"`
	Error            string `db:"error"`
	Retries          int    `db:"retries"`
}

func callRowOf(r *llm.CallRecord) callRow {
	return callRow{
		RequestID:        r.RequestID,
		TraceID:          r.TraceID,
		Stage:            r.Stage,
		Capability:       r.Capability,
		Model:            r.Model,
		Provider:         r.Provider,
		Prompt:           r.Prompt,
		Response:         r.Response,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		MaxTokens:        r.MaxTokens,
		FinishReason:     r.FinishReason,
		StartedAt:        r.StartedAt.UnixNano(),
		DurationMs:       r.DurationMs,
		Error:            r.Error,
		Retries:          r.Retries,
	}
}

func (r callRow) record() *llm.CallRecord {
	return &llm.CallRecord{
		RequestID:        r.RequestID,
		TraceID:          r.TraceID,
		Stage:            r.Stage,
		Capability:       r.Capability,
		Model:            r.Model,
		Provider:         r.Provider,
		Prompt:           r.Prompt,
		Response:         r.Response,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		MaxTokens:        r.MaxTokens,
		FinishReason:     r.FinishReason,
		StartedAt:        time.Unix(0, r.StartedAt).UTC(),
		DurationMs:       r.DurationMs,
		Error:            r.Error,
		Retries:          r.Retries,
	}
}

// Record implements llm.CallRecorder.
func (s *Store) Record(ctx context.Context, rec *llm.CallRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if rec == nil || rec.RequestID == "" {
		return errors.New("call record requires a request id")
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO completion_calls (
		request_id, trace_id, stage, capability, model, provider, prompt, response,
		prompt_tokens, completion_tokens, total_tokens, max_tokens, finish_reason,
		started_at, duration_ms, error, retries
	) VALUES (
		:request_id, :trace_id, :stage, :capability, :model, :provider, :prompt, :response,
		:prompt_tokens, :completion_tokens, :total_tokens, :max_tokens, :finish_reason,
		:started_at, :duration_ms, :error, :retries
	)`, callRowOf(rec))
	if err != nil {
		return fmt.Errorf("insert completion call: %w", err)
	}
	return nil
}

// RecordCompile implements compiler.Auditor.
func (s *Store) RecordCompile(ctx context.Context, rec *compiler.Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if rec == nil || rec.ID == "" {
		return errors.New("compile record requires an id")
	}

	row := compileRow{
		ID:          rec.ID,
		Instruction: rec.Instruction,
		ToCode:      rec.ToCode,
		Interactive: rec.Interactive,
		Outcome:     rec.Outcome,
		Error:       rec.Error,
		Raw:         rec.Raw,
		StartedAt:   rec.StartedAt.UnixNano(),
		DurationMs:  rec.Duration.Milliseconds(),
	}
	if rec.Output != nil {
		data, err := json.Marshal(rec.Output)
		if err != nil {
			return fmt.Errorf("encode compile output: %w", err)
		}
		row.Output = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO compiles (
		id, instruction, to_code, interactive, outcome, output, error, raw, started_at, duration_ms
	) VALUES (
		:id, :instruction, :to_code, :interactive, :outcome, :output, :error, :raw, :started_at, :duration_ms
	)`, row)
	if err != nil {
		return fmt.Errorf("insert compile: %w", err)
	}

	s.logger.Debug("Recorded compile", "compile_id", rec.ID, "outcome", rec.Outcome)
	return nil
}

// ListCompiles returns the most recent compiles first. A limit of zero or
// less returns all of them.
func (s *Store) ListCompiles(ctx context.Context, limit int) ([]*compiler.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows := []compileRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM compiles ORDER BY started_at DESC, id LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("select compiles: %w", err)
	}

	out := make([]*compiler.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetCompile returns one compile by id.
func (s *Store) GetCompile(ctx context.Context, id string) (*compiler.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	var row compileRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM compiles WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("select compile: %w", err)
	}
	return row.record()
}

// CallsFor returns the completion calls of one compile in call order.
func (s *Store) CallsFor(ctx context.Context, compileID string) ([]*llm.CallRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	rows := []callRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM completion_calls WHERE trace_id = ? ORDER BY started_at, request_id`, compileID); err != nil {
		return nil, fmt.Errorf("select completion calls: %w", err)
	}

	out := make([]*llm.CallRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}
