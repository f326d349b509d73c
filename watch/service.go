package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/logic"
)

// PlanSuffix replaces an instruction file's extension in its output name.
const PlanSuffix = ".plan.json"

// ErrEmptyInstruction is returned for instruction files with no content.
var ErrEmptyInstruction = errors.New("empty instruction file")

// PlanPath returns the output path for an instruction file:
// rules/fan.txt becomes rules/fan.plan.json.
func PlanPath(instructionPath string) string {
	return strings.TrimSuffix(instructionPath, filepath.Ext(instructionPath)) + PlanSuffix
}

// Compiler is the compile operation the service runs per file.
type Compiler interface {
	Compile(ctx context.Context, instruction string, opts ...compiler.CompileOption) (*logic.CompilerOutput, error)
}

// Service compiles instruction files as the watcher reports them.
type Service struct {
	watcher     *Watcher
	compiler    Compiler
	compileOpts []compiler.CompileOption
	initialScan bool
	logger      *slog.Logger

	compiled atomic.Int64
	failed   atomic.Int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCompileOptions sets the options passed to every compile.
func WithCompileOptions(opts ...compiler.CompileOption) ServiceOption {
	return func(s *Service) {
		s.compileOpts = opts
	}
}

// WithInitialScan compiles every matching file once before watching.
func WithInitialScan(on bool) ServiceOption {
	return func(s *Service) {
		s.initialScan = on
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a service over w and c.
func NewService(w *Watcher, c Compiler, opts ...ServiceOption) *Service {
	s := &Service{
		watcher:  w,
		compiler: c,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run watches until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.initialScan {
		if err := s.scan(ctx); err != nil {
			return err
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer s.watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		}
	}
}

// Stats returns how many files compiled and failed.
func (s *Service) Stats() (compiled, failed int64) {
	return s.compiled.Load(), s.failed.Load()
}

func (s *Service) handle(ctx context.Context, ev Event) {
	if ev.Op == OpDelete {
		if err := os.Remove(PlanPath(ev.AbsPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove stale plan", "path", ev.Path, "error", err)
		}
		return
	}

	err := s.CompileFile(ctx, ev.AbsPath)
	if errors.Is(err, ErrEmptyInstruction) {
		s.logger.Debug("Skipping empty instruction file", "path", ev.Path)
		return
	}
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("Failed to compile instruction file", "path", ev.Path, "error", err)
		return
	}
	s.compiled.Add(1)
	s.logger.Info("Compiled instruction file", "path", ev.Path, "plan", PlanPath(ev.Path))
}

// scan compiles every matching file under the root and records its hash so
// the watcher skips it until it changes.
func (s *Service) scan(ctx context.Context) error {
	root := s.watcher.Root()
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if s.watcher.excluded(path) {
				return filepath.SkipDir
			}
			return nil
		}

		rel := s.watcher.relPath(path)
		if !s.watcher.Matches(rel) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		s.watcher.SetHash(rel, ContentHash(content))
		s.handle(ctx, Event{Path: rel, AbsPath: path, Op: OpCreate})
		return nil
	})
}

// CompileFile compiles the instruction in path and writes the output to
// PlanPath(path). Empty files return ErrEmptyInstruction.
func (s *Service) CompileFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read instruction: %w", err)
	}
	instruction := strings.TrimSpace(string(content))
	if instruction == "" {
		return ErrEmptyInstruction
	}

	out, err := s.compiler.Compile(ctx, instruction, s.compileOpts...)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return writeAtomic(PlanPath(path), append(data, '\n'))
}

// writeAtomic writes via a temp file and rename so readers never see a
// partial plan.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plan-*")
	if err != nil {
		return fmt.Errorf("create temp plan: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp plan: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename plan: %w", err)
	}
	return nil
}
