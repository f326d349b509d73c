// Package main implements an offline completion server for semlogic demos
// and CLI smoke runs. It serves OpenAI-compatible /v1/chat/completions
// responses from fixture files, routing by the "model" field in the request.
//
// Usage:
//
//	mock-llm -port 11434                     # built-in fixtures
//	mock-llm -fixtures ./fixtures -port 11434
//	mock-llm -print-registry http://localhost:11434/v1 > models.json
//
// Fixture files are named by model: "mock-reasoning.json" answers model
// "mock-reasoning". JSON fixtures must be valid JSON; .txt and .py fixtures
// are returned verbatim, so pseudocode and Python stages can be scripted.
//
// Sequential fixtures: if numbered files exist (e.g. "mock-coding.1.py",
// "mock-coding.2.py"), the Nth call to that model returns the Nth fixture.
// After exhausting numbered fixtures the base file is used as a repeating
// fallback. This scripts the broken-code-then-repair path.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

//go:embed fixtures
var builtinFixtures embed.FS

// Mock model names, one per completion capability.
const (
	modelReasoning  = "mock-reasoning"
	modelPseudocode = "mock-pseudocode"
	modelCoding     = "mock-coding"
)

// fixtureExts are the accepted fixture file extensions.
var fixtureExts = map[string]bool{".json": true, ".txt": true, ".py": true}

// fsSubBuiltin returns the embedded fixtures rooted at their directory.
func fsSubBuiltin() (fs.FS, error) {
	return fs.Sub(builtinFixtures, "fixtures")
}

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test
// verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // model name → ordered fixture contents
	calls    atomic.Int64
	logger   *slog.Logger

	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:      fixtures,
		logger:        logger,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func (s *server) captureRequest(model string, req chatRequest, callIndex int) {
	captured := capturedRequest{
		Model:     model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	}
	if req.MaxTokens != nil {
		captured.MaxTokens = *req.MaxTokens
	}

	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[model] = append(s.modelRequests[model], captured)
}

// modelCounter returns the call counter for a model, creating it lazily.
func (s *server) modelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture files (default: built-in)")
	port := flag.Int("port", 11434, "port to listen on")
	printRegistry := flag.String("print-registry", "", "print a model registry for this base URL and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *printRegistry != "" {
		if err := writeRegistry(os.Stdout, *printRegistry); err != nil {
			logger.Error("Failed to write registry", "error", err)
			os.Exit(1)
		}
		return
	}

	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	var fsys fs.FS
	source := *fixtureDir
	if source == "" {
		sub, err := fsSubBuiltin()
		if err != nil {
			logger.Error("Failed to open built-in fixtures", "error", err)
			os.Exit(1)
		}
		fsys, source = sub, "built-in"
	} else {
		fsys = os.DirFS(source)
	}

	fixtures, err := loadFixtures(fsys)
	if err != nil {
		logger.Error("Failed to load fixtures", "source", source, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "models", len(fixtures), "source", source)
	for model, seq := range fixtures {
		logger.Info("Fixture model", "model", model, "fixtures", len(seq))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           newServer(fixtures, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Mock completion server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)

	// Exact model name first, then without the "mock-" prefix.
	seq, ok := s.fixtures[req.Model]
	if !ok {
		seq, ok = s.fixtures[strings.TrimPrefix(req.Model, "mock-")]
	}
	if !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	callIndex := int(s.modelCounter(req.Model).Add(1) - 1)
	s.captureRequest(req.Model, req, callIndex+1)

	content := seq[len(seq)-1]
	if callIndex < len(seq) {
		content = seq[callIndex]
	}

	s.logger.Info("Served completion",
		"call", callNum,
		"model", req.Model,
		"call_index", callIndex+1,
		"fixtures", len(seq),
		"bytes", len(content))

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleModels lists the fixture models (OpenAI-compatible).
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns total_calls and a per-model calls_by_model breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured requests, optionally filtered by the
// "model" and 1-indexed "call" query parameters.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, callErr := strconv.Atoi(r.URL.Query().Get("call"))

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != callFilter {
				continue
			}
			result[model] = append(result[model], req)
		}
	}
	s.modelRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "mock-coding.1.py".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(json|txt|py)$`)

// loadFixtures reads fixture files from fsys and returns model → ordered
// content sequence: numbered files in numeric order, then the base file as
// the final fallback.
func loadFixtures(fsys fs.FS) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := path.Ext(d.Name())
		if d.IsDir() || !fixtureExts[ext] {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if ext == ".json" && !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", p)
		}
		content := strings.TrimRight(string(data), "\n")

		if matches := numberedFileRe.FindStringSubmatch(d.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][index] = content
			return nil
		}

		baseFiles[strings.TrimSuffix(d.Name(), ext)] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	allModels := make(map[string]bool)
	for m := range baseFiles {
		allModels[m] = true
	}
	for m := range numberedFiles {
		allModels[m] = true
	}

	fixtures := make(map[string][]string)
	for model := range allModels {
		var seq []string
		if numbered, ok := numberedFiles[model]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}
		if base, ok := baseFiles[model]; ok {
			seq = append(seq, base)
		}
		if len(seq) > 0 {
			fixtures[model] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, errors.New("no fixture files found")
	}
	return fixtures, nil
}

// writeRegistry writes a model registry that routes each capability to its
// mock model at baseURL, for use as model.registry_file.
func writeRegistry(w io.Writer, baseURL string) error {
	endpoint := func(model string) map[string]string {
		return map[string]string{"provider": "ollama", "url": baseURL, "model": model}
	}
	registry := map[string]any{
		"capabilities": map[string]any{
			"reasoning":  map[string][]string{"preferred": {modelReasoning}},
			"pseudocode": map[string][]string{"preferred": {modelPseudocode}},
			"coding":     map[string][]string{"preferred": {modelCoding}},
			"fast":       map[string][]string{"preferred": {modelReasoning}},
		},
		"endpoints": map[string]any{
			modelReasoning:  endpoint(modelReasoning),
			modelPseudocode: endpoint(modelPseudocode),
			modelCoding:     endpoint(modelCoding),
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(registry)
}
