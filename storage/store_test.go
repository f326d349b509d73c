package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/llm/testutil"
	"github.com/c360studio/semlogic/logic"
	"github.com/c360studio/semlogic/model"
	"github.com/c360studio/semlogic/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "audit", "semlogic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOutput() *logic.CompilerOutput {
	return &logic.CompilerOutput{
		CompileID: "c-1",
		Reasoning: logic.LogicPlan{Steps: []logic.LogicUnit{
			{ID: "S1", Role: logic.RoleCondition, Text: "temperature > 30", DependsOn: []string{}, Operator: logic.OpGreater, Value: "30"},
			{ID: "S2", Role: logic.RoleAction, Text: "TURN_ON AC", DependsOn: []string{"S1"}},
		}},
		Pseudocode: logic.PseudocodeBlock{Language: logic.PseudocodeLanguage, Code: "IF temperature > 30:\n    TURN_ON(AC)"},
	}
}

func TestStore_RecordCompile(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordCompile(ctx, &compiler.Record{
		ID:          "c-1",
		Instruction: "If temperature exceeds 30, turn on the AC.",
		Interactive: true,
		Outcome:     compiler.OutcomeOK,
		Output:      sampleOutput(),
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
	}))

	got, err := s.GetCompile(ctx, "c-1")
	require.NoError(t, err)

	assert.Equal(t, "If temperature exceeds 30, turn on the AC.", got.Instruction)
	assert.True(t, got.Interactive)
	assert.False(t, got.ToCode)
	assert.Equal(t, compiler.OutcomeOK, got.Outcome)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	require.NotNil(t, got.Output)
	assert.Equal(t, sampleOutput(), got.Output)
}

func TestStore_FailedCompileWithoutOutput(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCompile(ctx, &compiler.Record{
		ID:        "c-2",
		Outcome:   compiler.OutcomeParseFailure,
		Error:     "no JSON object found",
		Raw:       "I cannot help with that.",
		StartedAt: time.Now(),
	}))

	got, err := s.GetCompile(ctx, "c-2")
	require.NoError(t, err)
	assert.Nil(t, got.Output)
	assert.Equal(t, "I cannot help with that.", got.Raw)
	assert.Equal(t, "no JSON object found", got.Error)
}

func TestStore_GetCompileNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.GetCompile(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStore_ListCompiles(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.RecordCompile(ctx, &compiler.Record{
			ID:        id,
			Outcome:   compiler.OutcomeOK,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListCompiles(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)

	two, err := s.ListCompiles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "mid", two[1].ID)
}

func TestStore_CallsFor(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := []*llm.CallRecord{
		{RequestID: "r2", TraceID: "c-1", Stage: model.StagePseudocode, Prompt: "p2", Response: "IF x:", StartedAt: base.Add(time.Second), MaxTokens: 500},
		{RequestID: "r1", TraceID: "c-1", Stage: model.StageReasoning, Prompt: "p1", Response: `{"steps":[]}`, StartedAt: base, MaxTokens: 512, TotalTokens: 42},
		{RequestID: "r3", TraceID: "c-2", Stage: model.StageReasoning, StartedAt: base, Error: "timeout", Retries: 2},
	}
	for _, c := range calls {
		require.NoError(t, s.Record(ctx, c))
	}

	got, err := s.CallsFor(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].RequestID)
	assert.Equal(t, model.StageReasoning, got[0].Stage)
	assert.Equal(t, 42, got[0].TotalTokens)
	assert.Equal(t, 512, got[0].MaxTokens)
	assert.True(t, base.Equal(got[0].StartedAt))
	assert.Equal(t, "r2", got[1].RequestID)

	other, err := s.CallsFor(ctx, "c-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "timeout", other[0].Error)
	assert.Equal(t, 2, other[0].Retries)

	none, err := s.CallsFor(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RejectsIncompleteRecords(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	assert.Error(t, s.Record(ctx, &llm.CallRecord{}))
	assert.Error(t, s.RecordCompile(ctx, &compiler.Record{}))

	var closed *storage.Store
	assert.ErrorIs(t, closed.Record(ctx, &llm.CallRecord{RequestID: "x"}), storage.ErrClosed)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semlogic.db")
	ctx := context.Background()

	s, err := storage.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCompile(ctx, &compiler.Record{ID: "c-1", Outcome: compiler.OutcomeOK, StartedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = storage.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ListCompiles(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_AsCompilerAuditor(t *testing.T) {
	s := openStore(t)
	mock := &testutil.MockCompleter{ByStage: map[string][]string{
		model.StageReasoning:  {`{"steps":[{"id":"S1","role":"action","text":"beep","depends_on":[]}]}`},
		model.StagePseudocode: {"BEEP()"},
	}}
	c := compiler.New(mock, compiler.WithAuditor(s))

	out, err := c.Compile(context.Background(), "Beep.")
	require.NoError(t, err)

	rec, err := s.GetCompile(context.Background(), out.CompileID)
	require.NoError(t, err)
	assert.Equal(t, "Beep.", rec.Instruction)
	assert.Equal(t, compiler.OutcomeOK, rec.Outcome)
	require.NotNil(t, rec.Output)
	assert.Equal(t, "BEEP()", rec.Output.Pseudocode.Code)
}
