package eval_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/eval"
	"github.com/c360studio/semlogic/logic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// tableCompiler answers from a fixed table keyed by instruction.
type tableCompiler struct {
	outputs  map[string]*logic.CompilerOutput
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (c *tableCompiler) Compile(ctx context.Context, instruction string, _ ...compiler.CompileOption) (*logic.CompilerOutput, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.delay):
	}

	out, ok := c.outputs[instruction]
	if !ok {
		return nil, errors.New("parse failure: no JSON object found")
	}
	return out, nil
}

func acOutput() *logic.CompilerOutput {
	return &logic.CompilerOutput{
		Reasoning: logic.LogicPlan{Steps: []logic.LogicUnit{
			cond("S1", "temperature exceeds 30", logic.OpGreater, "30"),
			action("S2", "turn on the AC", "S1"),
		}},
		Pseudocode: logic.PseudocodeBlock{Language: logic.PseudocodeLanguage, Code: "IF temperature > 30:\n    TURN_ON(ac)"},
	}
}

func acGold(instruction string) eval.GoldItem {
	return eval.GoldItem{
		Instruction: instruction,
		GoldSteps: []logic.LogicUnit{
			cond("S1", "temperature exceeds 30", logic.OpGreater, "30"),
			action("S2", "turn on the AC", "S1"),
		},
		GoldPseudocode: "IF temperature > 30:\n    TURN_ON(ac)",
	}
}

func TestRunner_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := &tableCompiler{outputs: map[string]*logic.CompilerOutput{}, delay: 5 * time.Millisecond}
	var items []eval.GoldItem
	for i := range 10 {
		instr := fmt.Sprintf("instruction %d", i)
		c.outputs[instr] = acOutput()
		items = append(items, acGold(instr))
	}
	items = append(items, eval.GoldItem{Instruction: "unparseable"})

	runner := eval.NewRunner(c,
		eval.WithConcurrency(3),
		eval.WithSemanticScorer(eval.NewSemanticScorer(fixedEmbedder{vecs: [][]float32{{1, 0}, {1, 0}}})))

	rows, err := runner.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, rows, len(items))

	for i := range 10 {
		assert.Equal(t, fmt.Sprintf("instruction %d", i), rows[i].Instruction)
		assert.InDelta(t, 1.0, rows[i].Structural.F1, 1e-9)
		assert.InDelta(t, 1.0, rows[i].TokenJaccard, 1e-9)
		assert.InDelta(t, 1.0, rows[i].SemanticSimilarity, 1e-9)
		assert.Empty(t, rows[i].Error)
	}

	last := rows[len(rows)-1]
	assert.Equal(t, "unparseable", last.Instruction)
	assert.Contains(t, last.Error, "parse failure")
	assert.Zero(t, last.Structural.F1)

	assert.LessOrEqual(t, c.peak.Load(), int32(3))
}

func TestRunner_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := &tableCompiler{outputs: map[string]*logic.CompilerOutput{"a": acOutput()}, delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := eval.NewRunner(c).Run(ctx, []eval.GoldItem{acGold("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriteCSV(t *testing.T) {
	rows := []eval.Row{
		{
			Instruction:          "Turn on the AC, if it's hot",
			SemanticSimilarity:   0.5,
			Structural:           eval.Scores{Precision: 1, Recall: 0.5, F1: 2.0 / 3.0, DependencyAccuracy: 1},
			TokenJaccard:         0.25,
			ClarificationsNeeded: []string{"threshold", "duration"},
		},
		{Instruction: "broken", Error: "parse failure"},
	}

	var buf bytes.Buffer
	require.NoError(t, eval.WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "instruction", records[0][0])
	assert.Equal(t, "error", records[0][8])
	assert.Equal(t, []string{
		"Turn on the AC, if it's hot", "0.5000", "1.0000", "0.5000", "0.6667", "1.0000", "0.2500", "threshold;duration", "",
	}, records[1])
	assert.Equal(t, "parse failure", records[2][8])
}

func TestSummarize(t *testing.T) {
	rows := []eval.Row{
		{Structural: eval.Scores{Precision: 1, Recall: 1, F1: 1, DependencyAccuracy: 1}, TokenJaccard: 1, SemanticSimilarity: 0.8},
		{Structural: eval.Scores{Precision: 0.5, Recall: 0, F1: 0, DependencyAccuracy: 0}, TokenJaccard: 0.5, ClarificationsNeeded: []string{"threshold"}},
		{Error: "boom"},
	}

	s := eval.Summarize(rows)
	assert.Equal(t, 3, s.Items)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Clarifications)
	assert.InDelta(t, 0.75, s.Precision, 1e-9)
	assert.InDelta(t, 0.5, s.Recall, 1e-9)
	assert.InDelta(t, 0.75, s.TokenJaccard, 1e-9)
	assert.InDelta(t, 0.4, s.SemanticSimilarity, 1e-9)

	empty := eval.Summarize(nil)
	assert.Zero(t, empty.Items)
	assert.Zero(t, empty.F1)
}
