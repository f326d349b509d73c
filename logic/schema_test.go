package logic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSteps(t *testing.T) {
	raw := []byte(`{
		"steps": [
			{"id": "S1", "role": "condition", "text": " temperature > 30 ", "depends_on": [],
			 "operator": ">", "value": 30, "negated": false,
			 "clarification_needed": false, "clarification_field": null},
			{"id": "S2", "role": "action", "text": "TURN_ON AC", "depends_on": ["S1"],
			 "operator": null, "value": null}
		]
	}`)

	units, err := DecodeSteps(raw)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "temperature > 30", units[0].Text)
	assert.Equal(t, OpGreater, units[0].Operator)
	assert.Equal(t, "30", units[0].Value)
	assert.Equal(t, []string{"S1"}, units[1].DependsOn)
	assert.Empty(t, units[1].Operator)
	assert.Empty(t, units[1].Value)
}

func TestDecodeSteps_NullDependsOn(t *testing.T) {
	units, err := DecodeSteps([]byte(`{"steps":[{"id":"S1","role":"note","text":"x","depends_on":null}]}`))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.NotNil(t, units[0].DependsOn)
	assert.Empty(t, units[0].DependsOn)
}

func TestDecodeSteps_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing steps", raw: `{"plan": []}`},
		{name: "steps not array", raw: `{"steps": "S1"}`},
		{name: "unknown role", raw: `{"steps":[{"id":"S1","role":"goal","text":"x"}]}`},
		{name: "missing text", raw: `{"steps":[{"id":"S1","role":"note"}]}`},
		{name: "empty id", raw: `{"steps":[{"id":"","role":"note","text":"x"}]}`},
		{name: "unknown operator", raw: `{"steps":[{"id":"S1","role":"condition","text":"x","operator":"=>"}]}`},
		{name: "depends_on not strings", raw: `{"steps":[{"id":"S1","role":"note","text":"x","depends_on":[1]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSteps([]byte(tt.raw))
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected *ValidationError, got %T: %v", err, err)
			assert.NotEmpty(t, ve.Violations)
		})
	}
}

func TestDecodeSteps_InvalidJSON(t *testing.T) {
	_, err := DecodeSteps([]byte(`{"steps": [`))
	require.Error(t, err)

	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}
