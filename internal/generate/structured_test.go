package generate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
}

func (v *verdict) Validate() error {
	if v.Result != "yes" && v.Result != "no" {
		return errors.New("bad result")
	}
	return nil
}

var verdictSchema = json.RawMessage(`{"type":"object"}`)

func TestGenerateStructured_Decodes(t *testing.T) {
	s := NewSimulated().Handle(FeatureSignalEvaluation, func(Request) (string, error) {
		return "```json\n{\"result\":\"yes\",\"confidence\":0.8}\n```", nil
	})

	got, resp, err := GenerateStructured[verdict](context.Background(), s, Request{Feature: FeatureSignalEvaluation}, verdictSchema, 3)
	require.NoError(t, err)
	assert.Equal(t, "yes", got.Result)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	assert.NotNil(t, resp)
}

func TestGenerateStructured_RetriesInvalidThenSucceeds(t *testing.T) {
	outputs := []string{"not json", `{"result":"maybe"}`, `{"result":"no","confidence":0.6}`}
	s := NewSimulated().Handle(FeatureSignalEvaluation, func(Request) (string, error) {
		out := outputs[0]
		outputs = outputs[1:]
		return out, nil
	})

	got, _, err := GenerateStructured[verdict](context.Background(), s, Request{Feature: FeatureSignalEvaluation}, verdictSchema, 3)
	require.NoError(t, err)
	assert.Equal(t, "no", got.Result)
	assert.Equal(t, 3, s.Calls(FeatureSignalEvaluation))
}

func TestGenerateStructured_Exhausted(t *testing.T) {
	s := NewSimulated().Handle(FeatureSignalEvaluation, func(Request) (string, error) {
		return "I cannot answer", nil
	})

	_, _, err := GenerateStructured[verdict](context.Background(), s, Request{Feature: FeatureSignalEvaluation}, verdictSchema, 3)
	assert.ErrorIs(t, err, ErrInvalidOutput)
	assert.Equal(t, 3, s.Calls(FeatureSignalEvaluation))
}

func TestGenerateStructured_TransportErrorNotRetried(t *testing.T) {
	s := NewSimulated().Handle(FeatureSignalEvaluation, func(Request) (string, error) {
		return "", errors.New("boom")
	})

	_, _, err := GenerateStructured[verdict](context.Background(), s, Request{Feature: FeatureSignalEvaluation}, verdictSchema, 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidOutput)
	assert.Equal(t, 1, s.Calls(FeatureSignalEvaluation))
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`Here you go: {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`},
		{"no json", "no json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanJSON(tt.in))
	}
}
