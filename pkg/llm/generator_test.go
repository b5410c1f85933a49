package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const generatedExerciseJSON = `{"exercises": [{"title": "Sum it up", "problem_statement": "Add two numbers.",` +
	` "starter_code": "# your code here\n", "test_cases": [{"input_data": "1 2", "expected_output": "3", "is_hidden": false}]}]}`

func TestGenerateReturnsRequestedCount(t *testing.T) {
	provider := &stubProvider{responses: []string{generatedExerciseJSON}}
	generator := NewGenerator(provider, 0, zerolog.Nop())

	exercises, err := generator.Generate(context.Background(), GenerateRequest{Topic: "loops", Count: 2})

	require.NoError(t, err)
	require.Len(t, exercises, 2)
	require.Equal(t, 2, provider.calls)
	require.Equal(t, "Sum it up", exercises[0].Title)
	require.Len(t, exercises[0].TestCases, 1)
}

func TestGenerateKeepsPartialResults(t *testing.T) {
	provider := &stubProvider{responses: []string{generatedExerciseJSON, "not json at all"}}
	generator := NewGenerator(provider, 0, zerolog.Nop())

	exercises, err := generator.Generate(context.Background(), GenerateRequest{Topic: "loops", Count: 3})

	require.NoError(t, err)
	require.Len(t, exercises, 1)
}

func TestGenerateErrorsWhenNothingProduced(t *testing.T) {
	provider := &stubProvider{err: errors.New("unreachable")}
	generator := NewGenerator(provider, 0, zerolog.Nop())

	exercises, err := generator.Generate(context.Background(), GenerateRequest{Topic: "loops", Count: 1})

	require.Error(t, err)
	require.Nil(t, exercises)
}

func TestGenerateRejectsNonPositiveCount(t *testing.T) {
	generator := NewGenerator(&stubProvider{}, 0, zerolog.Nop())

	_, err := generator.Generate(context.Background(), GenerateRequest{Topic: "loops"})

	require.Error(t, err)
}
