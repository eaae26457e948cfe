package workflow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	yes, no := NewState("yes"), NewState("no")
	ctx := context.Background()
	subject := &testSubject{}

	tests := []struct {
		name      string
		predicate PredicateFunc
		trueName  string
		falseName string
		want      *State
	}{
		{name: "true分支", predicate: alwaysTrue, trueName: "yes", falseName: "no", want: yes},
		{name: "false分支", predicate: alwaysFalse, trueName: "yes", falseName: "no", want: no},
		{name: "true没有目标", predicate: alwaysTrue, falseName: "no", want: nil},
		{name: "false没有目标", predicate: alwaysFalse, trueName: "yes", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			condition := NewCondition(tt.predicate, tt.trueName, tt.falseName)
			if tt.trueName != "" {
				require.NoError(t, condition.SetTrueState(yes))
			}
			if tt.falseName != "" {
				require.NoError(t, condition.SetFalseState(no))
			}
			assert.True(t, condition.IsComplete())
			assert.Equal(t, tt.want, condition.Evaluate(ctx, subject))
		})
	}
}

func TestConditionIsComplete(t *testing.T) {
	condition := NewCondition(PredicateFunc(alwaysTrue), "yes", "")
	assert.False(t, condition.IsComplete())
	require.NoError(t, condition.SetTrueState(NewState("yes")))
	assert.True(t, condition.IsComplete())
}

func TestConditionSetStateMismatch(t *testing.T) {
	condition := NewCondition(PredicateFunc(alwaysTrue), "B", "B")

	err := condition.SetTrueState(NewState("C"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStateDoesNotMatchName))

	err = condition.SetFalseState(nil)
	var mismatch *StateMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "B", mismatch.ExpectedName)
	assert.Contains(t, err.Error(), "<nil>")
	assert.Nil(t, condition.FalseState())
}
