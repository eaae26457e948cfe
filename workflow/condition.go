package workflow

import (
	"context"

	"github.com/pkg/errors"
)

// Condition 进入状态后立即判断的条件跳转
// 判断为 true 且有 trueState 时跳到 trueState, 为 false 且有 falseState 时跳到 falseState,
// 其他情况不跳转, 继续判断下一个条件
type Condition struct {
	predicate      Predicate
	trueStateName  string
	falseStateName string
	trueState      *State
	falseState     *State
}

// NewCondition trueStateName/falseStateName 为空表示该分支不跳转
func NewCondition(predicate Predicate, trueStateName string, falseStateName string) *Condition {
	return &Condition{
		predicate:      predicate,
		trueStateName:  trueStateName,
		falseStateName: falseStateName,
	}
}

func (c *Condition) Predicate() Predicate { return c.predicate }
func (c *Condition) TrueStateName() string { return c.trueStateName }
func (c *Condition) FalseStateName() string { return c.falseStateName }
func (c *Condition) TrueState() *State { return c.trueState }
func (c *Condition) FalseState() *State { return c.falseState }

// IsComplete 声明了名称的分支都已经解析
func (c *Condition) IsComplete() bool {
	if c.trueStateName != "" && c.trueState == nil {
		return false
	}
	if c.falseStateName != "" && c.falseState == nil {
		return false
	}
	return true
}

func (c *Condition) SetTrueState(state *State) error {
	if state == nil || state.Name() != c.trueStateName {
		return errors.WithStack(&StateMismatchError{State: state, ExpectedName: c.trueStateName})
	}
	c.trueState = state
	return nil
}

func (c *Condition) SetFalseState(state *State) error {
	if state == nil || state.Name() != c.falseStateName {
		return errors.WithStack(&StateMismatchError{State: state, ExpectedName: c.falseStateName})
	}
	c.falseState = state
	return nil
}

// Evaluate 返回需要跳转的状态, 不需要跳转时返回 nil
func (c *Condition) Evaluate(ctx context.Context, subject WorkflowContext) *State {
	if c.predicate.Evaluate(ctx, subject) {
		return c.trueState
	}
	return c.falseState
}
