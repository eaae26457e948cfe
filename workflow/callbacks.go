package workflow

import (
	"context"
)

// Action 进入状态时执行的动作, 需要外部实现
// 可以修改上下文, 没有返回值, 动作的失败需要业务自己记录到上下文里面
type Action interface {
	/**
	 * @description: 执行动作
	 * @param ctx context.Context
	 * @param subject WorkflowContext 工作流上下文, 动作可以修改它
	 * @param state *State 当前进入的状态
	 */
	Execute(ctx context.Context, subject WorkflowContext, state *State)
}

// Predicate 条件判断, 需要外部实现
type Predicate interface {
	/**
	 * @description: 条件判断
	 * @param ctx context.Context
	 * @param subject WorkflowContext 工作流上下文, 只读
	 * @return bool 判断结果
	 */
	Evaluate(ctx context.Context, subject WorkflowContext) bool
}

// ActionFunc 函数形式的 Action
type ActionFunc func(ctx context.Context, subject WorkflowContext, state *State)

func (f ActionFunc) Execute(ctx context.Context, subject WorkflowContext, state *State) {
	f(ctx, subject, state)
}

// PredicateFunc 函数形式的 Predicate
type PredicateFunc func(ctx context.Context, subject WorkflowContext) bool

func (f PredicateFunc) Evaluate(ctx context.Context, subject WorkflowContext) bool {
	return f(ctx, subject)
}

