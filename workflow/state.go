package workflow

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// State 工作流中的一个状态节点
// 可以有动作(进入时执行), 条件(进入时判断, 立即跳转), 事件(外部触发跳转), 超时(外部轮询跳转)
type State struct {
	name       string
	actions    []Action
	conditions []*Condition
	events     map[string]*EventTrigger
	timeLimit  *TimeLimit

	// maxCascadeDepth 条件跳转的最大次数, <=0 不限制, 由所属的 Workflow 设置
	maxCascadeDepth int
}

func NewState(name string) *State {
	return &State{
		name:       name,
		actions:    make([]Action, 0),
		conditions: make([]*Condition, 0),
		events:     make(map[string]*EventTrigger),
	}
}

/*
*
  - @description: 进入当前状态
    1. 记录状态名和进入时间
    2. 按注册顺序执行所有动作
    3. 按注册顺序判断条件, 第一个有结果的条件生效, 递归进入目标状态(同一个实例)
    4. 没有条件跳转并且是终止状态时, 标记实例完成
    条件形成环时会一直递归, 除非所属工作流设置了 MaxCascadeDepth
  - @param ctx context.Context
  - @param subject WorkflowContext
  - @param instance *WorkflowInstance
  - @return *WorkflowInstance 最终停留的实例记录, 和传入的是同一个对象
*/
func (s *State) MoveTo(ctx context.Context, subject WorkflowContext, instance *WorkflowInstance) (*WorkflowInstance, error) {
	return s.moveTo(ctx, subject, instance, 0)
}

func (s *State) moveTo(ctx context.Context, subject WorkflowContext, instance *WorkflowInstance, depth int) (*WorkflowInstance, error) {
	instance.StateName = s.name
	instance.StateEnteredAt = timeNow()
	stateEntriesTotal.WithLabelValues(sanitizeLabel(instance.WorkflowName), s.name).Inc()

	s.CallActions(ctx, subject)

	if next := s.EvaluateConditions(ctx, subject); next != nil {
		if s.maxCascadeDepth > 0 && depth+1 > s.maxCascadeDepth {
			return instance, errors.WithMessagef(ErrCascadeDepthExceeded,
				"workflow: %s, state: %s, next: %s, max depth: %d", instance.WorkflowName, s.name, next.Name(), s.maxCascadeDepth)
		}
		slog.DebugContext(ctx, "condition redirect",
			"workflow", instance.WorkflowName, "from", s.name, "to", next.Name())
		return next.moveTo(ctx, subject, instance, depth+1)
	}

	if s.IsTerminal() {
		instance.IsComplete = true
		instancesCompletedTotal.WithLabelValues(sanitizeLabel(instance.WorkflowName), s.name).Inc()
	}
	return instance, nil
}

// CallActions 按注册顺序执行动作
func (s *State) CallActions(ctx context.Context, subject WorkflowContext) {
	for _, action := range s.actions {
		action.Execute(ctx, subject, s)
	}
}

// EvaluateConditions 返回第一个有结果的条件的目标状态, 都没有结果时返回 nil
func (s *State) EvaluateConditions(ctx context.Context, subject WorkflowContext) *State {
	for _, condition := range s.conditions {
		if next := condition.Evaluate(ctx, subject); next != nil {
			return next
		}
	}
	return nil
}

// HasTimeLimitPassed 超时返回超时的目标状态, 没有超时或者没有设置超时返回 nil
func (s *State) HasTimeLimitPassed(started time.Time) *State {
	if !s.HasTimeLimit() {
		return nil
	}
	if s.timeLimit.IsPassed(started) {
		return s.timeLimit.State()
	}
	return nil
}

// IsTerminal 没有超时并且没有事件的状态是终止状态, 条件不影响判断
func (s *State) IsTerminal() bool {
	return !s.HasTimeLimit() && len(s.events) == 0
}

func (s *State) HasTimeLimit() bool {
	return s.timeLimit != nil
}

func (s *State) AddAction(action Action) *State {
	s.actions = append(s.actions, action)
	return s
}

func (s *State) AddCondition(condition *Condition) *State {
	s.conditions = append(s.conditions, condition)
	return s
}

// AddEventTrigger 同名事件会被覆盖
func (s *State) AddEventTrigger(trigger *EventTrigger) *State {
	s.events[trigger.EventName()] = trigger
	return s
}

func (s *State) SetTimeLimit(timeLimit *TimeLimit) *State {
	s.timeLimit = timeLimit
	return s
}

func (s *State) Name() string { return s.name }

func (s *State) Actions() []Action { return slices.Clone(s.actions) }

func (s *State) Conditions() []*Condition { return slices.Clone(s.conditions) }

// Events 返回事件名 -> 触发器的拷贝
func (s *State) Events() map[string]*EventTrigger { return maps.Clone(s.events) }

// EventTrigger 获取事件对应的触发器
func (s *State) EventTrigger(eventName string) (*EventTrigger, bool) {
	trigger, ok := s.events[eventName]
	return trigger, ok
}

// EventNames 排序后的事件名
func (s *State) EventNames() []string {
	return slices.Sorted(maps.Keys(s.events))
}

func (s *State) TimeLimit() *TimeLimit { return s.timeLimit }
