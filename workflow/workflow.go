package workflow

import (
	"context"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

// Workflow 工作流定义entity, 由 WorkflowBuilder 构建, 构建完成后不再修改
// states 持有所有状态, 状态之间的跳转都指向同一个 states 里面的对象
type Workflow struct {
	name                string
	contextType         reflect.Type // nil 表示接受任何 WorkflowContext
	states              map[string]*State
	initialState        *State
	activeInstanceLimit *int64
	totalInstanceLimit  *int64
	maxCascadeDepth     int
}

func NewWorkflow(name string, contextType reflect.Type) *Workflow {
	return &Workflow{
		name:        name,
		contextType: contextType,
		states:      make(map[string]*State),
	}
}

/*
*
  - @description: 上下文开始一个新的工作流实例
    1. 检查上下文类型
    2. 检查未完成实例数量限制, 再检查全部实例数量限制, 只统计已经存在的实例
    3. 创建实例并添加到上下文
    4. 进入初始状态
  - @param ctx context.Context
  - @param subject WorkflowContext
  - @return *WorkflowInstance, error
*/
func (w *Workflow) Start(ctx context.Context, subject WorkflowContext) (*WorkflowInstance, error) {
	if !w.CheckType(subject) {
		subjectType := "<nil>"
		if subject != nil {
			subjectType = reflect.TypeOf(subject).String()
		}
		return nil, errors.WithStack(&ContextNotAcceptedError{
			ContextType:         subjectType,
			WorkflowContextType: contextTypeName(w.contextType),
		})
	}
	if w.initialState == nil {
		return nil, errors.WithMessagef(ErrStateNotFound, "workflow %s has no initial state", w.name)
	}

	if subject.HasWorkflowInstancesForWorkflow(w.name, false) {
		if w.activeInstanceLimit != nil {
			active := int64(len(subject.WorkflowInstancesForWorkflow(w.name, true)))
			if active >= *w.activeInstanceLimit {
				limitRejectionsTotal.WithLabelValues(w.name, LimitKindActive).Inc()
				return nil, errors.WithStack(&OverLimitError{Limit: *w.activeInstanceLimit, Kind: LimitKindActive})
			}
		}
		if w.totalInstanceLimit != nil {
			total := int64(len(subject.WorkflowInstancesForWorkflow(w.name, false)))
			if total >= *w.totalInstanceLimit {
				limitRejectionsTotal.WithLabelValues(w.name, LimitKindTotal).Inc()
				return nil, errors.WithStack(&OverLimitError{Limit: *w.totalInstanceLimit, Kind: LimitKindTotal})
			}
		}
	}

	instance := NewWorkflowInstance(w.name)
	subject.AddWorkflowInstance(instance)
	instancesStartedTotal.WithLabelValues(w.name).Inc()
	slog.DebugContext(ctx, "workflow start", "workflow", w.name, "initial", w.initialState.Name())
	return w.initialState.MoveTo(ctx, subject, instance)
}

// CheckType 上下文是否是工作流接受的类型
func (w *Workflow) CheckType(subject WorkflowContext) bool {
	if subject == nil {
		return false
	}
	if w.contextType == nil {
		return true
	}
	return reflect.TypeOf(subject).AssignableTo(w.contextType)
}

// AddState 状态名不能重复
func (w *Workflow) AddState(state *State) error {
	if _, ok := w.states[state.Name()]; ok {
		return errors.WithStack(&StateNameUsedError{DuplicatedName: state.Name()})
	}
	state.maxCascadeDepth = w.maxCascadeDepth
	w.states[state.Name()] = state
	return nil
}

func (w *Workflow) GetState(stateName string) (*State, error) {
	if state, ok := w.states[stateName]; ok {
		return state, nil
	}
	return nil, newStateNotFoundError(stateName, w.StateNames())
}

// TimeLimitedStates 设置了超时的状态, 按名称排序
func (w *Workflow) TimeLimitedStates() []*State {
	ret := make([]*State, 0)
	for _, name := range w.StateNames() {
		if state := w.states[name]; state.HasTimeLimit() {
			ret = append(ret, state)
		}
	}
	return ret
}

func (w *Workflow) NumberOfStates() int { return len(w.states) }

func (w *Workflow) Name() string { return w.name }

func (w *Workflow) ContextType() reflect.Type { return w.contextType }

// StateNames 排序后的状态名
func (w *Workflow) StateNames() []string {
	return slices.Sorted(maps.Keys(w.states))
}

func (w *Workflow) InitialState() *State { return w.initialState }

// SetInitialState 初始状态必须已经添加到工作流中
func (w *Workflow) SetInitialState(state *State) error {
	if state == nil {
		return newStateNotFoundError("", w.StateNames())
	}
	if registered, ok := w.states[state.Name()]; !ok || registered != state {
		return newStateNotFoundError(state.Name(), w.StateNames())
	}
	w.initialState = state
	return nil
}

// ActiveInstanceLimit 未设置时 ok 为 false
func (w *Workflow) ActiveInstanceLimit() (limit int64, ok bool) {
	if w.activeInstanceLimit == nil {
		return 0, false
	}
	return *w.activeInstanceLimit, true
}

func (w *Workflow) SetActiveInstanceLimit(limit int64) {
	w.activeInstanceLimit = &limit
}

func (w *Workflow) TotalInstanceLimit() (limit int64, ok bool) {
	if w.totalInstanceLimit == nil {
		return 0, false
	}
	return *w.totalInstanceLimit, true
}

func (w *Workflow) SetTotalInstanceLimit(limit int64) {
	w.totalInstanceLimit = &limit
}

// MaxCascadeDepth 条件跳转最大次数, 0 表示不限制
func (w *Workflow) MaxCascadeDepth() int { return w.maxCascadeDepth }

// SetMaxCascadeDepth 会同步到已经添加的状态
func (w *Workflow) SetMaxCascadeDepth(depth int) {
	w.maxCascadeDepth = depth
	for _, state := range w.states {
		state.maxCascadeDepth = depth
	}
}
