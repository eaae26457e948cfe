package workflow

import (
	"maps"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

// WorkflowBuilder 工作流构建器
// 状态之间的跳转只声明目标状态名, Build 时先收集所有状态名, 再统一解析引用,
// 所以可以引用后面才声明的状态, 也可以引用自己
//
//	wf, err := workflow.NewWorkflowBuilder("order").
//	    Initial("one").
//	    StartState("one").SetTimeLimit(60, "two").End().
//	    StartState("two").End().
//	    Build()
//
// 链式调用中出现的错误会被记录下来, 可以通过 Err 立刻获取, Build 也会返回第一个错误
type WorkflowBuilder struct {
	workflowName     string
	initialStateName string
	contextType      reflect.Type
	activeLimit      *int64
	totalLimit       *int64
	maxCascadeDepth  int
	stateBuilders    map[string]*StateBuilder
	stateOrder       []string
	buildErrs        []error
}

func NewWorkflowBuilder(workflowName string) *WorkflowBuilder {
	return &WorkflowBuilder{
		workflowName:  workflowName,
		stateBuilders: make(map[string]*StateBuilder),
		stateOrder:    make([]string, 0),
	}
}

/*
*
  - @description: 构建工作流
    1. 创建工作流, 设置数量限制
    2. 收集所有状态, 得到 状态名 -> 未完成状态 的映射
    3. 逐个状态解析条件, 事件, 超时的目标状态, 添加到工作流
    4. 解析初始状态
    任意一步失败都返回错误, 不会返回构建了一半的工作流
  - @return *Workflow, error
*/
func (b *WorkflowBuilder) Build() (*Workflow, error) {
	if err := b.Err(); err != nil {
		return nil, errors.WithMessagef(err, "build workflow %s failed", b.workflowName)
	}

	workflow := NewWorkflow(b.workflowName, b.contextType)
	if b.activeLimit != nil {
		workflow.SetActiveInstanceLimit(*b.activeLimit)
	}
	if b.totalLimit != nil {
		workflow.SetTotalInstanceLimit(*b.totalLimit)
	}
	workflow.SetMaxCascadeDepth(b.maxCascadeDepth)

	stateMap := make(map[string]*State, len(b.stateOrder))
	for _, stateName := range b.stateOrder {
		stateMap[stateName] = b.stateBuilders[stateName].unbuiltState()
	}

	for _, stateName := range b.stateOrder {
		state, err := b.stateBuilders[stateName].build(stateMap)
		if err != nil {
			return nil, errors.WithMessagef(err, "build workflow %s failed, state: %s", b.workflowName, stateName)
		}
		if err := workflow.AddState(state); err != nil {
			return nil, errors.WithMessagef(err, "build workflow %s failed", b.workflowName)
		}
	}

	initialState, ok := stateMap[b.initialStateName]
	if !ok {
		return nil, errors.WithMessagef(newStateNotFoundError(b.initialStateName, sortedKeys(stateMap)),
			"build workflow %s failed, initial state", b.workflowName)
	}
	if err := workflow.SetInitialState(initialState); err != nil {
		return nil, errors.WithMessagef(err, "build workflow %s failed", b.workflowName)
	}
	return workflow, nil
}

// Err 返回链式调用中记录的第一个错误
func (b *WorkflowBuilder) Err() error {
	if len(b.buildErrs) == 0 {
		return nil
	}
	return b.buildErrs[0]
}

func (b *WorkflowBuilder) addErr(err error) {
	b.buildErrs = append(b.buildErrs, err)
}

// Initial 设置初始状态名
func (b *WorkflowBuilder) Initial(initialStateName string) *WorkflowBuilder {
	b.initialStateName = initialStateName
	return b
}

// ContextType 设置上下文类型, 类型必须实现 WorkflowContext, 否则立即记录错误
func (b *WorkflowBuilder) ContextType(contextType reflect.Type) *WorkflowBuilder {
	if contextType == nil || !contextType.Implements(workflowContextType) {
		b.addErr(errors.WithStack(&ContextInterfaceError{
			ContextType:      contextTypeName(contextType),
			MissingInterface: workflowContextType.String(),
		}))
		return b
	}
	b.contextType = contextType
	return b
}

// ActiveLimit 一个上下文同时未完成的实例数量上限
func (b *WorkflowBuilder) ActiveLimit(limit int64) *WorkflowBuilder {
	if err := validatorUtil.Var(limit, "gte=0"); err != nil {
		b.addErr(errors.Wrapf(ErrWorkflowParamInvalid, "active limit: %d, err: %v", limit, err))
		return b
	}
	b.activeLimit = &limit
	return b
}

// TotalLimit 一个上下文全部实例数量上限
func (b *WorkflowBuilder) TotalLimit(limit int64) *WorkflowBuilder {
	if err := validatorUtil.Var(limit, "gte=0"); err != nil {
		b.addErr(errors.Wrapf(ErrWorkflowParamInvalid, "total limit: %d, err: %v", limit, err))
		return b
	}
	b.totalLimit = &limit
	return b
}

// MaxCascadeDepth 单次 MoveTo 中条件跳转的最大次数, 默认0不限制
func (b *WorkflowBuilder) MaxCascadeDepth(depth int) *WorkflowBuilder {
	b.maxCascadeDepth = depth
	return b
}

// StartState 开始声明一个状态, 状态名重复时记录错误, 返回的构建器不会加入工作流
func (b *WorkflowBuilder) StartState(stateName string) *StateBuilder {
	stateBuilder := newStateBuilder(b, stateName)
	if _, ok := b.stateBuilders[stateName]; ok {
		b.addErr(errors.WithStack(&StateNameUsedError{DuplicatedName: stateName}))
		return stateBuilder
	}
	b.stateBuilders[stateName] = stateBuilder
	b.stateOrder = append(b.stateOrder, stateName)
	return stateBuilder
}

func (b *WorkflowBuilder) WorkflowName() string { return b.workflowName }

// StateBuilder 状态构建器, End 返回所属的 WorkflowBuilder
type StateBuilder struct {
	parent            *WorkflowBuilder
	stateName         string
	actions           []Action
	eventTriggers     []*EventTrigger
	timeLimit         *TimeLimit
	conditionBuilders []*ConditionBuilder
}

func newStateBuilder(parent *WorkflowBuilder, stateName string) *StateBuilder {
	return &StateBuilder{
		parent:            parent,
		stateName:         stateName,
		actions:           make([]Action, 0),
		eventTriggers:     make([]*EventTrigger, 0),
		conditionBuilders: make([]*ConditionBuilder, 0),
	}
}

func (b *StateBuilder) unbuiltState() *State {
	state := NewState(b.stateName)
	for _, action := range b.actions {
		state.AddAction(action)
	}
	return state
}

// build 在 stateMap 中解析所有跳转, 返回 stateMap 中的同一个状态对象
func (b *StateBuilder) build(stateMap map[string]*State) (*State, error) {
	state := stateMap[b.stateName]

	for _, conditionBuilder := range b.conditionBuilders {
		condition, err := conditionBuilder.build(stateMap)
		if err != nil {
			return nil, err
		}
		state.AddCondition(condition)
	}

	for _, trigger := range b.eventTriggers {
		// 每次构建都使用新的触发器, 构建失败后可以再次构建
		eventTrigger := NewEventTrigger(trigger.EventName(), trigger.StateName())
		target, ok := stateMap[eventTrigger.StateName()]
		if !ok {
			return nil, newStateNotFoundError(eventTrigger.StateName(), sortedKeys(stateMap))
		}
		if err := eventTrigger.SetState(target); err != nil {
			return nil, err
		}
		state.AddEventTrigger(eventTrigger)
	}

	if b.timeLimit != nil {
		timeLimit := NewTimeLimit(b.timeLimit.Seconds(), b.timeLimit.StateName())
		target, ok := stateMap[timeLimit.StateName()]
		if !ok {
			return nil, newStateNotFoundError(timeLimit.StateName(), sortedKeys(stateMap))
		}
		if err := timeLimit.SetState(target); err != nil {
			return nil, err
		}
		state.SetTimeLimit(timeLimit)
	}
	return state, nil
}

// AddAction 进入状态时执行, 按添加顺序执行
func (b *StateBuilder) AddAction(action Action) *StateBuilder {
	if isNilCallback(action) {
		b.parent.addErr(errors.Wrapf(ErrWorkflowParamInvalid, "state %s: nil action", b.stateName))
		return b
	}
	b.actions = append(b.actions, action)
	return b
}

// AddActionFunc AddAction 的函数形式
func (b *StateBuilder) AddActionFunc(fn ActionFunc) *StateBuilder {
	return b.AddAction(fn)
}

// AddEvent 事件 eventName 触发时跳到 followupStateName
func (b *StateBuilder) AddEvent(eventName string, followupStateName string) *StateBuilder {
	b.eventTriggers = append(b.eventTriggers, NewEventTrigger(eventName, followupStateName))
	return b
}

// SetTimeLimit 超时跳转, 多次设置以最后一次为准
func (b *StateBuilder) SetTimeLimit(seconds int64, followupStateName string) *StateBuilder {
	if err := validatorUtil.Var(seconds, "gte=0"); err != nil {
		b.parent.addErr(errors.Wrapf(ErrWorkflowParamInvalid, "state %s: time limit %d, err: %v", b.stateName, seconds, err))
		return b
	}
	b.timeLimit = NewTimeLimit(seconds, followupStateName)
	return b
}

// StartCondition 开始声明一个条件, 条件按声明顺序判断
func (b *StateBuilder) StartCondition() *ConditionBuilder {
	conditionBuilder := &ConditionBuilder{parent: b}
	b.conditionBuilders = append(b.conditionBuilders, conditionBuilder)
	return conditionBuilder
}

// End 结束当前状态的声明
func (b *StateBuilder) End() *WorkflowBuilder {
	return b.parent
}

func (b *StateBuilder) StateName() string { return b.stateName }

// ConditionBuilder 条件构建器, End 返回所属的 StateBuilder
type ConditionBuilder struct {
	parent         *StateBuilder
	predicate      Predicate
	trueStateName  string
	falseStateName string
}

func (b *ConditionBuilder) build(stateMap map[string]*State) (*Condition, error) {
	if b.predicate == nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "state %s: condition function is nil", b.parent.stateName)
	}
	condition := NewCondition(b.predicate, b.trueStateName, b.falseStateName)
	if b.trueStateName != "" {
		target, ok := stateMap[b.trueStateName]
		if !ok {
			return nil, newStateNotFoundError(b.trueStateName, sortedKeys(stateMap))
		}
		if err := condition.SetTrueState(target); err != nil {
			return nil, err
		}
	}
	if b.falseStateName != "" {
		target, ok := stateMap[b.falseStateName]
		if !ok {
			return nil, newStateNotFoundError(b.falseStateName, sortedKeys(stateMap))
		}
		if err := condition.SetFalseState(target); err != nil {
			return nil, err
		}
	}
	return condition, nil
}

// ConditionFunction 设置判断函数, nil 会在 Build 时报错
func (b *ConditionBuilder) ConditionFunction(predicate Predicate) *ConditionBuilder {
	if isNilCallback(predicate) {
		b.predicate = nil
		return b
	}
	b.predicate = predicate
	return b
}

// ConditionFunc ConditionFunction 的函数形式
func (b *ConditionBuilder) ConditionFunc(fn PredicateFunc) *ConditionBuilder {
	return b.ConditionFunction(fn)
}

// IfTrue 判断为 true 时跳转的状态
func (b *ConditionBuilder) IfTrue(trueStateName string) *ConditionBuilder {
	b.trueStateName = trueStateName
	return b
}

// IfFalse 判断为 false 时跳转的状态
func (b *ConditionBuilder) IfFalse(falseStateName string) *ConditionBuilder {
	b.falseStateName = falseStateName
	return b
}

// End 结束当前条件的声明
func (b *ConditionBuilder) End() *StateBuilder {
	return b.parent
}

func sortedKeys(stateMap map[string]*State) []string {
	return slices.Sorted(maps.Keys(stateMap))
}

// isNilCallback 接口本身是 nil, 或者装着 nil 的函数, map, 指针
func isNilCallback(callback any) bool {
	if callback == nil {
		return true
	}
	v := reflect.ValueOf(callback)
	switch v.Kind() {
	case reflect.Func, reflect.Map, reflect.Pointer, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
