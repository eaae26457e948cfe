package workflow

import (
	"maps"
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// WorkflowManager 工作流注册中心
// 注册的是定义, 第一次获取时才构建, 构建结果会缓存, 同一个名称只构建一次
type WorkflowManager struct {
	definitionsLock sync.RWMutex
	definitions     map[string]WorkflowDefinition
	workflows       sync.Map // name -> *Workflow
	loadLocks       sync.Map // name -> *sync.Mutex
}

func NewWorkflowManager() *WorkflowManager {
	return &WorkflowManager{
		definitions: make(map[string]WorkflowDefinition),
	}
}

// AddWorkflowDefinition 注册工作流定义, 名称重复返回错误
func (m *WorkflowManager) AddWorkflowDefinition(definition WorkflowDefinition) error {
	if definition == nil {
		return errors.Wrap(ErrWorkflowParamInvalid, "definition is nil")
	}
	m.definitionsLock.Lock()
	defer m.definitionsLock.Unlock()
	if _, ok := m.definitions[definition.Name()]; ok {
		return errors.WithStack(&WorkflowNameUsedError{DuplicatedName: definition.Name()})
	}
	m.definitions[definition.Name()] = definition
	return nil
}

/*
*
  - @description: 获取工作流, 没有构建过的先构建
    每个名称一把锁, 并发获取同一个工作流时只会构建一次, 构建失败不会缓存
    Build 中可以获取其他工作流, 获取自己会死锁
  - @param name string
  - @return *Workflow, error
*/
func (m *WorkflowManager) GetWorkflow(name string) (*Workflow, error) {
	if workflow, ok := m.loadWorkflow(name); ok {
		return workflow, nil
	}
	definition, ok := m.definition(name)
	if !ok {
		return nil, errors.WithStack(&WorkflowNotFoundError{RequestedName: name, KnownNames: m.DefinitionNames()})
	}

	lock, _ := m.loadLocks.LoadOrStore(name, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()
	if workflow, ok := m.loadWorkflow(name); ok {
		return workflow, nil
	}

	builder := NewWorkflowBuilder(definition.Name())
	// ContextType 为 nil 时接受任何 WorkflowContext
	if contextType := definition.ContextType(); contextType != nil {
		if err := builder.ContextType(contextType).Err(); err != nil {
			return nil, errors.WithMessagef(err, "definition %s", name)
		}
	}
	builder = definition.Build(builder)
	if builder == nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "definition %s returned nil builder", name)
	}
	workflow, err := builder.Build()
	if err != nil {
		return nil, err
	}
	m.workflows.Store(name, workflow)
	return workflow, nil
}

func (m *WorkflowManager) loadWorkflow(name string) (*Workflow, bool) {
	i, ok := m.workflows.Load(name)
	if !ok {
		return nil, false
	}
	workflow, ok := i.(*Workflow)
	return workflow, ok
}

func (m *WorkflowManager) definition(name string) (WorkflowDefinition, bool) {
	m.definitionsLock.RLock()
	defer m.definitionsLock.RUnlock()
	definition, ok := m.definitions[name]
	return definition, ok
}

// DefinitionNames 排序后的已注册工作流名称
func (m *WorkflowManager) DefinitionNames() []string {
	m.definitionsLock.RLock()
	defer m.definitionsLock.RUnlock()
	return slices.Sorted(maps.Keys(m.definitions))
}

// Definitions 按名称排序的已注册定义
func (m *WorkflowManager) Definitions() []WorkflowDefinition {
	names := m.DefinitionNames()
	ret := make([]WorkflowDefinition, 0, len(names))
	for _, name := range names {
		if definition, ok := m.definition(name); ok {
			ret = append(ret, definition)
		}
	}
	return ret
}

// TimeLimitedStateChecks 所有工作流中设置了超时的状态, 会触发所有工作流的构建
// EarliestStateTime 以调用时间计算
func (m *WorkflowManager) TimeLimitedStateChecks() ([]*TimeLimitCheck, error) {
	checks := make([]*TimeLimitCheck, 0)
	for _, name := range m.DefinitionNames() {
		workflow, err := m.GetWorkflow(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "TimeLimitedStateChecks failed, workflow: %s", name)
		}
		for _, state := range workflow.TimeLimitedStates() {
			checks = append(checks, NewTimeLimitCheck(name, state.Name(), state.TimeLimit().Seconds()))
		}
	}
	return checks, nil
}
