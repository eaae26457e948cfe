package workflow

import (
	"context"
	"reflect"
	"slices"

	"github.com/pkg/errors"
)

// WorkflowContext 工作流上下文需要实现的能力集合
// 任何实现了这个接口的类型都可以作为工作流的上下文, 一般直接嵌入 InstanceCollection 即可
type WorkflowContext interface {
	AddWorkflowInstance(instance *WorkflowInstance)
	RemoveWorkflowInstance(instance *WorkflowInstance)
	WorkflowInstances() []*WorkflowInstance
	// WorkflowInstancesForWorkflow onlyIncomplete 为 true 时只返回未完成的实例
	WorkflowInstancesForWorkflow(workflowName string, onlyIncomplete bool) []*WorkflowInstance
	HasWorkflowInstancesForWorkflow(workflowName string, onlyIncomplete bool) bool
}

var workflowContextType = reflect.TypeOf((*WorkflowContext)(nil)).Elem()

// ContextTypeOf 获取上下文类型, 用于 WorkflowBuilder.ContextType 和 WorkflowDefinition.ContextType
//
//	workflow.ContextTypeOf[*Order]()
func ContextTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// contextTypeName 上下文类型名称, 用于日志和错误信息
func contextTypeName(t reflect.Type) string {
	if t == nil {
		return workflowContextType.String()
	}
	return t.String()
}

// InstanceCollection WorkflowContext 的默认实现, 嵌入到上下文结构体中使用
//
//	type Order struct {
//	    workflow.InstanceCollection
//	    ID string
//	}
//
// 注意需要以指针形式使用上下文(*Order), 否则添加的实例会丢失
type InstanceCollection struct {
	instances []*WorkflowInstance
}

func (c *InstanceCollection) AddWorkflowInstance(instance *WorkflowInstance) {
	if instance == nil {
		return
	}
	c.instances = append(c.instances, instance)
}

func (c *InstanceCollection) RemoveWorkflowInstance(instance *WorkflowInstance) {
	c.instances = slices.DeleteFunc(c.instances, func(item *WorkflowInstance) bool {
		return item == instance
	})
}

func (c *InstanceCollection) WorkflowInstances() []*WorkflowInstance {
	return slices.Clone(c.instances)
}

func (c *InstanceCollection) WorkflowInstancesForWorkflow(workflowName string, onlyIncomplete bool) []*WorkflowInstance {
	ret := make([]*WorkflowInstance, 0)
	for _, instance := range c.instances {
		if onlyIncomplete && instance.IsComplete {
			continue
		}
		if instance.WorkflowName == workflowName {
			ret = append(ret, instance)
		}
	}
	return ret
}

func (c *InstanceCollection) HasWorkflowInstancesForWorkflow(workflowName string, onlyIncomplete bool) bool {
	return len(c.WorkflowInstancesForWorkflow(workflowName, onlyIncomplete)) > 0
}

// PersistentContext 可以持久化的上下文, 通过 ContextRef 和持久化的实例关联
type PersistentContext interface {
	WorkflowContext
	ContextRef() *ContextRef
}

// ContextLoader 根据 ContextRef 加载上下文, 加载结果需要包含上下文已有的工作流实例
// 超时轮询时通过它找回实例所属的上下文
type ContextLoader interface {
	LoadContext(ctx context.Context, ref *ContextRef) (PersistentContext, error)
}

// ContextSaver 保存上下文, 超时轮询跳转后动作对上下文的修改通过它写回
// ContextLoader 同时实现 ContextSaver 时, 保存和实例在同一个事务中
type ContextSaver interface {
	SaveContext(ctx context.Context, subject PersistentContext) error
}

// ContextLoaderFunc 函数形式的 ContextLoader
type ContextLoaderFunc func(ctx context.Context, ref *ContextRef) (PersistentContext, error)

func (f ContextLoaderFunc) LoadContext(ctx context.Context, ref *ContextRef) (PersistentContext, error) {
	return f(ctx, ref)
}

// ContextLoaderMux 按上下文类型分发到不同的 ContextLoader
type ContextLoaderMux struct {
	loaders map[string]ContextLoader
}

func NewContextLoaderMux() *ContextLoaderMux {
	return &ContextLoaderMux{loaders: make(map[string]ContextLoader)}
}

// Handle 注册上下文类型对应的 loader, 重复注册会覆盖
func (m *ContextLoaderMux) Handle(contextType string, loader ContextLoader) *ContextLoaderMux {
	m.loaders[contextType] = loader
	return m
}

func (m *ContextLoaderMux) LoadContext(ctx context.Context, ref *ContextRef) (PersistentContext, error) {
	loader, ok := m.loaders[ref.ContextType]
	if !ok {
		return nil, errors.WithMessagef(ErrContextNotFound, "no loader for context type %s", ref.ContextType)
	}
	return loader.LoadContext(ctx, ref)
}

// SaveContext 分发到上下文类型对应的 loader, loader 没有实现 ContextSaver 时不保存
func (m *ContextLoaderMux) SaveContext(ctx context.Context, subject PersistentContext) error {
	ref := subject.ContextRef()
	if ref == nil {
		return errors.Wrap(ErrWorkflowParamInvalid, "subject has no context ref")
	}
	loader, ok := m.loaders[ref.ContextType]
	if !ok {
		return errors.WithMessagef(ErrContextNotFound, "no loader for context type %s", ref.ContextType)
	}
	if saver, ok := loader.(ContextSaver); ok {
		return saver.SaveContext(ctx, subject)
	}
	return nil
}
