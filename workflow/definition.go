package workflow

import "reflect"

// WorkflowDefinition 工作流定义, 需要外部实现, 注册到 WorkflowManager 后延迟构建
type WorkflowDefinition interface {
	// Name 工作流名称, 在 WorkflowManager 中唯一
	Name() string
	// ContextType 上下文类型, 必须实现 WorkflowContext, 可以是接口类型, nil 表示接受任何上下文
	ContextType() reflect.Type
	// Build 在 builder 上声明状态, 返回声明完成的 builder
	// 可以通过 WorkflowManager 获取其他工作流, 不能获取自己, 否则会死锁
	Build(builder *WorkflowBuilder) *WorkflowBuilder
}

// BuildFunc 声明工作流的函数
type BuildFunc func(builder *WorkflowBuilder) *WorkflowBuilder

type funcDefinition struct {
	name        string
	contextType reflect.Type
	buildFunc   BuildFunc
}

// NewDefinition 函数形式的 WorkflowDefinition
//
//	workflow.NewDefinition("order_approval", workflow.ContextTypeOf[*Order](), func(b *workflow.WorkflowBuilder) *workflow.WorkflowBuilder {
//	    return b.Initial("submitted").StartState("submitted").End()
//	})
func NewDefinition(name string, contextType reflect.Type, buildFunc BuildFunc) WorkflowDefinition {
	return &funcDefinition{name: name, contextType: contextType, buildFunc: buildFunc}
}

func (d *funcDefinition) Name() string { return d.name }

func (d *funcDefinition) ContextType() reflect.Type { return d.contextType }

func (d *funcDefinition) Build(builder *WorkflowBuilder) *WorkflowBuilder {
	if d.buildFunc == nil {
		return builder
	}
	return d.buildFunc(builder)
}
