package workflow

import (
	"context"
)

// InstanceRepo 工作流实例持久化
// 工作流内核只修改实例的内存字段, 提交由 service 层通过 Transaction 完成
type InstanceRepo interface {
	CreateWorkflowInstance(ctx context.Context, workflowInstance *WorkflowInstancePo) (*WorkflowInstancePo, error)
	CreateContextRef(ctx context.Context, contextRef *ContextInstancePo) (*ContextInstancePo, error)
	QueryWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) ([]*WorkflowInstancePo, error)
	CountWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) (int64, error)
	UpdateWorkflowInstance(ctx context.Context, param *UpdateWorkflowInstanceParams) error
	// QueryInstancesPastTimeLimit 查询已经超时的未完成实例, 多个检查之间是 OR 关系
	QueryInstancesPastTimeLimit(ctx context.Context, checks []*TimeLimitCheck) ([]*WorkflowInstancePo, error)
	// FindContextRef 查询实例所属的上下文
	FindContextRef(ctx context.Context, workflowInstanceID int64) (*ContextInstancePo, error)
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
