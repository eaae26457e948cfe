package workflow

import "time"

// WorkflowInstance 上下文在某个工作流中的位置记录entity
// 由 Workflow.Start 创建, 每次 State.MoveTo 都会修改, core 不负责持久化和删除
type WorkflowInstance struct {
	ID             int64 // 持久化后的ID, 0表示还没有保存
	WorkflowName   string
	StateName      string
	IsComplete     bool
	StateEnteredAt time.Time
}

// NewWorkflowInstance 创建一个未完成的实例
func NewWorkflowInstance(workflowName string) *WorkflowInstance {
	return &WorkflowInstance{WorkflowName: workflowName}
}
