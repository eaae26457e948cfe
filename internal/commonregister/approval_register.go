// Package commonregister 示例和测试共用的工作流定义
package commonregister

import (
	"context"
	"reflect"

	"github.com/blingmoon/state-workflow/workflow"
)

const (
	ApprovalWorkflowName = "order_approval"
	OrderDocumentType    = "order"

	EventApprove = "approve"
	EventReject  = "reject"
)

// ApprovalDefinition 订单审批
//
//	submitted --金额不超过 AutoApproveLimit--> approved
//	submitted --其他--> reviewing --approve/reject--> approved/rejected
//	reviewing --超过 ReviewSeconds--> escalated --approve/reject--> approved/rejected
//
// 一个订单同时只能有一个审批中的实例
type ApprovalDefinition struct {
	AutoApproveLimit int64
	ReviewSeconds    int64
}

func NewApprovalDefinition() *ApprovalDefinition {
	return &ApprovalDefinition{AutoApproveLimit: 1000, ReviewSeconds: 24 * 3600}
}

func (d *ApprovalDefinition) Name() string { return ApprovalWorkflowName }

func (d *ApprovalDefinition) ContextType() reflect.Type {
	return workflow.ContextTypeOf[*workflow.Document]()
}

func (d *ApprovalDefinition) Build(builder *workflow.WorkflowBuilder) *workflow.WorkflowBuilder {
	return builder.
		Initial("submitted").
		ActiveLimit(1).
		StartState("submitted").
		AddActionFunc(markStatus("submitted")).
		StartCondition().
		ConditionFunc(d.canAutoApprove).
		IfTrue("approved").
		IfFalse("reviewing").
		End().
		End().
		StartState("reviewing").
		AddActionFunc(markStatus("reviewing")).
		AddEvent(EventApprove, "approved").
		AddEvent(EventReject, "rejected").
		SetTimeLimit(d.ReviewSeconds, "escalated").
		End().
		StartState("escalated").
		AddActionFunc(markStatus("escalated")).
		AddEvent(EventApprove, "approved").
		AddEvent(EventReject, "rejected").
		End().
		StartState("approved").AddActionFunc(markStatus("approved")).End().
		StartState("rejected").AddActionFunc(markStatus("rejected")).End()
}

func (d *ApprovalDefinition) canAutoApprove(ctx context.Context, subject workflow.WorkflowContext) bool {
	amount, ok := subject.(*workflow.Document).Payload().GetInt64("amount")
	return ok && amount <= d.AutoApproveLimit
}

// markStatus 把当前状态和进入次数写入订单
func markStatus(status string) workflow.ActionFunc {
	return func(ctx context.Context, subject workflow.WorkflowContext, state *workflow.State) {
		payload := subject.(*workflow.Document).Payload()
		_ = payload.Set([]string{"status"}, status)
		visits, _ := payload.GetInt64("visits", state.Name())
		_ = payload.Set([]string{"visits", state.Name()}, visits+1)
	}
}

// NewOrder 创建订单上下文
func NewOrder(id string, amount int64) *workflow.Document {
	order := workflow.NewDocument(OrderDocumentType, id)
	_ = order.Payload().Set([]string{"amount"}, amount)
	return order
}

// RegisterApprovalWorkflow 注册默认配置的审批工作流
func RegisterApprovalWorkflow(manager *workflow.WorkflowManager) error {
	return manager.AddWorkflowDefinition(NewApprovalDefinition())
}
