// Package workflow 提供声明式的状态机工作流。
//
// 这是一个轻量级的 Go 工作流引擎：用链式 builder 声明状态、条件、事件和超时，
// 构建成状态图后驱动任意业务对象（上下文）在状态之间流转。
//
// 主要特性：
//   - 声明式定义：状态之间按名称引用，可以引用后面声明的状态，也可以引用自己
//   - 条件跳转：进入状态后按声明顺序判断条件，第一个有结果的条件立即跳转
//   - 外部事件：状态声明事件名，外部分发事件后跳转
//   - 超时跳转：状态声明超时，由定时轮询（check-time-limit 命令）跳转
//   - 数量限制：同一个上下文未完成实例数、全部实例数的上限
//   - 数据持久化：基于 GORM 保存实例和上下文关联
//   - 并发安全：同一个上下文的操作通过本地锁或 Redis 分布式锁串行化
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/blingmoon/state-workflow/workflow"
//	    "gorm.io/driver/sqlite"
//	    "gorm.io/gorm"
//	)
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := gorm.Open(sqlite.Open("workflow.db"), &gorm.Config{})
//	    workflow.AutoMigrate(db)
//	    repo := workflow.NewInstanceRepo(db)
//	    store := workflow.NewDocumentStore(db, repo)
//	    store.AutoMigrate()
//
//	    // 2. 注册工作流定义, 第一次使用时才会构建
//	    manager := workflow.NewWorkflowManager()
//	    manager.AddWorkflowDefinition(workflow.NewDefinition("approval", workflow.ContextTypeOf[*workflow.Document](),
//	        func(b *workflow.WorkflowBuilder) *workflow.WorkflowBuilder {
//	            return b.Initial("submitted").
//	                StartState("submitted").AddEvent("approve", "approved").SetTimeLimit(3600, "expired").End().
//	                StartState("approved").End().
//	                StartState("expired").End()
//	        }))
//
//	    // 3. 创建服务
//	    service := workflow.NewWorkflowService(manager, repo, workflow.NewLocalWorkflowLock(),
//	        workflow.WithContextLoader(store))
//
//	    // 4. 开始工作流, 分发事件
//	    ctx := context.Background()
//	    order := workflow.NewDocument("order", "ORDER-001")
//	    store.Save(ctx, order)
//	    service.StartWorkflow(ctx, &workflow.StartWorkflowReq{Subject: order, WorkflowName: "approval"})
//	    service.DispatchEvent(ctx, &workflow.DispatchEventReq{Subject: order, WorkflowName: "approval", EventName: "approve"})
//
//	    // 5. 定时任务中执行超时轮询
//	    service.CheckTimeLimits(ctx)
//	}
//
// 状态流转规则：
//
// 进入一个状态（MoveTo）时依次：
//   - 记录状态名和进入时间
//   - 按声明顺序执行动作
//   - 按声明顺序判断条件, 第一个有目标状态的条件生效, 在同一次调用中进入目标状态
//   - 没有条件跳转时, 如果状态既没有事件也没有超时, 实例标记为完成
//
// 条件形成环时会无限跳转, 可以通过 WorkflowBuilder.MaxCascadeDepth 限制跳转次数。
//
// 更多示例请参考 examples/with-sqlite。
package workflow
