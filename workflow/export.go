package workflow

import (
	"context"
	"log/slog"
	"time"
)

type WorkflowService interface {
	/**
	 * @description: 上下文开始一个工作流实例并保存
	 *				 同一个上下文同时只会被一个goroutine操作, 如果有其他goroutine正在操作, 返回 ErrLockFailed
	 * @param ctx context.Context
	 * @param req *StartWorkflowReq
	 * @return *WorkflowInstance, error
	 */
	StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*WorkflowInstance, error)
	/**
	 * @description: 给上下文分发一个外部事件
	 *				 上下文在 WorkflowName 中所有未完成的实例, 当前状态声明了这个事件的都会跳转并保存
	 *				 没有实例声明这个事件时什么都不做
	 * @param ctx context.Context
	 * @param req *DispatchEventReq
	 * @return []*WorkflowInstance 跳转了的实例, error
	 */
	DispatchEvent(ctx context.Context, req *DispatchEventReq) ([]*WorkflowInstance, error)
	/**
	 * @description: 超时轮询, 一般由定时任务调用
	 *				 查询所有超时的实例, 通过 ContextLoader 加载上下文, 跳转到超时的目标状态并保存
	 *				 单个实例失败不影响其他实例, 失败数量记录在返回的报告中
	 * @param ctx context.Context
	 * @return *TimeLimitReport, error
	 */
	CheckTimeLimits(ctx context.Context) (*TimeLimitReport, error)
	/**
	 * @description: 查询工作流实例数量
	 * @param ctx context.Context
	 * @param params *QueryWorkflowInstanceParams
	 * @return int64, error
	 */
	CountWorkflowInstance(ctx context.Context, params *QueryWorkflowInstanceParams) (int64, error)
	QueryWorkflowInstance(ctx context.Context, params *QueryWorkflowInstanceParams) ([]*WorkflowInstance, error)
}

type StartWorkflowReq struct {
	Subject      PersistentContext `json:"-" validate:"required"`
	WorkflowName string            `json:"workflow_name" validate:"required"`
}

type DispatchEventReq struct {
	Subject      PersistentContext `json:"-" validate:"required"`
	WorkflowName string            `json:"workflow_name" validate:"required"`
	EventName    string            `json:"event_name" validate:"required"`
}

// TimeLimitReport 一次超时轮询的结果
type TimeLimitReport struct {
	Checked int                 `json:"checked"` // 查询到的超时实例数量
	Moved   []*WorkflowInstance `json:"moved"`
	Failed  map[int64]error     `json:"-"` // 实例ID -> 错误
}

const defaultLockTTL = 30 * time.Second

// WorkflowServiceImpl 工作流服务
type WorkflowServiceImpl struct {
	manager       *WorkflowManager
	repo          InstanceRepo
	executeLock   WorkflowLock
	contextLoader ContextLoader
	lockTTL       time.Duration
	logger        *slog.Logger
}

type ServiceOption func(*WorkflowServiceImpl)

// WithContextLoader 超时轮询需要设置
func WithContextLoader(loader ContextLoader) ServiceOption {
	return func(s *WorkflowServiceImpl) { s.contextLoader = loader }
}

func WithLockTTL(ttl time.Duration) ServiceOption {
	return func(s *WorkflowServiceImpl) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *WorkflowServiceImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewWorkflowService(manager *WorkflowManager, repo InstanceRepo, executeLock WorkflowLock, opts ...ServiceOption) WorkflowService {
	s := &WorkflowServiceImpl{
		manager:     manager,
		repo:        repo,
		executeLock: executeLock,
		lockTTL:     defaultLockTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
