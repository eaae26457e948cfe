package workflow

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	// 构建/定义阶段的错误, 属于配置问题, 需要开发人员修改代码
	ErrWorkflowNameAlreadyUsed          = errors.New("workflow name already used")
	ErrWorkflowNotFound                 = errors.New("workflow not found")
	ErrStateNameAlreadyUsed             = errors.New("state name already used")
	ErrStateNotFound                    = errors.New("state not found")
	ErrStateDoesNotMatchName            = errors.New("state does not match name")
	ErrContextDoesNotImplementInterface = errors.New("context does not implement workflow context interface")

	// 运行阶段的错误
	ErrContextNotAccepted       = errors.New("context not accepted by workflow")
	ErrContextOverWorkflowLimit = errors.New("context over workflow limit")
	// ErrCascadeDepthExceeded: 条件跳转次数超过了 MaxCascadeDepth, 只有设置了 MaxCascadeDepth 才会出现
	ErrCascadeDepthExceeded = errors.New("condition cascade depth exceeded")

	// service/repo 层使用
	ErrWorkflowParamInvalid     = errors.New("workflow param invalid")
	ErrWorkflowInstanceNotFound = errors.New("workflow instance not found")
	ErrContextNotFound          = errors.New("workflow context not found")
)

// LimitKind 实例数量限制的类型
type LimitKind = string

const (
	// LimitKindActive 只统计未完成的实例
	LimitKindActive LimitKind = "active"
	// LimitKindTotal 统计全部实例(完成+未完成)
	LimitKindTotal LimitKind = "total"
)

var validatorUtil = validator.New()

// timeNow 测试中可以替换
var timeNow = time.Now

// IsConfigurationError 判断是否是配置错误
// 配置错误需要人工介入处理, 重试不会成功:
//  1. 工作流定义有问题, 比如状态名重复, 引用了不存在的状态
//  2. 上下文类型不匹配
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWorkflowNameAlreadyUsed) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrStateNameAlreadyUsed) ||
		errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrStateDoesNotMatchName) ||
		errors.Is(err, ErrContextDoesNotImplementInterface) ||
		errors.Is(err, ErrContextNotAccepted) {
		return true
	}
	return false
}
