package workflow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// 下面的错误类型都可以通过 errors.Is 匹配到 meta.go 里面的哨兵错误,
// 需要具体字段时使用 errors.As

// WorkflowNameUsedError 工作流名称重复注册
type WorkflowNameUsedError struct {
	DuplicatedName string
}

func (e *WorkflowNameUsedError) Error() string {
	return fmt.Sprintf("workflow name %q was already used", e.DuplicatedName)
}

func (e *WorkflowNameUsedError) Unwrap() error { return ErrWorkflowNameAlreadyUsed }

// WorkflowNotFoundError 请求的工作流不存在
type WorkflowNotFoundError struct {
	RequestedName string
	KnownNames    []string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow with name %q was not found, names found are [%s]",
		e.RequestedName, quoteNames(e.KnownNames))
}

func (e *WorkflowNotFoundError) Unwrap() error { return ErrWorkflowNotFound }

// StateNameUsedError 同一个工作流里面状态名重复
type StateNameUsedError struct {
	DuplicatedName string
}

func (e *StateNameUsedError) Error() string {
	return fmt.Sprintf("state name %q was already used in this workflow", e.DuplicatedName)
}

func (e *StateNameUsedError) Unwrap() error { return ErrStateNameAlreadyUsed }

// StateNotFoundError 请求的状态不存在
type StateNotFoundError struct {
	RequestedName string
	KnownNames    []string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("state with name %q was not found, names found are [%s]",
		e.RequestedName, quoteNames(e.KnownNames))
}

func (e *StateNotFoundError) Unwrap() error { return ErrStateNotFound }

// StateMismatchError 设置的目标状态和声明的名称不一致
type StateMismatchError struct {
	State        *State
	ExpectedName string
}

func (e *StateMismatchError) Error() string {
	name := "<nil>"
	if e.State != nil {
		name = e.State.Name()
	}
	return fmt.Sprintf("trying to set state with name %q when object was expecting a state with name %q",
		name, e.ExpectedName)
}

func (e *StateMismatchError) Unwrap() error { return ErrStateDoesNotMatchName }

// ContextInterfaceError 上下文类型没有实现 WorkflowContext
type ContextInterfaceError struct {
	ContextType      string
	MissingInterface string
}

func (e *ContextInterfaceError) Error() string {
	return fmt.Sprintf("context type %q does not implement required interface %q", e.ContextType, e.MissingInterface)
}

func (e *ContextInterfaceError) Unwrap() error { return ErrContextDoesNotImplementInterface }

// ContextNotAcceptedError 上下文类型和工作流声明的类型不一致
type ContextNotAcceptedError struct {
	ContextType         string
	WorkflowContextType string
}

func (e *ContextNotAcceptedError) Error() string {
	return fmt.Sprintf("workflow expecting context of type %q but got a context of type %q",
		e.WorkflowContextType, e.ContextType)
}

func (e *ContextNotAcceptedError) Unwrap() error { return ErrContextNotAccepted }

// OverLimitError 上下文的实例数量达到了工作流的限制
type OverLimitError struct {
	Limit int64
	Kind  LimitKind
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("this workflow only allows a context to have %d %s instances", e.Limit, e.Kind)
}

func (e *OverLimitError) Unwrap() error { return ErrContextOverWorkflowLimit }

func quoteNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return `"` + strings.Join(names, `", "`) + `"`
}

func newStateNotFoundError(name string, known []string) error {
	return errors.WithStack(&StateNotFoundError{RequestedName: name, KnownNames: known})
}
