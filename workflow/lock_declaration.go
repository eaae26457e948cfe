package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrLockFailed = errors.New("lock failed")
)

// WorkflowLock 同一个上下文的实例同时只能被一个调用方推进
type WorkflowLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回 ErrLockFailed
	//                 2.可以重入锁, ctx 中已经持有同一个 key 时直接执行
	//  @param ctx 原来的ctx
	//  @param key 锁的key
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

type lockKey string

// ContextLockKey 上下文对应的锁key
func ContextLockKey(ref *ContextRef) string {
	return fmt.Sprintf("workflow_context_%s_%s", ref.ContextType, ref.ContextID)
}

func lockHeld(ctx context.Context, key string) bool {
	_, ok := ctx.Value(lockKey(key)).(string)
	return ok
}
