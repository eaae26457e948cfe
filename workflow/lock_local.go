package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NewLocalWorkflowLock 单进程使用, 多实例部署需要使用 NewRedisWorkflowLock
func NewLocalWorkflowLock() WorkflowLock {
	return &localWorkflowLock{}
}

type localWorkflowLock struct {
	mu    sync.Mutex
	locks map[string]*localLockInfo
}

type localLockInfo struct {
	owner string      // 持有者, 用于验证是否是同一个持有者
	timer *time.Timer // 超时自动释放
}

// NonBlockingSynchronized 非阻塞同步执行
func (l *localWorkflowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	if lockHeld(ctx, key) {
		// 已经持有锁，可重入，直接执行
		return f(ctx)
	}

	owner := uuid.NewString()
	if !l.tryLock(key, owner, maxLockTimeDuration) {
		return errors.WithMessagef(ErrLockFailed, "[localWorkflowLock.NonBlockingSynchronized] %s has been locked", key)
	}
	defer l.releaseKey(key, owner)

	return f(context.WithValue(ctx, lockKey(key), owner))
}

func (l *localWorkflowLock) tryLock(key string, owner string, maxLockTimeDuration time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*localLockInfo)
	}
	if _, ok := l.locks[key]; ok {
		return false
	}
	l.locks[key] = &localLockInfo{
		owner: owner,
		timer: time.AfterFunc(maxLockTimeDuration, func() {
			l.releaseKey(key, owner)
		}),
	}
	return true
}

// releaseKey 释放锁, 超时已经释放或者被别人持有时不做处理
func (l *localWorkflowLock) releaseKey(key string, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, ok := l.locks[key]
	if !ok {
		return
	}
	if info.owner != owner {
		slog.Warn("[localWorkflowLock.releaseKey] owner mismatch", "key", key, "owner", info.owner, "release", owner)
		return
	}
	info.timer.Stop()
	delete(l.locks, key)
}
