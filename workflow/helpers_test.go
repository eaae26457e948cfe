package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testSubject 测试用上下文
type testSubject struct {
	InstanceCollection
	Approved bool
	Visited  []string
}

// otherSubject 用来测试上下文类型不匹配
type otherSubject struct {
	InstanceCollection
}

func (s *testSubject) visit(name string) {
	s.Visited = append(s.Visited, name)
}

func recordVisit(ctx context.Context, subject WorkflowContext, state *State) {
	subject.(*testSubject).visit(state.Name())
}

func alwaysTrue(ctx context.Context, subject WorkflowContext) bool { return true }

func alwaysFalse(ctx context.Context, subject WorkflowContext) bool { return false }

// freezeTime 固定 timeNow, 测试结束后恢复
func freezeTime(t *testing.T, now time.Time) *time.Time {
	t.Helper()
	current := now
	old := timeNow
	timeNow = func() time.Time { return current }
	t.Cleanup(func() { timeNow = old })
	return &current
}

// newTestDB sqlite 内存数据库, 只用一个连接, 否则每个连接都是一个新的空数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}
