package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createInstance(t *testing.T, repo InstanceRepo, workflowName string, stateName string, stateDate time.Time, isComplete bool) *WorkflowInstancePo {
	t.Helper()
	po, err := repo.CreateWorkflowInstance(context.Background(), &WorkflowInstancePo{
		WorkflowName: workflowName,
		StateName:    stateName,
		IsComplete:   isComplete,
		StateDate:    stateDate.UnixMilli(),
	})
	require.NoError(t, err)
	require.Greater(t, po.ID, int64(0))
	return po
}

func TestInstanceRepoQueryInstancesPastTimeLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	freezeTime(t, now)
	repo := NewInstanceRepo(newTestDB(t))

	expiredA := createInstance(t, repo, "order", "waiting", now.Add(-2*time.Hour), false)
	createInstance(t, repo, "order", "waiting", now.Add(-10*time.Minute), false)
	createInstance(t, repo, "order", "waiting", now.Add(-2*time.Hour), true)
	createInstance(t, repo, "order", "other", now.Add(-2*time.Hour), false)
	expiredB := createInstance(t, repo, "refund", "review", now.Add(-2*time.Minute), false)

	pos, err := repo.QueryInstancesPastTimeLimit(ctx, []*TimeLimitCheck{
		NewTimeLimitCheck("order", "waiting", 3600),
		NewTimeLimitCheck("refund", "review", 60),
	})
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, expiredA.ID, pos[0].ID)
	assert.Equal(t, expiredB.ID, pos[1].ID)

	pos, err = repo.QueryInstancesPastTimeLimit(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestInstanceRepoQueryByContext(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepo(newTestDB(t))
	now := time.Now()

	first := createInstance(t, repo, "order", "A", now, false)
	second := createInstance(t, repo, "order", "C", now, true)
	foreign := createInstance(t, repo, "order", "A", now, false)
	for _, link := range []struct {
		id        int64
		contextID string
	}{{first.ID, "1"}, {second.ID, "1"}, {foreign.ID, "2"}} {
		_, err := repo.CreateContextRef(ctx, &ContextInstancePo{ContextType: "order", ContextID: link.contextID, WorkflowInstanceID: link.id})
		require.NoError(t, err)
	}

	isNoLimit, asc, incomplete := true, true, false
	pos, err := repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		Context:      &ContextRef{ContextType: "order", ContextID: "1"},
		OrderbyIDAsc: &asc,
		Page:         &Pager{IsNoLimit: &isNoLimit},
	})
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, first.ID, pos[0].ID)
	assert.Equal(t, second.ID, pos[1].ID)

	count, err := repo.CountWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		WorkflowNameIn: []string{"order"},
		IsComplete:     &incomplete,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ref, err := repo.FindContextRef(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", ref.ContextID)
	_, err = repo.FindContextRef(ctx, 999)
	assert.True(t, errors.Is(err, ErrContextNotFound))

	_, err = repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{})
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
}

func TestInstanceRepoUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepo(newTestDB(t))
	po := createInstance(t, repo, "order", "A", time.Now(), false)

	instance := po.ToEntity()
	instance.StateName = "B"
	instance.IsComplete = true
	instance.StateEnteredAt = time.UnixMilli(1714564800123)
	require.NoError(t, repo.UpdateWorkflowInstance(ctx, newInstanceUpdate(instance)))

	pos, err := repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{IDIn: []int64{po.ID}, Page: &Pager{}})
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, instance, pos[0].ToEntity())

	err = repo.UpdateWorkflowInstance(ctx, &UpdateWorkflowInstanceParams{
		Where:    &UpdateWorkflowInstanceWhere{},
		Fields:   &UpdateWorkflowInstanceField{StateName: &instance.StateName},
		LimitMax: 1,
	})
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
}

func TestInstanceRepoTransactionRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepo(newTestDB(t))

	err := repo.Transaction(ctx, func(ctx context.Context) error {
		createInstanceCtx(t, ctx, repo)
		// 嵌套调用复用同一个事务
		return repo.Transaction(ctx, func(ctx context.Context) error {
			createInstanceCtx(t, ctx, repo)
			return errors.New("rollback")
		})
	})
	require.EqualError(t, err, "rollback")

	count, err := repo.CountWorkflowInstance(ctx, &QueryWorkflowInstanceParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, repo.Transaction(ctx, func(ctx context.Context) error {
		createInstanceCtx(t, ctx, repo)
		return nil
	}))
	count, err = repo.CountWorkflowInstance(ctx, &QueryWorkflowInstanceParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func createInstanceCtx(t *testing.T, ctx context.Context, repo InstanceRepo) {
	t.Helper()
	_, err := repo.CreateWorkflowInstance(ctx, &WorkflowInstancePo{WorkflowName: "order", StateName: "A"})
	require.NoError(t, err)
}
