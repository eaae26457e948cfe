package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service WorkflowService
	manager *WorkflowManager
	repo    InstanceRepo
	store   *DocumentStore
	lock    WorkflowLock
}

func newServiceFixture(t *testing.T, definitions ...WorkflowDefinition) *serviceFixture {
	t.Helper()
	db := newTestDB(t)
	repo := NewInstanceRepo(db)
	store := NewDocumentStore(db, repo)
	require.NoError(t, store.AutoMigrate())
	manager := NewWorkflowManager()
	for _, definition := range definitions {
		require.NoError(t, manager.AddWorkflowDefinition(definition))
	}
	lock := NewLocalWorkflowLock()
	return &serviceFixture{
		service: NewWorkflowService(manager, repo, lock,
			WithContextLoader(store), WithLogger(slogt.New(t)), WithLockTTL(time.Minute)),
		manager: manager,
		repo:    repo,
		store:   store,
		lock:    lock,
	}
}

func (f *serviceFixture) newDocument(t *testing.T, id string) *Document {
	t.Helper()
	document := NewDocument("order", id)
	require.NoError(t, f.store.Save(context.Background(), document))
	return document
}

func eventDefinition() WorkflowDefinition {
	return NewDefinition("abc", ContextTypeOf[*Document](), func(b *WorkflowBuilder) *WorkflowBuilder {
		return b.Initial("A").
			TotalLimit(2).
			StartState("A").AddEvent("go", "B").End().
			StartState("B").AddEvent("go", "C").End().
			StartState("C").End()
	})
}

func timeLimitDefinition() WorkflowDefinition {
	return NewDefinition("reminder", ContextTypeOf[*Document](), func(b *WorkflowBuilder) *WorkflowBuilder {
		return b.Initial("waiting").
			StartState("waiting").
			AddEvent("answer", "answered").
			SetTimeLimit(60, "expired").
			End().
			StartState("answered").End().
			StartState("expired").
			AddActionFunc(func(ctx context.Context, subject WorkflowContext, state *State) {
				_ = subject.(*Document).Payload().Set([]string{"expired"}, true)
			}).
			End()
	})
}

// A -go-> B -go-> C, 每一步都保存到数据库
func TestServiceEventsEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, eventDefinition())
	document := f.newDocument(t, "1")

	instance, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: document, WorkflowName: "abc"})
	require.NoError(t, err)
	assert.Greater(t, instance.ID, int64(0))
	assert.Equal(t, "A", instance.StateName)
	assert.False(t, instance.IsComplete)

	moved, err := f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: document, WorkflowName: "abc", EventName: "go"})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "B", moved[0].StateName)

	// 没有声明的事件什么都不做
	moved, err = f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: document, WorkflowName: "abc", EventName: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, moved)

	moved, err = f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: document, WorkflowName: "abc", EventName: "go"})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "C", moved[0].StateName)
	assert.True(t, moved[0].IsComplete)

	// 完成的实例不再响应事件
	moved, err = f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: document, WorkflowName: "abc", EventName: "go"})
	require.NoError(t, err)
	assert.Empty(t, moved)

	reloaded, err := f.store.Load(ctx, document.ContextRef())
	require.NoError(t, err)
	instances := reloaded.WorkflowInstancesForWorkflow("abc", false)
	require.Len(t, instances, 1)
	assert.Equal(t, instance.ID, instances[0].ID)
	assert.Equal(t, "C", instances[0].StateName)
	assert.True(t, instances[0].IsComplete)
}

func TestServiceStartOverLimit(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, eventDefinition())
	document := f.newDocument(t, "1")

	for i := 0; i < 2; i++ {
		_, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: document, WorkflowName: "abc"})
		require.NoError(t, err)
	}
	_, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: document, WorkflowName: "abc"})
	var overLimit *OverLimitError
	require.True(t, errors.As(err, &overLimit))
	assert.Equal(t, LimitKindTotal, overLimit.Kind)

	assert.Len(t, document.WorkflowInstances(), 2)
	count, err := f.service.CountWorkflowInstance(ctx, &QueryWorkflowInstanceParams{Context: document.ContextRef()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestServiceInvalidRequests(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, eventDefinition())

	_, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{WorkflowName: "abc"})
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
	_, err = f.service.StartWorkflow(ctx, nil)
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
	_, err = f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: NewDocument("order", "1"), WorkflowName: "abc"})
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
	_, err = f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: NewDocument("order", ""), WorkflowName: "abc"})
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))

	_, err = f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: NewDocument("order", "1"), WorkflowName: "missing"})
	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
}

func TestServiceStartWhileLocked(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, eventDefinition())
	document := f.newDocument(t, "1")

	err := f.lock.NonBlockingSynchronized(ctx, ContextLockKey(document.ContextRef()), time.Minute, func(context.Context) error {
		_, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: document, WorkflowName: "abc"})
		return err
	})
	assert.True(t, errors.Is(err, ErrLockFailed))
	assert.Empty(t, document.WorkflowInstances())
}

func TestServiceCheckTimeLimits(t *testing.T) {
	ctx := context.Background()
	now := freezeTime(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := newServiceFixture(t, timeLimitDefinition(), eventDefinition())

	late := f.newDocument(t, "late")
	answered := f.newDocument(t, "answered")
	_, err := f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: late, WorkflowName: "reminder"})
	require.NoError(t, err)
	_, err = f.service.StartWorkflow(ctx, &StartWorkflowReq{Subject: answered, WorkflowName: "reminder"})
	require.NoError(t, err)
	_, err = f.service.DispatchEvent(ctx, &DispatchEventReq{Subject: answered, WorkflowName: "reminder", EventName: "answer"})
	require.NoError(t, err)

	report, err := f.service.CheckTimeLimits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)

	*now = now.Add(2 * time.Minute)
	report, err = f.service.CheckTimeLimits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Failed)
	require.Len(t, report.Moved, 1)
	assert.Equal(t, "expired", report.Moved[0].StateName)
	assert.True(t, report.Moved[0].IsComplete)

	reloaded, err := f.store.Load(ctx, late.ContextRef())
	require.NoError(t, err)
	instances := reloaded.WorkflowInstancesForWorkflow("reminder", false)
	require.Len(t, instances, 1)
	assert.Equal(t, "expired", instances[0].StateName)
	expired, ok := reloaded.Payload().GetBool("expired")
	assert.True(t, ok)
	assert.True(t, expired)

	report, err = f.service.CheckTimeLimits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

func TestServiceCheckTimeLimitsWithoutLoader(t *testing.T) {
	db := newTestDB(t)
	service := NewWorkflowService(NewWorkflowManager(), NewInstanceRepo(db), NewLocalWorkflowLock())
	_, err := service.CheckTimeLimits(context.Background())
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
}

func TestServiceCheckTimeLimitsMissingContext(t *testing.T) {
	ctx := context.Background()
	now := freezeTime(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := newServiceFixture(t, timeLimitDefinition())

	po, err := f.repo.CreateWorkflowInstance(ctx, &WorkflowInstancePo{
		WorkflowName: "reminder",
		StateName:    "waiting",
		StateDate:    now.UnixMilli(),
	})
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	report, err := f.service.CheckTimeLimits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Moved)
	require.Contains(t, report.Failed, po.ID)
	assert.True(t, errors.Is(report.Failed[po.ID], ErrContextNotFound))
}
