package workflow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadBasicOperations(t *testing.T) {
	payload := NewPayload(nil)

	require.NoError(t, payload.Set([]string{"user", "name"}, "张三"))
	require.NoError(t, payload.Set([]string{"user", "age"}, int64(25)))
	require.NoError(t, payload.Set([]string{"user", "active"}, true))
	assert.True(t, errors.Is(payload.Set(nil, 1), ErrWorkflowParamInvalid))

	name, ok := payload.GetString("user", "name")
	assert.True(t, ok)
	assert.Equal(t, "张三", name)
	age, ok := payload.GetInt64("user", "age")
	assert.True(t, ok)
	assert.Equal(t, int64(25), age)
	active, ok := payload.GetBool("user", "active")
	assert.True(t, ok)
	assert.True(t, active)

	_, ok = payload.Get("user", "name", "first")
	assert.False(t, ok)
	_, ok = payload.Get()
	assert.False(t, ok)

	payload.Delete("user", "age")
	_, ok = payload.Get("user", "age")
	assert.False(t, ok)
	payload.Delete("missing", "path")
}

func TestPayloadFromBytes(t *testing.T) {
	payload, err := ParsePayload([]byte(`{"order": {"amount": 120, "approved": false}}`))
	require.NoError(t, err)

	amount, ok := payload.GetInt64("order", "amount")
	assert.True(t, ok)
	assert.Equal(t, int64(120), amount)

	// 中间路径不是对象时覆盖
	require.NoError(t, payload.Set([]string{"order", "amount", "currency"}, "CNY"))
	currency, ok := payload.GetString("order", "amount", "currency")
	assert.True(t, ok)
	assert.Equal(t, "CNY", currency)

	var decoded struct {
		Order struct {
			Approved bool `json:"approved"`
		} `json:"order"`
	}
	require.NoError(t, payload.Unmarshal(&decoded))
	assert.False(t, decoded.Order.Approved)

	_, err = ParsePayload([]byte(`[1,2]`))
	assert.True(t, errors.Is(err, ErrWorkflowParamInvalid))
	assert.NotNil(t, NewPayload([]byte(`not json`)))
}

func TestDocumentStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInstanceRepo(db)
	store := NewDocumentStore(db, repo)
	require.NoError(t, store.AutoMigrate())

	document := NewDocument("order", "ORDER-001")
	require.NoError(t, document.Payload().Set([]string{"amount"}, 100))
	require.NoError(t, store.Save(ctx, document))

	po, err := repo.CreateWorkflowInstance(ctx, &WorkflowInstancePo{WorkflowName: "approval", StateName: "submitted"})
	require.NoError(t, err)
	_, err = repo.CreateContextRef(ctx, &ContextInstancePo{ContextType: "order", ContextID: "ORDER-001", WorkflowInstanceID: po.ID})
	require.NoError(t, err)

	require.NoError(t, document.Payload().Set([]string{"amount"}, 200))
	require.NoError(t, store.Save(ctx, document))

	loaded, err := store.LoadContext(ctx, document.ContextRef())
	require.NoError(t, err)
	loadedDocument := loaded.(*Document)
	amount, ok := loadedDocument.Payload().GetInt64("amount")
	assert.True(t, ok)
	assert.Equal(t, int64(200), amount)
	instances := loadedDocument.WorkflowInstancesForWorkflow("approval", true)
	require.Len(t, instances, 1)
	assert.Equal(t, po.ID, instances[0].ID)
	assert.Equal(t, "submitted", instances[0].StateName)

	_, err = store.Load(ctx, &ContextRef{ContextType: "order", ContextID: "missing"})
	assert.True(t, errors.Is(err, ErrContextNotFound))
	assert.True(t, errors.Is(store.Save(ctx, NewDocument("", "x")), ErrWorkflowParamInvalid))
}

func TestDocumentStoreSaveContext(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewDocumentStore(db, NewInstanceRepo(db))
	require.NoError(t, store.AutoMigrate())

	document := NewDocument("order", "ORDER-002")
	require.NoError(t, store.SaveContext(ctx, document))
	require.NoError(t, document.Payload().Set([]string{"status"}, "escalated"))
	require.NoError(t, store.SaveContext(ctx, document))

	loaded, err := store.Load(ctx, document.ContextRef())
	require.NoError(t, err)
	status, ok := loaded.Payload().GetString("status")
	assert.True(t, ok)
	assert.Equal(t, "escalated", status)

	other := &refSubject{ref: &ContextRef{ContextType: "order", ContextID: "x"}}
	assert.True(t, errors.Is(store.SaveContext(ctx, other), ErrWorkflowParamInvalid))
}
