package workflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type WorkflowInstancePo struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WorkflowName string `gorm:"column:workflow_name;index:idx_workflow_state,priority:1" json:"workflow_name"`
	StateName    string `gorm:"column:state_name;index:idx_workflow_state,priority:2" json:"state_name"`
	IsComplete   bool   `gorm:"column:is_complete" json:"is_complete"`
	StateDate    int64  `gorm:"column:state_date" json:"state_date"` // 进入当前状态的时间, unix 毫秒
	CreatedAt    int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (WorkflowInstancePo) TableName() string {
	return "workflow_instance"
}

// NewWorkflowInstancePo entity -> po
func NewWorkflowInstancePo(instance *WorkflowInstance) *WorkflowInstancePo {
	return &WorkflowInstancePo{
		ID:           instance.ID,
		WorkflowName: instance.WorkflowName,
		StateName:    instance.StateName,
		IsComplete:   instance.IsComplete,
		StateDate:    instance.StateEnteredAt.UnixMilli(),
	}
}

// ToEntity po -> entity
func (p *WorkflowInstancePo) ToEntity() *WorkflowInstance {
	return &WorkflowInstance{
		ID:             p.ID,
		WorkflowName:   p.WorkflowName,
		StateName:      p.StateName,
		IsComplete:     p.IsComplete,
		StateEnteredAt: time.UnixMilli(p.StateDate),
	}
}

// ContextInstancePo 上下文和实例的关联, 一个上下文可以有多个实例
type ContextInstancePo struct {
	ID                 int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ContextType        string `gorm:"column:context_type;index:idx_context,priority:1" json:"context_type"`
	ContextID          string `gorm:"column:context_id;index:idx_context,priority:2" json:"context_id"`
	WorkflowInstanceID int64  `gorm:"column:workflow_instance_id;uniqueIndex" json:"workflow_instance_id"`
	CreatedAt          int64  `gorm:"column:created_at" json:"created_at"`
}

func (ContextInstancePo) TableName() string {
	return "workflow_context_instance"
}

type QueryWorkflowInstanceParams struct {
	IDIn           []int64     `json:"id_in"`
	WorkflowNameIn []string    `json:"workflow_name_in"`
	StateName      *string     `json:"state_name"`
	IsComplete     *bool       `json:"is_complete"`
	Context        *ContextRef `json:"context"`
	OrderbyIDAsc   *bool       `json:"orderby_id_asc"`
	Page           *Pager      `json:"page"`
}

// ContextRef 上下文的持久化标识
type ContextRef struct {
	ContextType string `json:"context_type" validate:"required"`
	ContextID   string `json:"context_id" validate:"required"`
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type UpdateWorkflowInstanceParams struct {
	Where    *UpdateWorkflowInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowInstanceField `json:"field" validate:"required"`
	LimitMax int                          `json:"limit_max" validate:"required"`
}

type UpdateWorkflowInstanceWhere struct {
	IDIn []int64 `json:"id_in"`
}

type UpdateWorkflowInstanceField struct {
	StateName  *string `json:"state_name"`
	IsComplete *bool   `json:"is_complete"`
	StateDate  *int64  `json:"state_date"`
}

type instanceRepo struct {
	db *gorm.DB
}

func NewInstanceRepo(db *gorm.DB) InstanceRepo {
	return &instanceRepo{
		db: db,
	}
}

// AutoMigrate 创建实例和关联表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&WorkflowInstancePo{}, &ContextInstancePo{})
}

func (r *instanceRepo) CreateWorkflowInstance(ctx context.Context, workflowInstance *WorkflowInstancePo) (*WorkflowInstancePo, error) {
	if workflowInstance == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "nil WorkflowInstancePo")
	}
	workflowInstance.CreatedAt = timeNow().Unix()
	workflowInstance.UpdatedAt = timeNow().Unix()
	if err := r.GetDBWithContext(ctx).Create(workflowInstance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowInstance failed")
	}
	return workflowInstance, nil
}

func (r *instanceRepo) CreateContextRef(ctx context.Context, contextRef *ContextInstancePo) (*ContextInstancePo, error) {
	if contextRef == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "nil ContextInstancePo")
	}
	contextRef.CreatedAt = timeNow().Unix()
	if err := r.GetDBWithContext(ctx).Create(contextRef).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateContextRef failed")
	}
	return contextRef, nil
}

func buildQueryWorkflowInstanceParams(db *gorm.DB, isCount bool, param *QueryWorkflowInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "nil QueryWorkflowInstanceParams")
	}
	if len(param.IDIn) != 0 {
		db = db.Where("id IN ?", param.IDIn)
	}
	if len(param.WorkflowNameIn) != 0 {
		db = db.Where("workflow_name IN ?", param.WorkflowNameIn)
	}
	if param.StateName != nil {
		db = db.Where("state_name = ?", *param.StateName)
	}
	if param.IsComplete != nil {
		db = db.Where("is_complete = ?", *param.IsComplete)
	}
	if param.Context != nil {
		subQuery := db.Session(&gorm.Session{NewDB: true}).
			Model(&ContextInstancePo{}).
			Select("workflow_instance_id").
			Where("context_type = ? AND context_id = ?", param.Context.ContextType, param.Context.ContextID)
		db = db.Where("id IN (?)", subQuery)
	}
	if param.OrderbyIDAsc != nil && !isCount {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	if !isCount {
		if param.Page == nil {
			return nil, errors.Wrap(ErrWorkflowParamInvalid, "page is nil")
		}
		if param.Page.IsNoLimit != nil && *param.Page.IsNoLimit {
			return db, nil
		}
		if param.Page.Page == 0 {
			param.Page.Page = 1
		}
		if param.Page.Size == 0 {
			param.Page.Size = 10
		}
		db = db.Offset(int(param.Page.Page-1) * int(param.Page.Size)).Limit(int(param.Page.Size))
	}
	return db, nil
}

func (r *instanceRepo) QueryWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) ([]*WorkflowInstancePo, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	db, err := buildQueryWorkflowInstanceParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowInstanceParams failed")
	}
	pos := make([]*WorkflowInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowInstance failed")
	}
	return pos, nil
}

func (r *instanceRepo) CountWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) (int64, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	db, err := buildQueryWorkflowInstanceParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryWorkflowInstanceParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessage(err, "CountWorkflowInstance failed")
	}
	return count, nil
}

/*
*
  - @description: 查询超时的实例
    每个检查生成一个 (workflow_name = ? AND state_name = ? AND state_date < ?) 条件, 条件之间 OR 组合
    没有检查时直接返回空, 不查询数据库
  - @param ctx context.Context
  - @param checks []*TimeLimitCheck
  - @return []*WorkflowInstancePo, error
*/
func (r *instanceRepo) QueryInstancesPastTimeLimit(ctx context.Context, checks []*TimeLimitCheck) ([]*WorkflowInstancePo, error) {
	pos := make([]*WorkflowInstancePo, 0)
	if len(checks) == 0 {
		return pos, nil
	}
	base := r.GetDBWithContext(ctx)
	var orCondition *gorm.DB
	for _, check := range checks {
		one := base.Session(&gorm.Session{NewDB: true}).
			Where("workflow_name = ? AND state_name = ? AND state_date < ?",
				check.WorkflowName, check.StateName, check.EarliestStateTime.UnixMilli())
		if orCondition == nil {
			orCondition = one
			continue
		}
		orCondition = orCondition.Or(one)
	}
	err := base.Model(&WorkflowInstancePo{}).
		Where("is_complete = ?", false).
		Where(orCondition).
		Order("id asc").
		Find(&pos).Error
	if err != nil {
		return nil, errors.WithMessage(err, "QueryInstancesPastTimeLimit failed")
	}
	return pos, nil
}

func (r *instanceRepo) FindContextRef(ctx context.Context, workflowInstanceID int64) (*ContextInstancePo, error) {
	pos := make([]*ContextInstancePo, 0, 1)
	err := r.GetDBWithContext(ctx).Model(&ContextInstancePo{}).
		Where("workflow_instance_id = ?", workflowInstanceID).
		Limit(1).
		Find(&pos).Error
	if err != nil {
		return nil, errors.WithMessage(err, "FindContextRef failed")
	}
	if len(pos) == 0 {
		return nil, errors.WithMessagef(ErrContextNotFound, "workflow instance id: %d", workflowInstanceID)
	}
	return pos[0], nil
}

func buildUpdateWorkflowInstanceParams(db *gorm.DB, param *UpdateWorkflowInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "nil UpdateWorkflowInstanceParams")
	}
	if err := validatorUtil.Struct(param); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "err: %v", err)
	}
	if len(param.Where.IDIn) == 0 {
		return db, errors.Wrap(ErrWorkflowParamInvalid, "update workflow instance need where condition")
	}
	return db.Where("id IN ?", param.Where.IDIn), nil
}

func buildUpdateWorkflowInstanceFields(fields *UpdateWorkflowInstanceField) (map[string]any, error) {
	updateFields := make(map[string]any)
	if fields.StateName != nil {
		updateFields["state_name"] = *fields.StateName
	}
	if fields.IsComplete != nil {
		updateFields["is_complete"] = *fields.IsComplete
	}
	if fields.StateDate != nil {
		updateFields["state_date"] = *fields.StateDate
	}
	if len(updateFields) == 0 {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "no fields to update")
	}
	updateFields["updated_at"] = timeNow().Unix()
	return updateFields, nil
}

func (r *instanceRepo) UpdateWorkflowInstance(ctx context.Context, param *UpdateWorkflowInstanceParams) error {
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	db, err := buildUpdateWorkflowInstanceParams(db, param)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateWorkflowInstanceParams failed")
	}
	updateFields, err := buildUpdateWorkflowInstanceFields(param.Fields)
	if err != nil {
		return errors.WithMessage(err, "buildUpdateWorkflowInstanceFields failed")
	}
	if err := db.Limit(param.LimitMax).Updates(updateFields).Error; err != nil {
		return errors.WithMessage(err, "UpdateWorkflowInstance failed")
	}
	return nil
}

// newInstanceUpdate 把实例当前的内存状态写回数据库的参数
func newInstanceUpdate(instance *WorkflowInstance) *UpdateWorkflowInstanceParams {
	stateDate := instance.StateEnteredAt.UnixMilli()
	return &UpdateWorkflowInstanceParams{
		Where: &UpdateWorkflowInstanceWhere{IDIn: []int64{instance.ID}},
		Fields: &UpdateWorkflowInstanceField{
			StateName:  &instance.StateName,
			IsComplete: &instance.IsComplete,
			StateDate:  &stateDate,
		},
		LimitMax: 1,
	}
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *instanceRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	return getDBWithContext(ctx, r.db)
}

func (r *instanceRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return transaction(ctx, r.db, fn)
}

func getDBWithContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务，直接返回db即可
		return db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// transaction ctx 中已经有事务时直接复用, 所以 repo 和 DocumentStore 可以在同一个事务里面
func transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(transactionContextKey) != nil {
		return fn(ctx)
	}
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.WithMessage(tx.Error, "begin transaction failed")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = errors.WithMessage(tx.Commit().Error, "commit transaction failed")
	}()
	return fn(context.WithValue(ctx, transactionContextKey, tx))
}
