package workflow

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type DocumentPo struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DocumentType string `gorm:"column:document_type;uniqueIndex:uk_document,priority:1" json:"document_type"`
	DocumentID   string `gorm:"column:document_id;uniqueIndex:uk_document,priority:2" json:"document_id"`
	Payload      []byte `gorm:"column:payload" json:"payload"`
	CreatedAt    int64  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    int64  `gorm:"column:updated_at" json:"updated_at"`
}

func (DocumentPo) TableName() string {
	return "workflow_document"
}

// DocumentStore Document 的持久化, 同时实现 ContextLoader 和 ContextSaver
// 加载 Document 时会通过 InstanceRepo 加载它的工作流实例
type DocumentStore struct {
	db   *gorm.DB
	repo InstanceRepo
}

func NewDocumentStore(db *gorm.DB, repo InstanceRepo) *DocumentStore {
	return &DocumentStore{db: db, repo: repo}
}

// AutoMigrate 创建 document 表
func (s *DocumentStore) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentPo{})
}

// Save 不存在时创建, 存在时更新 payload, 工作流实例由 WorkflowService 保存
func (s *DocumentStore) Save(ctx context.Context, document *Document) error {
	if document == nil {
		return errors.Wrap(ErrWorkflowParamInvalid, "nil document")
	}
	if err := validatorUtil.Struct(document.ContextRef()); err != nil {
		return errors.Wrapf(ErrWorkflowParamInvalid, "document ref invalid, err: %v", err)
	}
	payload, err := document.Payload().ToBytes()
	if err != nil {
		return err
	}
	return transaction(ctx, s.db, func(ctx context.Context) error {
		db := getDBWithContext(ctx, s.db)
		existing, err := s.find(ctx, document.ContextRef())
		if err != nil {
			return err
		}
		now := timeNow().Unix()
		if existing == nil {
			po := &DocumentPo{
				DocumentType: document.DocumentType(),
				DocumentID:   document.DocumentID(),
				Payload:      payload,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			return errors.WithMessage(db.Create(po).Error, "create document failed")
		}
		err = db.Model(&DocumentPo{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{"payload": payload, "updated_at": now}).Error
		return errors.WithMessage(err, "update document failed")
	})
}

// Load 加载 Document 和它的全部工作流实例
func (s *DocumentStore) Load(ctx context.Context, ref *ContextRef) (*Document, error) {
	po, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, errors.WithMessagef(ErrContextNotFound, "document %s/%s", ref.ContextType, ref.ContextID)
	}
	payload, err := ParsePayload(po.Payload)
	if err != nil {
		return nil, err
	}
	document := &Document{
		documentType: po.DocumentType,
		documentID:   po.DocumentID,
		payload:      payload,
	}

	isNoLimit, orderByIDAsc := true, true
	instances, err := s.repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		Context:      ref,
		OrderbyIDAsc: &orderByIDAsc,
		Page:         &Pager{IsNoLimit: &isNoLimit},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "load document instances failed")
	}
	for _, instance := range instances {
		document.AddWorkflowInstance(instance.ToEntity())
	}
	return document, nil
}

// LoadContext 实现 ContextLoader
func (s *DocumentStore) LoadContext(ctx context.Context, ref *ContextRef) (PersistentContext, error) {
	return s.Load(ctx, ref)
}

// SaveContext 实现 ContextSaver, 只接受 *Document
func (s *DocumentStore) SaveContext(ctx context.Context, subject PersistentContext) error {
	document, ok := subject.(*Document)
	if !ok {
		return errors.Wrapf(ErrWorkflowParamInvalid, "document store can not save context %T", subject)
	}
	return s.Save(ctx, document)
}

func (s *DocumentStore) find(ctx context.Context, ref *ContextRef) (*DocumentPo, error) {
	pos := make([]*DocumentPo, 0, 1)
	err := getDBWithContext(ctx, s.db).Model(&DocumentPo{}).
		Where("document_type = ? AND document_id = ?", ref.ContextType, ref.ContextID).
		Limit(1).
		Find(&pos).Error
	if err != nil {
		return nil, errors.WithMessage(err, "query document failed")
	}
	if len(pos) == 0 {
		return nil, nil
	}
	return pos[0], nil
}
