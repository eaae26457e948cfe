package workflow

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Document 开箱即用的可持久化上下文
// 业务数据放在 Payload 里面, 工作流实例由嵌入的 InstanceCollection 管理
//
//	doc := workflow.NewDocument("order", "ORDER-001")
//	doc.Payload().Set([]string{"amount"}, 100)
type Document struct {
	InstanceCollection
	documentType string
	documentID   string
	payload      *Payload
}

func NewDocument(documentType string, documentID string) *Document {
	return &Document{
		documentType: documentType,
		documentID:   documentID,
		payload:      NewPayload(nil),
	}
}

func (d *Document) DocumentType() string { return d.documentType }

func (d *Document) DocumentID() string { return d.documentID }

func (d *Document) Payload() *Payload { return d.payload }

// ContextRef 实现 PersistentContext
func (d *Document) ContextRef() *ContextRef {
	return &ContextRef{ContextType: d.documentType, ContextID: d.documentID}
}

// Payload 支持嵌套路径读写的 JSON 数据
type Payload struct {
	data map[string]any
}

// NewPayload 从 JSON 字节创建, 字节为空时创建空对象
func NewPayload(b []byte) *Payload {
	p := &Payload{data: make(map[string]any)}
	if len(b) > 0 {
		// 无法解析时保持空对象, 需要错误时使用 ParsePayload
		_ = json.Unmarshal(b, &p.data)
	}
	return p
}

// ParsePayload 从 JSON 字节创建, 解析失败返回错误
func ParsePayload(b []byte) (*Payload, error) {
	p := &Payload{data: make(map[string]any)}
	if len(b) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(b, &p.data); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "payload is not a json object, err: %v", err)
	}
	if p.data == nil {
		p.data = make(map[string]any)
	}
	return p, nil
}

// Get 获取值，支持嵌套路径
// 例如: Get("approver", "name") 获取 approver.name
func (p *Payload) Get(keys ...string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current := any(p.data)
	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = currentMap[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

func (p *Payload) GetString(keys ...string) (string, bool) {
	val, ok := p.Get(keys...)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt64 数字从 JSON 解析出来是 float64, 这里统一转换
func (p *Payload) GetInt64(keys ...string) (int64, bool) {
	val, ok := p.Get(keys...)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func (p *Payload) GetBool(keys ...string) (bool, bool) {
	val, ok := p.Get(keys...)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Set 设置值，中间路径不是对象时会被覆盖
func (p *Payload) Set(keys []string, value any) error {
	if len(keys) == 0 {
		return errors.Wrap(ErrWorkflowParamInvalid, "keys cannot be empty")
	}
	current := p.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
	return nil
}

// Delete 删除指定路径的值, 路径不存在时不做处理
func (p *Payload) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	current := p.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}

func (p *Payload) ToBytes() ([]byte, error) {
	b, err := json.Marshal(p.data)
	if err != nil {
		return nil, errors.WithMessage(err, "marshal payload failed")
	}
	return b, nil
}

// Unmarshal 将数据反序列化到指定结构体
func (p *Payload) Unmarshal(v any) error {
	b, err := p.ToBytes()
	if err != nil {
		return err
	}
	return errors.WithMessage(json.Unmarshal(b, v), "unmarshal payload failed")
}
