package workflow

import "github.com/pkg/errors"

// EventTrigger 外部事件触发的跳转, 事件名 -> 目标状态
type EventTrigger struct {
	eventName string
	stateName string
	state     *State
}

func NewEventTrigger(eventName string, stateName string) *EventTrigger {
	return &EventTrigger{eventName: eventName, stateName: stateName}
}

func (t *EventTrigger) EventName() string { return t.eventName }

// StateName 声明的目标状态名称
func (t *EventTrigger) StateName() string { return t.stateName }

// State 解析后的目标状态, 构建完成前为 nil
func (t *EventTrigger) State() *State { return t.state }

// IsComplete 目标状态是否已经解析
func (t *EventTrigger) IsComplete() bool { return t.state != nil }

// SetState 设置目标状态, 名称必须和声明的一致
func (t *EventTrigger) SetState(state *State) error {
	if state == nil || state.Name() != t.stateName {
		return errors.WithStack(&StateMismatchError{State: state, ExpectedName: t.stateName})
	}
	t.state = state
	return nil
}
