package workflow

import (
	"time"

	"github.com/pkg/errors"
)

// TimeLimit 状态的超时跳转, 在状态停留超过 Seconds 秒后由外部轮询触发
type TimeLimit struct {
	seconds   int64
	stateName string
	state     *State
}

func NewTimeLimit(seconds int64, stateName string) *TimeLimit {
	return &TimeLimit{seconds: seconds, stateName: stateName}
}

// Seconds 超时时间, 单位秒
func (l *TimeLimit) Seconds() int64 { return l.seconds }

func (l *TimeLimit) StateName() string { return l.stateName }

func (l *TimeLimit) State() *State { return l.state }

func (l *TimeLimit) IsComplete() bool { return l.state != nil }

func (l *TimeLimit) SetState(state *State) error {
	if state == nil || state.Name() != l.stateName {
		return errors.WithStack(&StateMismatchError{State: state, ExpectedName: l.stateName})
	}
	l.state = state
	return nil
}

// IsPassed now - seconds >= started 即认为超时
func (l *TimeLimit) IsPassed(started time.Time) bool {
	return !l.earliestStateTime().Before(started)
}

func (l *TimeLimit) earliestStateTime() time.Time {
	return timeNow().Add(-time.Duration(l.seconds) * time.Second)
}

// TimeLimitCheck 给外部轮询使用的超时检查条件
// 进入时间早于 EarliestStateTime 的实例需要跳转
type TimeLimitCheck struct {
	WorkflowName      string
	StateName         string
	EarliestStateTime time.Time
}

func NewTimeLimitCheck(workflowName string, stateName string, seconds int64) *TimeLimitCheck {
	return &TimeLimitCheck{
		WorkflowName:      workflowName,
		StateName:         stateName,
		EarliestStateTime: timeNow().Add(-time.Duration(seconds) * time.Second),
	}
}
