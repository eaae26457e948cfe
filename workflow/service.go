package workflow

import (
	"context"

	"github.com/pkg/errors"
)

/*
*
  - @description: 开始工作流
    1. 参数校验, 获取工作流(第一次获取会构建)
    2. 锁住上下文, 在事务中 Start 并保存实例和上下文关联
    3. 保存失败时把实例从上下文中移除, 上下文保持调用前的样子
  - @param ctx context.Context
  - @param req *StartWorkflowReq
  - @return *WorkflowInstance, error
*/
func (s *WorkflowServiceImpl) StartWorkflow(ctx context.Context, req *StartWorkflowReq) (*WorkflowInstance, error) {
	ref, err := s.validateSubject(req, req.subject())
	if err != nil {
		return nil, err
	}
	workflow, err := s.manager.GetWorkflow(req.WorkflowName)
	if err != nil {
		return nil, errors.WithMessage(err, "StartWorkflow failed")
	}

	var instance *WorkflowInstance
	err = s.executeLock.NonBlockingSynchronized(ctx, ContextLockKey(ref), s.lockTTL, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			started, err := workflow.Start(ctx, req.Subject)
			if started != nil {
				instance = started
			}
			if err != nil {
				return err
			}
			return s.saveInstance(ctx, ref, started)
		})
	})
	if err != nil {
		if instance != nil {
			req.Subject.RemoveWorkflowInstance(instance)
			instance.ID = 0
		}
		s.logger.ErrorContext(ctx, "[StartWorkflow] failed",
			"workflow", req.WorkflowName, "context_type", ref.ContextType, "context_id", ref.ContextID, "err", err)
		return nil, errors.WithMessagef(err, "StartWorkflow failed, workflow: %s", req.WorkflowName)
	}
	s.logger.InfoContext(ctx, "[StartWorkflow] started",
		"workflow", req.WorkflowName, "instance_id", instance.ID, "state", instance.StateName, "complete", instance.IsComplete)
	return instance, nil
}

/*
*
  - @description: 分发事件
    上下文在工作流中的未完成实例, 当前状态有这个事件时跳转到事件的目标状态
    事务失败时上下文中的实例可能已经被修改, 调用方需要重新加载上下文
  - @param ctx context.Context
  - @param req *DispatchEventReq
  - @return []*WorkflowInstance, error
*/
func (s *WorkflowServiceImpl) DispatchEvent(ctx context.Context, req *DispatchEventReq) ([]*WorkflowInstance, error) {
	ref, err := s.validateSubject(req, req.subject())
	if err != nil {
		return nil, err
	}
	workflow, err := s.manager.GetWorkflow(req.WorkflowName)
	if err != nil {
		return nil, errors.WithMessage(err, "DispatchEvent failed")
	}

	moved := make([]*WorkflowInstance, 0)
	err = s.executeLock.NonBlockingSynchronized(ctx, ContextLockKey(ref), s.lockTTL, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			for _, instance := range req.Subject.WorkflowInstancesForWorkflow(req.WorkflowName, true) {
				state, err := workflow.GetState(instance.StateName)
				if err != nil {
					return errors.WithMessagef(err, "instance %d", instance.ID)
				}
				trigger, ok := state.EventTrigger(req.EventName)
				if !ok {
					continue
				}
				if _, err := trigger.State().MoveTo(ctx, req.Subject, instance); err != nil {
					return errors.WithMessagef(err, "instance %d", instance.ID)
				}
				if err := s.saveInstance(ctx, ref, instance); err != nil {
					return err
				}
				eventTransitionsTotal.WithLabelValues(req.WorkflowName, req.EventName).Inc()
				moved = append(moved, instance)
			}
			return nil
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "[DispatchEvent] failed",
			"workflow", req.WorkflowName, "event", req.EventName, "context_id", ref.ContextID, "err", err)
		return nil, errors.WithMessagef(err, "DispatchEvent failed, workflow: %s, event: %s", req.WorkflowName, req.EventName)
	}
	s.logger.InfoContext(ctx, "[DispatchEvent] done",
		"workflow", req.WorkflowName, "event", req.EventName, "context_id", ref.ContextID, "moved", len(moved))
	return moved, nil
}

/*
*
  - @description: 超时轮询
    1. 从 WorkflowManager 获取所有超时检查, 没有检查直接返回
    2. 查询超时的未完成实例
    3. 逐个实例加锁, 加载上下文, 重新确认超时后跳转
    4. loader 实现了 ContextSaver 时保存上下文, 再保存实例, 都在同一个事务中
  - @param ctx context.Context
  - @return *TimeLimitReport, error
*/
func (s *WorkflowServiceImpl) CheckTimeLimits(ctx context.Context) (*TimeLimitReport, error) {
	report := &TimeLimitReport{
		Moved:  make([]*WorkflowInstance, 0),
		Failed: make(map[int64]error),
	}
	if s.contextLoader == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "CheckTimeLimits needs a ContextLoader")
	}
	checks, err := s.manager.TimeLimitedStateChecks()
	if err != nil {
		return nil, errors.WithMessage(err, "CheckTimeLimits failed")
	}
	if len(checks) == 0 {
		return report, nil
	}
	pos, err := s.repo.QueryInstancesPastTimeLimit(ctx, checks)
	if err != nil {
		return nil, errors.WithMessage(err, "CheckTimeLimits failed")
	}
	report.Checked = len(pos)

	for _, po := range pos {
		instance, err := s.moveTimedOutInstance(ctx, po)
		if err != nil {
			report.Failed[po.ID] = err
			timeLimitTransitionsTotal.WithLabelValues(po.WorkflowName, po.StateName, "failed").Inc()
			s.logger.ErrorContext(ctx, "[CheckTimeLimits] move instance failed",
				"instance_id", po.ID, "workflow", po.WorkflowName, "state", po.StateName, "err", err)
			continue
		}
		if instance == nil {
			timeLimitTransitionsTotal.WithLabelValues(po.WorkflowName, po.StateName, "skipped").Inc()
			continue
		}
		timeLimitTransitionsTotal.WithLabelValues(po.WorkflowName, po.StateName, "moved").Inc()
		report.Moved = append(report.Moved, instance)
	}
	s.logger.InfoContext(ctx, "[CheckTimeLimits] done",
		"checked", report.Checked, "moved", len(report.Moved), "failed", len(report.Failed))
	return report, nil
}

// moveTimedOutInstance 实例已经被其他调用方推进时返回 nil, nil
func (s *WorkflowServiceImpl) moveTimedOutInstance(ctx context.Context, po *WorkflowInstancePo) (*WorkflowInstance, error) {
	contextRef, err := s.repo.FindContextRef(ctx, po.ID)
	if err != nil {
		return nil, err
	}
	ref := &ContextRef{ContextType: contextRef.ContextType, ContextID: contextRef.ContextID}
	workflow, err := s.manager.GetWorkflow(po.WorkflowName)
	if err != nil {
		return nil, err
	}

	var moved *WorkflowInstance
	err = s.executeLock.NonBlockingSynchronized(ctx, ContextLockKey(ref), s.lockTTL, func(ctx context.Context) error {
		return s.repo.Transaction(ctx, func(ctx context.Context) error {
			subject, err := s.contextLoader.LoadContext(ctx, ref)
			if err != nil {
				return err
			}
			instance := findInstance(subject, po.ID)
			if instance == nil {
				return errors.WithMessagef(ErrWorkflowInstanceNotFound, "instance %d not in context %s/%s", po.ID, ref.ContextType, ref.ContextID)
			}
			if instance.IsComplete || instance.StateName != po.StateName {
				return nil
			}
			state, err := workflow.GetState(instance.StateName)
			if err != nil {
				return err
			}
			next := state.HasTimeLimitPassed(instance.StateEnteredAt)
			if next == nil {
				return nil
			}
			if _, err := next.MoveTo(ctx, subject, instance); err != nil {
				return err
			}
			if saver, ok := s.contextLoader.(ContextSaver); ok {
				if err := saver.SaveContext(ctx, subject); err != nil {
					return errors.WithMessage(err, "save context failed")
				}
			}
			if err := s.saveInstance(ctx, ref, instance); err != nil {
				return err
			}
			moved = instance
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (s *WorkflowServiceImpl) CountWorkflowInstance(ctx context.Context, params *QueryWorkflowInstanceParams) (int64, error) {
	return s.repo.CountWorkflowInstance(ctx, params)
}

func (s *WorkflowServiceImpl) QueryWorkflowInstance(ctx context.Context, params *QueryWorkflowInstanceParams) ([]*WorkflowInstance, error) {
	pos, err := s.repo.QueryWorkflowInstance(ctx, params)
	if err != nil {
		return nil, err
	}
	ret := make([]*WorkflowInstance, 0, len(pos))
	for _, po := range pos {
		ret = append(ret, po.ToEntity())
	}
	return ret, nil
}

// saveInstance 没有ID的实例新建并关联上下文, 有ID的更新
func (s *WorkflowServiceImpl) saveInstance(ctx context.Context, ref *ContextRef, instance *WorkflowInstance) error {
	if instance.ID != 0 {
		return s.repo.UpdateWorkflowInstance(ctx, newInstanceUpdate(instance))
	}
	po, err := s.repo.CreateWorkflowInstance(ctx, NewWorkflowInstancePo(instance))
	if err != nil {
		return err
	}
	_, err = s.repo.CreateContextRef(ctx, &ContextInstancePo{
		ContextType:        ref.ContextType,
		ContextID:          ref.ContextID,
		WorkflowInstanceID: po.ID,
	})
	if err != nil {
		return err
	}
	instance.ID = po.ID
	return nil
}

func (s *WorkflowServiceImpl) validateSubject(req any, subject PersistentContext) (*ContextRef, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "err: %v", err)
	}
	ref := subject.ContextRef()
	if ref == nil {
		return nil, errors.Wrap(ErrWorkflowParamInvalid, "subject has no context ref")
	}
	if err := validatorUtil.Struct(ref); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "context ref invalid, err: %v", err)
	}
	return ref, nil
}

func (r *StartWorkflowReq) subject() PersistentContext {
	if r == nil {
		return nil
	}
	return r.Subject
}

func (r *DispatchEventReq) subject() PersistentContext {
	if r == nil {
		return nil
	}
	return r.Subject
}

func findInstance(subject WorkflowContext, id int64) *WorkflowInstance {
	for _, instance := range subject.WorkflowInstances() {
		if instance.ID == id {
			return instance
		}
	}
	return nil
}
