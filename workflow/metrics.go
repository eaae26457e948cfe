package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stateEntriesTotal 进入状态的次数, 包括条件跳转的中间状态
	stateEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_state_entries_total",
		Help: "Total number of state entries by workflow and state",
	}, []string{"workflow", "state"})

	instancesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_instances_completed_total",
		Help: "Total number of instances that reached a terminal state",
	}, []string{"workflow", "state"})

	instancesStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_instances_started_total",
		Help: "Total number of started instances by workflow",
	}, []string{"workflow"})

	limitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_limit_rejections_total",
		Help: "Total number of start attempts rejected by an instance limit",
	}, []string{"workflow", "kind"})

	eventTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_event_transitions_total",
		Help: "Total number of transitions triggered by external events",
	}, []string{"workflow", "event"})

	timeLimitTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_workflow_time_limit_transitions_total",
		Help: "Total number of transitions triggered by expired time limits",
	}, []string{"workflow", "state", "outcome"})
)

func sanitizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
