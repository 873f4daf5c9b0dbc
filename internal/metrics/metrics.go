package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstancesAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploytrack_instances_added_total",
			Help: "Instance records inserted by reconciliation",
		},
		[]string{"kind"},
	)

	InstancesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploytrack_instances_removed_total",
			Help: "Instance records soft-deleted by reconciliation",
		},
		[]string{"kind"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploytrack_sync_runs_total",
			Help: "Reconciliation runs by result",
		},
		[]string{"result"},
	)

	InstancesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deploytrack_instances_purged_total",
			Help: "Instance records hard-deleted by retention or abandonment purges",
		},
	)
)
