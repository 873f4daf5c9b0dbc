package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics exposes the instance store's connection pool
// statistics as Prometheus gauges.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	stat := func(f func(*pgxpool.Stat) int32) func() float64 {
		return func() float64 { return float64(f(pool.Stat())) }
	}
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "deploytrack_db_pool_acquired_conns",
			Help: "Connections currently acquired from the pool",
		}, stat((*pgxpool.Stat).AcquiredConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "deploytrack_db_pool_idle_conns",
			Help: "Idle connections in the pool",
		}, stat((*pgxpool.Stat).IdleConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "deploytrack_db_pool_total_conns",
			Help: "Open connections, acquired plus idle",
		}, stat((*pgxpool.Stat).TotalConns)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "deploytrack_db_pool_max_conns",
			Help: "Configured connection ceiling of the pool",
		}, stat((*pgxpool.Stat).MaxConns)),
	)
}
