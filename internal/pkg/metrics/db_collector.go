package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStater is satisfied by *pgxpool.Pool.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

// RecordDBPoolMetrics copies a snapshot of the pool statistics into the gauges.
func RecordDBPoolMetrics(pool PoolStater) {
	s := pool.Stat()

	DBPoolConnections.WithLabelValues("acquired").Set(float64(s.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(s.ConstructingConns()))
	DBPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))
	DBPoolAcquireWaitSeconds.Set(s.AcquireDuration().Seconds())
	DBPoolEmptyAcquires.Set(float64(s.EmptyAcquireCount()))
}
