package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// upGauge is 1 when the last ping to a dependency succeeded, else 0.
	upGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mailrelay",
		Subsystem: "deps",
		Name:      "up",
		Help:      "Dependency availability (1=up, 0=down).",
	}, []string{"dep"})

	pingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mailrelay",
		Subsystem: "deps",
		Name:      "ping_seconds",
		Help:      "Dependency ping latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"dep"})
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingDB pings Postgres and records availability and latency.
func PingDB(ctx context.Context, p Pinger) bool {
	start := time.Now()
	err := p.Ping(ctx)
	record("postgres", start, err)
	return err == nil
}

// PingRedis pings Redis and records availability and latency.
func PingRedis(ctx context.Context, rc redis.UniversalClient) bool {
	start := time.Now()
	err := rc.Ping(ctx).Err()
	record("redis", start, err)
	return err == nil
}

func record(dep string, start time.Time, err error) {
	pingSeconds.WithLabelValues(dep).Observe(time.Since(start).Seconds())
	if err != nil {
		upGauge.WithLabelValues(dep).Set(0)
		return
	}
	upGauge.WithLabelValues(dep).Set(1)
}
