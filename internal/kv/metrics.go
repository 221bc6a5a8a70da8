package kv

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented decorates a Medium with operation counters and latency
// histograms.
type Instrumented struct {
	next     Medium
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Instrument wraps m and registers its collectors with reg. driver labels the
// series so several media can share one registry.
func Instrument(m Medium, driver string, reg prometheus.Registerer) (*Instrumented, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "localfirst_kv_operations_total",
		Help:        "Key-value medium operations by kind and outcome.",
		ConstLabels: prometheus.Labels{"driver": driver},
	}, []string{"op", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "localfirst_kv_operation_seconds",
		Help:        "Key-value medium operation latency.",
		ConstLabels: prometheus.Labels{"driver": driver},
		Buckets:     prometheus.DefBuckets,
	}, []string{"op"})
	for _, c := range []prometheus.Collector{ops, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Instrumented{next: m, ops: ops, duration: duration}, nil
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	i.ops.WithLabelValues(op, result).Inc()
	i.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Get(ctx, key)
	i.observe("get", start, err)
	return v, ok, err
}

func (i *Instrumented) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value)
	i.observe("set", start, err)
	return err
}

func (i *Instrumented) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := i.next.Remove(ctx, key)
	i.observe("remove", start, err)
	return err
}

func (i *Instrumented) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.next.Keys(ctx, prefix)
	i.observe("keys", start, err)
	return keys, err
}
