/*
Package monitoring provides Prometheus metrics for the lifetime manager.

# Overview

Sessions, the resource tracker and the control API report into a single
Metrics value. Every recording method is nil-safe, so domain components take
an optional *Metrics and never branch on it.

# Metrics

- Sessions: active gauge, created/closed counters by tag category, dispose duration, auto-closes
- Resources: tracked gauge, opened/closed/faulted counters
- Cleanup errors swallowed during cascading disposal, by kind
- Event delivery and recovered subscriber panics
- HTTP request count and latency for the control API

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
