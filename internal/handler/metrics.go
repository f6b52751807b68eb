package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerbench_handler_connections_accepted_total",
		Help: "Connections accepted by the transfer1 handler.",
	})
	sessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerbench_handler_sessions_completed_total",
		Help: "Sessions that completed their full lifecycle.",
	})
	sessionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerbench_handler_sessions_failed_total",
		Help: "Sessions that failed while draining or acknowledging.",
	})
	bytesDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerbench_handler_drained_bytes_total",
		Help: "Total payload bytes drained across all sessions.",
	})
)
