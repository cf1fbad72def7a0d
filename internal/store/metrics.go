package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_mutations_total",
			Help: "Total number of applied cart and order mutations",
		},
		[]string{"op"},
	)

	persistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_persist_failures_total",
			Help: "Total number of failed writes to durable storage",
		},
		[]string{"key"},
	)

	ordersPlaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed",
		},
	)

	sessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_open",
			Help: "Number of sessions currently held in memory",
		},
	)

	sessionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sessions_evicted_total",
			Help: "Total number of sessions dropped from memory",
		},
		[]string{"reason"},
	)
)
