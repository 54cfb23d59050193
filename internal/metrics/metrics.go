package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentacar"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	contractOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_operations_total",
			Help:      "Contract lifecycle operations by outcome.",
		},
		[]string{"outcome"},
	)

	inspectionLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspection_links_total",
			Help:      "Inspection links served, minted or reused.",
		},
		[]string{"result"},
	)

	deliveryTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_tasks_total",
			Help:      "Delivery queue task outcomes by task type.",
		},
		[]string{"type", "result"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Manager bot commands by command and result.",
		},
		[]string{"command", "result"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_processing_seconds",
			Help:      "Time spent processing a Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, contractOps, inspectionLinks, deliveryTasks, botCommands, botUpdateDuration)
	})
}

// IncHTTP counts one request for a route pattern.
func IncHTTP(route string, status int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// IncContractOp counts a lifecycle outcome: created, regenerated, refreshed, signed, unchanged, conflict.
func IncContractOp(outcome string) {
	contractOps.WithLabelValues(outcome).Inc()
}

func IncLink(result string) {
	inspectionLinks.WithLabelValues(result).Inc()
}

func IncDelivery(taskType, result string) {
	deliveryTasks.WithLabelValues(taskType, result).Inc()
}

func IncBotCommand(command, result string) {
	botCommands.WithLabelValues(command, result).Inc()
}

func ObserveBotUpdate(d time.Duration) {
	botUpdateDuration.Observe(d.Seconds())
}
