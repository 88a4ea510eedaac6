// Package metrics はPrometheusのメトリクスを定義する。
// 値は /metrics から公開される。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated は作成された通知の件数。modeはsyncまたはqueue。
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_notifications_created_total",
			Help: "Total number of notifications created by fan-out",
		},
		[]string{"mode"},
	)

	// FanoutFailures は受信者ごとの通知作成に失敗した件数。
	FanoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_fanout_failures_total",
			Help: "Total number of per-recipient notification creation failures",
		},
		[]string{"mode"},
	)

	// FanoutDuration はイベント1件あたりのファンアウト処理時間。
	FanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "encore_fanout_duration_seconds",
			Help:    "Time spent fanning out one posted event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// PushBroadcasts はハブが配信したメッセージの件数。
	PushBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "encore_push_broadcasts_total",
			Help: "Total number of messages broadcast to websocket clients",
		},
	)

	// PushDropped は配信できずに破棄したメッセージの件数。
	// reasonはhub_full（ハブのキューが満杯）またはslow_client（クライアントの送信キューが満杯）。
	PushDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "encore_push_dropped_total",
			Help: "Total number of push messages dropped",
		},
		[]string{"reason"},
	)

	// PushClients は接続中のWebSocketクライアント数。
	PushClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "encore_push_clients",
			Help: "Number of connected websocket clients",
		},
	)
)
