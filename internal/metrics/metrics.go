// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやプレゼンス層から利用する。
type MetricsCollector interface {
	RecordLogin()
	RecordLoginRejected(reason string)
	RecordPull(rarity string)
	RecordPullRejected(reason string)
	RecordWSConnect()
	RecordWSDisconnect()
	RecordBroadcastLatency(duration time.Duration)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          prometheus.Counter
	loginsRejected  *prometheus.CounterVec
	pulls           *prometheus.CounterVec
	pullsRejected   *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	broadcastDelay  prometheus.Histogram
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bunnyplus_logins_total",
			Help: "ログイン成功の合計数",
		}),
		loginsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bunnyplus_logins_rejected_total",
			Help: "拒否されたログイン試行の理由別合計数",
		}, []string{"reason"}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bunnyplus_pulls_total",
			Help: "ガチャ実行のレアリティ別合計数",
		}, []string{"rarity"}),
		pullsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bunnyplus_pulls_rejected_total",
			Help: "失敗したガチャ実行の理由別合計数",
		}, []string{"reason"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bunnyplus_ws_connections",
			Help: "現在のWebSocket接続数",
		}),
		broadcastDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bunnyplus_broadcast_latency_seconds",
			Help:    "オンラインユーザー配信のスナップショット構築レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bunnyplus_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.loginsRejected,
		c.pulls,
		c.pullsRejected,
		c.wsConnections,
		c.broadcastDelay,
		c.sessionsCleaned,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordLoginRejected は拒否されたログイン試行を理由付きで記録する。
func (c *Collector) RecordLoginRejected(reason string) {
	c.loginsRejected.WithLabelValues(reason).Inc()
}

// RecordPull はガチャ実行をレアリティ付きで記録する。
func (c *Collector) RecordPull(rarity string) {
	c.pulls.WithLabelValues(rarity).Inc()
}

// RecordPullRejected は失敗したガチャ実行を理由付きで記録する。
func (c *Collector) RecordPullRejected(reason string) {
	c.pullsRejected.WithLabelValues(reason).Inc()
}

// RecordWSConnect はWebSocket接続の確立を記録する。
func (c *Collector) RecordWSConnect() {
	c.wsConnections.Inc()
}

// RecordWSDisconnect はWebSocket接続の切断を記録する。
func (c *Collector) RecordWSDisconnect() {
	c.wsConnections.Dec()
}

// RecordBroadcastLatency は配信スナップショット構築のレイテンシを記録する。
func (c *Collector) RecordBroadcastLatency(duration time.Duration) {
	c.broadcastDelay.Observe(duration.Seconds())
}

// RecordSessionsCleaned はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
