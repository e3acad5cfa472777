// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// カタログクライアント、ピア通知、レンダラー、インタラクション層から利用する。
type MetricsCollector interface {
	RecordCatalogRequest(endpoint string, statusCode int)
	RecordCatalogLatency(duration time.Duration)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordPeerNotification(delivered bool)
	RecordRender(duration time.Duration)
	SetActiveDisplays(count int)
	RecordInteraction(name string, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	catalogRequests *prometheus.CounterVec
	catalogLatency  prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	peerNotify      *prometheus.CounterVec
	renders         prometheus.Counter
	renderLatency   prometheus.Histogram
	activeDisplays  prometheus.Gauge
	interactions    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reginald_catalog_requests_total",
			Help: "カタログAPIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reginald_catalog_latency_seconds",
			Help:    "カタログAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reginald_catalog_cache_lookups_total",
			Help: "カタログキャッシュの参照数（キャッシュ種別・結果別）",
		}, []string{"cache", "result"}),
		peerNotify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reginald_peer_notifications_total",
			Help: "ピア通知の送信数（結果別）",
		}, []string{"result"}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reginald_schedule_renders_total",
			Help: "スケジュール画像の描画回数",
		}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reginald_schedule_render_seconds",
			Help:    "スケジュール画像の描画時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeDisplays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reginald_active_schedule_displays",
			Help: "現在有効なスケジュール表示の数",
		}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reginald_interactions_total",
			Help: "処理したインタラクション数（名前・結果別）",
		}, []string{"name", "outcome"}),
	}

	reg.MustRegister(
		c.catalogRequests,
		c.catalogLatency,
		c.cacheLookups,
		c.peerNotify,
		c.renders,
		c.renderLatency,
		c.activeDisplays,
		c.interactions,
	)

	return c
}

// RecordCatalogRequest はカタログAPIのレスポンスステータスを記録する。
// ステータスコード0は通信エラーを表す。
func (c *Collector) RecordCatalogRequest(endpoint string, statusCode int) {
	c.catalogRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordCatalogLatency はカタログAPIのレイテンシを記録する。
func (c *Collector) RecordCatalogLatency(duration time.Duration) {
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// RecordPeerNotification はピア通知の送信結果を記録する。
func (c *Collector) RecordPeerNotification(delivered bool) {
	if delivered {
		c.peerNotify.WithLabelValues("delivered").Inc()
		return
	}
	c.peerNotify.WithLabelValues("failed").Inc()
}

// RecordRender は描画1回分の所要時間を記録する。
func (c *Collector) RecordRender(duration time.Duration) {
	c.renders.Inc()
	c.renderLatency.Observe(duration.Seconds())
}

// SetActiveDisplays は有効なスケジュール表示の数を設定する。
func (c *Collector) SetActiveDisplays(count int) {
	c.activeDisplays.Set(float64(count))
}

// RecordInteraction はインタラクションの処理結果を記録する。
func (c *Collector) RecordInteraction(name string, outcome string) {
	c.interactions.WithLabelValues(name, outcome).Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordCatalogRequest(string, int)   {}
func (NopCollector) RecordCatalogLatency(time.Duration) {}
func (NopCollector) RecordCacheHit(string)              {}
func (NopCollector) RecordCacheMiss(string)             {}
func (NopCollector) RecordPeerNotification(bool)        {}
func (NopCollector) RecordRender(time.Duration)         {}
func (NopCollector) SetActiveDisplays(int)              {}
func (NopCollector) RecordInteraction(string, string)   {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
