// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "backlogroll"

// サーキットブレーカーの状態をゲージ値に変換する。
var breakerStateValues = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Collector はPrometheusメトリクスを収集する実装。
// hltb.Recorder、gamesync.Recorder、suggest.Recorder、
// middleware.RateLimitRecorder、middleware.HTTPRecorder を満たす。
type Collector struct {
	reg prometheus.Registerer

	titleSync     *prometheus.CounterVec
	syncRetry     prometheus.Counter
	hltbDiscovery *prometheus.CounterVec
	hltbLookup    *prometheus.CounterVec
	suggestion    *prometheus.CounterVec
	breakerState  prometheus.Gauge
	rateLimited   *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		titleSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "title_sync_total",
			Help:      "タイトル同期の合計数（cache / network）",
		}, []string{"source"}),
		syncRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retry_total",
			Help:      "レート制限による同期リトライの合計数",
		}),
		hltbDiscovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hltb_discovery_total",
			Help:      "HLTB検索設定の取得結果",
		}, []string{"result"}),
		hltbLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hltb_lookup_total",
			Help:      "HLTBクリア時間検索の結果",
		}, []string{"result"}),
		suggestion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_total",
			Help:      "提案リクエストの結果",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completion_breaker_state",
			Help:      "言語モデルAPIのサーキットブレーカー状態（0=closed, 1=half-open, 2=open）",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "レート制限で拒否されたリクエストの合計数",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_status_total",
			Help:      "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.titleSync,
		c.syncRetry,
		c.hltbDiscovery,
		c.hltbLookup,
		c.suggestion,
		c.breakerState,
		c.rateLimited,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordTitleSync はタイトル同期の取得元を記録する。
func (c *Collector) RecordTitleSync(source string) {
	c.titleSync.WithLabelValues(source).Inc()
}

// RecordSyncRetry は同期リトライを記録する。
func (c *Collector) RecordSyncRetry() {
	c.syncRetry.Inc()
}

// RecordHLTBDiscovery は検索設定の取得結果を記録する。
func (c *Collector) RecordHLTBDiscovery(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.hltbDiscovery.WithLabelValues(result).Inc()
}

// RecordHLTBLookup はクリア時間検索の結果を記録する。
func (c *Collector) RecordHLTBLookup(result string) {
	c.hltbLookup.WithLabelValues(result).Inc()
}

// RecordSuggestion は提案の結果を記録する。
func (c *Collector) RecordSuggestion(outcome string) {
	c.suggestion.WithLabelValues(outcome).Inc()
}

// RecordBreakerState はサーキットブレーカーの状態遷移を記録する。
// 未知の状態名は無視する。
func (c *Collector) RecordBreakerState(state string) {
	if v, ok := breakerStateValues[state]; ok {
		c.breakerState.Set(v)
	}
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(operation string) {
	c.rateLimited.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
// routeにはパスではなくルートパターンを渡し、ラベルの種類を抑える。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackGauge はスクレイプ時に関数を評価するゲージを登録する。
// レートリミッターのウィンドウ数や提案セッション数の公開に使用する。
func (c *Collector) TrackGauge(name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
