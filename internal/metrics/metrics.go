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
// 認可ゲート、セッションリゾルバー、文字起こしワーカーから利用する。
type MetricsCollector interface {
	RecordAuthzDecision(decision string)
	RecordRoleLookupFailure()
	RecordSessionResolveFailure()
	RecordHTTPStatus(statusCode int)
	RecordTranscribeSuccess()
	RecordTranscribeFailure(reason string)
	RecordTranscribeLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authzDecisions     *prometheus.CounterVec
	roleLookupFail     prometheus.Counter
	sessionResolveFail prometheus.Counter
	httpStatus         *prometheus.CounterVec
	transcribeSuccess  prometheus.Counter
	transcribeFail     *prometheus.CounterVec
	transcribeLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recapio_authz_decisions_total",
			Help: "認可判定の結果別合計数",
		}, []string{"decision"}),
		roleLookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recapio_role_lookup_fail_total",
			Help: "ロール検索失敗の合計数（Userロールへの縮退回数）",
		}),
		sessionResolveFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recapio_session_resolve_fail_total",
			Help: "セッション解決失敗の合計数（未認証への縮退回数）",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recapio_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		transcribeSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recapio_transcribe_success_total",
			Help: "文字起こし成功の合計数",
		}),
		transcribeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recapio_transcribe_fail_total",
			Help: "文字起こし失敗の理由別合計数",
		}, []string{"reason"}),
		transcribeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recapio_transcribe_latency_seconds",
			Help:    "文字起こしプロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authzDecisions,
		c.roleLookupFail,
		c.sessionResolveFail,
		c.httpStatus,
		c.transcribeSuccess,
		c.transcribeFail,
		c.transcribeLatency,
	)

	return c
}

// RecordAuthzDecision は認可判定の結果を記録する。
func (c *Collector) RecordAuthzDecision(decision string) {
	c.authzDecisions.WithLabelValues(decision).Inc()
}

// RecordRoleLookupFailure はロール検索失敗を記録する。
func (c *Collector) RecordRoleLookupFailure() {
	c.roleLookupFail.Inc()
}

// RecordSessionResolveFailure はセッション解決失敗を記録する。
func (c *Collector) RecordSessionResolveFailure() {
	c.sessionResolveFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTranscribeSuccess は文字起こし成功を記録する。
func (c *Collector) RecordTranscribeSuccess() {
	c.transcribeSuccess.Inc()
}

// RecordTranscribeFailure は文字起こし失敗を記録する。
func (c *Collector) RecordTranscribeFailure(reason string) {
	c.transcribeFail.WithLabelValues(reason).Inc()
}

// RecordTranscribeLatency は文字起こしのレイテンシを記録する。
func (c *Collector) RecordTranscribeLatency(duration time.Duration) {
	c.transcribeLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
