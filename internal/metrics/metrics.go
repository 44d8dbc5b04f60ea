// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン方式のラベル値。
const (
	MethodPassword = "password"
	MethodOAuth    = "oauth"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、認証ゲート、ワーカーから利用する。
type MetricsCollector interface {
	RecordLoginSuccess(method, provider string)
	RecordLoginFailure(method, provider string)
	RecordTokenIssued()
	RecordAuthRejection()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTokensPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   *prometheus.CounterVec
	loginFail      *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	authRejections prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	tokensPurged   prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finreport_login_success_total",
			Help: "ログイン成功の合計数",
		}, []string{"method", "provider"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finreport_login_fail_total",
			Help: "ログイン失敗の合計数",
		}, []string{"method", "provider"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finreport_tokens_issued_total",
			Help: "発行したアクセストークンの合計数",
		}),
		authRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finreport_auth_rejections_total",
			Help: "認証が必要として401を返したリクエストの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finreport_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finreport_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finreport_tokens_purged_total",
			Help: "削除した期限切れメールトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokensIssued,
		c.authRejections,
		c.httpStatus,
		c.requestLatency,
		c.tokensPurged,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。パスワードログインのproviderは空でよい。
func (c *Collector) RecordLoginSuccess(method, provider string) {
	c.loginSuccess.WithLabelValues(method, provider).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(method, provider string) {
	c.loginFail.WithLabelValues(method, provider).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordAuthRejection は認証エラーによる401応答を記録する。
func (c *Collector) RecordAuthRejection() {
	c.authRejections.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTokensPurged は削除した期限切れトークン数を記録する。
func (c *Collector) RecordTokensPurged(count int64) {
	c.tokensPurged.Add(float64(count))
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
