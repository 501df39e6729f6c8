// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証失敗の理由ラベル。
const (
	ReasonMissingCredential = "missing_credential"
	ReasonInvalidToken      = "invalid_token"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthSuccess()
	RecordAuthFailure(reason string)
	RecordVerifyLatency(duration time.Duration)
	RecordUserProvisioned()
	RecordProvisionConflict()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authSuccess       prometheus.Counter
	authFailure       *prometheus.CounterVec
	verifyLatency     prometheus.Histogram
	usersProvisioned  prometheus.Counter
	provisionConflict prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_auth_success_total",
			Help: "トークン検証成功の合計数",
		}),
		authFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_auth_failure_total",
			Help: "認証失敗の理由別の合計数",
		}, []string{"reason"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_verify_latency_seconds",
			Help:    "トークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		usersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_users_provisioned_total",
			Help: "新規作成されたユーザーの合計数",
		}),
		provisionConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_provision_conflicts_total",
			Help: "同時作成で一意制約に衝突した回数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authSuccess,
		c.authFailure,
		c.verifyLatency,
		c.usersProvisioned,
		c.provisionConflict,
		c.httpStatus,
	)

	return c
}

// RecordAuthSuccess はトークン検証成功を記録する。
func (c *Collector) RecordAuthSuccess() {
	c.authSuccess.Inc()
}

// RecordAuthFailure は認証失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailure.WithLabelValues(reason).Inc()
}

// RecordVerifyLatency はトークン検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordUserProvisioned は新規ユーザー作成を記録する。
func (c *Collector) RecordUserProvisioned() {
	c.usersProvisioned.Inc()
}

// RecordProvisionConflict は作成競合を記録する。
func (c *Collector) RecordProvisionConflict() {
	c.provisionConflict.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAuthSuccess() {}
func (Nop) RecordAuthFailure(string) {}
func (Nop) RecordVerifyLatency(time.Duration) {}
func (Nop) RecordUserProvisioned() {}
func (Nop) RecordProvisionConflict() {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
