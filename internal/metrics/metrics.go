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
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordSignIn(method string)
	RecordSignInFailure(method string, reason string)
	RecordAvatarMirrorFailure()
	RecordProfileUpdate()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCleanupRemoved(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn         *prometheus.CounterVec
	signInFail     *prometheus.CounterVec
	mirrorFail     prometheus.Counter
	profileUpdate  prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	cleanupRemoved prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authbridge_signin_total",
			Help: "サインイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		signInFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authbridge_signin_fail_total",
			Help: "サインイン失敗の合計数（認証方式・理由別）",
		}, []string{"method", "reason"}),
		mirrorFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_avatar_mirror_fail_total",
			Help: "アバター複製失敗の合計数",
		}),
		profileUpdate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_profile_update_total",
			Help: "プロフィール更新の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authbridge_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authbridge_request_latency_seconds",
			Help:    "リクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_cleanup_removed_total",
			Help: "クリーンアップワーカーが削除した孤児オブジェクトの合計数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signInFail,
		c.mirrorFail,
		c.profileUpdate,
		c.httpStatus,
		c.requestLatency,
		c.cleanupRemoved,
	)

	return c
}

// RecordSignIn はサインイン成功を認証方式別に記録する。
func (c *Collector) RecordSignIn(method string) {
	c.signIn.WithLabelValues(method).Inc()
}

// RecordSignInFailure はサインイン失敗を認証方式・理由別に記録する。
func (c *Collector) RecordSignInFailure(method string, reason string) {
	c.signInFail.WithLabelValues(method, reason).Inc()
}

// RecordAvatarMirrorFailure はアバター複製失敗を記録する。
func (c *Collector) RecordAvatarMirrorFailure() {
	c.mirrorFail.Inc()
}

// RecordProfileUpdate はプロフィール更新を記録する。
func (c *Collector) RecordProfileUpdate() {
	c.profileUpdate.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordCleanupRemoved はクリーンアップで削除したオブジェクト数を記録する。
func (c *Collector) RecordCleanupRemoved(count int) {
	c.cleanupRemoved.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
