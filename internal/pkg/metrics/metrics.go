package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SignupTotal 注册请求计数（按结果分类）。
	SignupTotal *prometheus.CounterVec

	// TokenIssuedTotal 成功签发的 Token 计数。
	TokenIssuedTotal prometheus.Counter

	// TokenExchangeFailedTotal 确认码兑换失败计数。
	TokenExchangeFailedTotal prometheus.Counter

	// RateLimitRejectedTotal 被限流拒绝的请求计数。
	RateLimitRejectedTotal prometheus.Counter

	// ConfirmationEmailTotal 确认码邮件发送计数（按结果分类）。
	ConfirmationEmailTotal *prometheus.CounterVec

	initOnce sync.Once
)

// InitMetrics 注册全部 Prometheus 指标，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		SignupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yamdb_signup_total",
			Help: "Number of signup requests by outcome.",
		}, []string{"outcome"})

		TokenIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yamdb_tokens_issued_total",
			Help: "Number of access tokens issued.",
		})

		TokenExchangeFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yamdb_token_exchange_failed_total",
			Help: "Number of failed confirmation code exchanges.",
		})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yamdb_ratelimit_rejected_total",
			Help: "Number of requests rejected by the auth rate limiter.",
		})

		ConfirmationEmailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yamdb_confirmation_email_total",
			Help: "Number of confirmation emails by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			SignupTotal,
			TokenIssuedTotal,
			TokenExchangeFailedTotal,
			RateLimitRejectedTotal,
			ConfirmationEmailTotal,
		)
	})
}
