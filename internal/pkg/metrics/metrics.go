// Package metrics exposes Prometheus counters for the submission
// pipeline and the /metrics endpoint.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionOutcomes counts delivery engine results by outcome code.
	SubmissionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formspree_submission_outcomes_total",
		Help: "Submission pipeline results by outcome code.",
	}, []string{"outcome"})

	// EmailsSent counts accepted dispatches by kind
	// (notification | confirmation | unconfirm).
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formspree_emails_sent_total",
		Help: "Emails handed to the transport, by kind.",
	}, []string{"kind"})

	// CaptchaChallenges counts rendered challenge pages.
	CaptchaChallenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formspree_captcha_challenges_total",
		Help: "Captcha challenge pages served.",
	})
)

// Handler adapts the Prometheus handler to gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
