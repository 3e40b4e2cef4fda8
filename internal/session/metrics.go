package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// reviewsTotal counts persisted ratings by rating name.
	reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiflash_reviews_total",
		Help: "Total ratings persisted, by rating",
	}, []string{"rating"})

	// reviewWriteErrors counts schedule writes that failed and left the card current.
	reviewWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiflash_review_write_errors_total",
		Help: "Total schedule writes that failed during study",
	})

	// sessionsTotal counts compose attempts by outcome.
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiflash_study_sessions_total",
		Help: "Study sessions composed, by outcome",
	}, []string{"outcome"})
)
