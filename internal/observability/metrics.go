package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// PageCacheRequests counts comment page cache lookups by result.
	PageCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_page_cache_requests_total",
		Help: "Total number of comment page cache lookups by result (hit/miss)",
	}, []string{"result"})

	// CommentMutationsTotal counts committed comment mutations by operation
	// and scope kind.
	CommentMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkwell_comment_mutations_total",
		Help: "Total number of committed comment mutations by operation and scope",
	}, []string{"operation", "scope"})
)
