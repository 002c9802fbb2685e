// Package metrics documents the Prometheus collectors exposed by the
// ingester. All collectors are defined via promauto in the packages that
// own the events (client, ratelimit, storage) to avoid circular
// dependencies; this package holds the registry reference.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the ingester. All
// collectors register automatically via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Reference
//
// Request metrics (pkg/client):
//   - yt_requests_total{endpoint, status} (Counter): requests by endpoint
//     path and HTTP status ("transport_error" for failed attempts)
//   - yt_request_duration_seconds{endpoint} (Histogram): attempt duration
//   - yt_request_retries_total{reason} (Counter): retries by failure kind
//     (status, transport)
//   - yt_request_backoff_seconds{reason} (Histogram): backoff durations
//   - yt_request_retry_exhausted_total (Counter): requests that used up
//     all attempts
//
// Rate limit metrics (pkg/ratelimit):
//   - yt_rate_limit_permits_granted_total (Counter): permits granted
//   - yt_rate_limit_wait_seconds (Histogram): time callers blocked
//
// Storage metrics (pkg/storage):
//   - yt_records_appended_total (Counter): records appended to writers
//   - yt_partitions_sealed_total (Counter): partition files sealed
//   - yt_partition_uncompressed_bytes (Histogram): pre-compression
//     partition sizes
//
// Example queries:
//
//   # Retry rate
//   rate(yt_request_retries_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(yt_request_duration_seconds_bucket[5m]))
//
//   # Throttling pressure
//   histogram_quantile(0.9, rate(yt_rate_limit_wait_seconds_bucket[5m]))
