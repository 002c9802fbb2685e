// Command yt-ingest ingests YouTube channel and video metadata into
// date-partitioned gzip NDJSON files.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/logging"
	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/pipeline"
)

func main() {
	var (
		apiKey        = flag.String("api-key", os.Getenv("YOUTUBE_API_KEY"), "YouTube Data API v3 key (or env YOUTUBE_API_KEY)")
		channelIDs    = flag.String("channel-id", "", "channel id(s), comma- or space-separated")
		outputRoot    = flag.String("output-root", "./raw", "output root directory")
		ingestionDate = flag.String("ingestion-date", "", "YYYY-MM-DD (default: today, UTC)")
		rps           = flag.Int("rps", 8, "request budget per second")
		partSizeMB    = flag.Int("part-size-mb", 32, "partition size threshold in MB")
		maxVideos     = flag.Int("max-videos", 50, "max videos to collect per channel")
		timeout       = flag.Duration("timeout", 30*time.Second, "per-request timeout")
		maxRetries    = flag.Int("max-retries", 5, "attempts per request")
		logLevel      = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		pretty        = flag.Bool("pretty", false, "human-readable log output")
		metricsAddr   = flag.String("metrics-addr", "", "listen address for /metrics (empty: disabled)")
	)
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *pretty,
		Output: os.Stderr,
	})

	channels := splitList(*channelIDs)
	if *apiKey == "" {
		usageError("an API key is required: pass -api-key or set YOUTUBE_API_KEY")
	}
	if len(channels) == 0 {
		usageError("at least one channel id is required: pass -channel-id")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", *metricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	cfg := pipeline.Config{
		APIKey:            *apiKey,
		ChannelIDs:        channels,
		OutputRoot:        *outputRoot,
		IngestionDate:     *ingestionDate,
		RequestsPerSecond: *rps,
		PartSizeMB:        *partSizeMB,
		MaxVideos:         *maxVideos,
		Timeout:           *timeout,
		MaxRetries:        *maxRetries,
	}

	if err := pipeline.Run(context.Background(), cfg); err != nil {
		logger.Error().Err(err).Msg("Ingestion failed")
		os.Exit(1)
	}
}

// usageError reports a configuration error and exits with a usage status.
func usageError(msg string) {
	fmt.Fprintf(os.Stderr, "error: %s\n\n", msg)
	flag.Usage()
	os.Exit(2)
}

// splitList parses a comma- or whitespace-separated id list.
func splitList(s string) []string {
	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.Fields(s)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
