// Package pipeline drives the ingestion run: the per-channel state machine
// (metadata, video-id discovery, detail fetch, not-found audit) and the
// concurrent fan-out across channels sharing one rate limiter and one
// connection pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/client"
	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/ratelimit"
	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/storage"
	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/youtube"
)

// Configuration errors, reported before any network activity.
var (
	ErrMissingAPIKey = errors.New("api key is required")
	ErrNoChannels    = errors.New("at least one channel id is required")
)

// Config holds one ingestion run's parameters.
type Config struct {
	// APIKey is the YouTube Data API v3 key (required).
	APIKey string

	// ChannelIDs are the target channels (required, at least one).
	ChannelIDs []string

	// OutputRoot is the partition tree root (default "./raw").
	OutputRoot string

	// IngestionDate is the partition date key, YYYY-MM-DD
	// (default: current UTC date).
	IngestionDate string

	// RequestsPerSecond caps the shared request budget (default 8).
	RequestsPerSecond int

	// PartSizeMB is the uncompressed partition size threshold (default 32).
	PartSizeMB int

	// MaxVideos caps video-id discovery per channel (default 50).
	MaxVideos int

	// BaseURL overrides the API base URL (tests).
	BaseURL string

	// Timeout bounds each request attempt (default 30s).
	Timeout time.Duration

	// MaxRetries is the attempt ceiling per request (default 5).
	MaxRetries int
}

func (c *Config) withDefaults() {
	if c.OutputRoot == "" {
		c.OutputRoot = "./raw"
	}
	if c.IngestionDate == "" {
		c.IngestionDate = time.Now().UTC().Format("2006-01-02")
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 8
	}
	if c.PartSizeMB <= 0 {
		c.PartSizeMB = 32
	}
	if c.MaxVideos <= 0 {
		c.MaxVideos = 50
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if len(c.ChannelIDs) == 0 {
		return ErrNoChannels
	}
	return nil
}

// Run executes one ingestion run: every channel in cfg.ChannelIDs is
// ingested as an independent concurrent pipeline; the first failure cancels
// the siblings and aborts the run. Partitions sealed before the failure
// remain on disk; buffered records of failed channels are dropped.
func Run(ctx context.Context, cfg Config) error {
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	logger := log.With().Str("component", "pipeline").Logger()

	limiter := ratelimit.NewLimiter(cfg.RequestsPerSecond)
	httpc := client.New(client.Config{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  client.DefaultConfig().UserAgent,
	}, limiter)
	api := youtube.New(httpc, cfg.BaseURL, cfg.APIKey)

	channelsDir := filepath.Join(cfg.OutputRoot, "youtube", EntityChannels,
		"ingestion_date="+cfg.IngestionDate)
	videosDir := filepath.Join(cfg.OutputRoot, "youtube", EntityVideos,
		"ingestion_date="+cfg.IngestionDate)

	// One index sequence per stream directory: channel pipelines keep
	// private buffers but interleave into the same partition series.
	channelsSeq := storage.NewSequence()
	videosSeq := storage.NewSequence()

	logger.Info().
		Int("channels", len(cfg.ChannelIDs)).
		Str("ingestion_date", cfg.IngestionDate).
		Int("rps", cfg.RequestsPerSecond).
		Msg("Starting ingestion run")

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, cid := range cfg.ChannelIDs {
		job := channelJob{
			api:         api,
			channelID:   cid,
			channelsDir: channelsDir,
			videosDir:   videosDir,
			channelsSeq: channelsSeq,
			videosSeq:   videosSeq,
			targetBytes: cfg.PartSizeMB << 20,
			maxVideos:   cfg.MaxVideos,
			logger:      logger.With().Str("channel_id", cid).Logger(),
		}
		g.Go(func() error {
			return job.run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Ingestion run failed")
		return err
	}

	logger.Info().
		Int("channels", len(cfg.ChannelIDs)).
		Dur("duration", time.Since(start)).
		Msg("Ingestion run complete")
	return nil
}

// channelJob is one channel's pipeline over shared API and sequences.
type channelJob struct {
	api         *youtube.API
	channelID   string
	channelsDir string
	videosDir   string
	channelsSeq *storage.Sequence
	videosSeq   *storage.Sequence
	targetBytes int
	maxVideos   int
	logger      zerolog.Logger
}

// run walks the per-channel state machine. On error the writers are left
// unclosed on purpose: a failing channel contributes only the partitions it
// already sealed.
func (j channelJob) run(ctx context.Context) error {
	wChannels, err := storage.NewRotatingWriter(j.channelsDir, j.targetBytes, j.channelsSeq)
	if err != nil {
		return err
	}
	wVideos, err := storage.NewRotatingWriter(j.videosDir, j.targetBytes, j.videosSeq)
	if err != nil {
		return err
	}

	// 1. Channel metadata.
	chInfo, err := j.api.ChannelsList(ctx, youtube.ChannelRef{ID: j.channelID})
	if err != nil {
		return fmt.Errorf("channel %s: fetch metadata: %w", j.channelID, err)
	}
	for _, item := range youtube.Items(chInfo) {
		id, _ := item["id"].(string)
		if err := wChannels.Append(newChannelRecord(id, item)); err != nil {
			return err
		}
	}

	// 2. Video-id discovery, most recent first.
	ids, err := j.api.SearchVideoIDs(ctx, j.channelID, j.maxVideos, youtube.DefaultOrder)
	if err != nil {
		return fmt.Errorf("channel %s: list video ids: %w", j.channelID, err)
	}

	// 3. Nothing discovered: notice on the channel stream, pipeline ends.
	if len(ids) == 0 {
		j.logger.Warn().Msg("No videos found for channel")
		if err := wChannels.Append(newInfoRecord(j.channelID, MsgNoVideosFound)); err != nil {
			return err
		}
		if err := wChannels.Close(); err != nil {
			return err
		}
		return wVideos.Close()
	}

	// 4. Detail fetch.
	details, err := j.api.VideosList(ctx, ids)
	if err != nil {
		return fmt.Errorf("channel %s: fetch video details: %w", j.channelID, err)
	}

	returned := make(map[string]bool, len(details))
	for _, it := range details {
		vid, _ := it["id"].(string)
		returned[vid] = true
		if err := wVideos.Append(newVideoRecord(j.channelID, vid, it)); err != nil {
			return err
		}
	}

	// 5. Audit requested ids the remote silently withheld.
	missing := 0
	for _, vid := range ids {
		if returned[vid] {
			continue
		}
		missing++
		if err := wVideos.Append(newNotFoundRecord(j.channelID, vid)); err != nil {
			return err
		}
	}

	j.logger.Info().
		Int("video_ids", len(ids)).
		Int("details", len(details)).
		Int("missing", missing).
		Msg("Channel ingested")

	if err := wChannels.Close(); err != nil {
		return err
	}
	return wVideos.Close()
}
