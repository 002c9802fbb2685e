package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for the partition writer.
var (
	recordsAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yt_records_appended_total",
		Help: "Total records appended to rotating NDJSON writers",
	})

	partitionsSealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yt_partitions_sealed_total",
		Help: "Total partition files sealed and renamed into place",
	})

	partitionUncompressedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yt_partition_uncompressed_bytes",
		Help:    "Uncompressed size of sealed partitions in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
)

// DefaultTargetBytes is the default partition size threshold (32 MB).
const DefaultTargetBytes = 32 << 20

// RotatingWriter buffers newline-delimited JSON records in memory and seals
// them into numbered gzip partitions once the uncompressed buffer crosses
// the size threshold. The threshold is a soft ceiling: rotation is checked
// after each append, so one record may push a partition slightly over.
//
// A RotatingWriter is not safe for concurrent use; each producer owns its
// own instance. Writers sharing an output directory must share a Sequence.
//
// Records appended but not yet rotated live only in memory and are lost if
// the process dies before Close.
type RotatingWriter struct {
	dir         string
	targetBytes int
	seq         *Sequence
	buf         bytes.Buffer
	enc         *json.Encoder
	count       int
	logger      zerolog.Logger
}

// NewRotatingWriter creates a writer targeting dir, creating the directory
// if absent. A nil seq gets a private Sequence; targetBytes <= 0 falls back
// to DefaultTargetBytes.
func NewRotatingWriter(dir string, targetBytes int, seq *Sequence) (*RotatingWriter, error) {
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}
	if seq == nil {
		seq = NewSequence()
	}

	// MkdirAll tolerates concurrent creation by sibling pipelines.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	w := &RotatingWriter{
		dir:         dir,
		targetBytes: targetBytes,
		seq:         seq,
		logger:      log.With().Str("component", "storage").Str("dir", dir).Logger(),
	}
	w.enc = json.NewEncoder(&w.buf)
	w.enc.SetEscapeHTML(false)
	return w, nil
}

// Append serializes record as one JSON line into the buffer and rotates if
// the buffer reached the size threshold. Non-ASCII characters are emitted
// literally.
func (w *RotatingWriter) Append(record any) error {
	if err := w.enc.Encode(record); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.count++
	recordsAppendedTotal.Inc()

	if w.buf.Len() >= w.targetBytes {
		return w.rotate()
	}
	return nil
}

// rotate compresses the buffered records into the next numbered partition
// and resets the buffer. No-op on an empty buffer.
func (w *RotatingWriter) rotate() error {
	if w.buf.Len() == 0 {
		return nil
	}

	uncompressed := w.buf.Len()

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(w.buf.Bytes()); err != nil {
		gz.Close()
		return fmt.Errorf("compress partition: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress partition: %w", err)
	}

	index := w.seq.Next()
	path := filepath.Join(w.dir, fmt.Sprintf("part-%05d.ndjson.gz", index))
	if err := WriteFileAtomic(path, compressed.Bytes()); err != nil {
		return fmt.Errorf("seal partition %s: %w", path, err)
	}

	partitionsSealedTotal.Inc()
	partitionUncompressedBytes.Observe(float64(uncompressed))
	w.logger.Debug().
		Str("partition", path).
		Int("uncompressed_bytes", uncompressed).
		Int("compressed_bytes", compressed.Len()).
		Msg("Sealed partition")

	w.buf.Reset()
	return nil
}

// Close seals any buffered records into a final partition. Safe to call on
// an empty buffer and safe to call more than once.
func (w *RotatingWriter) Close() error {
	return w.rotate()
}

// Count returns the number of records appended so far.
func (w *RotatingWriter) Count() int {
	return w.count
}
