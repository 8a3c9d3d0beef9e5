// Package store persists human-confirmed feedback images and their metadata.
package store

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/SayHoang/plantidentify/internal/errors"
	"github.com/SayHoang/plantidentify/internal/logging"
	obsmetrics "github.com/SayHoang/plantidentify/internal/observability/metrics"
)

// Package-level logger specific to the feedback store
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "store.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "store", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize store file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "store")
		closeLogger = func() error { return nil }
	}
}

const (
	maxLabelLength = 100

	// fallbackLabel names the label directory when sanitization leaves nothing.
	fallbackLabel = "unknown_label"

	// fallbackFilename stands in for a missing original filename.
	fallbackFilename = "unknown_original_name.jpg"

	defaultExtension = ".jpg"
)

var (
	labelStripPattern = regexp.MustCompile(`[^\w\s-]`)
	spacesPattern     = regexp.MustCompile(`\s+`)
)

// contentTypes maps recognized upload extensions to their MIME type.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// CommitRequest carries everything needed to persist one accepted feedback.
type CommitRequest struct {
	Image            []byte
	OriginalFilename string
	Label            string
	Prefix           string
}

// Receipt reports where a committed feedback landed.
type Receipt struct {
	LabelDir   string // sanitized label directory segment
	ObjectPath string // full bucket-relative object path
	Timestamp  string // the record key
}

// Store writes feedback images to a bucket with an advisory metadata index.
type Store struct {
	bucket Bucket
	index  *Index
	prom   *obsmetrics.StoreMetrics
	now    func() time.Time
}

// New creates a feedback store. The index may be nil, metadata writes are
// advisory and a missing index simply skips them.
func New(bucket Bucket, index *Index) *Store {
	return &Store{
		bucket: bucket,
		index:  index,
		now:    time.Now,
	}
}

// SetMetrics attaches Prometheus collectors to the store. Optional.
func (s *Store) SetMetrics(m *obsmetrics.StoreMetrics) {
	s.prom = m
}

// Close releases the store's log file.
func (s *Store) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing store logger: %v", err)
		}
	}
}

// SanitizeLabel turns a resolved label into a filesystem and key safe token:
// strip everything outside word characters, spaces and hyphens, collapse
// spaces to underscores, truncate, and fall back to a placeholder if nothing
// survives.
func SanitizeLabel(label string) string {
	safe := labelStripPattern.ReplaceAllString(label, "")
	safe = strings.TrimSpace(safe)
	safe = spacesPattern.ReplaceAllString(safe, "_")
	if len(safe) > maxLabelLength {
		safe = safe[:maxLabelLength]
	}
	if safe == "" {
		return fallbackLabel
	}
	return safe
}

// objectExtension picks the stored object's extension from the original
// filename, defaulting when the extension is absent or unrecognized.
func objectExtension(originalFilename string) string {
	ext := strings.ToLower(path.Ext(originalFilename))
	if _, ok := contentTypes[ext]; !ok {
		return defaultExtension
	}
	return ext
}

// timestampToken formats a microsecond-precision timestamp into the
// collision-resistant object name key.
func timestampToken(t time.Time) string {
	return strings.Replace(t.Format("20060102_150405.000000"), ".", "", 1)
}

// Commit writes the image to the bucket at prefix/label/timestamp.ext and
// best-effort records metadata in the secondary index. Only a primary write
// failure (or an uninitialized bucket) fails the commit; the metadata write
// is advisory and never rolls back the image.
func (s *Store) Commit(ctx context.Context, req *CommitRequest) (Receipt, error) {
	if s.bucket == nil {
		return Receipt{}, errors.Newf("feedback store is not initialized").
			Category(errors.CategoryObjectStore).
			Component("store").
			Build()
	}

	originalFilename := req.OriginalFilename
	if originalFilename == "" {
		logger.Warn("original filename missing, using placeholder")
		originalFilename = fallbackFilename
	}

	safeLabel := SanitizeLabel(req.Label)
	ext := objectExtension(originalFilename)
	timestamp := timestampToken(s.now().UTC())
	objectPath := path.Join(req.Prefix, safeLabel, timestamp+ext)

	start := time.Now()
	if err := s.bucket.Put(ctx, objectPath, contentTypes[ext], req.Image); err != nil {
		logger.Error("primary feedback write failed",
			"path", objectPath,
			"label", safeLabel,
			"error", err.Error())
		if s.prom != nil {
			s.prom.RecordCommit(safeLabel, 0, err)
		}
		return Receipt{}, err
	}
	if s.prom != nil {
		s.prom.RecordCommit(safeLabel, time.Since(start).Seconds(), nil)
	}

	logger.Info("feedback image stored",
		"path", objectPath,
		"label", safeLabel,
		"bytes", len(req.Image))

	// Advisory metadata write, failure is logged and swallowed.
	if s.index != nil {
		rec := &FeedbackRecord{
			Timestamp:        timestamp,
			Label:            req.Label,
			ObjectPath:       objectPath,
			OriginalFilename: originalFilename,
		}
		if err := s.index.Record(rec); err != nil {
			logger.Warn("metadata index write failed, image write stands",
				"timestamp", timestamp,
				"error", err.Error())
			if s.prom != nil {
				s.prom.IncrementIndexWriteFailures()
			}
		}
	}

	return Receipt{
		LabelDir:   safeLabel,
		ObjectPath: objectPath,
		Timestamp:  timestamp,
	}, nil
}
