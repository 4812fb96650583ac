package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/marsha-lti/pkg/export"
)

type reportWriter interface {
	Save(name string, data []byte) (string, error)
	Prune(retention time.Duration, now time.Time) ([]string, error)
}

// DedupeExportConfig tunes report export.
type DedupeExportConfig struct {
	// Retention prunes older reports after each export; zero keeps all.
	Retention time.Duration
}

// DedupeExportService renders a deduplication tracker to CSV or PDF and
// stores the file.
type DedupeExportService struct {
	store  reportWriter
	cfg    DedupeExportConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewDedupeExportService(store reportWriter, cfg DedupeExportConfig, logger *zap.Logger) *DedupeExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DedupeExportService{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Export writes tracker in format and returns the stored path.
func (s *DedupeExportService) Export(tracker *DedupeTracker, format string, dryRun bool) (string, error) {
	exporter, err := export.New(format)
	if err != nil {
		return "", err
	}
	data := tracker.Dataset()
	if dryRun {
		data.Title += " (dry run)"
	}
	content, err := exporter.Render(data)
	if err != nil {
		return "", fmt.Errorf("render dedupe report: %w", err)
	}

	now := s.now()
	path, err := s.store.Save(export.Filename(data.Title, exporter.Format(), now), content)
	if err != nil {
		return "", err
	}
	s.logger.Info("dedupe report exported",
		zap.String("path", path),
		zap.String("format", string(exporter.Format())),
		zap.Int("rows", len(data.Rows)),
	)

	removed, err := s.store.Prune(s.cfg.Retention, now)
	if err != nil {
		s.logger.Warn("failed to prune dedupe reports", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("pruned dedupe reports", zap.Strings("files", removed))
	}
	return path, nil
}
