package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ReportStore keeps rendered reports as flat files in one directory.
type ReportStore struct {
	dir string
}

// NewReportStore creates dir when missing.
func NewReportStore(dir string) (*ReportStore, error) {
	if dir == "" {
		dir = "./reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &ReportStore{dir: dir}, nil
}

// Dir returns the directory reports are written to.
func (s *ReportStore) Dir() string {
	return s.dir
}

func (s *ReportStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid report name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Save writes data atomically under name and returns the full path.
func (s *ReportStore) Save(name string, data []byte) (string, error) {
	target, err := s.path(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return target, nil
}

// List returns stored report names, oldest first.
func (s *ReportStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	type stored struct {
		name string
		mod  time.Time
	}
	reports := make([]stored, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat report %s: %w", entry.Name(), err)
		}
		reports = append(reports, stored{name: entry.Name(), mod: info.ModTime()})
	}
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].mod.Before(reports[j].mod) })
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.name
	}
	return names, nil
}

// Prune removes reports last modified before now minus retention and
// returns their names. A non-positive retention keeps everything.
func (s *ReportStore) Prune(retention time.Duration, now time.Time) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	cutoff := now.Add(-retention)
	names, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("stat report %s: %w", name, err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove report %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
