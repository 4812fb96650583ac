package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marsha-lti/internal/models"
)

type reportWriterMock struct {
	saved     map[string][]byte
	saveErr   error
	pruneErr  error
	retention time.Duration
}

func (m *reportWriterMock) Save(name string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = data
	return "/reports/" + name, nil
}

func (m *reportWriterMock) Prune(retention time.Duration, now time.Time) ([]string, error) {
	m.retention = retention
	return nil, m.pruneErr
}

func exportFixture() *DedupeTracker {
	tracker := NewDedupeTracker()
	tracker.StartEmail("a@test.com")
	tracker.RecordUserDeleted(&models.User{ID: "u-2", Username: "bob"})
	return tracker
}

func TestDedupeExportServiceWritesCSV(t *testing.T) {
	store := &reportWriterMock{pruneErr: errors.New("disk busy")}
	svc := NewDedupeExportService(store, DedupeExportConfig{Retention: time.Hour}, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := svc.Export(exportFixture(), "csv", false)
	require.NoError(t, err)
	assert.Equal(t, "/reports/account-deduplication-report-20240102T030405Z.csv", path)
	assert.Equal(t, time.Hour, store.retention)

	content := string(store.saved["account-deduplication-report-20240102T030405Z.csv"])
	assert.True(t, strings.HasPrefix(content, "email,category,position,item\n"))
	assert.Contains(t, content, "a@test.com,user accounts deleted,1,bob")
}

func TestDedupeExportServiceMarksDryRunFilename(t *testing.T) {
	store := &reportWriterMock{}
	svc := NewDedupeExportService(store, DedupeExportConfig{}, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := svc.Export(exportFixture(), "pdf", true)
	require.NoError(t, err)
	assert.Equal(t, "/reports/account-deduplication-report-dry-run-20240102T030405Z.pdf", path)
}

func TestDedupeExportServiceRejectsUnknownFormat(t *testing.T) {
	store := &reportWriterMock{}
	_, err := NewDedupeExportService(store, DedupeExportConfig{}, nil).Export(exportFixture(), "xml", false)
	assert.Error(t, err)
	assert.Empty(t, store.saved)
}

func TestDedupeExportServiceSaveFailure(t *testing.T) {
	store := &reportWriterMock{saveErr: errors.New("read-only")}
	_, err := NewDedupeExportService(store, DedupeExportConfig{}, nil).Export(exportFixture(), "csv", false)
	assert.EqualError(t, err, "read-only")
}
