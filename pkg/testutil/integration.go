package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/trainprep/pkg/container"
	"github.com/ajitpratap0/trainprep/pkg/container/archive"
)

// ArchiveSuite provides base functionality for tests that load archives
// from disk
type ArchiveSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *ArchiveSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "trainprep-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownSuite runs after all tests in the suite
func (s *ArchiveSuite) TearDownSuite() {
	s.cancel()

	if s.tempDir != "" {
		_ = os.RemoveAll(s.tempDir)
	}

	s.T().Logf("archive suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *ArchiveSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory path
func (s *ArchiveSuite) TempDir() string {
	return s.tempDir
}

// CreateTempFile creates a file with content in the suite directory
func (s *ArchiveSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), os.WriteFile(path, content, 0o600))
	return path
}

// SaveArchive writes src as <name>.zip in the suite directory
func (s *ArchiveSuite) SaveArchive(name string, src container.File, opts ...archive.Option) string {
	path := filepath.Join(s.tempDir, name+".zip")
	require.NoError(s.T(), archive.Save(path, src, opts...))
	return path
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}
