package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
)

// Fixed screenshot names for the two workflow phases.
const (
	InitialScreenshot  = "01_initial.png"
	ScrolledScreenshot = "02_scrolled.png"
)

// URLPrefix is the public prefix under which run artifacts are served.
const URLPrefix = "/artifacts/runs"

// ErrNotFound is returned by Open for unknown artifacts.
var ErrNotFound = errors.New("artifact not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ValidateRunID rejects run ids that cannot be used as a single directory name.
func ValidateRunID(runID string) error {
	if !validName.MatchString(runID) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run_id %q: use 1-128 characters from [A-Za-z0-9._-]", runID)
	}
	return nil
}

func validateFilename(filename string) error {
	if !validName.MatchString(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("invalid artifact name %q", filename)
	}
	return nil
}

// Store maps (run_id, filename) pairs onto the local artifact tree
// <dataDir>/runs/<run_id>/<filename>. It holds no mutable state and is safe
// for concurrent use; runs are isolated by their directory.
type Store struct {
	dataDir string
}

// NewStore creates a Store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// DataDir returns the root directory.
func (s *Store) DataDir() string { return s.dataDir }

// RunDir returns the directory holding a run's artifacts.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.dataDir, "runs", runID)
}

// Path returns a writable path for the artifact, creating the run directory
// as needed.
func (s *Store) Path(runID, filename string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create run dir: %w", err)
	}
	return filepath.Join(dir, filename), nil
}

// Remove deletes the named artifacts of a run. Missing files are not an error.
func (s *Store) Remove(runID string, filenames ...string) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}
	var errs []error
	for _, fn := range filenames {
		if err := validateFilename(fn); err != nil {
			errs = append(errs, err)
			continue
		}
		err := os.Remove(filepath.Join(s.RunDir(runID), fn))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// URL returns the externally addressable reference for an artifact.
// It depends on its arguments only.
func URL(runID, filename string) string {
	return path.Join(URLPrefix, runID, filename)
}

// URL is a convenience wrapper around the package-level URL.
func (s *Store) URL(runID, filename string) string {
	return URL(runID, filename)
}

// Open resolves an existing artifact for serving.
func (s *Store) Open(runID, filename string) (string, error) {
	if ValidateRunID(runID) != nil || validateFilename(filename) != nil {
		return "", ErrNotFound
	}
	p := filepath.Join(s.RunDir(runID), filename)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return p, nil
}
