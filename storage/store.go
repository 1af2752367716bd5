// Package storage owns the sidecar's storage root: it sanitizes names,
// keeps every resolved path inside the root and writes files atomically.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"docrelay/logger"
	"docrelay/models"
)

// partialDir holds in-flight uploads. It lives inside the root so the final
// rename stays on one filesystem.
const partialDir = ".partial"

var (
	ErrUnsafeFilename  = errors.New("unsafe filename")
	ErrMalformedUpload = errors.New("malformed upload")
	ErrFileNotFound    = errors.New("file not found")
)

// Store is a flat directory of uploaded artifacts.
type Store struct {
	root string // canonical absolute path
}

// NewStore creates root if needed and canonicalizes it.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}
	if err := os.MkdirAll(filepath.Join(canonical, partialDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Store{root: canonical}, nil
}

// Root returns the canonical storage root.
func (s *Store) Root() string {
	return s.root
}

// SanitizeFilename reduces a client-supplied name to its final path element.
// Both "/" and "\" count as separators, so "..\..\evil.txt",
// "C:\dir\evil.txt" and "../../evil.txt" all become "evil.txt".
func SanitizeFilename(raw string) (string, error) {
	name := strings.ReplaceAll(raw, `\`, "/")
	name = strings.TrimSpace(path.Base(name))

	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateName rejects anything that is not a plain file name. No path is
// ever composed from a name that fails this check.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "/":
		return fmt.Errorf("%w: empty name", ErrUnsafeFilename)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrUnsafeFilename, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrUnsafeFilename, name)
	case name == partialDir:
		return fmt.Errorf("%w: %q is reserved", ErrUnsafeFilename, name)
	}
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrUnsafeFilename, name)
		}
	}
	return nil
}

// Resolve maps a validated name to its absolute path and proves the result
// stays inside the root. Existing symlinks are followed and re-checked.
func (s *Store) Resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	candidate := filepath.Join(s.root, name)
	if !within(s.root, candidate) {
		return "", fmt.Errorf("%w: %q escapes storage root", ErrUnsafeFilename, name)
	}

	if info, err := os.Lstat(candidate); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %q is a dangling link", ErrUnsafeFilename, name)
		}
		if !within(s.root, target) {
			return "", fmt.Errorf("%w: %q links outside storage root", ErrUnsafeFilename, name)
		}
	}

	return candidate, nil
}

// within reports whether candidate equals root or has root as a
// path-segment ancestor. A plain string prefix test would accept
// "/data/store-evil" for root "/data/store".
func within(root, candidate string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(candidate))
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Save streams r into name. The data goes to a temp file first and is
// renamed into place, so readers see either the old file or the new one.
func (s *Store) Save(name string, r io.Reader) (models.StoredFile, error) {
	dest, err := s.Resolve(name)
	if err != nil {
		return models.StoredFile{}, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, partialDir), "upload-*")
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warnf("Failed to remove temp file %s: %v", tmpPath, rmErr)
			}
		}
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return models.StoredFile{}, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	committed = true

	logger.Infof("Stored file '%s' (%d bytes)", name, size)
	return models.StoredFile{Name: name, Path: dest, Size: size}, nil
}

// Open returns the named regular file. The caller closes it.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	p, err := s.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return f, info, nil
}
