// Package zimfile locates archive parts on disk. A finished single-file book is
// "<name>.zim"; a split book is "<name>.zimaa", "<name>.zimab", ... where any
// chunk still being completed carries a ".part" suffix.
package zimfile

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/internal/domain"
)

// Locator answers questions about which parts of a book exist on disk
type Locator struct {
	fs     afero.Fs
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLocator creates a locator over fs; a nil fs uses the OS file system
func NewLocator(fs afero.Fs, logger *zap.Logger) *Locator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{fs: fs, logger: logger}
}

// Fs returns the underlying file system
func (l *Locator) Fs() afero.Fs {
	return l.fs
}

// Exists reports whether a regular file or directory exists at path
func (l *Locator) Exists(path string) bool {
	ok, err := afero.Exists(l.fs, path)
	return err == nil && ok
}

// AllParts returns the on-disk files backing the nominal path, in chunk order.
// Missing files are not an error: the result is simply shorter.
func (l *Locator) AllParts(nominal string) []string {
	if strings.HasSuffix(nominal, domain.ZimExtension) || strings.HasSuffix(nominal, domain.ZimExtension+domain.PartExtension) {
		if l.Exists(nominal) {
			return []string{nominal}
		}
		return []string{nominal + domain.PartExtension}
	}

	var parts []string
	l.eachChunkPath(nominal, func(candidate string) bool {
		switch {
		case l.Exists(candidate):
			parts = append(parts, candidate)
		case l.Exists(candidate + domain.PartExtension):
			parts = append(parts, candidate+domain.PartExtension)
		default:
			return false
		}
		return true
	})
	return parts
}

// FileName resolves the current on-disk name of file: the file itself, its
// ".part" form, or the first chunk name when neither exists
func (l *Locator) FileName(file string) string {
	switch {
	case l.Exists(file):
		return file
	case l.Exists(file + domain.PartExtension):
		return file + domain.PartExtension
	default:
		return file + domain.Suffix(0)
	}
}

// HasPart reports whether any chunk of file is still incomplete.
// The chunk scan stops at the first chunk that is absent in both forms.
func (l *Locator) HasPart(file string) bool {
	file = l.FileName(file)
	if strings.HasSuffix(file, domain.ZimExtension) {
		return false
	}
	if strings.HasSuffix(file, domain.PartExtension) {
		return true
	}

	found := false
	l.eachChunkPath(file, func(candidate string) bool {
		if l.Exists(candidate + domain.PartExtension) {
			found = true
			return false
		}
		return l.Exists(candidate)
	})
	return found
}

// SizeOnDisk sums the sizes of every located part of a book
func (l *Locator) SizeOnDisk(nominal string) int64 {
	var total int64
	for _, part := range l.AllParts(nominal) {
		info, err := l.fs.Stat(part)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}

// DeleteZimFile removes a book's archive and every chunk or partial file
// belonging to it. Files that are already gone are skipped.
func (l *Locator) DeleteZimFile(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path = strings.TrimSuffix(path, domain.ChunkPartExtension)
	l.logger.Info("Deleting file", zap.String("path", path))

	if !strings.HasSuffix(path, "zim") {
		var firstErr error
		l.eachChunkPath(path, func(candidate string) bool {
			if l.Exists(candidate) {
				if err := l.fs.Remove(candidate); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("failed to delete chunk %s: %w", candidate, err)
				}
				return true
			}
			removed, err := l.deleteParts(candidate)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return removed
		})
		return firstErr
	}

	if l.Exists(path) {
		if err := l.fs.Remove(path); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", path, err)
		}
	}
	_, err := l.deleteParts(path)
	return err
}

func (l *Locator) deleteParts(path string) (bool, error) {
	for _, candidate := range []string{path + domain.ChunkPartExtension, path + domain.PartExtension} {
		if !l.Exists(candidate) {
			continue
		}
		if err := l.fs.Remove(candidate); err != nil {
			return true, fmt.Errorf("failed to delete part %s: %w", candidate, err)
		}
		return true, nil
	}
	return false, nil
}

// Scan walks dir and returns every archive that can be opened as a book:
// plain ".zim" files and the first chunk of split archives
func (l *Locator) Scan(dir string) ([]string, error) {
	var found []string
	err := afero.Walk(l.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			l.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() && IsValidZimFile(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return found, nil
}

// IsValidZimFile reports whether path names a complete archive or the first
// chunk of a split one
func IsValidZimFile(path string) bool {
	return strings.HasSuffix(path, domain.ZimExtension) || strings.HasSuffix(path, domain.ZimExtension+domain.Suffix(0))
}

// eachChunkPath rewrites the last two characters of path with each chunk
// suffix in order until fn returns false
func (l *Locator) eachChunkPath(path string, fn func(candidate string) bool) {
	if len(path) < 2 {
		return
	}
	stem := path[:len(path)-2]
	domain.EachSuffix(func(_ int, suffix string) bool {
		return fn(stem + suffix)
	})
}
