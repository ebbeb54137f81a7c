package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const postsSection = "posts"

// Store keeps rendered responses on disk, one directory per section.
type Store struct {
	dir    string
	maxAge time.Duration
}

func NewStore(dir string, maxAge time.Duration) *Store {
	return &Store{dir: dir, maxAge: maxAge}
}

// GetCachePath returns the cache file path for one variant (usually the request URI) of a key
func (s *Store) GetCachePath(section, key, variant string) string {
	hash := generateHash(section + key + variant)
	shortHash := hash[:16]
	return filepath.Join(s.dir, section, fmt.Sprintf("%s_%s.json", key, shortHash))
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	hash := xxhash.Sum64String(s)
	return fmt.Sprintf("%016x", hash)
}

// WriteCache writes a response body to its cache file
func (s *Store) WriteCache(section, key, variant string, body []byte) error {
	if err := os.MkdirAll(filepath.Join(s.dir, section), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.GetCachePath(section, key, variant), body, 0644)
}

// ReadCache reads a cached body if it exists and is not expired
func (s *Store) ReadCache(section, key, variant string) ([]byte, bool) {
	cachePath := s.GetCachePath(section, key, variant)

	info, err := os.Stat(cachePath)
	if err != nil {
		return nil, false
	}

	if time.Since(info.ModTime()) > s.maxAge {
		return nil, false
	}

	content, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, false
	}
	return content, true
}

// ClearCache removes every variant cached for key
func (s *Store) ClearCache(section, key string) error {
	pattern := filepath.Join(s.dir, section, key+"_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// ClearPost drops the cached pages of one post
func (s *Store) ClearPost(postID uint) error {
	return s.ClearCache(postsSection, strconv.FormatUint(uint64(postID), 10))
}

// ClearOldCache removes cache files older than the store's max age. A file
// that cannot be removed does not stop the sweep; its error is returned with
// the others once the walk ends.
func (s *Store) ClearOldCache() error {
	var failed []error
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		if time.Since(info.ModTime()) > s.maxAge {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				failed = append(failed, fmt.Errorf("remove %s: %w", path, err))
			}
		}
		return nil
	})
	if err != nil {
		failed = append(failed, err)
	}
	return errors.Join(failed...)
}
