package catalog

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const tleCacheFile = "geo_tle.txt"

// Store fetches and caches the geostationary TLE set. A fresh disk cache
// wins, then the network, then a stale cache.
type Store struct {
	url      string
	dataRoot string
	maxAge   time.Duration
	client   *http.Client
}

// NewStore returns a store that downloads from tleURL and caches under
// dataRoot.
func NewStore(tleURL, dataRoot string, refreshHours int) *Store {
	return &Store{
		url:      tleURL,
		dataRoot: dataRoot,
		maxAge:   time.Duration(refreshHours) * time.Hour,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Store) cachePath() string {
	return filepath.Join(s.dataRoot, tleCacheFile)
}

// Load returns raw three-line TLE text.
func (s *Store) Load() (string, error) {
	path := s.cachePath()

	if info, err := os.Stat(path); err == nil && time.Since(info.ModTime()) < s.maxAge {
		if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
			return string(b), nil
		}
	}

	body, fetchErr := s.fetch()
	if fetchErr == nil {
		// The data is already in memory; a failed cache write only costs a
		// refetch next time.
		_ = writeFileAtomic(path, []byte(body))
		return body, nil
	}

	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return string(b), nil
	}
	return "", fmt.Errorf("all TLE sources exhausted: %w", fetchErr)
}

// ForceRefresh downloads regardless of cache age.
func (s *Store) ForceRefresh() (string, error) {
	body, err := s.fetch()
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(s.cachePath(), []byte(body)); err != nil {
		return "", fmt.Errorf("write TLE cache: %w", err)
	}
	return body, nil
}

// CacheInfo reports the cache file's age, or false when there is none.
func (s *Store) CacheInfo() (time.Time, bool) {
	info, err := os.Stat(s.cachePath())
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (s *Store) fetch() (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("no TLE URL configured")
	}
	resp, err := s.client.Get(s.url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("TLE fetch returned HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeFileAtomic writes through a temp file and rename so readers never
// see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
