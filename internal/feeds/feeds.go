// Package feeds keeps the list of transponders that have given a lock,
// persisted as JSON under the data root.
package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/large-farva/feedhunter/internal/frontend"
	"github.com/large-farva/feedhunter/internal/scan"
)

// FileName is the log's name inside the data root.
const FileName = "feeds.json"

// Feed is one frequency/polarization pair that has locked at least once.
type Feed struct {
	Frequency    uint32                `json:"frequency_khz"`
	Polarization frontend.Polarization `json:"polarization"`
	IF           uint32                `json:"if_khz"`
	HighBand     bool                  `json:"high_band"`
	Satellite    string                `json:"satellite,omitempty"`
	FirstSeen    time.Time             `json:"first_seen"`
	LastSeen     time.Time             `json:"last_seen"`
	Hits         int                   `json:"hits"`
}

type key struct {
	freq uint32
	pol  frontend.Polarization
}

// Log is the in-memory feed list backed by a file. It is safe for
// concurrent use.
type Log struct {
	mu    sync.Mutex
	path  string
	feeds map[key]*Feed
	now   func() time.Time
}

// Open loads the log from dataRoot, starting empty if the file does not
// exist yet.
func Open(dataRoot string) (*Log, error) {
	l := &Log{
		path:  filepath.Join(dataRoot, FileName),
		feeds: make(map[key]*Feed),
		now:   time.Now,
	}
	b, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read feed log: %w", err)
	}
	var list []Feed
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.path, err)
	}
	for i := range list {
		f := list[i]
		l.feeds[key{f.Frequency, f.Polarization}] = &f
	}
	return l, nil
}

// Path returns the backing file.
func (l *Log) Path() string { return l.path }

// Record adds or refreshes the feed for a locked attempt and saves the log.
// satellite is the catalog name the dish was pointed at, if known.
func (l *Log) Record(a scan.Attempt, satellite string) (Feed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	k := key{a.Frequency, a.Polarization}
	f, ok := l.feeds[k]
	if !ok {
		f = &Feed{
			Frequency:    a.Frequency,
			Polarization: a.Polarization,
			FirstSeen:    now,
		}
		l.feeds[k] = f
	}
	f.IF = a.IF
	f.HighBand = a.HighBand
	f.LastSeen = now
	f.Hits++
	if satellite != "" {
		f.Satellite = satellite
	}
	return *f, l.saveLocked()
}

// List returns the feeds ordered by frequency, horizontal first.
func (l *Log) List() []Feed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

// Clear empties the log and removes the file.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeds = make(map[key]*Feed)
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Log) sortedLocked() []Feed {
	out := make([]Feed, 0, len(l.feeds))
	for _, f := range l.feeds {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency < out[j].Frequency
		}
		return out[i].Polarization < out[j].Polarization
	})
	return out
}

func (l *Log) saveLocked() error {
	b, err := json.MarshalIndent(l.sortedLocked(), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "feeds-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}
