// Package history keeps a per-project record of generation runs as
// one JSON file per entry, so records never need locking or rewriting.
package history

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirName is the history directory created under the project root.
const DirName = ".imgcreator/history"

// Entry records one generation run.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Prompt         string    `json:"prompt"`
	ResolvedPrompt string    `json:"resolved_prompt,omitempty"`
	Model          string    `json:"model"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Seed           *int64    `json:"seed,omitempty"`
	Status         string    `json:"status"`
	OutputPath     string    `json:"output_path,omitempty"`
	ImageSHA256    string    `json:"image_sha256,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Series         string    `json:"series,omitempty"`
	ItemID         string    `json:"item_id,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Filter narrows a Search. Zero-valued fields match everything.
type Filter struct {
	Prompt string // case-insensitive substring over prompt and resolved prompt
	Series string
	Status string
}

// Stats aggregates the whole history.
type Stats struct {
	Total           int
	Succeeded       int
	Failed          int
	ByModel         map[string]int
	SeriesCount     int
	TotalDurationMs int64
	AvgDurationMs   int64
}

// NotFoundError reports an unknown entry id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no history entry with id %q", e.ID)
}

// Store reads and writes history entries under one directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore builds a store rooted at the project directory.
func NewStore(projectRoot string) *Store {
	return &Store{
		dir: filepath.Join(projectRoot, filepath.FromSlash(DirName)),
		now: time.Now,
	}
}

// HashImage returns the hex SHA-256 of image bytes, used to link a
// history entry to the file it produced.
func HashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newID derives a short stable id from the prompt and timestamp.
func newID(prompt string, t time.Time) string {
	sum := md5.Sum([]byte(prompt + t.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:8]
}

// Record persists an entry, assigning its id and timestamp when unset,
// and returns the stored form.
func (s *Store) Record(entry Entry) (Entry, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.ID == "" {
		entry.ID = newID(entry.Prompt, entry.Timestamp)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create history dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.UTC().Format("20060102_150405"), entry.ID)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encode history entry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write history entry: %w", err)
	}
	return entry, nil
}

// List returns entries newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get looks up an entry by id; a unique id prefix also matches.
func (s *Store) Get(id string) (Entry, error) {
	entries, err := s.readAll()
	if err != nil {
		return Entry{}, err
	}
	var matches []Entry
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
		if strings.HasPrefix(e.ID, id) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	return Entry{}, &NotFoundError{ID: id}
}

// Search returns entries matching the filter, newest first.
func (s *Store) Search(f Filter) ([]Entry, error) {
	entries, err := s.List(0)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(f.Prompt)
	var out []Entry
	for _, e := range entries {
		if query != "" &&
			!strings.Contains(strings.ToLower(e.Prompt), query) &&
			!strings.Contains(strings.ToLower(e.ResolvedPrompt), query) {
			continue
		}
		if f.Series != "" && e.Series != f.Series {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Stats aggregates all recorded entries.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.readAll()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByModel: map[string]int{}}
	seriesSeen := map[string]bool{}
	for _, e := range entries {
		stats.Total++
		switch e.Status {
		case "success":
			stats.Succeeded++
		case "failed":
			stats.Failed++
		}
		if e.Model != "" {
			stats.ByModel[e.Model]++
		}
		if e.Series != "" {
			seriesSeen[e.Series] = true
		}
		stats.TotalDurationMs += e.DurationMs
	}
	stats.SeriesCount = len(seriesSeen)
	if stats.Total > 0 {
		stats.AvgDurationMs = stats.TotalDurationMs / int64(stats.Total)
	}
	return stats, nil
}

func (s *Store) readAll() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history dir: %w", err)
	}
	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("read history entry %s: %w", de.Name(), err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			// Skip records damaged by hand edits instead of
			// failing the whole listing.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
