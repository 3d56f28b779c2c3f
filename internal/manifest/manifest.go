// Package manifest writes the index of generated audio files.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/feedcast/internal/news"
	"github.com/tidwall/gjson"
)

// Entry describes one news item that has an audio file on disk.
type Entry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Source        string `json:"source"`
	Category      string `json:"category"`
	Date          string `json:"date"`
	Summary       string `json:"summary"`
	BookmarkCount int    `json:"bookmarkCount"`
	AudioFile     string `json:"audioFile"`

	// NumericID writes ID as a JSON number, as it appeared in the feed.
	NumericID bool `json:"-"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	var v any = plain(e)
	if e.NumericID {
		v = struct {
			ID json.Number `json:"id"`
			plain
		}{json.Number(e.ID), plain(e)}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var v struct {
		ID news.ItemID `json:"id"`
		plain
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Entry(v.plain)
	e.ID = string(v.ID)
	e.NumericID = gjson.GetBytes(data, "id").Type == gjson.Number
	return nil
}

// NewEntry builds the manifest entry for item stored under key. An id read
// as a JSON number is written back as one.
func NewEntry(item news.Item, key, audioFile string) Entry {
	return Entry{
		ID:            key,
		NumericID:     item.NumericID && item.ID != "",
		Title:         item.Title,
		URL:           item.URL,
		Source:        item.Source,
		Category:      item.Category,
		Date:          item.Date,
		Summary:       item.Summary,
		BookmarkCount: item.BookmarkCount,
		AudioFile:     audioFile,
	}
}

// Write replaces the manifest at path with entries. Non-ASCII text is kept
// as is and HTML characters are not escaped. An empty list is written as [].
func Write(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Read loads a manifest written by Write. A missing file yields no entries.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}
