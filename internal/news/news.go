// Package news loads news items from a JSON feed on disk.
package news

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrFeedNotFound is returned when the input feed file does not exist.
var ErrFeedNotFound = errors.New("feed file not found")

// Item is a single news entry. It is read-only once loaded.
type Item struct {
	ID            ItemID `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Category      string `json:"category"`
	Source        string `json:"source"`
	URL           string `json:"url"`
	Date          string `json:"date"`
	BookmarkCount int    `json:"bookmarkCount"`

	// NumericID is set when the id was a JSON number in the feed.
	NumericID bool `json:"-"`
}

func (it *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*it = Item(p)
	it.NumericID = gjson.GetBytes(data, "id").Type == gjson.Number
	return nil
}

// ItemID accepts both JSON strings and numbers.
type ItemID string

func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// Key returns the item's identifier, or news-<index> when it has none.
func (it Item) Key(index int) string {
	if it.ID != "" {
		return string(it.ID)
	}
	return "news-" + strconv.Itoa(index)
}

var unsafeIDRe = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)

// SafeID makes key usable as a file name: every rune other than a letter,
// digit, underscore, or hyphen becomes an underscore.
func SafeID(key string) string {
	return unsafeIDRe.ReplaceAllString(key, "_")
}

// Load reads news items from path. format is "json" for a JSON array of
// items or "feed" for an RSS, Atom, or JSON Feed document.
func Load(path, format string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	switch format {
	case "", "json":
		return decodeJSON(data)
	case "feed":
		return parseFeed(data)
	default:
		return nil, fmt.Errorf("unknown feed format %q", format)
	}
}

func decodeJSON(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return items, nil
}
