package source

import (
	"context"
	"time"
)

// Post is a single post fetched from a user's timeline.
type Post struct {
	ID       string    // source-specific unique ID
	Text     string    // full post text
	PostedAt time.Time // publication timestamp, UTC
}

// Page is one batch of a paginated timeline.
type Page struct {
	Posts  []Post
	Cursor string // continuation token for the next page, empty at the end
}

// Client retrieves a user's posts page by page.
type Client interface {
	// UserID resolves a screen name to the user's stable identifier.
	UserID(ctx context.Context, screenName string) (string, error)

	// UserPosts returns up to count posts starting at cursor. An empty cursor
	// requests the newest page. A page with no posts marks the end of the feed.
	UserPosts(ctx context.Context, userID string, count int, cursor string) (Page, error)
}
