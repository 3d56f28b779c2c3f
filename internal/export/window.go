// Package export collects a user's posts inside a trailing time window.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/feedcast/internal/source"
	"golang.org/x/time/rate"
)

// Verdict tells the pagination loop whether to keep fetching.
type Verdict int

const (
	// Continue means every post on the page was inside the window.
	Continue Verdict = iota
	// WindowReached means a post older than the cutoff was seen.
	WindowReached
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "continue"
	case WindowReached:
		return "window-reached"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ErrUnsorted is returned in strict mode when a page is not newest-first.
var ErrUnsorted = errors.New("page is not ordered newest-first")

// FilterPage keeps posts in arrival order until the first one older than cutoff.
// Posts after that one are not inspected. Pages are expected newest-first.
func FilterPage(posts []source.Post, cutoff time.Time) ([]source.Post, Verdict) {
	cutoff = cutoff.UTC()
	for i, p := range posts {
		if p.PostedAt.UTC().Before(cutoff) {
			return posts[:i:i], WindowReached
		}
	}
	return posts, Continue
}

// CheckOrder returns ErrUnsorted if any post is newer than the one before it.
func CheckOrder(posts []source.Post) error {
	for i := 1; i < len(posts); i++ {
		if posts[i].PostedAt.After(posts[i-1].PostedAt) {
			return fmt.Errorf("%w: post %s (%s) follows post %s (%s)", ErrUnsorted,
				posts[i].ID, posts[i].PostedAt.Format(time.RFC3339),
				posts[i-1].ID, posts[i-1].PostedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// Options controls a collection run.
type Options struct {
	Window    time.Duration // how far back to collect
	PageSize  int           // posts requested per page
	PageDelay time.Duration // minimum spacing between page requests
	Strict    bool          // verify newest-first order instead of assuming it

	// Now returns the current time; time.Now when nil.
	Now func() time.Time
	// OnPage is called after each page with the running total.
	OnPage func(collected int)
}

// Collect pages through the user's posts until the window cutoff, an empty page,
// or the end of the cursor chain. Any fetch error aborts the whole run.
func Collect(ctx context.Context, client source.Client, userID string, opts Options) ([]source.Post, error) {
	if opts.PageSize <= 0 {
		return nil, errors.New("page size must be positive")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-opts.Window)

	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		posts  []source.Post
		cursor string
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for next page: %w", err)
		}

		page, err := client.UserPosts(ctx, userID, opts.PageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		if len(page.Posts) == 0 {
			return posts, nil
		}
		if opts.Strict {
			if err := CheckOrder(page.Posts); err != nil {
				return nil, err
			}
		}

		kept, verdict := FilterPage(page.Posts, cutoff)
		posts = append(posts, kept...)
		if verdict == WindowReached || page.Cursor == "" || page.Cursor == cursor {
			return posts, nil
		}

		cursor = page.Cursor
		if opts.OnPage != nil {
			opts.OnPage(len(posts))
		}
	}
}
