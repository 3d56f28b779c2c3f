// Package digest renders collected posts as documents.
package digest

import (
	"io"

	"github.com/ppiankov/feedcast/internal/source"
)

// Formatter writes posts as a document to w.
type Formatter interface {
	Format(w io.Writer, posts []source.Post) error
}
