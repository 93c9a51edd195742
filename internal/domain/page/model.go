package page

import (
	"encoding/json"

	"github.com/rpggio/folio/internal/domain/content"
)

// Collection is the collection holding page documents.
const Collection = "pages"

// SlugField is the natural key of a page.
const SlugField = "slug"

// View is a page as the editor sees it. Draft is omitted from public reads.
type View struct {
	ID        string            `json:"id"`
	Slug      string            `json:"slug"`
	Status    content.Status    `json:"status"`
	Version   int64             `json:"version"`
	State     content.PageState `json:"state"`
	Draft     json.RawMessage   `json:"draft,omitempty"`
	Published json.RawMessage   `json:"published"`
}

// Path returns the rendered path of a page slug.
func Path(slug string) string {
	if slug == "home" {
		return "/"
	}
	return "/" + slug
}
