package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PageContentField is the page field holding the draft/published pair.
const PageContentField = "content"

// PageState describes how a page's draft relates to its published content.
type PageState string

const (
	// PageStateDraftOnly is legacy flat content: draft and published are the same value.
	PageStateDraftOnly PageState = "draft-only"
	PageStateDiverged  PageState = "diverged"
	PageStateSynced    PageState = "synced"
)

// PageContent is the dual-state payload of a page.
type PageContent struct {
	Draft     json.RawMessage `json:"draft"`
	Published json.RawMessage `json:"published"`
}

var emptyObject = json.RawMessage("{}")

// ParsePageContent reads a stored content value. Flat content (neither key present)
// is reported as legacy and used for both states; a lone key is mirrored into the
// missing one. Missing content yields empty objects.
func ParsePageContent(raw json.RawMessage) (PageContent, bool, error) {
	if isNull(raw) {
		return PageContent{Draft: cloneRaw(emptyObject), Published: cloneRaw(emptyObject)}, true, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return PageContent{}, false, fmt.Errorf("page content is not valid JSON")
		}
		return PageContent{Draft: cloneRaw(trimmed), Published: cloneRaw(trimmed)}, true, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return PageContent{}, false, fmt.Errorf("decode page content: %w", err)
	}
	draft, hasDraft := obj["draft"]
	published, hasPublished := obj["published"]
	hasDraft = hasDraft && !isNull(draft)
	hasPublished = hasPublished && !isNull(published)

	switch {
	case !hasDraft && !hasPublished:
		return PageContent{Draft: cloneRaw(trimmed), Published: cloneRaw(trimmed)}, true, nil
	case !hasPublished:
		published = draft
	case !hasDraft:
		draft = published
	}
	return PageContent{Draft: cloneRaw(draft), Published: cloneRaw(published)}, false, nil
}

// State classifies the pair. Legacy content is always draft-only.
func (p PageContent) State(legacy bool) PageState {
	if legacy {
		return PageStateDraftOnly
	}
	if EqualJSON(p.Draft, p.Published) {
		return PageStateSynced
	}
	return PageStateDiverged
}

// WithDraft replaces the draft and leaves published untouched.
func (p PageContent) WithDraft(draft json.RawMessage) PageContent {
	return PageContent{Draft: cloneRaw(draft), Published: cloneRaw(p.Published)}
}

// Publish copies the draft into published byte for byte.
func (p PageContent) Publish() PageContent {
	return PageContent{Draft: cloneRaw(p.Draft), Published: cloneRaw(p.Draft)}
}

// Raw encodes the pair as the stored {draft, published} object.
func (p PageContent) Raw() (json.RawMessage, error) {
	if p.Draft == nil {
		p.Draft = emptyObject
	}
	if p.Published == nil {
		p.Published = emptyObject
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode page content: %w", err)
	}
	return raw, nil
}

// PageContentOf returns the normalized content of a page entity.
func PageContentOf(e Entity) (PageContent, bool, error) {
	return ParsePageContent(e.Fields[PageContentField])
}

// WithPageContent returns a copy of e carrying pc as its content.
func WithPageContent(e Entity, pc PageContent) (Entity, error) {
	raw, err := pc.Raw()
	if err != nil {
		return Entity{}, err
	}
	out := e.Clone()
	if out.Fields == nil {
		out.Fields = make(Fields)
	}
	out.Fields[PageContentField] = raw
	return out, nil
}

// NormalizePage is the read-time normalizer for pages. It works on a copy.
func NormalizePage(e Entity) (Entity, error) {
	pc, _, err := PageContentOf(e)
	if err != nil {
		return Entity{}, fmt.Errorf("normalize page %s: %w", e.ID, err)
	}
	return WithPageContent(e, pc)
}

// PreparePageWrite applies draft-only write semantics to a generic page write:
// supplied content becomes the new draft and published is kept from the prior
// state. A new page starts with both states equal.
func PreparePageWrite(prior *Entity, incoming Entity) (Entity, error) {
	raw, ok := incoming.Fields[PageContentField]
	if !ok {
		return incoming, nil
	}
	supplied, _, err := ParsePageContent(raw)
	if err != nil {
		return Entity{}, err
	}

	if prior == nil {
		return WithPageContent(incoming, PageContent{Draft: supplied.Draft, Published: supplied.Draft})
	}
	current, _, err := PageContentOf(*prior)
	if err != nil {
		return Entity{}, err
	}
	return WithPageContent(incoming, current.WithDraft(supplied.Draft))
}
