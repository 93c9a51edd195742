package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/repository"
)

// Controller manages the draft/published pair of page documents. Writes go
// through the mutation service so they are versioned and recorded.
type Controller struct {
	store       *document.Store
	mutations   *mutation.Service
	invalidator *Invalidator
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithInvalidator lets Publish notify even when the publish left the public
// render unchanged. Changed renders are already reported by inv as a
// mutation observer.
func WithInvalidator(inv *Invalidator) Option {
	return func(c *Controller) {
		c.invalidator = inv
	}
}

// NewController creates a page controller.
func NewController(store *document.Store, mutations *mutation.Service, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{store: store, mutations: mutations, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadForEditing returns both states of a page. Legacy flat content is
// reported as draft-only; storage is never touched.
func (c *Controller) ReadForEditing(ctx context.Context, slug string) (*View, error) {
	stored, err := c.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	return newView(stored)
}

// ReadPublished returns the published state of a published page.
func (c *Controller) ReadPublished(ctx context.Context, slug string) (*View, error) {
	stored, err := c.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	if stored.Status != content.StatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, slug)
	}
	view, err := newView(stored)
	if err != nil {
		return nil, err
	}
	view.Draft = nil
	return view, nil
}

// SaveDraft replaces the draft and leaves published untouched. A missing page
// is created with both states equal to draft.
func (c *Controller) SaveDraft(ctx context.Context, user, slug string, draft json.RawMessage) (*View, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if !json.Valid(draft) {
		return nil, fmt.Errorf("%w: draft is not valid JSON", ErrInvalidPage)
	}

	saved, err := c.mutations.Modify(ctx, user, Collection, mutation.ByField(SlugField, slug), "draft saved",
		func(current *content.Entity) (content.Entity, error) {
			if current == nil {
				return newPage(slug, content.PageContent{Draft: draft, Published: draft})
			}
			pc, _, err := content.PageContentOf(*current)
			if err != nil {
				return content.Entity{}, err
			}
			return content.WithPageContent(*current, pc.WithDraft(draft))
		})
	if err != nil {
		return nil, err
	}
	return newView(saved)
}

// Publish copies the draft into published in a single collection commit.
// Every successful publish invalidates the page path once.
func (c *Controller) Publish(ctx context.Context, user, slug string) (*View, error) {
	var before content.Entity
	saved, err := c.mutations.Modify(ctx, user, Collection, mutation.ByField(SlugField, slug), "published",
		func(current *content.Entity) (content.Entity, error) {
			if current == nil {
				return content.Entity{}, fmt.Errorf("%w: %s", ErrPageNotFound, slug)
			}
			before = current.Clone()
			pc, _, err := content.PageContentOf(*current)
			if err != nil {
				return content.Entity{}, err
			}
			return content.WithPageContent(*current, pc.Publish())
		})
	if err != nil {
		return nil, err
	}

	c.logger.Info("page published", "slug", slug, "user", user, "version", saved.Version)
	if c.invalidator != nil && len(changedPaths(&before, &saved)) == 0 {
		c.invalidator.Touch(ctx, Path(slug))
	}
	return newView(saved)
}

// Save writes both states as given. It is the only way to set published to
// something other than the current draft.
func (c *Controller) Save(ctx context.Context, user, slug string, pc content.PageContent) (*View, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	if len(pc.Draft) == 0 || len(pc.Published) == 0 {
		return nil, fmt.Errorf("%w: both draft and published are required", ErrInvalidPage)
	}
	if !json.Valid(pc.Draft) || !json.Valid(pc.Published) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrInvalidPage)
	}

	saved, err := c.mutations.Modify(ctx, user, Collection, mutation.ByField(SlugField, slug), "page saved",
		func(current *content.Entity) (content.Entity, error) {
			if current == nil {
				return newPage(slug, pc)
			}
			return content.WithPageContent(*current, pc)
		})
	if err != nil {
		return nil, err
	}

	return newView(saved)
}

func (c *Controller) find(ctx context.Context, slug string) (content.Entity, error) {
	stored, err := c.store.GetStoredByField(ctx, Collection, SlugField, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return content.Entity{}, fmt.Errorf("%w: %s", ErrPageNotFound, slug)
		}
		return content.Entity{}, err
	}
	return stored, nil
}

func newPage(slug string, pc content.PageContent) (content.Entity, error) {
	var e content.Entity
	if err := e.SetField(SlugField, slug); err != nil {
		return content.Entity{}, err
	}
	return content.WithPageContent(e, pc)
}

func newView(e content.Entity) (*View, error) {
	pc, legacy, err := content.PageContentOf(e)
	if err != nil {
		return nil, err
	}
	slug, _ := e.StringField(SlugField)
	return &View{
		ID:        e.ID,
		Slug:      slug,
		Status:    e.Status,
		Version:   e.Version,
		State:     pc.State(legacy),
		Draft:     pc.Draft,
		Published: pc.Published,
	}, nil
}

func validateSlug(slug string) error {
	if strings.TrimSpace(slug) == "" || strings.ContainsAny(slug, "/?#") {
		return fmt.Errorf("%w: slug %q", ErrInvalidPage, slug)
	}
	return nil
}
