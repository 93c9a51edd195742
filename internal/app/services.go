// Package app assembles the content services over a set of storage backends.
package app

import (
	"log/slog"
	"time"

	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/domain/page"
	"github.com/rpggio/folio/internal/memstore"
	"github.com/rpggio/folio/internal/usage"
)

// Backends are the storage implementations services run on.
type Backends struct {
	Documents document.Backend
	History   history.Repository
	Analytics analytics.Repository
}

// MemoryBackends returns fresh in-memory backends.
func MemoryBackends() Backends {
	return Backends{
		Documents: memstore.NewDocuments(),
		History:   memstore.NewHistory(),
		Analytics: memstore.NewAnalytics(),
	}
}

// Options tune the assembled services. Zero values select defaults.
type Options struct {
	Registry            *content.Registry
	Retention           int
	Notifier            page.Notifier
	InvalidationTimeout time.Duration
	StoreOptions        []document.Option
	Logger              *slog.Logger
}

// Services is one fully wired content stack.
type Services struct {
	Store       *document.Store
	Ledger      *history.Ledger
	Mutations   *mutation.Service
	Pages       *page.Controller
	Analytics   *analytics.Service
	Usages      *usage.Index
	Invalidator *page.Invalidator
}

// New wires services over b.
func New(b Backends, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := document.NewStore(b.Documents, opts.Registry, logger, opts.StoreOptions...)
	ledger := history.NewLedger(b.History, opts.Retention, logger)
	usages := usage.NewIndex(store, logger)

	mutationOpts := []mutation.Option{mutation.WithUsageChecker(usages)}
	var invalidator *page.Invalidator
	if opts.Notifier != nil {
		invalidator = page.NewInvalidator(opts.Notifier, opts.InvalidationTimeout, logger)
		mutationOpts = append(mutationOpts, mutation.WithObserver(invalidator))
	}
	mutations := mutation.NewService(store, ledger, logger, mutationOpts...)

	var pageOpts []page.Option
	if invalidator != nil {
		pageOpts = append(pageOpts, page.WithInvalidator(invalidator))
	}

	return &Services{
		Store:       store,
		Ledger:      ledger,
		Mutations:   mutations,
		Pages:       page.NewController(store, mutations, logger, pageOpts...),
		Analytics:   analytics.NewService(b.Analytics, logger),
		Usages:      usages,
		Invalidator: invalidator,
	}
}

// Wait blocks until pending invalidations have been sent.
func (s *Services) Wait() {
	if s.Invalidator != nil {
		s.Invalidator.Wait()
	}
}
