package mocks

import (
	"context"

	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/stretchr/testify/mock"
)

// DocumentBackend is a mock for document.Backend.
type DocumentBackend struct {
	mock.Mock
}

func (m *DocumentBackend) Load(ctx context.Context, collection string) ([]content.Entity, error) {
	args := m.Called(ctx, collection)
	if list, ok := args.Get(0).([]content.Entity); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *DocumentBackend) Save(ctx context.Context, collection string, entities []content.Entity) error {
	args := m.Called(ctx, collection, entities)
	return args.Error(0)
}

// HistoryRepository is a mock for history.Repository.
type HistoryRepository struct {
	mock.Mock
}

func (m *HistoryRepository) Append(ctx context.Context, entries []*history.Entry, retain int) error {
	args := m.Called(ctx, entries, retain)
	return args.Error(0)
}

func (m *HistoryRepository) Get(ctx context.Context, id string) (*history.Entry, error) {
	args := m.Called(ctx, id)
	if entry, ok := args.Get(0).(*history.Entry); ok {
		return entry, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *HistoryRepository) List(ctx context.Context, opts history.ListOptions) ([]history.Entry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]history.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// AnalyticsRepository is a mock for analytics.Repository.
type AnalyticsRepository struct {
	mock.Mock
}

func (m *AnalyticsRepository) Append(ctx context.Context, event *analytics.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *AnalyticsRepository) List(ctx context.Context, opts analytics.ListOptions) ([]analytics.Event, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]analytics.Event); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// UsageChecker is a mock for mutation.UsageChecker.
type UsageChecker struct {
	mock.Mock
}

func (m *UsageChecker) Usages(ctx context.Context, collection, id string) ([]mutation.Usage, error) {
	args := m.Called(ctx, collection, id)
	if list, ok := args.Get(0).([]mutation.Usage); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// Notifier is a mock for page.Notifier.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Invalidate(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}
