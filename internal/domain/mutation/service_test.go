package mutation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/memstore"
	"github.com/rpggio/folio/internal/repository"
	"github.com/rpggio/folio/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *mutation.Service
	store  *document.Store
	ledger *history.Ledger
	docs   *memstore.Documents
}

func newFixture(t *testing.T, opts ...mutation.Option) fixture {
	t.Helper()
	docs := memstore.NewDocuments()
	store := document.NewStore(docs, nil, nil)
	ledger := history.NewLedger(memstore.NewHistory(), 0, nil)
	return fixture{
		svc:    mutation.NewService(store, ledger, nil, opts...),
		store:  store,
		ledger: ledger,
		docs:   docs,
	}
}

func title(v string) content.Fields {
	return content.Fields{"title": json.RawMessage(`"` + v + `"`)}
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []mutation.Change
}

func (o *recordingObserver) Committed(_ context.Context, change mutation.Change) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, change)
}

func TestService_ScenarioCreateUpdateRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("A")})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, int64(1), created.Version)

	updated, err := f.svc.Put(ctx, "ana", "projects", content.Entity{ID: created.ID, Fields: title("B")})
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	entries, err := f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	updateEntry := entries[0]
	require.Equal(t, history.ActionUpdate, updateEntry.Action)
	require.Equal(t, "project", updateEntry.EntityType)
	require.Equal(t, "ana", updateEntry.User)
	require.Equal(t, int64(1), updateEntry.Snapshot.Version)
	require.Equal(t, json.RawMessage(`"A"`), updateEntry.Snapshot.Fields["title"])
	require.Equal(t, history.ActionCreate, entries[1].Action)
	require.Nil(t, entries[1].Snapshot)

	restored, err := f.svc.Rollback(ctx, "ben", created.ID, updateEntry.ID)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"A"`), restored.Fields["title"])
	require.Equal(t, int64(3), restored.Version)

	entries, err = f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, history.ActionUpdate, entries[0].Action)
	require.Equal(t, "ben", entries[0].User)
	require.Equal(t, int64(2), entries[0].Snapshot.Version)
	require.Equal(t, json.RawMessage(`"B"`), entries[0].Snapshot.Fields["title"])
	require.Equal(t, updateEntry.ID, entries[1].ID, "earlier entries are untouched")
}

func TestService_RollbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e0, err := f.svc.Put(ctx, "ana", "projects", content.Entity{Fields: content.Fields{
		"title": json.RawMessage(`"A"`),
		"tags":  json.RawMessage(`["x"]`),
	}})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "ana", "projects", content.Entity{ID: e0.ID, Status: content.StatusPublished, Fields: title("B")})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "ana", "projects", content.Entity{ID: e0.ID, Fields: content.Fields{"summary": json.RawMessage(`"later"`)}})
	require.NoError(t, err)

	entries, err := f.ledger.ListByEntity(ctx, e0.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	h2 := entries[1]

	_, err = f.svc.Rollback(ctx, "ana", e0.ID, h2.ID)
	require.NoError(t, err)

	current, err := f.store.GetByID(ctx, "projects", e0.ID)
	require.NoError(t, err)
	require.True(t, content.SameContent(e0, current), "rollback restores fields and status exactly")
	require.Equal(t, e0.CreatedAt, current.CreatedAt)
	require.Equal(t, int64(4), current.Version)
	_, hasSummary := current.Fields["summary"]
	require.False(t, hasSummary, "rollback is a full overwrite, not a merge")
}

func TestService_RollbackRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("A")})
	require.NoError(t, err)
	b, err := f.svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("B")})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "ana", "projects", content.Entity{ID: b.ID, Fields: title("B2")})
	require.NoError(t, err)

	aEntries, err := f.ledger.ListByEntity(ctx, a.ID)
	require.NoError(t, err)
	bEntries, err := f.ledger.ListByEntity(ctx, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Rollback(ctx, "ana", a.ID, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Rollback(ctx, "ana", a.ID, bEntries[0].ID)
	require.ErrorIs(t, err, repository.ErrNotFound, "entries of another entity are not visible")

	_, err = f.svc.Rollback(ctx, "ana", a.ID, aEntries[0].ID)
	require.ErrorIs(t, err, mutation.ErrInvalidSnapshot, "create entries carry no snapshot")

	_, err = f.svc.Delete(ctx, "ana", "projects", []string{a.ID})
	require.NoError(t, err)
	aEntries, err = f.ledger.ListByEntity(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, history.ActionDelete, aEntries[0].Action)
	require.NotNil(t, aEntries[0].Snapshot)

	_, err = f.svc.Rollback(ctx, "ana", a.ID, aEntries[0].ID)
	require.ErrorIs(t, err, mutation.ErrInvalidSnapshot, "delete entries cannot be rolled back")
}

func TestService_RollbackRecreatesDeletedEntity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("A")})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "ana", "photos", content.Entity{ID: created.ID, Fields: title("B")})
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, "ana", "photos", []string{created.ID})
	require.NoError(t, err)

	entries, err := f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	restored, err := f.svc.Rollback(ctx, "ana", created.ID, entries[1].ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, restored.ID)
	require.Equal(t, json.RawMessage(`"A"`), restored.Fields["title"])

	entries, err = f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, history.ActionCreate, entries[0].Action)
}

func TestService_FailedStoreWriteRecordsNoHistory(t *testing.T) {
	ctx := context.Background()
	backend := &mocks.DocumentBackend{}
	backend.On("Load", mock.Anything, "projects").Return([]content.Entity{}, nil)
	backend.On("Save", mock.Anything, "projects", mock.Anything).
		Return(repository.IOFailure("write projects", errors.New("read-only file system")))

	ledger := history.NewLedger(memstore.NewHistory(), 0, nil)
	svc := mutation.NewService(document.NewStore(backend, nil, nil), ledger, nil)

	_, err := svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("A")})
	require.ErrorIs(t, err, repository.ErrIOFailure)

	all, err := ledger.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	backend.AssertExpectations(t)
}

func TestService_FailedHistoryWriteUndoesStoreWrite(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocuments()
	store := document.NewStore(docs, nil, nil)

	repo := &mocks.HistoryRepository{}
	repo.On("Append", mock.Anything, mock.Anything, history.DefaultRetention).
		Return(repository.IOFailure("append history", errors.New("disk full")))
	svc := mutation.NewService(store, history.NewLedger(repo, 0, nil), nil)

	_, err := svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("A")})
	require.ErrorIs(t, err, repository.ErrIOFailure)

	all, err := store.GetAll(ctx, "projects", true)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestService_DeleteBlockedByUsages(t *testing.T) {
	ctx := context.Background()
	checker := &mocks.UsageChecker{}
	f := newFixture(t, mutation.WithUsageChecker(checker))

	photo, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("cover")})
	require.NoError(t, err)

	usage := mutation.Usage{Collection: "projects", EntityID: "p1", Field: "cover"}
	checker.On("Usages", mock.Anything, "photos", photo.ID).Return([]mutation.Usage{usage}, nil).Once()

	_, err = f.svc.Delete(ctx, "ana", "photos", []string{photo.ID})
	require.ErrorIs(t, err, mutation.ErrInUse)
	var inUse *mutation.InUseError
	require.ErrorAs(t, err, &inUse)
	require.Len(t, inUse.Usages, 1)
	require.Equal(t, photo.ID, inUse.Usages[0].Target)

	_, err = f.store.GetByID(ctx, "photos", photo.ID)
	require.NoError(t, err)

	checker.On("Usages", mock.Anything, "photos", photo.ID).Return([]mutation.Usage{}, nil).Once()
	removed, err := f.svc.Delete(ctx, "ana", "photos", []string{photo.ID})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	checker.AssertExpectations(t)
}

func TestService_DeleteIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	photo, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("a")})
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, "ana", "photos", []string{photo.ID, "missing"})
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.store.GetByID(ctx, "photos", photo.ID)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, "ana", "photos", nil)
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestService_PutAllCannotWritePublishedPageContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Put(ctx, "ana", "pages", content.Entity{Fields: content.Fields{
		"slug":    json.RawMessage(`"about"`),
		"content": json.RawMessage(`{"h":"P"}`),
	}})
	require.NoError(t, err)
	page, err := f.svc.Put(ctx, "ana", "pages", content.Entity{Fields: content.Fields{
		"slug":    json.RawMessage(`"about"`),
		"content": json.RawMessage(`{"h":"D"}`),
	}})
	require.NoError(t, err)

	page.Fields["content"] = json.RawMessage(`{"draft":{"h":"D2"},"published":{"h":"INJECTED"}}`)
	_, err = f.svc.PutAll(ctx, "ana", "pages", []content.Entity{page})
	require.NoError(t, err)

	stored, err := f.store.GetByID(ctx, "pages", page.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"draft":{"h":"D2"},"published":{"h":"P"}}`, string(stored.Fields["content"]))

	fresh := content.Entity{Fields: content.Fields{
		"slug":    json.RawMessage(`"new"`),
		"content": json.RawMessage(`{"draft":{"h":"N"},"published":{"h":"X"}}`),
	}}
	saved, err := f.svc.PutAll(ctx, "ana", "pages", []content.Entity{stored, fresh})
	require.NoError(t, err)
	require.JSONEq(t, `{"draft":{"h":"N"},"published":{"h":"N"}}`, string(saved[1].Fields["content"]),
		"a new page starts synced")
}

func TestService_PutAllRecordsChangedEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("a")})
	require.NoError(t, err)
	b, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("b")})
	require.NoError(t, err)
	c, err := f.svc.Put(ctx, "ana", "photos", content.Entity{Fields: title("c")})
	require.NoError(t, err)

	published := b
	published.Status = content.StatusPublished
	saved, err := f.svc.PutAll(ctx, "ana", "photos", []content.Entity{a, published})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	bEntries, err := f.ledger.ListByEntity(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, bEntries, 2)
	require.Equal(t, history.ActionUpdate, bEntries[0].Action)

	cEntries, err := f.ledger.ListByEntity(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, history.ActionDelete, cEntries[0].Action)

	aEntries, err := f.ledger.ListByEntity(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, aEntries, 1, "unchanged entities are not recorded")
}

func TestService_ModifyWritesFullStateAndSkipsNoops(t *testing.T) {
	ctx := context.Background()
	observer := &recordingObserver{}
	f := newFixture(t, mutation.WithObserver(observer))

	created, err := f.svc.Modify(ctx, "ana", "projects", mutation.ByField("slug", "atlas"), "seeded",
		func(current *content.Entity) (content.Entity, error) {
			require.Nil(t, current)
			return content.Entity{Fields: content.Fields{"slug": json.RawMessage(`"atlas"`), "title": json.RawMessage(`"A"`)}}, nil
		})
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Version)

	same, err := f.svc.Modify(ctx, "ana", "projects", mutation.ByID(created.ID), "noop",
		func(current *content.Entity) (content.Entity, error) {
			return *current, nil
		})
	require.NoError(t, err)
	require.Equal(t, int64(1), same.Version)

	entries, err := f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "seeded", entries[0].Changes)

	require.Len(t, observer.changes, 1)
	require.Equal(t, content.KindProject, observer.changes[0].Kind)
	require.Equal(t, history.ActionCreate, observer.changes[0].Action)
}

func TestService_PutConflictIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Put(ctx, "ana", "projects", content.Entity{Fields: title("A")})
	require.NoError(t, err)
	_, err = f.svc.Put(ctx, "ana", "projects", content.Entity{ID: created.ID, Version: 7, Fields: title("B")})
	require.ErrorIs(t, err, repository.ErrConflict)

	entries, err := f.ledger.ListByEntity(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
