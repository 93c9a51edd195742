package document_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/memstore"
	"github.com/rpggio/folio/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBackend struct {
	*memstore.Documents
	failSave atomic.Bool
}

func (b *failingBackend) Save(ctx context.Context, collection string, entities []content.Entity) error {
	if b.failSave.Load() {
		return repository.IOFailure("save "+collection, errors.New("disk full"))
	}
	return b.Documents.Save(ctx, collection, entities)
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) (*document.Store, *memstore.Documents) {
	t.Helper()
	backend := memstore.NewDocuments()
	return document.NewStore(backend, content.DefaultRegistry(), nil, document.WithClock(steppingClock())), backend
}

func fields(kv ...string) content.Fields {
	out := content.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = json.RawMessage(kv[i+1])
	}
	return out
}

func TestStore_PutCreateAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first, prior, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)
	require.Nil(t, prior)
	require.NotEmpty(t, first.ID)
	require.Equal(t, int64(1), first.Version)
	require.Equal(t, content.StatusDraft, first.Status)
	require.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"B"`)})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	all, err := store.GetAll(ctx, "projects", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID, "new entities are listed first")
}

func TestStore_PutUnseenIDCreatesFreshID(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	saved, prior, err := store.Put(ctx, "photos", content.Entity{ID: "made-up", Fields: fields("src", `"/a.jpg"`)})
	require.NoError(t, err)
	require.Nil(t, prior)
	require.NotEqual(t, "made-up", saved.ID)
}

func TestStore_PutMergesAndIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`, "year", `2024`)})
	require.NoError(t, err)

	updated, prior, err := store.Put(ctx, "projects", content.Entity{ID: created.ID, Fields: fields("title", `"B"`)})
	require.NoError(t, err)
	require.NotNil(t, prior)
	require.Equal(t, json.RawMessage(`"A"`), prior.Fields["title"])
	require.Equal(t, int64(1), prior.Version)

	require.Equal(t, int64(2), updated.Version)
	require.Equal(t, json.RawMessage(`"B"`), updated.Fields["title"])
	require.Equal(t, json.RawMessage(`2024`), updated.Fields["year"])
	require.Equal(t, created.CreatedAt, updated.CreatedAt)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestStore_PutRejectsUnknownFields(t *testing.T) {
	store, _ := newTestStore(t)
	_, _, err := store.Put(context.Background(), "projects", content.Entity{Fields: fields("owner", `"mallory"`)})
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestStore_UnknownCollection(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetAll(context.Background(), "widgets", true)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_PutStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)
	_, _, err = store.Put(ctx, "projects", content.Entity{ID: created.ID, Version: 1, Fields: fields("title", `"B"`)})
	require.NoError(t, err)

	_, _, err = store.Put(ctx, "projects", content.Entity{ID: created.ID, Version: 1, Fields: fields("title", `"C"`)})
	require.ErrorIs(t, err, repository.ErrConflict)

	current, err := store.GetByID(ctx, "projects", created.ID)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"B"`), current.Fields["title"])
}

func TestStore_NaturalKeyResolvesUpdate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("slug", `"atlas"`, "title", `"Atlas"`)})
	require.NoError(t, err)

	updated, prior, err := store.Put(ctx, "projects", content.Entity{Fields: fields("slug", `"atlas"`, "summary", `"maps"`)})
	require.NoError(t, err)
	require.NotNil(t, prior)
	require.Equal(t, created.ID, updated.ID)

	bySlug, err := store.GetByField(ctx, "projects", "slug", "atlas")
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"Atlas"`), bySlug.Fields["title"])
	require.Equal(t, json.RawMessage(`"maps"`), bySlug.Fields["summary"])
}

func TestStore_SettingsSingleton(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first, _, err := store.Put(ctx, "settings", content.Entity{Fields: fields("siteTitle", `"Folio"`)})
	require.NoError(t, err)
	require.Equal(t, content.SettingsID, first.ID)

	second, prior, err := store.Put(ctx, "settings", content.Entity{ID: "other", Fields: fields("tagline", `"hi"`)})
	require.NoError(t, err)
	require.NotNil(t, prior)
	require.Equal(t, content.SettingsID, second.ID)
	require.Equal(t, int64(2), second.Version)

	all, err := store.GetAll(ctx, "settings", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStore_GetAllFiltersUnpublished(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, _, err := store.Put(ctx, "photos", content.Entity{Status: content.StatusPublished, Fields: fields("src", `"/a.jpg"`)})
	require.NoError(t, err)
	_, _, err = store.Put(ctx, "photos", content.Entity{Fields: fields("src", `"/b.jpg"`)})
	require.NoError(t, err)

	published, err := store.GetAll(ctx, "photos", false)
	require.NoError(t, err)
	require.Len(t, published, 1)

	all, err := store.GetAll(ctx, "photos", true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	empty, err := store.GetAll(ctx, "projects", false)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("src", `"/a.jpg"`)})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "photos", created.ID))

	_, err = store.GetByID(ctx, "photos", created.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, "photos", created.ID), repository.ErrNotFound)
}

func TestStore_ConcurrentMergesAreNotLost(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)

	writes := []string{"summary", "description", "role", "year", "tags", "links", "cover", "order"}
	var wg sync.WaitGroup
	for i, field := range writes {
		wg.Add(1)
		go func(i int, field string) {
			defer wg.Done()
			_, _, err := store.Put(ctx, "projects", content.Entity{
				ID:     created.ID,
				Fields: content.Fields{field: json.RawMessage(fmt.Sprintf("%d", i))},
			})
			assert.NoError(t, err)
		}(i, field)
	}
	wg.Wait()

	final, err := store.GetByID(ctx, "projects", created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1+len(writes)), final.Version)
	for i, field := range writes {
		require.Equal(t, json.RawMessage(fmt.Sprintf("%d", i)), final.Fields[field])
	}
}

func TestStore_ConcurrentVersionedWritesConflict(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, field := range []string{"summary", "role"} {
		wg.Add(1)
		go func(i int, field string) {
			defer wg.Done()
			_, _, results[i] = store.Put(ctx, "projects", content.Entity{
				ID:      created.ID,
				Version: created.Version,
				Fields:  content.Fields{field: json.RawMessage(`"x"`)},
			})
		}(i, field)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrConflict):
			conflicted++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)

	final, err := store.GetByID(ctx, "projects", created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), final.Version)
}

func TestStore_SaveFailureLeavesCollectionIntact(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{Documents: memstore.NewDocuments()}
	store := document.NewStore(backend, nil, nil)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)

	backend.failSave.Store(true)
	_, _, err = store.Put(ctx, "projects", content.Entity{ID: created.ID, Fields: fields("title", `"B"`)})
	require.ErrorIs(t, err, repository.ErrIOFailure)

	backend.failSave.Store(false)
	current, err := store.GetByID(ctx, "projects", created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.Version)
	require.Equal(t, json.RawMessage(`"A"`), current.Fields["title"])
}

func TestStore_FailedCommitHookRestoresCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("title", `"A"`)})
	require.NoError(t, err)

	hookErr := errors.New("ledger unavailable")
	err = store.Update(ctx, "projects", func(tx *document.Tx) error {
		if _, _, err := tx.Put(content.Entity{ID: created.ID, Fields: fields("title", `"B"`)}); err != nil {
			return err
		}
		tx.OnCommit(func(context.Context) error { return hookErr })
		return nil
	})
	require.ErrorIs(t, err, hookErr)

	current, err := store.GetByID(ctx, "projects", created.ID)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"A"`), current.Fields["title"])
	require.Equal(t, int64(1), current.Version)
}

func TestStore_LegacyPageReadDoesNotRewriteStorage(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	legacy := content.Entity{
		ID:      "about",
		Status:  content.StatusPublished,
		Version: 4,
		Fields:  fields("slug", `"about"`, "content", `{"headline":"X"}`),
	}
	require.NoError(t, backend.Save(ctx, "pages", []content.Entity{legacy}))

	for i := 0; i < 3; i++ {
		page, err := store.GetByField(ctx, "pages", "slug", "about")
		require.NoError(t, err)
		require.JSONEq(t, `{"draft":{"headline":"X"},"published":{"headline":"X"}}`, string(page.Fields["content"]))
	}

	stored, err := backend.Load(ctx, "pages")
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`{"headline":"X"}`), stored[0].Fields["content"])
}

func TestStore_PutAllReplacesCollection(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	a, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("src", `"/a.jpg"`)})
	require.NoError(t, err)
	b, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("src", `"/b.jpg"`)})
	require.NoError(t, err)

	published := b
	published.Status = content.StatusPublished
	saved, err := store.PutAll(ctx, "photos", []content.Entity{a, published})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, a.ID, saved[0].ID)
	require.Equal(t, a.Version, saved[0].Version, "unchanged entity keeps its version")
	require.Equal(t, b.Version+1, saved[1].Version)

	_, err = store.PutAll(ctx, "photos", []content.Entity{a, a})
	require.ErrorIs(t, err, document.ErrDuplicateID)
}

func TestStore_NaturalKeyStaysUnique(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	about, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("slug", `"about"`)})
	require.NoError(t, err)

	stale, prior, err := store.Put(ctx, "projects", content.Entity{ID: "does-not-exist", Fields: fields("slug", `"about"`, "title", `"T"`)})
	require.NoError(t, err)
	require.NotNil(t, prior, "an unknown id falls back to the natural key")
	require.Equal(t, about.ID, stale.ID)

	other, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("slug", `"work"`)})
	require.NoError(t, err)
	_, _, err = store.Put(ctx, "projects", content.Entity{ID: other.ID, Fields: fields("slug", `"about"`)})
	require.ErrorIs(t, err, document.ErrDuplicateKey)
	require.ErrorIs(t, err, repository.ErrConflict)

	all, err := store.GetAll(ctx, "projects", true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	renamed := other
	renamed.Fields = fields("slug", `"about"`)
	_, err = store.PutAll(ctx, "projects", []content.Entity{stale, renamed})
	require.ErrorIs(t, err, document.ErrDuplicateKey)
}

func TestTx_ReplaceRecreatesDeletedEntity(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("src", `"/a.jpg"`)})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "photos", created.ID))

	var restored content.Entity
	err = store.Update(ctx, "photos", func(tx *document.Tx) error {
		var err error
		restored, _, err = tx.Replace(created)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, restored.ID)
	require.Equal(t, created.CreatedAt, restored.CreatedAt)
	require.Equal(t, int64(2), restored.Version)
}

func TestStore_ExclusiveHoldsOffWriters(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	photo, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("title", `"cover"`)})
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	written := make(chan error, 1)

	done := make(chan error, 1)
	go func() {
		done <- store.Exclusive(ctx, "photos", func(ctx context.Context) error {
			// reading the collection about to be written must not block
			if _, err := store.GetAll(ctx, "photos", true); err != nil {
				return err
			}
			close(entered)
			<-release
			return nil
		}, func(tx *document.Tx) error {
			_, err := tx.Delete(photo.ID)
			return err
		})
	}()

	<-entered
	go func() {
		_, _, err := store.Put(ctx, "projects", content.Entity{Fields: fields("slug", `"p"`, "cover", fmt.Sprintf("%q", photo.ID))})
		written <- err
	}()

	select {
	case <-written:
		t.Fatal("write ran while an exclusive check was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-written)

	_, err = store.GetByID(ctx, "photos", photo.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ExclusiveSkipsWriteWhenCheckFails(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	photo, _, err := store.Put(ctx, "photos", content.Entity{Fields: fields("title", `"cover"`)})
	require.NoError(t, err)

	blocked := errors.New("in use")
	err = store.Exclusive(ctx, "photos", func(context.Context) error { return blocked }, func(tx *document.Tx) error {
		t.Fatal("write ran after a failed check")
		return nil
	})
	require.ErrorIs(t, err, blocked)

	_, err = store.GetByID(ctx, "photos", photo.ID)
	require.NoError(t, err)
}
