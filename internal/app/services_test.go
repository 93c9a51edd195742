package app_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/repository/mocks"
)

func TestNew_WithoutNotifier(t *testing.T) {
	svc := app.New(app.MemoryBackends(), app.Options{})
	require.Nil(t, svc.Invalidator)
	svc.Wait()
}

func TestNew_BlocksDeletesOfReferencedEntities(t *testing.T) {
	ctx := context.Background()
	svc := app.New(app.MemoryBackends(), app.Options{})

	photo, err := svc.Mutations.Put(ctx, "ana", "photos", content.Entity{
		Fields: content.Fields{"src": json.RawMessage(`"/a.jpg"`)},
	})
	require.NoError(t, err)
	_, err = svc.Mutations.Put(ctx, "ana", "projects", content.Entity{
		Fields: content.Fields{"slug": json.RawMessage(`"p"`), "cover": json.RawMessage(`"` + photo.ID + `"`)},
	})
	require.NoError(t, err)

	_, err = svc.Mutations.Delete(ctx, "ana", "photos", []string{photo.ID})
	require.ErrorIs(t, err, mutation.ErrInUse)
}

func TestNew_PublishNotifies(t *testing.T) {
	ctx := context.Background()
	notifier := &mocks.Notifier{}
	notifier.On("Invalidate", mock.Anything, "/about").Return(nil)
	svc := app.New(app.MemoryBackends(), app.Options{Notifier: notifier})

	_, err := svc.Pages.SaveDraft(ctx, "ana", "about", json.RawMessage(`{"headline":"X"}`))
	require.NoError(t, err)
	_, err = svc.Mutations.Put(ctx, "ana", "pages", content.Entity{
		Fields: content.Fields{"slug": json.RawMessage(`"about"`)},
		Status: content.StatusPublished,
	})
	require.NoError(t, err)

	svc.Wait()
	notifier.AssertCalled(t, "Invalidate", mock.Anything, "/about")
}
