package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/domain/page"
	"github.com/rpggio/folio/internal/repository"
)

// api serves the content routes over one set of services. The durable
// server and every sandbox session share these handlers.
type api struct {
	services func(*http.Request) (*app.Services, error)
	logger   *slog.Logger
}

func (a *api) mount(r chi.Router) {
	r.Route("/entities/{collection}", func(r chi.Router) {
		r.Get("/", a.listEntities)
		r.With(RequireUser).Post("/", a.putEntity)
		r.With(RequireUser).Put("/", a.putAll)
		r.With(RequireUser).Delete("/", a.deleteEntities)
		r.Get("/{id}", a.getEntity)
		r.With(RequireUser).Get("/{id}/usages", a.entityUsages)
	})

	r.With(RequireUser).Get("/history", a.listHistory)
	r.With(RequireUser).Post("/rollback", a.rollback)

	r.Route("/pages/{slug}", func(r chi.Router) {
		r.Get("/", a.getPage)
		r.With(RequireUser).Post("/", a.savePage)
		r.With(RequireUser).Post("/draft", a.saveDraft)
		r.With(RequireUser).Post("/publish", a.publishPage)
	})

	r.Post("/analytics/events", a.appendEvent)
	r.With(RequireUser).Get("/analytics/events", a.listEvents)
}

type entityResponse struct {
	Entity  content.Entity `json:"entity"`
	Version int64          `json:"version"`
}

type deleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type rollbackRequest struct {
	EntityID       string `json:"entityId" validate:"required"`
	HistoryEntryID string `json:"historyEntryId" validate:"required"`
}

type pageRequest struct {
	Draft     json.RawMessage `json:"draft" validate:"required"`
	Published json.RawMessage `json:"published" validate:"required"`
}

type draftRequest struct {
	Draft json.RawMessage `json:"draft" validate:"required"`
}

type eventRequest struct {
	SessionID string          `json:"sessionId" validate:"max=128"`
	Type      string          `json:"type" validate:"required,max=64"`
	Path      string          `json:"path" validate:"max=2048"`
	Data      json.RawMessage `json:"data"`
}

// resolve returns the services of the request, writing the error itself.
func (a *api) resolve(w http.ResponseWriter, r *http.Request) (*app.Services, bool) {
	svc, err := a.services(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return nil, false
	}
	return svc, true
}

func user(r *http.Request) string {
	u, _ := UserFromContext(r.Context())
	return u
}

func (a *api) listEntities(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	drafts := false
	if v := r.URL.Query().Get("drafts"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "drafts must be a boolean", nil)
			return
		}
		drafts = parsed
	}
	if drafts && user(r) == "" {
		WriteProblem(w, http.StatusUnauthorized, "unauthorized", "drafts require authentication", nil)
		return
	}

	entities, err := svc.Store.GetAll(r.Context(), chi.URLParam(r, "collection"), drafts)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (a *api) getEntity(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	e, err := svc.Store.GetByID(r.Context(), collection, id)
	if err == nil && e.Status != content.StatusPublished && user(r) == "" {
		err = fmt.Errorf("%s %s: %w", collection, id, repository.ErrNotFound)
	}
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *api) putEntity(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in content.Entity
	if !decodeJSON(w, r, &in) {
		return
	}

	saved, err := svc.Mutations.Put(r.Context(), user(r), chi.URLParam(r, "collection"), in)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{Entity: saved, Version: saved.Version})
}

func (a *api) putAll(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in []content.Entity
	if !decodeJSON(w, r, &in) {
		return
	}

	saved, err := svc.Mutations.PutAll(r.Context(), user(r), chi.URLParam(r, "collection"), in)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": saved})
}

func (a *api) deleteEntities(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in deleteRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	removed, err := svc.Mutations.Delete(r.Context(), user(r), chi.URLParam(r, "collection"), in.IDs)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	ids := make([]string, len(removed))
	for i, e := range removed {
		ids[i] = e.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ids})
}

func (a *api) entityUsages(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	usages, err := svc.Mutations.CheckDeletable(r.Context(), chi.URLParam(r, "collection"), []string{chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if usages == nil {
		usages = []mutation.Usage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usages": usages})
}

func (a *api) listHistory(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	var entries []history.Entry
	var err error
	if id := r.URL.Query().Get("entityId"); id != "" {
		entries, err = svc.Ledger.ListByEntity(r.Context(), id)
	} else {
		entries, err = svc.Ledger.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *api) rollback(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in rollbackRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	restored, err := svc.Mutations.Rollback(r.Context(), user(r), in.EntityID, in.HistoryEntryID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{Entity: restored, Version: restored.Version})
}

func (a *api) getPage(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")
	var view *page.View
	var err error
	if user(r) != "" {
		view, err = svc.Pages.ReadForEditing(r.Context(), slug)
	} else {
		view, err = svc.Pages.ReadPublished(r.Context(), slug)
	}
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) savePage(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in pageRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	view, err := svc.Pages.Save(r.Context(), user(r), chi.URLParam(r, "slug"), content.PageContent{
		Draft:     in.Draft,
		Published: in.Published,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) saveDraft(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in draftRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	view, err := svc.Pages.SaveDraft(r.Context(), user(r), chi.URLParam(r, "slug"), in.Draft)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) publishPage(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	view, err := svc.Pages.Publish(r.Context(), user(r), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) appendEvent(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}
	var in eventRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	event := &analytics.Event{SessionID: in.SessionID, Type: in.Type, Path: in.Path, Data: in.Data}
	if err := svc.Analytics.Append(r.Context(), event); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": event.ID})
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	svc, ok := a.resolve(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := analytics.ListOptions{SessionID: q.Get("sessionId")}
	for name, dst := range map[string]*time.Time{"since": &opts.Since, "until": &opts.Until} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				WriteProblem(w, http.StatusBadRequest, "invalid parameters", name+" must be an RFC 3339 timestamp", nil)
				return
			}
			*dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "limit must be a non-negative integer", nil)
			return
		}
		opts.Limit = n
	}

	events, err := svc.Analytics.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
