package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `folio serves the published content of a portfolio site: projects, photos, pages and global settings.

Tools are read-only:
- list_entities(collection): published entities of projects, photos, pages or settings.
- get_entity(collection, id): one published entity.
- get_page(slug): the published content of a page. Drafts are never returned.
- list_history(entityId?, limit?): recorded changes, newest first.

Docs:
- folio://docs/model (entity envelope, page states, history)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "folio://docs/model",
		Name:        "docs_model",
		Title:       "folio content model",
		Description: "Entity envelope, collections, page draft/published states and history entries.",
		Content: `# folio content model

## Entities

Every entity is one flat JSON object. The envelope keys are:

- id: stable identifier
- status: draft or published
- version: starts at 1 and grows by one on every change
- createdAt, updatedAt: RFC 3339 timestamps

All other keys are the fields of the entity's kind.

| Collection | Kind | Notes |
|---|---|---|
| projects | project | unique slug |
| photos | photo | referenced by id from projects |
| pages | page | unique slug, content holds draft and published |
| settings | settings | a single entity with id "global" |

## Pages

A page's content holds two states. Editors work on the draft; publishing copies the
draft into published. Readers of this server only ever see published.

## History

Each change is recorded with the acting user, the action (create, update, delete) and a
snapshot of the entity as it was before the change. The newest entry comes first.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
