package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/repository"
)

const maxHistoryLimit = 200

// registerTools adds the read-only retrieval tools.
func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_entities",
		Description: "List the published entities of a collection",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListEntitiesParams) (*sdkmcp.CallToolResult, any, error) {
		entities, err := svc.Entities.GetAll(ctx, in.Collection, false)
		if err != nil {
			return toolError(logger, "list_entities", err), nil, nil
		}
		return toolResult(ListEntitiesResult{Collection: in.Collection, Entities: entities})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_entity",
		Description: "Get one published entity by collection and id",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetEntityParams) (*sdkmcp.CallToolResult, any, error) {
		e, err := svc.Entities.GetByID(ctx, in.Collection, in.ID)
		if err == nil && e.Status != content.StatusPublished {
			err = fmt.Errorf("%s %s: %w", in.Collection, in.ID, repository.ErrNotFound)
		}
		if err != nil {
			return toolError(logger, "get_entity", err), nil, nil
		}
		return toolResult(e)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_page",
		Description: "Get the published content of a page by slug",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetPageParams) (*sdkmcp.CallToolResult, any, error) {
		view, err := svc.Pages.ReadPublished(ctx, strings.TrimPrefix(in.Slug, "/"))
		if err != nil {
			return toolError(logger, "get_page", err), nil, nil
		}
		return toolResult(view)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_history",
		Description: "List recorded changes newest first, optionally for one entity",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListHistoryParams) (*sdkmcp.CallToolResult, any, error) {
		var err error
		var entries []history.Entry
		if in.EntityID != "" {
			entries, err = svc.History.ListByEntity(ctx, in.EntityID)
		} else {
			entries, err = svc.History.ListAll(ctx)
		}
		if err != nil {
			return toolError(logger, "list_history", err), nil, nil
		}
		limit := in.Limit
		if limit <= 0 || limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return toolResult(ListHistoryResult{Entries: summarizeHistory(entries)})
	})
}

func toolResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolError(logger *slog.Logger, tool string, err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	if apiErr.Code == "INTERNAL" || apiErr.Code == "UNAVAILABLE" {
		logger.Error("mcp tool failed", "tool", tool, "error", err)
	}
	data, _ := json.Marshal(apiErr)
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}
}
