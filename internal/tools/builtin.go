package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

// RegisterBuiltins registers the copilot's administrative tool set
// against the platform content store. Read-only tools are AUTO; state
// changes require confirmation; destructive operations require double
// confirmation.
func RegisterBuiltins(r *Registry, cs contracts.ContentStore) error {
	builtins := []Descriptor{
		{
			Name:        "search_articles",
			Description: "Search articles by title, newest first.",
			Tier:        models.TierAuto,
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Title substring to match; empty matches all."},
					"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100},
				},
			},
			Handler: searchArticles(cs),
		},
		{
			Name:        "content_stats",
			Description: "Return aggregate article, user, and media counts.",
			Tier:        models.TierAuto,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: contentStats(cs),
		},
		{
			Name:        "refresh_trending",
			Description: "Recompute the trending-topics cache from recent publications.",
			Tier:        models.TierAuto,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: refreshTrending(cs),
		},
		{
			Name:        "update_article_status",
			Description: "Change an article's editorial status.",
			Tier:        models.TierConfirm,
			Schema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"id", "status"},
				"properties": map[string]interface{}{
					"id":     map[string]interface{}{"type": "string"},
					"status": map[string]interface{}{"type": "string", "enum": []interface{}{"draft", "published", "archived"}},
				},
			},
			Handler: updateArticleStatus(cs),
		},
		{
			Name:        "archive_stale_articles",
			Description: "Archive published articles not updated within the given number of days.",
			Tier:        models.TierConfirm,
			Schema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"older_than_days"},
				"properties": map[string]interface{}{
					"older_than_days": map[string]interface{}{"type": "integer", "minimum": 1},
				},
			},
			Handler: archiveStaleArticles(cs),
		},
		{
			Name:        "delete_article",
			Description: "Permanently delete an article.",
			Tier:        models.TierConfirmTwice,
			Schema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"id"},
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string"},
				},
			},
			Handler: deleteArticle(cs),
		},
		{
			Name:        "purge_unused_media",
			Description: "Permanently delete media objects no article references.",
			Tier:        models.TierConfirmTwice,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: purgeUnusedMedia(cs),
		},
	}

	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func searchArticles(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, args map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		query, _ := args["query"].(string)
		limit := intArg(args, "limit", 20)

		articles, err := cs.SearchArticles(ctx, query, limit)
		if err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("search articles: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Message: fmt.Sprintf("found %d articles", len(articles)),
			Data:    map[string]interface{}{"articles": articles, "count": len(articles)},
		}
	}
}

func contentStats(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, _ map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		stats, err := cs.GetContentStats(ctx)
		if err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("content stats: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Data: map[string]interface{}{
				"total_articles":     stats.TotalArticles,
				"published_articles": stats.PublishedArticles,
				"draft_articles":     stats.DraftArticles,
				"archived_articles":  stats.ArchivedArticles,
				"total_users":        stats.TotalUsers,
				"total_media":        stats.TotalMedia,
			},
		}
	}
}

func refreshTrending(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, _ map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		topics, err := cs.RefreshTrendingTopics(ctx)
		if err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("refresh trending: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Message: fmt.Sprintf("trending cache refreshed with %d topics", len(topics)),
			Data:    map[string]interface{}{"topics": topics},
		}
	}
}

func updateArticleStatus(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, args map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		id, _ := args["id"].(string)
		status, _ := args["status"].(string)

		if err := cs.UpdateArticleStatus(ctx, id, models.ArticleStatus(status)); err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("update article status: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Message: fmt.Sprintf("article %s set to %s", id, status),
		}
	}
}

func archiveStaleArticles(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, args map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		days := intArg(args, "older_than_days", 0)
		if days <= 0 {
			return models.ToolResult{Success: false, Error: "older_than_days must be positive"}
		}

		cutoff := time.Now().AddDate(0, 0, -days)
		archived, err := cs.ArchiveArticlesNotUpdatedSince(ctx, cutoff)
		if err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("archive stale articles: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Message: fmt.Sprintf("archived %d stale articles", archived),
			Data:    map[string]interface{}{"archived": archived},
		}
	}
}

func deleteArticle(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, args map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		id, _ := args["id"].(string)

		if err := cs.DeleteArticle(ctx, id); err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("delete article: %v", err)}
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("article %s deleted", id)}
	}
}

func purgeUnusedMedia(cs contracts.ContentStore) contracts.ToolHandler {
	return func(ctx context.Context, _ map[string]interface{}, _ models.ExecutionContext) models.ToolResult {
		purged, err := cs.PurgeUnusedMedia(ctx)
		if err != nil {
			return models.ToolResult{Success: false, Error: fmt.Sprintf("purge unused media: %v", err)}
		}
		return models.ToolResult{
			Success: true,
			Message: fmt.Sprintf("purged %d unused media objects", purged),
			Data:    map[string]interface{}{"purged": purged},
		}
	}
}

// intArg extracts an integer argument, tolerating the float64 shape JSON
// decoding produces.
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
