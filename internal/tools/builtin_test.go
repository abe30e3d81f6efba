package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/content"
	"github.com/pressmill/pressmill/copilot-core/internal/tools"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

func newBuiltinEngine(t *testing.T) (*tools.Engine, *content.MemoryContentStore) {
	t.Helper()
	s := newTestStore(t)
	cs := content.NewMemoryContentStore(1 << 30)
	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, cs); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	return tools.NewEngine(reg, s), cs
}

func TestBuiltins_Tiers(t *testing.T) {
	cs := content.NewMemoryContentStore(0)
	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, cs); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	tiers := map[string]models.PermissionTier{
		"search_articles":        models.TierAuto,
		"content_stats":          models.TierAuto,
		"refresh_trending":       models.TierAuto,
		"update_article_status":  models.TierConfirm,
		"archive_stale_articles": models.TierConfirm,
		"delete_article":         models.TierConfirmTwice,
		"purge_unused_media":     models.TierConfirmTwice,
	}
	for name, tier := range tiers {
		d, ok := reg.Get(name)
		if !ok {
			t.Errorf("builtin %s not registered", name)
			continue
		}
		if d.Tier != tier {
			t.Errorf("builtin %s tier = %q, want %q", name, d.Tier, tier)
		}
	}
}

func TestBuiltins_SearchArticles(t *testing.T) {
	e, cs := newBuiltinEngine(t)
	now := time.Now().UTC()
	cs.PutArticle(models.Article{ID: "a1", Title: "Go concurrency patterns", Status: models.ArticlePublished, UpdatedAt: now})
	cs.PutArticle(models.Article{ID: "a2", Title: "Kitchen design trends", Status: models.ArticlePublished, UpdatedAt: now})

	res := e.Invoke(context.Background(), "search_articles", map[string]interface{}{"query": "go"}, testContext())
	if !res.Success {
		t.Fatalf("search_articles error = %q", res.Error)
	}
	data := res.Data
	if data["count"] != 1 {
		t.Errorf("count = %v, want 1", data["count"])
	}
}

func TestBuiltins_ContentStats(t *testing.T) {
	e, cs := newBuiltinEngine(t)
	cs.PutArticle(models.Article{ID: "p", Status: models.ArticlePublished})
	cs.PutArticle(models.Article{ID: "d", Status: models.ArticleDraft})
	cs.SetUserCount(7)

	res := e.Invoke(context.Background(), "content_stats", nil, testContext())
	if !res.Success {
		t.Fatalf("content_stats error = %q", res.Error)
	}
	data := res.Data
	if data["total_articles"] != 2 {
		t.Errorf("total_articles = %v, want 2", data["total_articles"])
	}
	if data["published_articles"] != 1 {
		t.Errorf("published_articles = %v, want 1", data["published_articles"])
	}
	if data["total_users"] != 7 {
		t.Errorf("total_users = %v, want 7", data["total_users"])
	}
}

func TestBuiltins_DeleteArticleRequiresDoubleConfirm(t *testing.T) {
	e, cs := newBuiltinEngine(t)
	cs.PutArticle(models.Article{ID: "doomed", Title: "To be removed", Status: models.ArticlePublished})
	ctx := context.Background()

	invoked := e.Invoke(ctx, "delete_article", map[string]interface{}{"id": "doomed"}, testContext())
	if invoked.Success || !invoked.RequiresConfirmation {
		t.Fatalf("delete_article invoke = %+v, want gated", invoked)
	}
	// Article untouched until the confirmation lands.
	if _, err := cs.GetArticle(ctx, "doomed"); err != nil {
		t.Fatalf("article deleted before confirmation: %v", err)
	}

	resumed := e.Resume(ctx, activityID(t, invoked), testContext())
	if !resumed.Success {
		t.Fatalf("Resume() error = %q", resumed.Error)
	}
	if _, err := cs.GetArticle(ctx, "doomed"); err == nil {
		t.Error("article still present after confirmed delete")
	}
}

func TestBuiltins_ArchiveStaleArticles(t *testing.T) {
	e, cs := newBuiltinEngine(t)
	ctx := context.Background()
	cs.PutArticle(models.Article{ID: "stale", Status: models.ArticlePublished, UpdatedAt: time.Now().AddDate(0, 0, -120)})
	cs.PutArticle(models.Article{ID: "fresh", Status: models.ArticlePublished, UpdatedAt: time.Now().UTC()})

	invoked := e.Invoke(ctx, "archive_stale_articles", map[string]interface{}{"older_than_days": 90}, testContext())
	if !invoked.RequiresConfirmation {
		t.Fatalf("archive_stale_articles invoke = %+v, want gated", invoked)
	}
	resumed := e.Resume(ctx, activityID(t, invoked), testContext())
	if !resumed.Success {
		t.Fatalf("Resume() error = %q", resumed.Error)
	}

	stale, _ := cs.GetArticle(ctx, "stale")
	if stale.Status != models.ArticleArchived {
		t.Errorf("stale article status = %q, want archived", stale.Status)
	}
	fresh, _ := cs.GetArticle(ctx, "fresh")
	if fresh.Status != models.ArticlePublished {
		t.Errorf("fresh article status = %q, want published", fresh.Status)
	}
}

func TestBuiltins_PurgeUnusedMedia(t *testing.T) {
	e, cs := newBuiltinEngine(t)
	ctx := context.Background()
	cs.PutMedia("used", 100)
	cs.PutMedia("orphan", 100)
	cs.PutArticle(models.Article{ID: "a1", Status: models.ArticlePublished, MediaID: "used", UpdatedAt: time.Now().UTC()})

	invoked := e.Invoke(ctx, "purge_unused_media", nil, testContext())
	resumed := e.Resume(ctx, activityID(t, invoked), testContext())
	if !resumed.Success {
		t.Fatalf("Resume() error = %q", resumed.Error)
	}
	data := resumed.Data
	if data["purged"] != 1 {
		t.Errorf("purged = %v, want 1", data["purged"])
	}
}
