// Package content provides the in-memory implementation of the platform's
// content-store collaborator. Production deployments wire the real
// Pressmill content service behind contracts.ContentStore; this
// implementation backs local development and tests.
package content

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

// MemoryContentStore holds articles, media ids, and a trending-topic cache
// behind one mutex. Tool handlers and health checks may hit it
// concurrently from scheduler goroutines.
type MemoryContentStore struct {
	mu       sync.RWMutex
	articles map[string]*models.Article
	media    map[string]int64 // media id → size in bytes
	users    int
	quota    int64

	trending   []string
	trendingAt time.Time
}

// NewMemoryContentStore creates an empty content store with the given
// media storage quota in bytes (0 = unlimited).
func NewMemoryContentStore(quotaBytes int64) *MemoryContentStore {
	return &MemoryContentStore{
		articles: make(map[string]*models.Article),
		media:    make(map[string]int64),
		quota:    quotaBytes,
	}
}

// PutArticle inserts or replaces an article. Used by tests and seeding.
func (c *MemoryContentStore) PutArticle(a models.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := a
	c.articles[a.ID] = &cp
}

// PutMedia registers a media object. Used by tests and seeding.
func (c *MemoryContentStore) PutMedia(id string, sizeBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media[id] = sizeBytes
}

// SetUserCount sets the platform user count reported in stats.
func (c *MemoryContentStore) SetUserCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = n
}

// ── Health-check queries ────────────────────────────────────

func (c *MemoryContentStore) CountLowQualityArticles(ctx context.Context, maxScore float64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, a := range c.articles {
		if a.Status == models.ArticlePublished && a.QualityScore < maxScore {
			count++
		}
	}
	return count, nil
}

func (c *MemoryContentStore) CountArticlesNotUpdatedSince(ctx context.Context, cutoff time.Time) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, a := range c.articles {
		if a.Status == models.ArticlePublished && a.UpdatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (c *MemoryContentStore) CountArticlesMissingMedia(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, a := range c.articles {
		if a.Status == models.ArticlePublished && a.MediaID == "" {
			count++
			continue
		}
		if a.MediaID != "" {
			if _, ok := c.media[a.MediaID]; !ok {
				count++
			}
		}
	}
	return count, nil
}

func (c *MemoryContentStore) GetStorageUsage(ctx context.Context) (models.StorageUsage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var used int64
	for _, size := range c.media {
		used += size
	}
	return models.StorageUsage{UsedBytes: used, LimitBytes: c.quota}, nil
}

func (c *MemoryContentStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ── Tool-handler queries and commands ───────────────────────

func (c *MemoryContentStore) SearchArticles(ctx context.Context, query string, limit int) ([]models.Article, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]models.Article, 0)
	for _, a := range c.articles {
		if q == "" || strings.Contains(strings.ToLower(a.Title), q) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *MemoryContentStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.articles[id]
	if !ok {
		return nil, &store.ErrNotFound{Entity: "article", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (c *MemoryContentStore) UpdateArticleStatus(ctx context.Context, id string, status models.ArticleStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.articles[id]
	if !ok {
		return &store.ErrNotFound{Entity: "article", Key: id}
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *MemoryContentStore) DeleteArticle(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.articles[id]; !ok {
		return &store.ErrNotFound{Entity: "article", Key: id}
	}
	delete(c.articles, id)
	return nil
}

func (c *MemoryContentStore) ArchiveArticlesNotUpdatedSince(ctx context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	archived := 0
	for _, a := range c.articles {
		if a.Status == models.ArticlePublished && a.UpdatedAt.Before(cutoff) {
			a.Status = models.ArticleArchived
			archived++
		}
	}
	return archived, nil
}

func (c *MemoryContentStore) PurgeUnusedMedia(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	referenced := make(map[string]bool, len(c.articles))
	for _, a := range c.articles {
		if a.MediaID != "" {
			referenced[a.MediaID] = true
		}
	}

	purged := 0
	for id := range c.media {
		if !referenced[id] {
			delete(c.media, id)
			purged++
		}
	}
	return purged, nil
}

// RefreshTrendingTopics recomputes the trending cache from recently
// updated published articles. Idempotent; safe under overlapping
// scheduled fires.
func (c *MemoryContentStore) RefreshTrendingTopics(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recent := make([]*models.Article, 0)
	cutoff := time.Now().AddDate(0, 0, -7)
	for _, a := range c.articles {
		if a.Status == models.ArticlePublished && a.UpdatedAt.After(cutoff) {
			recent = append(recent, a)
		}
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].QualityScore > recent[j].QualityScore })

	topics := make([]string, 0, 10)
	for _, a := range recent {
		topics = append(topics, a.Title)
		if len(topics) == 10 {
			break
		}
	}
	c.trending = topics
	c.trendingAt = time.Now().UTC()
	return topics, nil
}

func (c *MemoryContentStore) GetContentStats(ctx context.Context) (models.ContentStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := models.ContentStats{
		TotalArticles: len(c.articles),
		TotalUsers:    c.users,
		TotalMedia:    len(c.media),
	}
	for _, a := range c.articles {
		switch a.Status {
		case models.ArticlePublished:
			stats.PublishedArticles++
		case models.ArticleDraft:
			stats.DraftArticles++
		case models.ArticleArchived:
			stats.ArchivedArticles++
		}
	}
	return stats, nil
}
