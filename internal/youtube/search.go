package youtube

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"

	"github.com/FranksOps/curator/internal/metrics"
)

// SearchIDs returns up to MaxResults unique video IDs for query in upstream
// relevance order. Every failure yields an empty slice.
func (c *Client) SearchIDs(ctx context.Context, query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if !c.ready("search") {
		return nil
	}

	log := c.logger.With(zap.String("stage", "search"), zap.String("query", query))

	resp, err := retryOnce(ctx, c, CostSearch, func() (*youtube.SearchListResponse, error) {
		call := c.svc.Search.List([]string{"id"}).
			Q(query).
			Type("video").
			VideoEmbeddable("true").
			SafeSearch(c.cfg.SafeSearch).
			MaxResults(c.cfg.MaxResults).
			Context(ctx)
		if c.cfg.RegionCode != "" {
			call = call.RegionCode(c.cfg.RegionCode)
		}
		if c.cfg.RelevanceLanguage != "" {
			call = call.RelevanceLanguage(c.cfg.RelevanceLanguage)
		}
		return call.Do()
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrQuotaExhausted) {
			outcome = "quota"
		}
		metrics.YouTubeCallsTotal.WithLabelValues("search", outcome).Inc()
		log.Warn("search failed, returning no candidates", zap.Error(err))
		return nil
	}
	metrics.YouTubeCallsTotal.WithLabelValues("search", "ok").Inc()

	ids := searchResultIDs(resp.Items, int(c.cfg.MaxResults))
	log.Debug("search complete", zap.Int("items", len(resp.Items)), zap.Int("ids", len(ids)))
	return ids
}

// searchResultIDs keeps the first occurrence of each video ID, skipping items
// that carry no video ID, and stops at limit.
func searchResultIDs(items []*youtube.SearchResult, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		if item.Id.Kind != "" && item.Id.Kind != "youtube#video" {
			continue
		}
		if _, dup := seen[item.Id.VideoId]; dup {
			continue
		}
		seen[item.Id.VideoId] = struct{}{}
		ids = append(ids, item.Id.VideoId)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids
}
