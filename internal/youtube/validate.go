package youtube

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/youtube/v3"

	"github.com/FranksOps/curator/internal/metrics"
	"github.com/FranksOps/curator/internal/video"
)

// Reject reasons, in the order they are evaluated.
const (
	ReasonNotPublic     = "not_public"
	ReasonNotEmbeddable = "not_embeddable"
	ReasonRegionBlocked = "region_blocked"
	ReasonLive          = "live_broadcast"
	ReasonNoViews       = "no_views"
	ReasonMissingTitle  = "missing_title"
	ReasonShorts        = "shorts_marker"
)

var videoParts = []string{"snippet", "statistics", "status", "contentDetails"}

// Validate fetches metadata for ids in one call and keeps the videos that pass
// every rule, in upstream order.
func (c *Client) Validate(ctx context.Context, ids []string) []video.Validated {
	ids = batchIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	if !c.ready("videos") {
		return nil
	}

	log := c.logger.With(zap.String("stage", "validate"), zap.Int("ids", len(ids)))

	resp, err := retryOnce(ctx, c, CostVideos, func() (*youtube.VideoListResponse, error) {
		return c.svc.Videos.List(videoParts).Id(ids...).Context(ctx).Do()
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrQuotaExhausted) {
			outcome = "quota"
		}
		metrics.YouTubeCallsTotal.WithLabelValues("videos", outcome).Inc()
		log.Warn("metadata fetch failed, returning no videos", zap.Strings("video_ids", ids), zap.Error(err))
		return nil
	}
	metrics.YouTubeCallsTotal.WithLabelValues("videos", "ok").Inc()

	out := make([]video.Validated, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil {
			continue
		}
		if reasons := RejectReasons(item, c.cfg.RegionCode); len(reasons) > 0 {
			metrics.RejectionsTotal.WithLabelValues(reasons[0]).Inc()
			log.Debug("video rejected", zap.String("video_id", item.Id), zap.Strings("reasons", reasons))
			continue
		}
		out = append(out, toValidated(item, c.cfg.RegionCode))
	}
	log.Debug("validation complete", zap.Int("items", len(resp.Items)), zap.Int("valid", len(out)))
	return out
}

// batchIDs drops empty and duplicate IDs and truncates to MaxBatch.
func batchIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxBatch {
			break
		}
	}
	return out
}

// RejectReasons lists every rule item fails, first failing rule first.
// Missing parts of the response count as their zero value.
func RejectReasons(item *youtube.Video, regionCode string) []string {
	var reasons []string

	var (
		snippet youtube.VideoSnippet
		stats   youtube.VideoStatistics
		status  youtube.VideoStatus
	)
	if item.Snippet != nil {
		snippet = *item.Snippet
	}
	if item.Statistics != nil {
		stats = *item.Statistics
	}
	if item.Status != nil {
		status = *item.Status
	}

	if status.PrivacyStatus != "public" {
		reasons = append(reasons, ReasonNotPublic)
	}
	if !status.Embeddable {
		reasons = append(reasons, ReasonNotEmbeddable)
	}
	if regionBlocked(item.ContentDetails, regionCode) {
		reasons = append(reasons, ReasonRegionBlocked)
	}
	if isLive(snippet.LiveBroadcastContent) {
		reasons = append(reasons, ReasonLive)
	}
	if stats.ViewCount == 0 {
		reasons = append(reasons, ReasonNoViews)
	}
	if strings.TrimSpace(snippet.Title) == "" {
		reasons = append(reasons, ReasonMissingTitle)
	}
	if looksLikeShort(snippet.Title, snippet.Description) {
		reasons = append(reasons, ReasonShorts)
	}
	return reasons
}

// regionBlocked applies the restriction to regionCode when one is configured.
// Without a region, any blocked list counts as blocked.
func regionBlocked(cd *youtube.VideoContentDetails, regionCode string) bool {
	if cd == nil || cd.RegionRestriction == nil {
		return false
	}
	rr := cd.RegionRestriction
	if regionCode == "" {
		return len(rr.Blocked) > 0
	}
	code := strings.ToUpper(regionCode)
	if slices.ContainsFunc(rr.Blocked, func(r string) bool { return strings.EqualFold(r, code) }) {
		return true
	}
	if len(rr.Allowed) > 0 && !slices.ContainsFunc(rr.Allowed, func(r string) bool { return strings.EqualFold(r, code) }) {
		return true
	}
	return false
}

func isLive(liveBroadcastContent string) bool {
	return liveBroadcastContent != "" && liveBroadcastContent != "none"
}

func looksLikeShort(title, description string) bool {
	return strings.Contains(strings.ToLower(title), "#shorts") ||
		strings.Contains(strings.ToLower(description), "#shorts")
}

func toValidated(item *youtube.Video, regionCode string) video.Validated {
	v := video.Validated{
		ID:            item.Id,
		RegionBlocked: regionBlocked(item.ContentDetails, regionCode),
	}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.ChannelTitle = s.ChannelTitle
		v.ThumbnailURL = thumbnailURL(s.Thumbnails)
		v.IsLive = isLive(s.LiveBroadcastContent)
		v.LooksLikeShort = looksLikeShort(s.Title, s.Description)
	}
	if st := item.Statistics; st != nil {
		v.ViewCount = st.ViewCount
		v.LikeCount = st.LikeCount
	}
	if st := item.Status; st != nil {
		v.PrivacyStatus = st.PrivacyStatus
		v.Embeddable = st.Embeddable
	}
	return v
}

// thumbnailURL picks the high resolution thumbnail, falling back through smaller ones.
func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default, t.Standard, t.Maxres} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
