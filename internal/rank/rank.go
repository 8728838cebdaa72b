// Package rank orders embed-verified videos by a weighted popularity score.
package rank

import (
	"sort"

	"github.com/FranksOps/curator/internal/video"
)

// Default weights and output bound.
const (
	DefaultViewsWeight = 0.7
	DefaultLikesWeight = 0.3
	DefaultLimit       = 3
)

// Ranker scores videos as views*ViewsWeight + likes*LikesWeight.
type Ranker struct {
	ViewsWeight float64
	LikesWeight float64
	Limit       int
}

// New returns a Ranker with the default weights and limit.
func New() Ranker {
	return Ranker{
		ViewsWeight: DefaultViewsWeight,
		LikesWeight: DefaultLikesWeight,
		Limit:       DefaultLimit,
	}
}

// Score computes the popularity score of v.
func (r Ranker) Score(v video.Validated) float64 {
	return float64(v.ViewCount)*r.ViewsWeight + float64(v.LikeCount)*r.LikesWeight
}

// Rank sorts videos by descending score, keeping input order on ties, and
// returns at most Limit results.
func (r Ranker) Rank(videos []video.Validated) []video.Result {
	if len(videos) == 0 {
		return nil
	}
	limit := r.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	type scored struct {
		v     video.Validated
		score float64
	}
	items := make([]scored, len(videos))
	for i, v := range videos {
		items[i] = scored{v: v, score: r.Score(v)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]video.Result, len(items))
	for i, it := range items {
		watch := video.WatchURL(it.v.ID)
		out[i] = video.Result{
			Title:        it.v.Title,
			URL:          &watch,
			EmbedURL:     video.EmbedURL(it.v.ID),
			ChannelTitle: it.v.ChannelTitle,
			Views:        it.v.ViewCount,
			Likes:        it.v.LikeCount,
			Thumbnail:    it.v.ThumbnailURL,
			Score:        it.score,
		}
	}
	return out
}
