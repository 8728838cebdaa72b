// Package video holds the types that flow between the curation stages.
package video

import (
	"encoding/json"
	"strings"
)

// FallbackTitle is the title of the sentinel returned when no video survives the pipeline.
const FallbackTitle = "No verified videos available for this module yet."

const (
	watchBase = "https://www.youtube.com/watch?v="
	embedBase = "https://www.youtube.com/embed/"
)

// Candidate is a video identifier returned by search that has not been validated yet.
type Candidate struct {
	ID string
}

// Validated is a candidate that passed every metadata rule.
type Validated struct {
	ID             string
	Title          string
	Description    string
	ChannelTitle   string
	ThumbnailURL   string
	ViewCount      uint64
	LikeCount      uint64
	PrivacyStatus  string
	Embeddable     bool
	RegionBlocked  bool
	IsLive         bool
	LooksLikeShort bool
}

// Result is one entry of the ranked output. A nil URL marks the fallback sentinel.
type Result struct {
	Title        string  `json:"title"`
	URL          *string `json:"url"`
	EmbedURL     string  `json:"embedUrl"`
	ChannelTitle string  `json:"channelTitle"`
	Views        uint64  `json:"views"`
	Likes        uint64  `json:"likes"`
	Thumbnail    string  `json:"thumbnail"`
	Score        float64 `json:"score"`
}

// MarshalJSON encodes the sentinel as {"title":..,"url":null} and real results with every field.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.URL == nil {
		return json.Marshal(struct {
			Title string  `json:"title"`
			URL   *string `json:"url"`
		}{Title: r.Title})
	}
	type plain Result
	return json.Marshal(plain(r))
}

// Fallback returns a fresh single-element sentinel list.
func Fallback() []Result {
	return []Result{{Title: FallbackTitle}}
}

// IsFallback reports whether results is the sentinel list.
func IsFallback(results []Result) bool {
	return len(results) == 1 && results[0].URL == nil
}

// WatchURL returns the public watch page for id.
func WatchURL(id string) string {
	return watchBase + id
}

// EmbedURL returns the embeddable player URL for id.
func EmbedURL(id string) string {
	return embedBase + id
}

// NormalizeQuery lowercases, trims and collapses whitespace so that equivalent
// queries share a cache entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
