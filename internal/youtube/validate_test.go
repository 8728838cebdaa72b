package youtube

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"testing"

	"google.golang.org/api/youtube/v3"
)

func goodVideo(id string) *youtube.Video {
	return &youtube.Video{
		Id: id,
		Snippet: &youtube.VideoSnippet{
			Title:                "Recursion explained " + id,
			Description:          "A lecture",
			ChannelTitle:         "CS Channel",
			LiveBroadcastContent: "none",
			Thumbnails: &youtube.ThumbnailDetails{
				Medium: &youtube.Thumbnail{Url: "https://i.ytimg.com/vi/" + id + "/mqdefault.jpg"},
			},
		},
		Statistics:     &youtube.VideoStatistics{ViewCount: 1000, LikeCount: 50},
		Status:         &youtube.VideoStatus{PrivacyStatus: "public", Embeddable: true},
		ContentDetails: &youtube.VideoContentDetails{},
	}
}

func TestRejectReasons_EachRule(t *testing.T) {
	tests := []struct {
		name   string
		region string
		mutate func(v *youtube.Video)
		want   string
	}{
		{name: "private", mutate: func(v *youtube.Video) { v.Status.PrivacyStatus = "private" }, want: ReasonNotPublic},
		{name: "unlisted", mutate: func(v *youtube.Video) { v.Status.PrivacyStatus = "unlisted" }, want: ReasonNotPublic},
		{name: "not embeddable", mutate: func(v *youtube.Video) { v.Status.Embeddable = false }, want: ReasonNotEmbeddable},
		{name: "blocked anywhere without region", mutate: func(v *youtube.Video) {
			v.ContentDetails.RegionRestriction = &youtube.VideoContentDetailsRegionRestriction{Blocked: []string{"CN"}}
		}, want: ReasonRegionBlocked},
		{name: "blocked in configured region", region: "de", mutate: func(v *youtube.Video) {
			v.ContentDetails.RegionRestriction = &youtube.VideoContentDetailsRegionRestriction{Blocked: []string{"DE"}}
		}, want: ReasonRegionBlocked},
		{name: "not in allow list", region: "US", mutate: func(v *youtube.Video) {
			v.ContentDetails.RegionRestriction = &youtube.VideoContentDetailsRegionRestriction{Allowed: []string{"GB"}}
		}, want: ReasonRegionBlocked},
		{name: "live", mutate: func(v *youtube.Video) { v.Snippet.LiveBroadcastContent = "live" }, want: ReasonLive},
		{name: "upcoming", mutate: func(v *youtube.Video) { v.Snippet.LiveBroadcastContent = "upcoming" }, want: ReasonLive},
		{name: "zero views", mutate: func(v *youtube.Video) { v.Statistics.ViewCount = 0 }, want: ReasonNoViews},
		{name: "missing statistics", mutate: func(v *youtube.Video) { v.Statistics = nil }, want: ReasonNoViews},
		{name: "blank title", mutate: func(v *youtube.Video) { v.Snippet.Title = "  " }, want: ReasonMissingTitle},
		{name: "shorts in title", mutate: func(v *youtube.Video) { v.Snippet.Title = "Recursion #Shorts" }, want: ReasonShorts},
		{name: "shorts in description", mutate: func(v *youtube.Video) { v.Snippet.Description = "quick one #SHORTS" }, want: ReasonShorts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := goodVideo("x")
			tt.mutate(v)
			got := RejectReasons(v, tt.region)
			if len(got) == 0 || got[0] != tt.want {
				t.Errorf("expected first reason %s, got %v", tt.want, got)
			}
		})
	}
}

func TestRejectReasons_Passing(t *testing.T) {
	v := goodVideo("x")
	if got := RejectReasons(v, ""); len(got) != 0 {
		t.Errorf("expected no reasons, got %v", got)
	}

	v.ContentDetails.RegionRestriction = &youtube.VideoContentDetailsRegionRestriction{Allowed: []string{"US", "GB"}}
	if got := RejectReasons(v, "us"); len(got) != 0 {
		t.Errorf("allowed region must pass, got %v", got)
	}
	v.ContentDetails.RegionRestriction = &youtube.VideoContentDetailsRegionRestriction{Blocked: []string{"CN"}}
	if got := RejectReasons(v, "US"); len(got) != 0 {
		t.Errorf("block elsewhere must pass for a configured region, got %v", got)
	}
}

func TestRejectReasons_OrderAndCollection(t *testing.T) {
	v := &youtube.Video{Id: "empty"}
	got := RejectReasons(v, "")
	want := []string{ReasonNotPublic, ReasonNotEmbeddable, ReasonNoViews, ReasonMissingTitle}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestValidate_FiltersAndKeepsOrder(t *testing.T) {
	blocked := goodVideo("b")
	blocked.Status.Embeddable = false
	short := goodVideo("d")
	short.Snippet.Title = "#shorts recursion"

	api := &fakeAPI{videoBody: &youtube.VideoListResponse{Items: []*youtube.Video{
		goodVideo("c"), blocked, goodVideo("a"), short,
	}}}
	c := newTestClient(t, api, nil)

	got := c.Validate(context.Background(), []string{"c", "b", "a", "d"})
	if len(got) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("expected upstream order [c a], got [%s %s]", got[0].ID, got[1].ID)
	}

	v := got[0]
	if v.ViewCount != 1000 || v.LikeCount != 50 {
		t.Errorf("unexpected statistics %d/%d", v.ViewCount, v.LikeCount)
	}
	if v.ChannelTitle != "CS Channel" || v.ThumbnailURL == "" {
		t.Errorf("unexpected display metadata %+v", v)
	}
	if v.PrivacyStatus != "public" || !v.Embeddable || v.IsLive || v.LooksLikeShort || v.RegionBlocked {
		t.Errorf("validated video violates a rule: %+v", v)
	}
}

func TestValidate_BatchesOnce(t *testing.T) {
	ids := make([]string, 0, 70)
	for i := 0; i < 70; i++ {
		ids = append(ids, fmt.Sprintf("id%02d", i%60))
	}
	api := &fakeAPI{videoBody: &youtube.VideoListResponse{}}
	c := newTestClient(t, api, nil)

	c.Validate(context.Background(), ids)
	if n := api.videoCalls.Load(); n != 1 {
		t.Errorf("expected exactly one bulk call, got %d", n)
	}
	if got := batchIDs(ids); len(got) != MaxBatch {
		t.Errorf("expected %d ids in the batch, got %d", MaxBatch, len(got))
	}
}

func TestValidate_EmptyInput(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api, nil)

	if got := c.Validate(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if n := api.videoCalls.Load(); n != 0 {
		t.Errorf("empty input must not call upstream, got %d", n)
	}
}

func TestValidate_Degrades(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			api := &fakeAPI{videoStatus: status}
			c := newTestClient(t, api, nil)
			if got := c.Validate(context.Background(), []string{"a"}); len(got) != 0 {
				t.Errorf("expected empty result, got %v", got)
			}
		})
	}
}

func TestValidate_MissingFieldsDefault(t *testing.T) {
	api := &fakeAPI{videoBody: `{"items":[{"id":"a","snippet":{"title":"Only a title"},"status":{"privacyStatus":"public","embeddable":true},"statistics":{"viewCount":"7"}}]}`}
	c := newTestClient(t, api, nil)

	got := c.Validate(context.Background(), []string{"a"})
	if len(got) != 1 {
		t.Fatalf("expected one video, got %v", got)
	}
	if got[0].LikeCount != 0 || got[0].ChannelTitle != "" || got[0].ThumbnailURL != "" {
		t.Errorf("expected zero defaults, got %+v", got[0])
	}
}
