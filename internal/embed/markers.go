package embed

import (
	"bytes"
	"net/http"
	"strconv"
)

// Page is the fetched embed page a Detector inspects.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether page shows the video cannot be played, and why.
type Detector func(page *Page) (blocked bool, reason string)

// Markers are the player messages shown in place of an unplayable video.
var Markers = []string{
	"Video unavailable",
	"This video is unavailable",
	"Playback on other websites has been disabled",
	"Post-live processing",
}

// DefaultDetectors returns the status check followed by the marker scan.
func DefaultDetectors() []Detector {
	return []Detector{
		detectStatus,
		detectMarkers(Markers),
	}
}

// Analyze runs page through detectors and returns the first hit.
func Analyze(page *Page, detectors []Detector) (blocked bool, reason string) {
	if page == nil {
		return true, "no_page"
	}
	for _, d := range detectors {
		if blocked, reason := d(page); blocked {
			return true, reason
		}
	}
	return false, ""
}

func detectStatus(page *Page) (bool, string) {
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return true, "status_" + strconv.Itoa(page.StatusCode)
	}
	return false, ""
}

// detectMarkers matches markers case-insensitively anywhere in the body.
func detectMarkers(markers []string) Detector {
	lowered := make([][]byte, len(markers))
	for i, m := range markers {
		lowered[i] = bytes.ToLower([]byte(m))
	}
	return func(page *Page) (bool, string) {
		body := bytes.ToLower(page.Body)
		for i, m := range lowered {
			if bytes.Contains(body, m) {
				return true, "marker:" + markers[i]
			}
		}
		return false, ""
	}
}
