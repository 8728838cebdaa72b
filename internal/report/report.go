// Package report renders the outcome of a curation run for operators.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/curator/internal/pipeline"
)

// Summary is a flattened view of one pipeline run.
type Summary struct {
	RunID          string        `json:"run_id"`
	Query          string        `json:"query"`
	Scope          []string      `json:"scope,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
	CacheHit       bool          `json:"cache_hit"`
	Stages         []Stage       `json:"stages"`
	Blocked        []string      `json:"blocked,omitempty"`
	Fallback       bool          `json:"fallback"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Results        []Line        `json:"results"`
}

// Stage is how many items one stage emitted.
type Stage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Line is one rendered result.
type Line struct {
	Rank     int     `json:"rank"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Views    uint64  `json:"views"`
	Likes    uint64  `json:"likes"`
	Score    float64 `json:"score"`
	Verified bool    `json:"verified"`
}

// Summarize builds a Summary from a pipeline outcome.
func Summarize(out pipeline.Outcome) Summary {
	t := out.Trace
	s := Summary{
		RunID:          t.RunID,
		Query:          t.Query,
		Scope:          t.Scope,
		StartTime:      t.StartedAt,
		Duration:       t.Duration,
		CacheHit:       t.CacheHit,
		Fallback:       out.Fallback(),
		FallbackReason: t.FallbackReason,
		Stages: []Stage{
			{Name: "search", Count: t.Candidates},
			{Name: "validate", Count: t.Validated},
			{Name: "probe", Count: t.Probed},
			{Name: "playable", Count: t.Playable},
			{Name: "rank", Count: t.Ranked},
		},
	}

	for _, v := range t.Verdicts {
		if !v.Playable {
			s.Blocked = append(s.Blocked, v.ID)
		}
	}

	for i, r := range out.Results {
		l := Line{
			Rank:    i + 1,
			Title:   r.Title,
			Channel: r.ChannelTitle,
			Views:   r.Views,
			Likes:   r.Likes,
			Score:   r.Score,
		}
		if r.URL != nil {
			l.URL = *r.URL
			l.Verified = true
		}
		s.Results = append(s.Results, l)
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

const textTmpl = `Curator Run {{.RunID}}
----------------------------------------
Query:     {{.Query}}
{{- if .Scope}}
Scope:     {{join .Scope " / "}}
{{- end}}
Started:   {{.StartTime.Format "2006-01-02 15:04:05"}}
Duration:  {{.Duration}}
Cache:     {{if .CacheHit}}hit{{else}}miss{{end}}

Stages:
{{- range .Stages}}
  {{printf "%-9s" .Name}} {{.Count}}
{{- end}}
{{- if .Blocked}}

Blocked embeds:
{{- range .Blocked}}
  {{.}}
{{- end}}
{{- end}}

{{if .Fallback -}}
Fallback ({{.FallbackReason}}): {{(index .Results 0).Title}}
{{- else -}}
Results:
{{- range .Results}}
  {{.Rank}}. {{.Title}}
     {{.URL}}
     views={{.Views}} likes={{.Likes}} score={{printf "%.1f" .Score}}
{{- end}}
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Funcs(template.FuncMap{"join": strings.Join}).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Curator Run {{.RunID}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 120px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>{{.Query}}</h1>
  <p><strong>Started:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} ({{.Duration}}){{if .CacheHit}}, served from cache{{end}}</p>
  {{- range .Stages}}
  <div class="stat-card">
    <div>{{.Name}}</div>
    <div class="stat-val">{{.Count}}</div>
  </div>
  {{- end}}

  <h3>Results</h3>
  {{- if .Fallback}}
  <p style="color: red;">{{(index .Results 0).Title}} ({{.FallbackReason}})</p>
  {{- else}}
  <table>
    <tr><th>#</th><th>Title</th><th>Views</th><th>Likes</th><th>Score</th></tr>
    {{- range .Results}}
    <tr><td>{{.Rank}}</td><td><a href="{{.URL}}">{{.Title}}</a></td><td>{{.Views}}</td><td>{{.Likes}}</td><td>{{printf "%.1f" .Score}}</td></tr>
    {{- end}}
  </table>
  {{- end}}
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// csvHeaders is the column order of WriteCSV.
var csvHeaders = []string{
	"run_id",
	"query",
	"rank",
	"title",
	"url",
	"channel",
	"views",
	"likes",
	"score",
	"fallback_reason",
}

// WriteCSV writes one row per result, so runs can be appended to a sheet.
func WriteCSV(w io.Writer, summary Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range summary.Results {
		row := []string{
			summary.RunID,
			summary.Query,
			strconv.Itoa(l.Rank),
			l.Title,
			l.URL,
			l.Channel,
			strconv.FormatUint(l.Views, 10),
			strconv.FormatUint(l.Likes, 10),
			strconv.FormatFloat(l.Score, 'f', 2, 64),
			summary.FallbackReason,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Write renders summary in the named format: text, json, html or csv.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	case "csv":
		return WriteCSV(w, summary)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
