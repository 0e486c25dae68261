package logs

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"

	"github.com/memzapp/memz/internal/analytics"
	"github.com/memzapp/memz/internal/templates/layouts"
)

//go:embed templates/*.html
var templatesFS embed.FS

var views = template.Must(template.New("logs").Funcs(layouts.Funcs).ParseFS(templatesFS, "templates/*.html"))

// listView is the data for the log index page.
type listView struct {
	Logs      []Log
	Form      CreateLogRequest
	FormError string
	CSRFToken string
}

// detailView is the data for a single log page.
type detailView struct {
	Log       *Log
	Form      CreateEventRequest
	FormError string
	Today     string
	TopTags   analytics.Ranking
	CSRFToken string
}

// statsView is the data for the tag analytics page.
type statsView struct {
	Stats        *Stats
	Chart        analytics.Ranking
	ChartMax     int
	Distribution []distributionSlice
	CoTop        analytics.Ranking
	CSRFToken    string
}

// distributionSlice is one share of the tag distribution.
type distributionSlice struct {
	Tag     string
	Count   int
	Percent int
}

func newStatsView(stats *Stats, csrfToken string) statsView {
	chart := stats.Summary.Frequency.Top(analytics.TopChart)
	chartMax := 0
	if len(chart) > 0 {
		chartMax = chart[0].Count
	}

	top := stats.Summary.Frequency.Top(analytics.TopDistribution)
	total := top.Total()
	dist := make([]distributionSlice, 0, len(top))
	for _, tc := range top {
		pct := 0
		if total > 0 {
			pct = tc.Count * 100 / total
		}
		dist = append(dist, distributionSlice{Tag: tc.Tag, Count: tc.Count, Percent: pct})
	}

	return statsView{
		Stats:        stats,
		Chart:        chart,
		ChartMax:     chartMax,
		Distribution: dist,
		CoTop:        stats.Summary.CoOccurring.Top(analytics.TopCoTags),
		CSRFToken:    csrfToken,
	}
}

// LogListPage renders all logs with the create form.
func LogListPage(data listView) templ.Component {
	return layouts.Base("Your logs", layouts.Page(views, "log_list", data))
}

// LogDetailPage renders one log with its events and the add-event form.
func LogDetailPage(data detailView) templ.Component {
	return layouts.Base(data.Log.Title, layouts.Page(views, "log_detail", data))
}

// LogStatsPage renders the tag analytics for one log.
func LogStatsPage(data statsView) templ.Component {
	return layouts.Base(data.Stats.Log.Title+" stats", layouts.Page(views, "log_stats", data))
}
