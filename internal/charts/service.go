// Package charts renders the scenario chart for deep-dive articles. The
// chart is plain HTML/SVG screenshotted through headless Chrome; when
// the browser is unavailable the caller falls back to a markdown table.
package charts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultWidth   = 1200
	DefaultHeight  = 675
)

// Service renders scenario charts.
type Service struct {
	enabled bool
	timeout time.Duration
	width   int
	height  int
	logger  arbor.ILogger
}

var _ interfaces.ChartService = (*Service)(nil)

// NewService builds the chart service from config.
func NewService(cfg common.ChartsConfig, logger arbor.ILogger) *Service {
	s := &Service{
		enabled: cfg.Enabled,
		timeout: common.Duration(cfg.Timeout, DefaultTimeout),
		width:   cfg.Width,
		height:  cfg.Height,
		logger:  logger,
	}
	if s.width <= 0 {
		s.width = DefaultWidth
	}
	if s.height <= 0 {
		s.height = DefaultHeight
	}
	return s
}

// RenderScenarioChart renders the valuation set as a PNG. Returns an
// error when chart rendering is disabled or the browser fails; callers
// are expected to degrade to FallbackTable.
func (s *Service) RenderScenarioChart(ctx context.Context, set *models.ValuationSet) ([]byte, error) {
	if !s.enabled {
		return nil, fmt.Errorf("chart rendering is disabled")
	}
	if len(set.Horizons) == 0 {
		return nil, fmt.Errorf("no horizons to chart for %s", set.Entity)
	}

	doc, err := buildChartHTML(set, s.width, s.height)
	if err != nil {
		return nil, err
	}
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, s.timeout)
	defer cancelRun()

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(s.width), int64(s.height)),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture chart for %s: %w", set.Entity, err)
	}

	s.logger.Info().
		Str("entity", set.Entity).
		Int("bytes", len(buf)).
		Msg("Scenario chart rendered")
	return buf, nil
}

// FallbackTable renders scenario targets as a markdown table for use
// when the chart cannot be produced.
func (s *Service) FallbackTable(set *models.ValuationSet) string {
	horizons := presentHorizons(set)
	if len(horizons) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("| Scenario |")
	for _, h := range horizons {
		fmt.Fprintf(&b, " %s |", horizonLabel(h))
	}
	b.WriteString("\n|---|")
	b.WriteString(strings.Repeat("---|", len(horizons)))
	b.WriteString("\n")

	for _, scenario := range models.Scenarios {
		fmt.Fprintf(&b, "| %s |", titleCase(string(scenario)))
		for _, h := range horizons {
			hv := set.Horizons[h]
			fmt.Fprintf(&b, " $%.2f |", scenarioTarget(hv, scenario))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// presentHorizons lists computed horizons in short/medium/long order.
func presentHorizons(set *models.ValuationSet) []models.Horizon {
	order := map[models.Horizon]int{
		models.HorizonShort:  0,
		models.HorizonMedium: 1,
		models.HorizonLong:   2,
	}
	var out []models.Horizon
	for h := range set.Horizons {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

func scenarioTarget(hv *models.HorizonValuation, s models.Scenario) float64 {
	switch s {
	case models.ScenarioBear:
		return hv.Bear.TargetPrice
	case models.ScenarioBull:
		return hv.Bull.TargetPrice
	default:
		return hv.Base.TargetPrice
	}
}

func horizonLabel(h models.Horizon) string {
	switch h {
	case models.HorizonShort:
		return "Short Term"
	case models.HorizonMedium:
		return "Medium Term"
	case models.HorizonLong:
		return "Long Term"
	}
	return string(h)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// chartTemplate draws grouped horizontal bars per horizon, one bar per
// scenario, scaled against the highest bull target.
var chartTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { margin: 0; font-family: Arial, Helvetica, sans-serif; background: #ffffff; width: {{.Width}}px; height: {{.Height}}px; }
  .wrap { padding: 32px 48px; }
  h1 { font-size: 28px; margin: 0 0 24px 0; color: #1a1a2e; }
  .horizon { margin-bottom: 28px; }
  .horizon-label { font-size: 18px; color: #444; margin-bottom: 8px; }
  .bar-row { display: flex; align-items: center; margin-bottom: 4px; }
  .bar-name { width: 64px; font-size: 14px; color: #666; }
  .bar { height: 22px; border-radius: 3px; }
  .bear { background: #c0392b; }
  .base { background: #2c5f8a; }
  .bull { background: #27894e; }
  .bar-value { margin-left: 8px; font-size: 14px; color: #1a1a2e; }
</style>
</head>
<body>
<div class="wrap">
  <h1>{{.Title}}</h1>
  {{range .Horizons}}
  <div class="horizon">
    <div class="horizon-label">{{.Label}}{{if .Degraded}} (degraded inputs){{end}}</div>
    {{range .Bars}}
    <div class="bar-row">
      <div class="bar-name">{{.Name}}</div>
      <div class="bar {{.Class}}" style="width: {{.WidthPct}}%"></div>
      <div class="bar-value">${{.Value}}</div>
    </div>
    {{end}}
  </div>
  {{end}}
</div>
</body>
</html>`))

type chartBar struct {
	Name     string
	Class    string
	WidthPct float64
	Value    string
}

type chartHorizon struct {
	Label    string
	Degraded bool
	Bars     []chartBar
}

type chartData struct {
	Title    string
	Width    int
	Height   int
	Horizons []chartHorizon
}

func buildChartHTML(set *models.ValuationSet, width, height int) (string, error) {
	maxTarget := 0.0
	for _, hv := range set.Horizons {
		if hv.Bull.TargetPrice > maxTarget {
			maxTarget = hv.Bull.TargetPrice
		}
	}
	if maxTarget <= 0 {
		return "", fmt.Errorf("no positive targets to chart for %s", set.Entity)
	}

	data := chartData{
		Title:  fmt.Sprintf("%s valuation scenarios, %s", set.Entity, set.AsOfDate),
		Width:  width,
		Height: height,
	}
	for _, h := range presentHorizons(set) {
		hv := set.Horizons[h]
		horizon := chartHorizon{Label: horizonLabel(h), Degraded: hv.Degraded}
		for _, scenario := range models.Scenarios {
			target := scenarioTarget(hv, scenario)
			horizon.Bars = append(horizon.Bars, chartBar{
				Name:     titleCase(string(scenario)),
				Class:    string(scenario),
				WidthPct: target / maxTarget * 70,
				Value:    fmt.Sprintf("%.2f", target),
			})
		}
		data.Horizons = append(data.Horizons, horizon)
	}

	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render chart template: %w", err)
	}
	return buf.String(), nil
}
