// Package chart renders small inline SVG charts for dashboard pages.
package chart

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Series is a labelled sequence of values. It doubles as the JSON chart
// payload sent to the browser.
type Series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Validate checks that labels and values line up.
func (s Series) Validate() error {
	if len(s.Values) == 0 {
		return fmt.Errorf("chart: series required")
	}
	if len(s.Labels) != len(s.Values) {
		return fmt.Errorf("chart: %d labels for %d values", len(s.Labels), len(s.Values))
	}
	return nil
}

// Opts customises a chart.
type Opts struct {
	Title     string
	Color     string
	AxisColor string
	Width     int
	Height    int
	Ticks     int
}

const (
	defaultWidth  = 640
	defaultHeight = 220
	defaultTicks  = 4
	padding       = 28.0
)

type frame struct {
	width, height int
	w, h          float64
	top           float64
	scale         float64
	ticks         int
	axis          string
	color         string
	id            string
}

func newFrame(s Series, opts Opts, defaultColor, kind string) (frame, error) {
	if err := s.Validate(); err != nil {
		return frame{}, err
	}
	f := frame{
		width:  opts.Width,
		height: opts.Height,
		ticks:  opts.Ticks,
		axis:   orDefault(opts.AxisColor, "#475569"),
		color:  orDefault(opts.Color, defaultColor),
		id:     slug(opts.Title) + "-" + kind,
	}
	if f.width <= 0 {
		f.width = defaultWidth
	}
	if f.height <= 0 {
		f.height = defaultHeight
	}
	if f.ticks <= 0 {
		f.ticks = defaultTicks
	}
	f.w = float64(f.width) - 2*padding
	f.h = float64(f.height) - 2*padding
	if f.w <= 0 || f.h <= 0 {
		return frame{}, fmt.Errorf("chart: viewport too small")
	}
	f.top = 0
	for _, v := range s.Values {
		if v < 0 {
			return frame{}, fmt.Errorf("chart: negative value %v", v)
		}
		f.top = math.Max(f.top, v)
	}
	if f.top == 0 {
		f.top = 1
	}
	f.scale = f.h / f.top
	return f, nil
}

func (f frame) y(v float64) float64 { return padding + f.h - v*f.scale }

func (f frame) open(b *strings.Builder, title string) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s">`, f.width, f.height, f.id)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, f.id, template.HTMLEscapeString(orDefault(title, "Gráfico")))
	for i := 0; i <= f.ticks; i++ {
		v := f.top * float64(i) / float64(f.ticks)
		y := f.y(v)
		fmt.Fprintf(b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="0.4" stroke-dasharray="2,4"/>`, padding, y, padding+f.w, y, f.axis)
		fmt.Fprintf(b, `<text x="%.1f" y="%.1f" fill="%s" font-size="10" text-anchor="end">%s</text>`, padding-4, y+3, f.axis, tick(v))
	}
	fmt.Fprintf(b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`, padding, padding+f.h, padding+f.w, padding+f.h, f.axis)
}

func (f frame) label(b *strings.Builder, x float64, text string) {
	fmt.Fprintf(b, `<text x="%.1f" y="%.1f" fill="%s" font-size="10" text-anchor="middle">%s</text>`, x, padding+f.h+14, f.axis, template.HTMLEscapeString(text))
}

// Bars renders one bar per label.
func Bars(s Series, opts Opts) (template.HTML, error) {
	f, err := newFrame(s, opts, "#0ea5e9", "bars")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	f.open(&b, opts.Title)
	slot := f.w / float64(len(s.Values))
	width := slot * 0.6
	for i, v := range s.Values {
		x := padding + float64(i)*slot
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"><title>%s: %s</title></rect>`,
			x+(slot-width)/2, f.y(v), width, v*f.scale, f.color, template.HTMLEscapeString(s.Labels[i]), tick(v))
		f.label(&b, x+slot/2, s.Labels[i])
	}
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

// Line renders the series as a polyline with dots.
func Line(s Series, opts Opts) (template.HTML, error) {
	f, err := newFrame(s, opts, "#2563eb", "line")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	f.open(&b, opts.Title)
	step := 0.0
	if len(s.Values) > 1 {
		step = f.w / float64(len(s.Values)-1)
	}
	points := make([]string, len(s.Values))
	for i, v := range s.Values {
		x := padding + float64(i)*step
		if len(s.Values) == 1 {
			x = padding + f.w/2
		}
		points[i] = fmt.Sprintf("%.1f,%.1f", x, f.y(v))
		fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`, x, f.y(v), f.color)
		f.label(&b, x, s.Labels[i])
	}
	fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round"/>`, strings.Join(points, " "), f.color)
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func slug(s string) string {
	out := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(s)), "-")
	if out == "" {
		return "chart"
	}
	return out
}

func tick(v float64) string {
	if v >= 1000 {
		return fmt.Sprintf("%.1fk", v/1000)
	}
	if v == math.Round(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
