// Package debugconsole mounts developer-only HTTP routes over a running
// SDK instance: buffer-depth charts, a recent-track scatter view, and
// the measurement store's admin routes (tailsql, table stats). None of
// this is part of the production capture path — see cmd/devconsole.
package debugconsole

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/capture/sensorserial"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

// echartsAssetsPrefix pins chart JS assets to the upstream CDN, matching
// the teacher's dashboard handlers.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Console wires the pipeline, store and (optional) serial mux that the
// debug routes introspect.
type Console struct {
	pipeline *capture.Pipeline
	store    *measurestore.DB
	serial   sensorserial.SerialMuxInterface
}

// New builds a Console. serial may be nil if no bench sensor source is
// attached.
func New(pipeline *capture.Pipeline, store *measurestore.DB, serial sensorserial.SerialMuxInterface) *Console {
	return &Console{pipeline: pipeline, store: store, serial: serial}
}

// AttachRoutes mounts every debug route under mux's tsweb.Debugger,
// alongside the measurement store's own admin routes and (if attached)
// the serial mux's.
func (c *Console) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("pipeline-buffers", "Ring buffer depths (chart)", http.HandlerFunc(c.handleBufferChart))
	debug.Handle("track/", "Measurement track scatter (chart); append ?measurement_id=N", http.HandlerFunc(c.handleTrackChart))

	if c.store != nil {
		c.store.AttachAdminRoutes(mux)
	}
	if c.serial != nil {
		c.serial.AttachAdminRoutes(mux)
	}
}

// handleBufferChart renders the current per-ring buffer depths as a bar
// chart, grounded on the teacher's handleTrafficChart.
func (c *Console) handleBufferChart(w http.ResponseWriter, r *http.Request) {
	counts := c.pipeline.BufferCounts()

	x := []string{"Locations", "Altitudes", "Accel", "Rotation", "Direction"}
	y := []opts.BarData{
		{Value: counts.Locations},
		{Value: counts.Altitudes},
		{Value: counts.Accel},
		{Value: counts.Rotation},
		{Value: counts.Direction},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Capture ring buffer depths"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("buffered samples", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrackChart renders a measurement's recorded locations as an
// XY scatter (longitude/latitude), coloured by speed.
func (c *Console) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	if c.store == nil {
		http.Error(w, "measurement store not configured", http.StatusServiceUnavailable)
		return
	}

	var measurementID int64
	if _, err := fmt.Sscanf(r.URL.Query().Get("measurement_id"), "%d", &measurementID); err != nil {
		http.Error(w, "measurement_id query parameter required", http.StatusBadRequest)
		return
	}

	m, err := c.store.Load(measurementID)
	if err != nil {
		http.Error(w, fmt.Sprintf("load measurement: %v", err), http.StatusNotFound)
		return
	}

	var points []opts.ScatterData
	maxSpeed := 0.0
	for _, t := range m.Tracks {
		for _, l := range t.Locations {
			points = append(points, opts.ScatterData{Value: []interface{}{l.Longitude, l.Latitude, l.SpeedMps}})
			if l.SpeedMps > maxSpeed {
				maxSpeed = l.SpeedMps
			}
		}
	}
	if len(points) == 0 {
		http.Error(w, "measurement has no locations", http.StatusNotFound)
		return
	}
	if maxSpeed == 0 {
		maxSpeed = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Measurement track", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Measurement track", Subtitle: fmt.Sprintf("measurement=%d points=%d", measurementID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSpeed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("track", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
