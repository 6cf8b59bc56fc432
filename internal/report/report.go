// Package report renders a measurement's recorded track and altitude
// samples as static PNG reports, for offline/CI use where the
// interactive HTML dashboards in internal/debugconsole aren't
// available. It has no precedent in the retrieval pack's source files
// (gonum.org/v1/gonum/plot appears only as a transitive dependency in
// the pack's go.mod manifests, never imported by any pack .go file) —
// see DESIGN.md for how this component's API usage was decided.
package report

import (
	"fmt"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

// Page dimensions for every rendered PNG.
const (
	pageWidth  = 8 * vg.Inch
	pageHeight = 6 * vg.Inch
)

// Generate renders a Measurement's track (longitude/latitude scatter)
// and altitude-over-time (line) as two PNG files derived from
// outPathBase: "<outPathBase>-track.png" and
// "<outPathBase>-altitude.png". Either file is skipped, without error,
// if the measurement has no samples for that panel; if neither panel has
// samples, Generate returns an error.
func Generate(m *measurestore.Measurement, outPathBase string) error {
	base := strings.TrimSuffix(outPathBase, ".png")

	track, err := trackPlot(m)
	if err != nil {
		return fmt.Errorf("report: build track plot: %w", err)
	}
	if track != nil {
		if err := track.Save(pageWidth, pageHeight, base+"-track.png"); err != nil {
			return fmt.Errorf("report: save track plot: %w", err)
		}
	}

	altitude, err := altitudePlot(m)
	if err != nil {
		return fmt.Errorf("report: build altitude plot: %w", err)
	}
	if altitude != nil {
		if err := altitude.Save(pageWidth, pageHeight, base+"-altitude.png"); err != nil {
			return fmt.Errorf("report: save altitude plot: %w", err)
		}
	}

	if track == nil && altitude == nil {
		return fmt.Errorf("report: measurement %d has no locations or altitudes to report", m.ID)
	}
	return nil
}

// trackPlot plots every recorded location as a longitude/latitude
// scatter, split by whether it survived the fix-quality filter. It
// returns nil, nil if the measurement has no locations.
func trackPlot(m *measurestore.Measurement) (*plot.Plot, error) {
	var clean, rejected plotter.XYs
	for _, t := range m.Tracks {
		for _, l := range t.Locations {
			pt := plotter.XY{X: l.Longitude, Y: l.Latitude}
			if l.IsPartOfCleanedTrack {
				clean = append(clean, pt)
			} else {
				rejected = append(rejected, pt)
			}
		}
	}
	if len(clean) == 0 && len(rejected) == 0 {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Measurement %d track", m.ID)
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	if len(clean) > 0 {
		if err := plotutil.AddScatters(p, "kept", clean); err != nil {
			return nil, err
		}
	}
	if len(rejected) > 0 {
		if err := plotutil.AddScatters(p, "rejected", rejected); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// altitudePlot plots barometer-derived altitude samples against
// elapsed time for every track in the measurement. It returns nil, nil
// if the measurement has no altitude samples.
func altitudePlot(m *measurestore.Measurement) (*plot.Plot, error) {
	var pts plotter.XYs
	for _, t := range m.Tracks {
		for _, a := range t.Altitudes {
			elapsedS := float64(a.TimeMs-m.StartTimeMs) / 1000
			pts = append(pts, plotter.XY{X: elapsedS, Y: a.ValueM})
		}
	}
	if len(pts) == 0 {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Measurement %d altitude", m.ID)
	p.X.Label.Text = "Elapsed seconds"
	p.Y.Label.Text = "Relative altitude (m)"

	if err := plotutil.AddLines(p, "altitude", pts); err != nil {
		return nil, err
	}
	return p, nil
}
