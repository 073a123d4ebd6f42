// Command report renders fit results for one object as an HTML page of
// ECharts plots: per-exposure flux measurements plus the combined
// object-level parameters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/umbra-data/multifit/internal/blend/obs"
	storage "github.com/umbra-data/multifit/internal/blend/storage/sqlite"
	"github.com/umbra-data/multifit/internal/db"
	"github.com/umbra-data/multifit/internal/units"
)

var (
	dbFile    = flag.String("db", "multifit.db", "Path to the survey SQLite database")
	objectID  = flag.Int64("object", 0, "Object id to report on (required)")
	algorithm = flag.String("algorithm", "moments", "Algorithm key to select records for")
	outFile   = flag.String("out", "report.html", "Output HTML file")
)

func main() {
	flag.Parse()
	if *objectID == 0 {
		flag.Usage()
		log.Fatal("missing required -object flag")
	}

	database, err := db.Open(*dbFile)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	models := storage.NewModelStore(database.DB)
	records, err := models.ObjectRecords(context.Background(), obs.ObjectID(*objectID), *algorithm)
	if err != nil {
		log.Fatalf("reading records: %v", err)
	}
	if len(records) == 0 {
		log.Fatalf("no %q records for object %d", *algorithm, *objectID)
	}

	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Object %d (%s)", *objectID, *algorithm))
	if flux := fluxChart(records); flux != nil {
		page.AddCharts(flux)
	}
	page.AddCharts(paramsChart(records))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("creating %s: %v", *outFile, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("rendering report: %v", err)
	}
	log.Printf("wrote %s (%d records)", *outFile, len(records))
}

// fluxChart plots per-exposure flux measurements in magnitudes, one bar per
// exposure. Returns nil when the records carry no per-exposure fluxes.
func fluxChart(records []storage.Record) components.Charter {
	type expFlux struct {
		exp  obs.ExposureID
		flux float64
		sig  float64
	}
	byExp := map[obs.ExposureID]*expFlux{}
	for _, r := range records {
		if r.ExposureID == nil {
			continue
		}
		e := byExp[*r.ExposureID]
		if e == nil {
			e = &expFlux{exp: *r.ExposureID}
			byExp[*r.ExposureID] = e
		}
		switch r.Field {
		case "flux.value":
			e.flux = r.Float
		case "flux.sigma":
			e.sig = r.Float
		}
	}
	if len(byExp) == 0 {
		return nil
	}

	fluxes := make([]*expFlux, 0, len(byExp))
	for _, e := range byExp {
		fluxes = append(fluxes, e)
	}
	sort.Slice(fluxes, func(i, j int) bool { return fluxes[i].exp < fluxes[j].exp })

	x := make([]string, 0, len(fluxes))
	y := make([]opts.BarData, 0, len(fluxes))
	for _, e := range fluxes {
		label := fmt.Sprintf("exp %d", e.exp)
		if e.flux > 0 {
			mag := units.FluxToMag(e.flux)
			magErr := units.MagErr(e.flux, e.sig)
			x = append(x, label)
			y = append(y, opts.BarData{Value: mag, Name: fmt.Sprintf("%.3f ± %.3f mag", mag, magErr)})
		} else {
			x = append(x, label)
			y = append(y, opts.BarData{Value: 0, Name: "non-positive flux"})
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Per-exposure flux", Subtitle: fmt.Sprintf("%d exposures, AB magnitudes", len(fluxes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mag (AB)"}),
	)
	bar.SetXAxis(x).
		AddSeries("flux", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// paramsChart plots the combined object-level parameters as labelled bars.
func paramsChart(records []storage.Record) components.Charter {
	x := []string{}
	y := []opts.BarData{}
	for _, r := range records {
		if r.ExposureID != nil {
			continue
		}
		if r.IsInt {
			x = append(x, r.Field)
			y = append(y, opts.BarData{Value: r.Int})
			continue
		}
		x = append(x, r.Field)
		y = append(y, opts.BarData{Value: r.Float})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Combined parameters", Subtitle: fmt.Sprintf("%d fields", len(x))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("value", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
