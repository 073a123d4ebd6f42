// Command blendproc runs the blend processing pipeline: it loads blend
// reference graphs from the catalog database, deblends each blend per
// exposure, fits each object, and persists the resulting model records.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/umbra-data/multifit/internal/blend/deblend"
	"github.com/umbra-data/multifit/internal/blend/fit"
	"github.com/umbra-data/multifit/internal/blend/pipeline"
	storage "github.com/umbra-data/multifit/internal/blend/storage/sqlite"
	"github.com/umbra-data/multifit/internal/config"
	"github.com/umbra-data/multifit/internal/db"
)

var (
	dbFile      = flag.String("db", "", "Path to the survey SQLite database (default from config)")
	configFile  = flag.String("config", "", "Path to a tuning config JSON file")
	blendID     = flag.Int64("blend", 0, "Process only this blend id (default: all blends)")
	workers     = flag.Int("workers", 0, "Partition parallelism (default from config)")
	skipDeblend = flag.Bool("skip-deblend", false, "Skip the deblend phase")
	skipFit     = flag.Bool("skip-fit", false, "Skip the fit phase")
)

func main() {
	flag.Parse()

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	path := *dbFile
	if path == "" {
		path = cfg.GetDatabasePath()
	}

	database, err := db.Open(path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(cfg.GetMigrationsDir()); err != nil {
		log.Fatalf("migrating database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := storage.NewCatalogStore(database.DB)
	stamps := storage.NewStampStore(database.DB)
	models := storage.NewModelStore(database.DB)
	runs := storage.NewRunStore(database.DB)

	p := &pipeline.Pipeline{Workers: *workers}
	if p.Workers == 0 {
		p.Workers = cfg.GetWorkers()
	}
	if !*skipDeblend {
		p.Deblender = &deblend.ModelSubtract{
			ModelKey:      cfg.GetDeblendModelKey(),
			MaskThreshold: cfg.GetDeblendMaskThreshold(),
		}
	}
	if !*skipFit {
		p.Fitter = &fit.Moments{Key: cfg.GetFitAlgorithmKey()}
	}

	blendIDs := []int64{*blendID}
	if *blendID == 0 {
		blendIDs, err = catalog.BlendIDs(ctx)
		if err != nil {
			log.Fatalf("listing blends: %v", err)
		}
	}
	log.Printf("processing %d blend(s) from %s with %d workers", len(blendIDs), path, p.Workers)

	failures := 0
	for _, id := range blendIDs {
		if ctx.Err() != nil {
			log.Printf("interrupted before blend %d, stopping", id)
			break
		}
		if err := processOne(ctx, p, catalog, stamps, models, runs, id); err != nil {
			log.Printf("blend %d failed: %v", id, err)
			failures++
		}
	}
	if failures > 0 {
		log.Fatalf("%d blend(s) failed", failures)
	}
}

func processOne(ctx context.Context, p *pipeline.Pipeline, catalog *storage.CatalogStore,
	stamps *storage.StampStore, models *storage.ModelStore, runs *storage.RunStore, blendID int64) error {
	_, refs, err := catalog.LoadBlend(ctx, blendID, stamps)
	if err != nil {
		return err
	}

	started := time.Now()
	result, err := p.ProcessBlend(ctx, blendID, refs)
	if err != nil {
		return err
	}
	for expID, perr := range result.ExposureErrors {
		log.Printf("blend %d exposure %d: %v", blendID, expID, perr)
	}
	for objID, perr := range result.ObjectErrors {
		log.Printf("blend %d object %d: %v", blendID, objID, perr)
	}

	if err := models.SaveBlendModels(ctx, result.RunID, refs); err != nil {
		return err
	}
	return runs.RecordRun(ctx, result.RunID, blendID, started, time.Now(),
		len(result.ExposureErrors), len(result.ObjectErrors))
}
