package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umbra-data/multifit/internal/blend/fit"
	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
	storage "github.com/umbra-data/multifit/internal/blend/storage/sqlite"
	"github.com/umbra-data/multifit/internal/db"
)

const migrationsDir = "../../../../migrations"

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.MigrateUp(migrationsDir))
	return d
}

func testWCS() *geom.WCS {
	return &geom.WCS{PixelToSkyTransform: geom.AffineTransform{
		XX: 1e-4, YY: 1e-4, X0: 200, Y0: 10,
	}}
}

// seedCatalog inserts a two-object blend observed in two exposures with
// mutual neighbour rows, and stamps for every observation.
func seedCatalog(t *testing.T, d *db.DB) (*storage.CatalogStore, *storage.StampStore) {
	t.Helper()
	ctx := context.Background()
	catalog := storage.NewCatalogStore(d.DB)
	stamps := storage.NewStampStore(d.DB)

	wcs := testWCS()
	bounds := geom.Box{X0: 0, Y0: 0, X1: 15, Y1: 15}
	region := geom.RegionAround(geom.SkyPoint{RA: 200.001, Dec: 10.001}, 2e-3)

	objects := []obs.ObjectID{1, 2}
	exposures := []obs.ExposureID{101, 102}
	for _, id := range objects {
		pos := wcs.PixelToSky(float64(4+8*int(id-1)), 8)
		require.NoError(t, catalog.InsertObject(ctx, id, pos, region))
	}
	require.NoError(t, catalog.InsertBlend(ctx, 7, objects...))

	for _, id := range objects {
		for _, expID := range exposures {
			require.NoError(t, catalog.InsertObservation(ctx, id, expID, false, "r", bounds, wcs, region))
			other := objects[0]
			if id == other {
				other = objects[1]
			}
			require.NoError(t, catalog.InsertNeighbor(ctx, id, expID, other))

			image := geom.NewImage(16, 16, 0, 0)
			for i := range image.Pix {
				image.Pix[i] = float64(id) * 10
			}
			weight := geom.NewImage(16, 16, 0, 0)
			for i := range weight.Pix {
				weight.Pix[i] = 1
			}
			mask := geom.NewMask(16, 16, 0, 0)
			psf := geom.NewImage(5, 5, -2, -2)
			psf.Set(0, 0, 1)
			require.NoError(t, stamps.PutStamp(ctx, id, expID, image, mask, weight, psf))
		}
	}
	return catalog, stamps
}

func TestMigrationsApplyCleanly(t *testing.T) {
	d := openTestDB(t)
	version, dirty, err := d.MigrateVersion(migrationsDir)
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 2, version)
}

func TestLoadBlendReconstructsGraph(t *testing.T) {
	d := openTestDB(t)
	catalog, stamps := seedCatalog(t, d)
	ctx := context.Background()

	ids, err := catalog.BlendIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, ids)

	blend, stack, err := catalog.LoadBlend(ctx, 7, stamps)
	require.NoError(t, err)
	require.Equal(t, 2, blend.Len())
	require.Equal(t, 4, stack.Len())

	// Neighbour sets were wired from the neighbors table.
	for _, k := range stack.Keys() {
		ref := stack.Entry(k)
		nids := ref.NeighborIDs()
		require.Len(t, nids, 1, "entry %s", k)
		state, known := ref.NeighborState(nids[0])
		require.True(t, known)
		require.Equal(t, obs.Present, state)
	}

	// The references load real pixels through the stamp store.
	data, err := stack.Entry(obs.Key{Object: 2, Exposure: 101}).Load(ctx, nil)
	require.NoError(t, err)
	require.InDelta(t, 20.0, data.Image.At(3, 3), 1e-12)
	require.NotNil(t, data.PSF)
	require.InDelta(t, 1.0, data.PSF.Kernel().At(0, 0), 1e-12)
}

func TestLoadBlendMissingNeighborObservation(t *testing.T) {
	d := openTestDB(t)
	catalog, stamps := seedCatalog(t, d)
	ctx := context.Background()

	// A neighbour row pointing at an object with no observation in
	// that exposure is a broken graph, not a silently dropped edge.
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO neighbors (object_id, exposure_id, neighbor_id) VALUES (1, 101, 99)`)
	require.NoError(t, err)

	_, _, err = catalog.LoadBlend(ctx, 7, stamps)
	require.ErrorIs(t, err, obs.ErrNeighborInconsistency)
}

func TestStampRoundTripFreshBuffers(t *testing.T) {
	d := openTestDB(t)
	_, stamps := seedCatalog(t, d)
	ctx := context.Background()

	pos := geom.SkyPoint{RA: 200, Dec: 10}
	object := obs.NewObjectData(1, geom.RegionAround(pos, 1e-3), pos)
	bounds := geom.Box{X0: 0, Y0: 0, X1: 15, Y1: 15}
	ref := obs.NewObsRef(object, 101, false, "r", testWCS(), object.SkyRegion(), bounds, stamps)

	first, err := stamps.FetchStamp(ctx, ref)
	require.NoError(t, err)
	second, err := stamps.FetchStamp(ctx, ref)
	require.NoError(t, err)

	// Cached or not, every fetch hands out its own buffers.
	first.Image.Pix[0] += 99
	require.NotEqual(t, first.Image.Pix[0], second.Image.Pix[0])

	// A reference whose bounds disagree with the stored stamp is
	// rejected.
	badRef := obs.NewObsRef(object, 101, false, "r", testWCS(), object.SkyRegion(),
		geom.Box{X0: 0, Y0: 0, X1: 7, Y1: 7}, stamps)
	_, err = stamps.FetchStamp(ctx, badRef)
	require.Error(t, err)

	// Unknown observations have no stamp.
	unknownRef := obs.NewObsRef(object, 999, false, "r", testWCS(), object.SkyRegion(), bounds, stamps)
	_, err = stamps.FetchStamp(ctx, unknownRef)
	require.Error(t, err)
}

func TestPutStampInvalidatesCache(t *testing.T) {
	d := openTestDB(t)
	_, stamps := seedCatalog(t, d)
	ctx := context.Background()

	pos := geom.SkyPoint{RA: 200, Dec: 10}
	object := obs.NewObjectData(1, geom.RegionAround(pos, 1e-3), pos)
	bounds := geom.Box{X0: 0, Y0: 0, X1: 15, Y1: 15}
	ref := obs.NewObsRef(object, 101, false, "r", testWCS(), object.SkyRegion(), bounds, stamps)

	before, err := stamps.FetchStamp(ctx, ref)
	require.NoError(t, err)

	image := geom.NewImage(16, 16, 0, 0)
	for i := range image.Pix {
		image.Pix[i] = 77
	}
	require.NoError(t, stamps.PutStamp(ctx, 1, 101, image, nil, nil, nil))

	after, err := stamps.FetchStamp(ctx, ref)
	require.NoError(t, err)
	require.InDelta(t, 77.0, after.Image.Pix[0], 1e-12)
	require.NotEqual(t, before.Image.Pix[0], after.Image.Pix[0])
}

func TestRegionCodecRoundTrip(t *testing.T) {
	tests := []geom.SkyRegion{
		{},
		geom.NewSkyRegion(geom.SkyRange{Begin: 0, End: 10}),
		geom.NewSkyRegion(geom.SkyRange{Begin: 5, End: 10}, geom.SkyRange{Begin: 100, End: 250}),
	}
	for _, r := range tests {
		decoded, err := storage.DecodeRegion(storage.EncodeRegion(r))
		require.NoError(t, err)
		require.True(t, decoded.Equal(r), "round trip changed %v", r.Ranges())
	}

	_, err := storage.DecodeRegion("not-a-region")
	require.Error(t, err)
}

func TestSaveBlendModelsAndReadBack(t *testing.T) {
	d := openTestDB(t)
	catalog, stamps := seedCatalog(t, d)
	ctx := context.Background()

	blend, stack, err := catalog.LoadBlend(ctx, 7, stamps)
	require.NoError(t, err)

	combined := &fit.MomentsModel{
		Center: geom.SkyPoint{RA: 200.0018, Dec: 10.0024},
		Flux:   1000, FluxSigma: 5,
		Ixx: 4, Iyy: 4, Ixy: 0,
		NExposures: 2, PixelScale: 1e-4,
	}
	blend.Object(1).AttachModel("moments", combined)
	stack.Entry(obs.Key{Object: 1, Exposure: 101}).Models.Attach("moments", &fit.FluxModel{
		Exposure: 101, Flux: 480, FluxSigma: 7, Background: 0.4,
		Center: combined.Center,
	})

	models := storage.NewModelStore(d.DB)
	runs := storage.NewRunStore(d.DB)
	runID := "test-run"
	started := time.Now()
	require.NoError(t, runs.RecordRun(ctx, runID, 7, started, time.Now(), 0, 0))
	require.NoError(t, models.SaveBlendModels(ctx, runID, stack))

	records, err := models.ObjectRecords(ctx, 1, "moments")
	require.NoError(t, err)

	byField := map[string]storage.Record{}
	perExposure := 0
	for _, r := range records {
		if r.ExposureID != nil {
			perExposure++
			continue
		}
		byField[r.Field] = r
	}
	require.InDelta(t, 1000.0, byField["flux.value"].Float, 1e-12)
	require.InDelta(t, 200.0018, byField["centroid.ra"].Float, 1e-12)
	require.True(t, byField["n_exposures"].IsInt)
	require.EqualValues(t, 2, byField["n_exposures"].Int)
	require.Equal(t, 6, perExposure, "flux model fields: exposure, flux value/sigma, centroid ra/dec, background")

	// Re-saving the same run overwrites rather than duplicates.
	combined.Flux = 1100
	require.NoError(t, models.SaveBlendModels(ctx, runID, stack))
	records, err = models.ObjectRecords(ctx, 1, "moments")
	require.NoError(t, err)
	count := 0
	for _, r := range records {
		if r.ExposureID == nil && r.Field == "flux.value" {
			count++
			require.InDelta(t, 1100.0, r.Float, 1e-12)
		}
	}
	require.Equal(t, 1, count)
}
