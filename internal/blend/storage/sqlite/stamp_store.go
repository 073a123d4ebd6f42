package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// Stamp cache tuning. Raw rows are cached, not decoded buffers, so
// every FetchStamp still hands out freshly allocated pixel storage as
// the Load contract requires.
const (
	stampCacheTTL     = 5 * time.Minute
	stampCacheCleanup = 10 * time.Minute
)

// StampStore loads postage-stamp pixel data from the stamps table and
// implements obs.Loader.
type StampStore struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewStampStore creates a StampStore backed by the given database.
func NewStampStore(db *sql.DB) *StampStore {
	return &StampStore{
		db:    db,
		cache: cache.New(stampCacheTTL, stampCacheCleanup),
	}
}

type stampRow struct {
	width, height       int
	image, mask, weight []byte
	psf                 []byte
	psfWidth, psfHeight int
}

// FetchStamp implements obs.Loader. The returned stamp's buffers are
// freshly allocated on every call; callers may mutate them freely.
func (s *StampStore) FetchStamp(ctx context.Context, ref *obs.ObsRef) (*obs.Stamp, error) {
	row, err := s.fetchRow(ctx, ref.ObjectID(), ref.Exposure)
	if err != nil {
		return nil, err
	}
	b := ref.Bounds
	if row.width != b.Width() || row.height != b.Height() {
		return nil, fmt.Errorf("stamp for %s is %dx%d, reference bounds are %dx%d",
			ref.Key(), row.width, row.height, b.Width(), b.Height())
	}

	img, err := geom.NewImageFrom(decodeFloat64(row.image), row.width, row.height, b.X0, b.Y0)
	if err != nil {
		return nil, fmt.Errorf("decoding image for %s: %w", ref.Key(), err)
	}
	stamp := &obs.Stamp{Image: img}
	if row.mask != nil {
		msk, err := geom.NewMaskFrom(decodeUint32(row.mask), row.width, row.height, b.X0, b.Y0)
		if err != nil {
			return nil, fmt.Errorf("decoding mask for %s: %w", ref.Key(), err)
		}
		stamp.Mask = msk
	}
	if row.weight != nil {
		wgt, err := geom.NewImageFrom(decodeFloat64(row.weight), row.width, row.height, b.X0, b.Y0)
		if err != nil {
			return nil, fmt.Errorf("decoding weight for %s: %w", ref.Key(), err)
		}
		stamp.Weight = wgt
	}
	if row.psf != nil && row.psfWidth > 0 && row.psfHeight > 0 {
		kernel, err := geom.NewImageFrom(decodeFloat64(row.psf), row.psfWidth, row.psfHeight,
			-row.psfWidth/2, -row.psfHeight/2)
		if err != nil {
			return nil, fmt.Errorf("decoding psf for %s: %w", ref.Key(), err)
		}
		stamp.PSF = obs.NewPSF(kernel, nil)
	}
	return stamp, nil
}

func (s *StampStore) fetchRow(ctx context.Context, objectID obs.ObjectID, exposureID obs.ExposureID) (*stampRow, error) {
	key := fmt.Sprintf("%d/%d", objectID, exposureID)
	if v, ok := s.cache.Get(key); ok {
		return v.(*stampRow), nil
	}
	row := &stampRow{}
	err := s.db.QueryRowContext(ctx, `
		SELECT width, height, image, mask, weight, psf, psf_width, psf_height
		FROM stamps WHERE object_id = ? AND exposure_id = ?`,
		objectID, exposureID,
	).Scan(&row.width, &row.height, &row.image, &row.mask, &row.weight,
		&row.psf, &row.psfWidth, &row.psfHeight)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no stamp for object %d exposure %d", objectID, exposureID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying stamp: %w", err)
	}
	s.cache.Set(key, row, cache.DefaultExpiration)
	return row, nil
}

// PutStamp stores the pixel payload for one observation. psf may be
// nil; mask and weight may be nil independently of each other.
func (s *StampStore) PutStamp(ctx context.Context, objectID obs.ObjectID, exposureID obs.ExposureID,
	image *geom.Image, mask *geom.Mask, weight *geom.Image, psf *geom.Image) error {
	var maskBytes, weightBytes, psfBytes []byte
	var psfW, psfH int
	if mask != nil {
		maskBytes = encodeUint32(mask.Bits)
	}
	if weight != nil {
		weightBytes = encodeFloat64(weight.Pix)
	}
	if psf != nil {
		psfBytes = encodeFloat64(psf.Pix)
		psfW, psfH = psf.Width, psf.Height
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO stamps
			(object_id, exposure_id, width, height, image, mask, weight, psf, psf_width, psf_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		objectID, exposureID, image.Width, image.Height,
		encodeFloat64(image.Pix), maskBytes, weightBytes, psfBytes, psfW, psfH)
	if err != nil {
		return fmt.Errorf("storing stamp for object %d exposure %d: %w", objectID, exposureID, err)
	}
	s.cache.Delete(fmt.Sprintf("%d/%d", objectID, exposureID))
	return nil
}

// Blob codecs: little-endian, row-major, matching the schema comments.

func encodeFloat64(vals []float64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func decodeFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

func encodeUint32(vals []uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

func decodeUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
