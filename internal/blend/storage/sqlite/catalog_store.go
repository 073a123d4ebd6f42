package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// CatalogStore builds reference graphs from the catalog tables. The
// core consumes the graphs as given; all querying lives here.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore creates a CatalogStore backed by the given database.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// BlendIDs returns all blend ids in ascending order.
func (c *CatalogStore) BlendIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT blend_id FROM blends ORDER BY blend_id`)
	if err != nil {
		return nil, fmt.Errorf("querying blends: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadBlend reconstructs the full reference graph of one blend: its
// BlendData, every member's per-exposure ObsRef with neighbour sets,
// and the (object × exposure) reference stack. loader becomes the
// storage collaborator behind every reference's Load.
func (c *CatalogStore) LoadBlend(ctx context.Context, blendID int64, loader obs.Loader) (*obs.BlendData, *obs.BlendObsRefStack, error) {
	objects, err := c.loadMembers(ctx, blendID)
	if err != nil {
		return nil, nil, err
	}
	if len(objects) == 0 {
		return nil, nil, fmt.Errorf("blend %d has no members", blendID)
	}
	members := make([]*obs.ObjectData, 0, len(objects))
	for _, o := range objects {
		members = append(members, o)
	}
	blend, err := obs.NewBlendData(members...)
	if err != nil {
		return nil, nil, fmt.Errorf("blend %d: %w", blendID, err)
	}

	refs, index, err := c.loadObservations(ctx, objects, loader)
	if err != nil {
		return nil, nil, fmt.Errorf("blend %d: %w", blendID, err)
	}
	if err := c.loadNeighbors(ctx, index); err != nil {
		return nil, nil, fmt.Errorf("blend %d: %w", blendID, err)
	}

	stack, err := obs.NewBlendObsRefStack(blend, refs...)
	if err != nil {
		return nil, nil, fmt.Errorf("blend %d: %w", blendID, err)
	}
	return blend, stack, nil
}

func (c *CatalogStore) loadMembers(ctx context.Context, blendID int64) (map[obs.ObjectID]*obs.ObjectData, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT o.object_id, o.ra, o.dec, o.region
		FROM blend_members m JOIN objects o ON o.object_id = m.object_id
		WHERE m.blend_id = ? ORDER BY o.object_id`, blendID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()
	out := make(map[obs.ObjectID]*obs.ObjectData)
	for rows.Next() {
		var id int64
		var ra, dec float64
		var region string
		if err := rows.Scan(&id, &ra, &dec, &region); err != nil {
			return nil, err
		}
		reg, err := DecodeRegion(region)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", id, err)
		}
		out[obs.ObjectID(id)] = obs.NewObjectData(obs.ObjectID(id), reg, geom.SkyPoint{RA: ra, Dec: dec})
	}
	return out, rows.Err()
}

func (c *CatalogStore) loadObservations(ctx context.Context, objects map[obs.ObjectID]*obs.ObjectData,
	loader obs.Loader) ([]*obs.ObsRef, map[obs.Key]*obs.ObsRef, error) {
	args := make([]any, 0, len(objects))
	for id := range objects {
		args = append(args, int64(id))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := c.db.QueryContext(ctx, `
		SELECT object_id, exposure_id, is_coadd, filter,
		       x0, y0, x1, y1,
		       wcs_xx, wcs_xy, wcs_yx, wcs_yy, wcs_x0, wcs_y0, region
		FROM observations WHERE object_id IN (`+placeholders+`)
		ORDER BY object_id, exposure_id`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	var refs []*obs.ObsRef
	index := make(map[obs.Key]*obs.ObsRef)
	for rows.Next() {
		var objID, expID int64
		var isCoadd bool
		var filter, region string
		var b geom.Box
		var t geom.AffineTransform
		if err := rows.Scan(&objID, &expID, &isCoadd, &filter,
			&b.X0, &b.Y0, &b.X1, &b.Y1,
			&t.XX, &t.XY, &t.YX, &t.YY, &t.X0, &t.Y0, &region); err != nil {
			return nil, nil, err
		}
		reg, err := DecodeRegion(region)
		if err != nil {
			return nil, nil, fmt.Errorf("observation %d/%d: %w", objID, expID, err)
		}
		ref := obs.NewObsRef(objects[obs.ObjectID(objID)], obs.ExposureID(expID), isCoadd, filter,
			&geom.WCS{PixelToSkyTransform: t}, reg, b, loader)
		refs = append(refs, ref)
		index[ref.Key()] = ref
	}
	return refs, index, rows.Err()
}

func (c *CatalogStore) loadNeighbors(ctx context.Context, index map[obs.Key]*obs.ObsRef) error {
	for k, ref := range index {
		rows, err := c.db.QueryContext(ctx, `
			SELECT neighbor_id FROM neighbors
			WHERE object_id = ? AND exposure_id = ? ORDER BY neighbor_id`,
			k.Object, k.Exposure)
		if err != nil {
			return fmt.Errorf("querying neighbors for %s: %w", k, err)
		}
		for rows.Next() {
			var nid int64
			if err := rows.Scan(&nid); err != nil {
				rows.Close()
				return err
			}
			nref, ok := index[obs.Key{Object: obs.ObjectID(nid), Exposure: k.Exposure}]
			if !ok {
				rows.Close()
				return fmt.Errorf("%w: neighbor %d of %s has no observation", obs.ErrNeighborInconsistency, nid, k)
			}
			if err := ref.AddNeighbor(nref); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

// InsertObject writes one catalog object row.
func (c *CatalogStore) InsertObject(ctx context.Context, id obs.ObjectID, position geom.SkyPoint, region geom.SkyRegion) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO objects (object_id, ra, dec, region) VALUES (?, ?, ?, ?)`,
		id, position.RA, position.Dec, EncodeRegion(region))
	return err
}

// InsertBlend writes a blend and its membership rows.
func (c *CatalogStore) InsertBlend(ctx context.Context, blendID int64, members ...obs.ObjectID) error {
	if _, err := c.db.ExecContext(ctx, `INSERT INTO blends (blend_id) VALUES (?)`, blendID); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := c.db.ExecContext(ctx,
			`INSERT INTO blend_members (blend_id, object_id) VALUES (?, ?)`, blendID, m); err != nil {
			return err
		}
	}
	return nil
}

// InsertObservation writes one observation row.
func (c *CatalogStore) InsertObservation(ctx context.Context, id obs.ObjectID, exposure obs.ExposureID,
	isCoadd bool, filter string, bounds geom.Box, wcs *geom.WCS, region geom.SkyRegion) error {
	t := wcs.PixelToSkyTransform
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO observations
			(object_id, exposure_id, is_coadd, filter, x0, y0, x1, y1,
			 wcs_xx, wcs_xy, wcs_yx, wcs_yy, wcs_x0, wcs_y0, region)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, exposure, isCoadd, filter, bounds.X0, bounds.Y0, bounds.X1, bounds.Y1,
		t.XX, t.XY, t.YX, t.YY, t.X0, t.Y0, EncodeRegion(region))
	return err
}

// InsertNeighbor records that neighbor overlaps object in exposure.
func (c *CatalogStore) InsertNeighbor(ctx context.Context, id obs.ObjectID, exposure obs.ExposureID, neighbor obs.ObjectID) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO neighbors (object_id, exposure_id, neighbor_id) VALUES (?, ?, ?)`,
		id, exposure, neighbor)
	return err
}

// EncodeRegion serialises a region as comma-separated begin:end pairs.
func EncodeRegion(r geom.SkyRegion) string {
	ranges := r.Ranges()
	parts := make([]string, len(ranges))
	for i, rr := range ranges {
		parts[i] = fmt.Sprintf("%d:%d", rr.Begin, rr.End)
	}
	return strings.Join(parts, ",")
}

// DecodeRegion parses the EncodeRegion format.
func DecodeRegion(s string) (geom.SkyRegion, error) {
	if s == "" {
		return geom.SkyRegion{}, nil
	}
	var ranges []geom.SkyRange
	for _, part := range strings.Split(s, ",") {
		var begin, end uint64
		if _, err := fmt.Sscanf(part, "%d:%d", &begin, &end); err != nil {
			return geom.SkyRegion{}, fmt.Errorf("bad region range %q: %w", part, err)
		}
		ranges = append(ranges, geom.SkyRange{Begin: begin, End: end})
	}
	return geom.NewSkyRegion(ranges...), nil
}
