package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/umbra-data/multifit/internal/blend/model"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// ModelStore persists fit results. It is the output collaborator: it
// relies on the Model schema/value contract and validates every Model
// with model.CheckDict before writing, so a schema mismatch surfaces
// here rather than as corrupt rows.
type ModelStore struct {
	db *sql.DB
}

// NewModelStore creates a ModelStore backed by the given database.
func NewModelStore(db *sql.DB) *ModelStore {
	return &ModelStore{db: db}
}

// Record is one flattened model field read back from storage.
type Record struct {
	ObjectID   obs.ObjectID
	ExposureID *obs.ExposureID // nil for object-level models
	Algorithm  string
	Field      string
	Float      float64
	Int        int64
	IsInt      bool
}

// SaveBlendModels writes every Model reachable from the blend stack:
// object-level models for each member, and exposure-level models for
// each (object, exposure) reference.
func (m *ModelStore) SaveBlendModels(ctx context.Context, runID string, refs *obs.BlendObsRefStack) error {
	for _, id := range refs.Blend.ObjectIDs() {
		if err := m.saveRegistry(ctx, runID, id, nil, refs.Blend.Object(id).Models); err != nil {
			return err
		}
	}
	for _, k := range refs.Keys() {
		expID := k.Exposure
		if err := m.saveRegistry(ctx, runID, k.Object, &expID, refs.Entry(k).Models); err != nil {
			return err
		}
	}
	return nil
}

func (m *ModelStore) saveRegistry(ctx context.Context, runID string, objectID obs.ObjectID,
	exposureID *obs.ExposureID, reg *model.Registry) error {
	for _, key := range reg.Keys() {
		mdl := reg.Get(key)
		vals, err := model.CheckDict(mdl)
		if err != nil {
			return fmt.Errorf("model %q on object %d: %w", key, objectID, err)
		}
		flat := model.Flatten(vals)
		fields := make([]string, 0, len(flat))
		for f := range flat {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		// Object-level rows store exposure_id -1 rather than NULL so the
		// primary key actually replaces on re-insert.
		exp := int64(-1)
		if exposureID != nil {
			exp = int64(*exposureID)
		}
		for _, field := range fields {
			switch v := flat[field].(type) {
			case float64:
				_, err = m.db.ExecContext(ctx, `
					INSERT OR REPLACE INTO model_records
						(run_id, object_id, exposure_id, algorithm, field, dtype, value_f, value_i)
					VALUES (?, ?, ?, ?, ?, 'float64', ?, NULL)`,
					runID, objectID, exp, key, field, v)
			case int64:
				_, err = m.db.ExecContext(ctx, `
					INSERT OR REPLACE INTO model_records
						(run_id, object_id, exposure_id, algorithm, field, dtype, value_f, value_i)
					VALUES (?, ?, ?, ?, ?, 'int64', NULL, ?)`,
					runID, objectID, exp, key, field, v)
			default:
				// CheckDict admits only the two leaf types.
				err = fmt.Errorf("%w: field %q has type %T", model.ErrSchemaMismatch, field, v)
			}
			if err != nil {
				return fmt.Errorf("writing record %s/%s for object %d: %w", key, field, objectID, err)
			}
		}
	}
	return nil
}

// ObjectRecords reads back all records for one object and algorithm,
// across runs, ordered by field.
func (m *ModelStore) ObjectRecords(ctx context.Context, objectID obs.ObjectID, algorithm string) ([]Record, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT object_id, exposure_id, algorithm, field, dtype, value_f, value_i
		FROM model_records WHERE object_id = ? AND algorithm = ?
		ORDER BY exposure_id, field`, objectID, algorithm)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var exp sql.NullInt64
		var dtype string
		var f sql.NullFloat64
		var i sql.NullInt64
		if err := rows.Scan(&r.ObjectID, &exp, &r.Algorithm, &r.Field, &dtype, &f, &i); err != nil {
			return nil, err
		}
		if exp.Valid && exp.Int64 >= 0 {
			e := obs.ExposureID(exp.Int64)
			r.ExposureID = &e
		}
		if dtype == "int64" {
			r.IsInt = true
			r.Int = i.Int64
		} else {
			r.Float = f.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunStore persists pipeline run bookkeeping.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// RecordRun writes one finished pipeline run.
func (r *RunStore) RecordRun(ctx context.Context, runID string, blendID int64,
	started, finished time.Time, exposureFailures, objectFailures int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, blend_id, started_at, finished_at, exposure_failures, object_failures)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, blendID, started, finished, exposureFailures, objectFailures)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", runID, err)
	}
	return nil
}
