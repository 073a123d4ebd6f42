package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/umbra-data/multifit/internal/blend/deblend"
	"github.com/umbra-data/multifit/internal/blend/fit"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// DefaultWorkers bounds partition parallelism when no worker count is
// configured.
const DefaultWorkers = 4

// Pipeline runs one blend through deblending and fitting.
type Pipeline struct {
	// Deblender processes one exposure partition; nil skips deblending.
	Deblender deblend.ExposureDeblender
	// Fitter processes one object partition; nil skips fitting.
	Fitter fit.ObjectFitter
	// Workers bounds concurrent partitions; zero means DefaultWorkers.
	Workers int
}

// BlendResult reports one blend processed end to end. Stack is nil
// when any exposure partition failed (the aggregate cannot be
// assembled without its slice); per-partition errors identify exactly
// which slices are absent.
type BlendResult struct {
	RunID   string
	BlendID int64
	Stack   *obs.BlendObsDataStack

	ExposureErrors map[obs.ExposureID]error
	ObjectErrors   map[obs.ObjectID]error

	Deblended time.Duration
	Fitted    time.Duration
}

// Failed reports whether any partition failed.
func (r *BlendResult) Failed() bool {
	return len(r.ExposureErrors) > 0 || len(r.ObjectErrors) > 0
}

// ProcessBlend deblends the blend per exposure, then fits it per
// object, each phase running its partitions concurrently. The returned
// error covers pipeline-level problems only; partition failures are
// reported in the result so sibling partitions' output survives.
func (p *Pipeline) ProcessBlend(ctx context.Context, blendID int64, refs *obs.BlendObsRefStack) (*BlendResult, error) {
	if refs == nil || refs.Len() == 0 {
		return nil, fmt.Errorf("empty blend stack")
	}
	result := &BlendResult{
		RunID:          uuid.NewString(),
		BlendID:        blendID,
		ExposureErrors: make(map[obs.ExposureID]error),
		ObjectErrors:   make(map[obs.ObjectID]error),
	}

	if p.Deblender != nil {
		start := time.Now()
		p.deblendPhase(ctx, refs, result)
		result.Deblended = time.Since(start)
	}
	if p.Fitter != nil {
		start := time.Now()
		p.fitPhase(ctx, refs, result)
		result.Fitted = time.Since(start)
	}

	log.Printf("pipeline: run %s blend %d: %d entries, %d exposure failures, %d object failures",
		result.RunID, blendID, refs.Len(), len(result.ExposureErrors), len(result.ObjectErrors))
	return result, nil
}

// deblendPhase runs the per-exposure deblend partitions. Each worker
// writes only its own exposure's slice; results are merged into the
// aggregate stack strictly after every partition has finished.
func (p *Pipeline) deblendPhase(ctx context.Context, refs *obs.BlendObsRefStack, result *BlendResult) {
	views := refs.ByExposure()
	ids := make([]obs.ExposureID, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var mu sync.Mutex
	outputs := make(map[obs.ExposureID]*obs.BlendObsData, len(ids))
	p.forEach(ctx, len(ids), func(i int) {
		expID := ids[i]
		out, err := p.Deblender.ProcessExposure(ctx, views[expID])
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.ExposureErrors[expID] = err
			return
		}
		outputs[expID] = out
	})

	for _, id := range ids {
		if _, ok := outputs[id]; ok {
			continue
		}
		if _, ok := result.ExposureErrors[id]; !ok {
			// Partition never launched: the context was cancelled.
			result.ExposureErrors[id] = ctx.Err()
		}
	}
	if len(result.ExposureErrors) > 0 {
		return
	}
	stack, err := obs.AssembleByExposure(refs, outputs)
	if err != nil {
		// Assembly failure taints every partition equally.
		for _, id := range ids {
			result.ExposureErrors[id] = err
		}
		return
	}
	result.Stack = stack
}

// fitPhase runs the per-object fit partitions. Fitters attach Models to
// registries keyed by their own object, so concurrent partitions never
// write the same key.
func (p *Pipeline) fitPhase(ctx context.Context, refs *obs.BlendObsRefStack, result *BlendResult) {
	views := refs.ByObject()
	ids := make([]obs.ObjectID, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var mu sync.Mutex
	done := make(map[obs.ObjectID]bool, len(ids))
	p.forEach(ctx, len(ids), func(i int) {
		objID := ids[i]
		err := p.Fitter.ProcessObject(ctx, views[objID])
		mu.Lock()
		defer mu.Unlock()
		done[objID] = true
		if err != nil {
			result.ObjectErrors[objID] = err
		}
	})
	for _, id := range ids {
		if !done[id] {
			result.ObjectErrors[id] = ctx.Err()
		}
	}
}

// forEach runs fn(0..n-1) with bounded parallelism, honouring
// cancellation between partitions. A cancelled context stops launching
// new partitions; in-flight ones run to completion.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(i int)) {
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
