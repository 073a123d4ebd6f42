package obs_test

import (
	"context"
	"testing"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
	"github.com/umbra-data/multifit/internal/testutil"
)

func TestAddNeighborRejectsSelfAndNil(t *testing.T) {
	scene := testutil.NewTwoObjectScene(t)
	ref := scene.Stack.Entry(obs.Key{Object: scene.ObjectA, Exposure: scene.Exp1})

	testutil.AssertErrorIs(t, ref.AddNeighbor(nil), obs.ErrNeighborInconsistency)
	testutil.AssertErrorIs(t, ref.AddNeighbor(ref), obs.ErrNeighborInconsistency)
}

func TestNeighborStateMachine(t *testing.T) {
	scene := testutil.NewTwoObjectScene(t)
	k := obs.Key{Object: scene.ObjectA, Exposure: scene.Exp1}
	ref := scene.Stack.Entry(k)

	state, known := ref.NeighborState(scene.ObjectB)
	if !known || state != obs.Present {
		t.Fatalf("initial state = %v (known=%v), want present", state, known)
	}
	if len(ref.Neighbors()) != 1 {
		t.Fatalf("Neighbors = %v, want one present neighbour", ref.Neighbors())
	}

	// A receipt is only produced by an actual pixel mutation.
	data, err := ref.Load(context.Background(), nil)
	testutil.AssertNoError(t, err)
	rendered := geom.NewImage(4, 4, 20, 20)
	for i := range rendered.Pix {
		rendered.Pix[i] = 1
	}
	receipt, err := data.SubtractNeighbor(scene.ObjectB, rendered)
	testutil.AssertNoError(t, err)
	if receipt.PixelsChanged != 16 {
		t.Errorf("PixelsChanged = %d, want 16", receipt.PixelsChanged)
	}

	testutil.AssertNoError(t, ref.MarkSubtracted(scene.ObjectB, receipt))
	state, _ = ref.NeighborState(scene.ObjectB)
	if state != obs.Subtracted {
		t.Errorf("state = %v, want subtracted", state)
	}
	if len(ref.Neighbors()) != 0 {
		t.Error("subtracted neighbours must not appear in Neighbors")
	}
	if ids := ref.NeighborIDs(); len(ids) != 1 || ids[0] != scene.ObjectB {
		t.Errorf("NeighborIDs = %v, want the full set regardless of state", ids)
	}

	// Marking again with the same valid receipt is a no-op.
	testutil.AssertNoError(t, ref.MarkSubtracted(scene.ObjectB, receipt))

	// ResetNeighbors returns everyone to present for a re-run.
	ref.ResetNeighbors()
	state, _ = ref.NeighborState(scene.ObjectB)
	if state != obs.Present {
		t.Errorf("state after reset = %v, want present", state)
	}
}

func TestMarkSubtractedRejectsBogusReceipts(t *testing.T) {
	scene := testutil.NewTwoObjectScene(t)
	k := obs.Key{Object: scene.ObjectA, Exposure: scene.Exp1}
	ref := scene.Stack.Entry(k)

	good := obs.PixelMutation{
		Object:        scene.ObjectA,
		Exposure:      scene.Exp1,
		Neighbor:      scene.ObjectB,
		PixelsChanged: 10,
	}
	tests := []struct {
		name    string
		receipt obs.PixelMutation
	}{
		{"wrong object", func() obs.PixelMutation { r := good; r.Object = 99; return r }()},
		{"wrong exposure", func() obs.PixelMutation { r := good; r.Exposure = 999; return r }()},
		{"wrong neighbour", func() obs.PixelMutation { r := good; r.Neighbor = 99; return r }()},
		{"no pixels changed", func() obs.PixelMutation { r := good; r.PixelsChanged = 0; return r }()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ref.MarkSubtracted(scene.ObjectB, tc.receipt)
			testutil.AssertErrorIs(t, err, obs.ErrNeighborInconsistency)
			state, _ := ref.NeighborState(scene.ObjectB)
			if state != obs.Present {
				t.Error("rejected receipt must not change state")
			}
		})
	}

	// An unknown neighbour id is rejected even with a matching receipt.
	unknown := good
	unknown.Neighbor = 77
	testutil.AssertErrorIs(t, ref.MarkSubtracted(77, unknown), obs.ErrNeighborInconsistency)
}

func TestSubtractNeighborRequiresOverlap(t *testing.T) {
	scene := testutil.NewTwoObjectScene(t)
	ref := scene.Stack.Entry(obs.Key{Object: scene.ObjectA, Exposure: scene.Exp1})
	data, err := ref.Load(context.Background(), nil)
	testutil.AssertNoError(t, err)

	// A rendering entirely outside the stamp touches nothing and must
	// not yield a receipt.
	outside := geom.NewImage(4, 4, 500, 500)
	for i := range outside.Pix {
		outside.Pix[i] = 1
	}
	_, err = data.SubtractNeighbor(scene.ObjectB, outside)
	testutil.AssertErrorIs(t, err, obs.ErrNeighborInconsistency)

	_, err = data.SubtractNeighbor(scene.ObjectB, nil)
	testutil.AssertErrorIs(t, err, obs.ErrNeighborInconsistency)
}

func TestMaskNeighborResidualLeavesWeights(t *testing.T) {
	scene := testutil.NewTwoObjectScene(t)
	ref := scene.Stack.Entry(obs.Key{Object: scene.ObjectA, Exposure: scene.Exp1})
	data, err := ref.Load(context.Background(), nil)
	testutil.AssertNoError(t, err)
	before := data.Weight.Clone()

	rendered := geom.NewImage(4, 4, 10, 10)
	rendered.Pix = []float64{
		0, 0, 0, 0,
		0, 2, 2, 0,
		0, 2, 2, 0,
		0, 0, 0, 0,
	}
	masked := data.MaskNeighborResidual(rendered, 1.0)
	if masked != 4 {
		t.Fatalf("masked %d pixels, want 4", masked)
	}
	if data.Mask.At(11, 11)&geom.MaskNeighbor == 0 {
		t.Error("central pixels should carry the neighbour plane")
	}
	if data.Mask.At(10, 10)&geom.MaskNeighbor != 0 {
		t.Error("sub-threshold pixel should stay clear")
	}
	if !data.Weight.Equal(before) {
		t.Error("masking must never touch weights")
	}
}
