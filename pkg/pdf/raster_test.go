package pdf

import (
	"math"
	"testing"
)

func TestBlendOverOpaqueSourceReplacesDestination(t *testing.T) {
	pm := NewPixmap(1, 1)
	pm.SetRGBA(0, 0, 0.2, 0.2, 0.2, 1)
	pm.BlendOver(0, 0, Color{R: 1, G: 0, B: 0}, 1, "Normal")
	r, g, b, a := pm.GetRGBA(0, 0)
	if r != 1 || g != 0 || b != 0 || a != 1 {
		t.Errorf("opaque BlendOver = (%v,%v,%v,%v), want (1,0,0,1)", r, g, b, a)
	}
}

func TestBlendOverZeroAlphaSourceIsANoOp(t *testing.T) {
	pm := NewPixmap(1, 1)
	pm.SetRGBA(0, 0, 0.5, 0.5, 0.5, 1)
	pm.BlendOver(0, 0, Color{R: 1, G: 1, B: 1}, 0, "Normal")
	r, g, b, a := pm.GetRGBA(0, 0)
	if r != 0.5 || g != 0.5 || b != 0.5 || a != 1 {
		t.Errorf("zero-alpha BlendOver changed the pixel: (%v,%v,%v,%v)", r, g, b, a)
	}
}

func TestBlendOverHalfAlphaAveragesOverOpaqueBackdrop(t *testing.T) {
	pm := NewPixmap(1, 1)
	pm.SetRGBA(0, 0, 0, 0, 0, 1) // opaque black backdrop
	pm.BlendOver(0, 0, Color{R: 1, G: 1, B: 1}, 0.5, "Normal")
	r, _, _, a := pm.GetRGBA(0, 0)
	if a != 1 {
		t.Errorf("compositing over an opaque backdrop should stay opaque, got alpha %v", a)
	}
	if r < 0.49 || r > 0.51 {
		t.Errorf("50%% white over black = %v, want ~0.5", r)
	}
}

func TestFillPolygonsNonzeroWindingFillsASquare(t *testing.T) {
	square := []Point{{2, 2}, {6, 2}, {6, 6}, {2, 6}}
	mask := fillPolygons([][]Point{square}, 8, 8, false)
	if mask[4*8+4] == 0 {
		t.Errorf("pixel (4,4) should be inside the square")
	}
	if mask[0*8+0] != 0 {
		t.Errorf("pixel (0,0) should be outside the square")
	}
}

func TestFillPolygonsEvenOddHollowsOutOverlap(t *testing.T) {
	outer := []Point{{0, 0}, {8, 0}, {8, 8}, {0, 8}}
	inner := []Point{{2, 2}, {6, 2}, {6, 6}, {2, 6}}
	mask := fillPolygons([][]Point{outer, inner}, 8, 8, true)
	if mask[4*8+4] != 0 {
		t.Errorf("even-odd fill of nested squares should leave the inner square unfilled")
	}
	if mask[0*8+0] == 0 {
		t.Errorf("even-odd fill should still cover the outer ring")
	}
}

func TestStrokeToPolygonsProducesAQuadPerSegment(t *testing.T) {
	line := []Point{{0, 0}, {10, 0}}
	quads := strokeToPolygons([][]Point{line}, 2)
	if len(quads) != 1 {
		t.Fatalf("strokeToPolygons on a single segment = %d quads, want 1", len(quads))
	}
	if len(quads[0]) != 4 {
		t.Errorf("each stroke quad should have 4 points, got %d", len(quads[0]))
	}
}

func TestMatrixApplyAndInvertRoundTrip(t *testing.T) {
	m := Translate(3, 4).Mul(Scale(2, 2))
	x, y := m.Apply(1, 1)
	inv := m.Invert()
	bx, by := inv.Apply(x, y)
	if d := math.Abs(bx - 1); d > 1e-9 {
		t.Errorf("Invert round-trip x = %v, want 1", bx)
	}
	if d := math.Abs(by - 1); d > 1e-9 {
		t.Errorf("Invert round-trip y = %v, want 1", by)
	}
}
