package pdf

import (
	"fmt"
	"math"
)

// Shading evaluates a PDF shading pattern's color field at a shading-space
// point, the seven-type family the draw device's fill_shade hook paints
// (§4.6). Grounded on function.go's Function for the scalar-to-color
// pipeline every shading type funnels through, and on stream.go's
// bitReader for the packed mesh-vertex record formats types 4-7 use.
type Shading interface {
	// At returns the color and coverage (1 = fully covered, 0 = outside
	// the shading's domain) for shading-space point (x, y); FillShade maps
	// each device pixel through the inverse CTM before calling it.
	At(x, y float64) (Color, float64)
	Background() (Color, bool)
}

// LoadShading builds a Shading from a shading dictionary or stream,
// dispatching on /ShadingType (1..7).
func LoadShading(doc *Document, sh *Value) (Shading, error) {
	streamNum, streamGen := sh.Reference()
	sh = ResolveIndirect(sh)
	if sh == nil || !sh.IsDict() {
		return nil, fmt.Errorf("shading: not a dictionary or stream")
	}
	cs := resolveColorSpace(doc, sh.DictGet("ColorSpace"))
	base := shadingBase{colorSpace: cs}
	if bg := floatArray(sh.DictGet("Background")); bg != nil {
		c := cs.toRGB(bg)
		base.background = &c
	}
	st := sh.DictGet("ShadingType").Int()
	switch st {
	case 1:
		return newFunctionShading(doc, sh, base)
	case 2:
		return newAxialShading(doc, sh, base)
	case 3:
		return newRadialShading(doc, sh, base)
	case 4, 5:
		return newMeshShading(doc, sh, base, streamNum, streamGen, int(st))
	case 6, 7:
		return newPatchShading(doc, sh, base, streamNum, streamGen, int(st))
	default:
		return nil, fmt.Errorf("shading: unsupported ShadingType %d", st)
	}
}

type shadingBase struct {
	colorSpace *colorSpaceInfo
	background *Color
}

func (b shadingBase) Background() (Color, bool) {
	if b.background == nil {
		return Color{}, false
	}
	return *b.background, true
}

// --- Type 1: function-based --------------------------------------------

type functionShading struct {
	shadingBase
	domain [4]float64
	matrix Matrix
	fn     Function
}

func newFunctionShading(doc *Document, sh *Value, base shadingBase) (*functionShading, error) {
	domain := [4]float64{0, 1, 0, 1}
	if d := floatArray(sh.DictGet("Domain")); len(d) == 4 {
		copy(domain[:], d)
	}
	matrix := Identity
	if m := floatArray(sh.DictGet("Matrix")); len(m) == 6 {
		matrix = Matrix{A: m[0], B: m[1], C: m[2], D: m[3], E: m[4], F: m[5]}
	}
	fn, err := LoadFunction(doc, sh.DictGet("Function"))
	if err != nil {
		return nil, err
	}
	return &functionShading{shadingBase: base, domain: domain, matrix: matrix, fn: fn}, nil
}

func (s *functionShading) At(x, y float64) (Color, float64) {
	u, v := s.matrix.Invert().Apply(x, y)
	if u < s.domain[0] || u > s.domain[1] || v < s.domain[2] || v > s.domain[3] {
		if bg, ok := s.Background(); ok {
			return bg, 1
		}
		return Color{}, 0
	}
	out := s.fn.Eval([]float64{u, v})
	return s.colorSpace.toRGB(out), 1
}

// --- Type 2: axial ------------------------------------------------------

type axialShading struct {
	shadingBase
	x0, y0, x1, y1 float64
	t0, t1         float64
	extend0, extend1 bool
	lut            [256]Color
}

func newAxialShading(doc *Document, sh *Value, base shadingBase) (*axialShading, error) {
	coords := floatArray(sh.DictGet("Coords"))
	if len(coords) != 4 {
		return nil, fmt.Errorf("shading: axial requires 4 Coords")
	}
	domain := []float64{0, 1}
	if d := floatArray(sh.DictGet("Domain")); len(d) == 2 {
		domain = d
	}
	ext0, ext1 := shadingExtend(sh)
	fn, err := LoadFunction(doc, sh.DictGet("Function"))
	if err != nil {
		return nil, err
	}
	s := &axialShading{
		shadingBase: base,
		x0: coords[0], y0: coords[1], x1: coords[2], y1: coords[3],
		t0: domain[0], t1: domain[1], extend0: ext0, extend1: ext1,
	}
	buildShadingLUT(&s.lut, fn, domain[0], domain[1], base.colorSpace)
	return s, nil
}

func shadingExtend(sh *Value) (bool, bool) {
	ext := sh.DictGet("Extend")
	if ext == nil || !ext.IsArray() || ext.Len() != 2 {
		return false, false
	}
	return ResolveIndirect(ext.ArrayGet(0)).Bool(), ResolveIndirect(ext.ArrayGet(1)).Bool()
}

// buildShadingLUT precomputes a 256-entry color lookup table across the
// function's parametric domain, the same LUT-instead-of-per-pixel-eval
// strategy the distilled spec calls for axial/radial shadings.
func buildShadingLUT(lut *[256]Color, fn Function, t0, t1 float64, cs *colorSpaceInfo) {
	for i := range lut {
		t := t0 + (t1-t0)*float64(i)/255
		out := fn.Eval([]float64{t})
		lut[i] = cs.toRGB(out)
	}
}

func (s *axialShading) At(x, y float64) (Color, float64) {
	dx, dy := s.x1-s.x0, s.y1-s.y0
	denom := dx*dx + dy*dy
	var sParam float64
	if denom == 0 {
		sParam = 0
	} else {
		sParam = ((x-s.x0)*dx + (y-s.y0)*dy) / denom
	}
	if sParam < 0 {
		if !s.extend0 {
			return s.missOrBackground()
		}
		sParam = 0
	}
	if sParam > 1 {
		if !s.extend1 {
			return s.missOrBackground()
		}
		sParam = 1
	}
	idx := int(sParam * 255)
	if idx < 0 {
		idx = 0
	}
	if idx > 255 {
		idx = 255
	}
	return s.lut[idx], 1
}

func (s *axialShading) missOrBackground() (Color, float64) {
	if bg, ok := s.Background(); ok {
		return bg, 1
	}
	return Color{}, 0
}

// --- Type 3: radial -------------------------------------------------

type radialShading struct {
	shadingBase
	x0, y0, r0 float64
	x1, y1, r1 float64
	extend0, extend1 bool
	lut        [256]Color
}

func newRadialShading(doc *Document, sh *Value, base shadingBase) (*radialShading, error) {
	coords := floatArray(sh.DictGet("Coords"))
	if len(coords) != 6 {
		return nil, fmt.Errorf("shading: radial requires 6 Coords")
	}
	domain := []float64{0, 1}
	if d := floatArray(sh.DictGet("Domain")); len(d) == 2 {
		domain = d
	}
	ext0, ext1 := shadingExtend(sh)
	fn, err := LoadFunction(doc, sh.DictGet("Function"))
	if err != nil {
		return nil, err
	}
	s := &radialShading{
		shadingBase: base,
		x0: coords[0], y0: coords[1], r0: coords[2],
		x1: coords[3], y1: coords[4], r1: coords[5],
		extend0: ext0, extend1: ext1,
	}
	buildShadingLUT(&s.lut, fn, domain[0], domain[1], base.colorSpace)
	return s, nil
}

// At solves for the largest s in [smin, smax] (extended by Extend) such
// that the point lies on circle(s), per the ISO radial-shading equation;
// a quadratic in s with the usual degenerate-to-linear fallback when the
// two circles share a radius delta of zero.
func (s *radialShading) At(x, y float64) (Color, float64) {
	dx, dy, dr := s.x1-s.x0, s.y1-s.y0, s.r1-s.r0
	a := dx*dx + dy*dy - dr*dr
	px, py := x-s.x0, y-s.y0
	b := 2 * (px*dx + py*dy + s.r0*dr)
	c := px*px + py*py - s.r0*s.r0

	var candidates []float64
	if math.Abs(a) < 1e-9 {
		if b != 0 {
			candidates = append(candidates, -c/b)
		}
	} else {
		disc := b*b - 4*a*c
		if disc >= 0 {
			sq := math.Sqrt(disc)
			candidates = append(candidates, (-b+sq)/(2*a), (-b-sq)/(2*a))
		}
	}

	best := math.Inf(-1)
	found := false
	for _, sVal := range candidates {
		if s.r0+sVal*dr < 0 {
			continue
		}
		clipped := sVal
		if clipped < 0 {
			if !s.extend0 {
				continue
			}
			clipped = 0
		}
		if clipped > 1 {
			if !s.extend1 {
				continue
			}
			clipped = 1
		}
		if clipped > best || !found {
			best = clipped
			found = true
		}
	}
	if !found {
		return s.missOrBackground()
	}
	t := best
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	idx := int(t * 255)
	if idx < 0 {
		idx = 0
	}
	if idx > 255 {
		idx = 255
	}
	return s.lut[idx], 1
}

func (s *radialShading) missOrBackground() (Color, float64) {
	if bg, ok := s.Background(); ok {
		return bg, 1
	}
	return Color{}, 0
}

// --- Types 4/5: triangle meshes (free-form and lattice-form Gouraud) ---

type meshVertex struct {
	x, y  float64
	color Color
}

type triangle struct{ a, b, c meshVertex }

type meshShading struct {
	shadingBase
	tris []triangle
}

func newMeshShading(doc *Document, sh *Value, base shadingBase, streamNum, streamGen, shType int) (*meshShading, error) {
	if streamNum == 0 {
		return nil, fmt.Errorf("shading: mesh shading must be an indirect stream")
	}
	raw, err := doc.StreamData(streamNum, streamGen)
	if err != nil {
		return nil, err
	}
	bpc := int(sh.DictGet("BitsPerCoordinate").Int())
	bpComp := int(sh.DictGet("BitsPerComponent").Int())
	bpf := int(sh.DictGet("BitsPerFlag").Int())
	decode := floatArray(sh.DictGet("Decode"))
	nComp := colorComponentCount(base.colorSpace, sh)
	fn, _ := LoadFunction(doc, sh.DictGet("Function"))

	br := newBitReader(newByteSource(raw))
	readVertex := func() meshVertex {
		x := br.ReadSample(bpc, decode[0], decode[1])
		y := br.ReadSample(bpc, decode[2], decode[3])
		comps := make([]float64, nComp)
		for i := range comps {
			lo, hi := 0.0, 1.0
			if 4+2*i+1 < len(decode) {
				lo, hi = decode[4+2*i], decode[4+2*i+1]
			}
			comps[i] = br.ReadSample(bpComp, lo, hi)
		}
		var c Color
		if fn != nil {
			c = base.colorSpace.toRGB(fn.Eval(comps))
		} else {
			c = base.colorSpace.toRGB(comps)
		}
		return meshVertex{x: x, y: y, color: c}
	}

	var tris []triangle
	if shType == 5 {
		vpr := int(sh.DictGet("VerticesPerRow").Int())
		var rows [][]meshVertex
		for br.src.Pos() < br.src.Len() {
			row := make([]meshVertex, 0, vpr)
			for i := 0; i < vpr; i++ {
				row = append(row, readVertex())
			}
			rows = append(rows, row)
			br.Align()
		}
		for r := 0; r+1 < len(rows); r++ {
			for c := 0; c+1 < vpr; c++ {
				v00, v01 := rows[r][c], rows[r][c+1]
				v10, v11 := rows[r+1][c], rows[r+1][c+1]
				tris = append(tris, triangle{v00, v01, v10}, triangle{v01, v11, v10})
			}
		}
	} else {
		var a, b, c meshVertex
		for br.src.Pos() < br.src.Len() {
			flag := br.ReadBits(bpf)
			v := readVertex()
			br.Align()
			switch flag {
			case 0:
				a = v
				if br.src.Pos() >= br.src.Len() {
					break
				}
				br.ReadBits(bpf)
				b = readVertex()
				br.Align()
				br.ReadBits(bpf)
				c = readVertex()
				br.Align()
				tris = append(tris, triangle{a, b, c})
			case 1:
				a, b, c = b, c, v
				tris = append(tris, triangle{a, b, c})
			case 2:
				a, b, c = a, c, v
				tris = append(tris, triangle{a, b, c})
			}
		}
	}
	return &meshShading{shadingBase: base, tris: tris}, nil
}

func colorComponentCount(cs *colorSpaceInfo, sh *Value) int {
	if cs != nil {
		return cs.nComps
	}
	return 1
}

func (s *meshShading) At(x, y float64) (Color, float64) {
	for _, t := range s.tris {
		if u, v, w, ok := barycentric(x, y, t.a, t.b, t.c); ok {
			c := Color{
				R: u*t.a.color.R + v*t.b.color.R + w*t.c.color.R,
				G: u*t.a.color.G + v*t.b.color.G + w*t.c.color.G,
				B: u*t.a.color.B + v*t.b.color.B + w*t.c.color.B,
			}
			return c, 1
		}
	}
	if bg, ok := s.Background(); ok {
		return bg, 1
	}
	return Color{}, 0
}

func barycentric(px, py float64, a, b, c meshVertex) (u, v, w float64, ok bool) {
	det := (b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)
	if det == 0 {
		return 0, 0, 0, false
	}
	v = ((px-a.x)*(c.y-a.y) - (c.x-a.x)*(py-a.y)) / det
	w = ((b.x-a.x)*(py-a.y) - (px-a.x)*(b.y-a.y)) / det
	u = 1 - v - w
	if u < 0 || v < 0 || w < 0 {
		return 0, 0, 0, false
	}
	return u, v, w, true
}

// --- Types 6/7: Coons and tensor-product patch meshes -------------------

// patchShading reduces each mesh patch's 12 (Coons) or 16 (tensor) control
// points to its four corner points and colors, split into two Gouraud
// triangles; the curved patch boundaries are not subdivided.
type patchShading struct {
	shadingBase
	tris []triangle
}

func newPatchShading(doc *Document, sh *Value, base shadingBase, streamNum, streamGen, shType int) (*patchShading, error) {
	if streamNum == 0 {
		return nil, fmt.Errorf("shading: patch shading must be an indirect stream")
	}
	raw, err := doc.StreamData(streamNum, streamGen)
	if err != nil {
		return nil, err
	}
	bpc := int(sh.DictGet("BitsPerCoordinate").Int())
	bpComp := int(sh.DictGet("BitsPerComponent").Int())
	bpf := int(sh.DictGet("BitsPerFlag").Int())
	decode := floatArray(sh.DictGet("Decode"))
	nComp := colorComponentCount(base.colorSpace, sh)
	fn, _ := LoadFunction(doc, sh.DictGet("Function"))
	nPts := 12
	if shType == 7 {
		nPts = 16
	}

	br := newBitReader(newByteSource(raw))
	readPoint := func() Point {
		x := br.ReadSample(bpc, decode[0], decode[1])
		y := br.ReadSample(bpc, decode[2], decode[3])
		return Point{X: x, Y: y}
	}
	readColor := func() Color {
		comps := make([]float64, nComp)
		for i := range comps {
			lo, hi := 0.0, 1.0
			if 4+2*i+1 < len(decode) {
				lo, hi = decode[4+2*i], decode[4+2*i+1]
			}
			comps[i] = br.ReadSample(bpComp, lo, hi)
		}
		if fn != nil {
			return base.colorSpace.toRGB(fn.Eval(comps))
		}
		return base.colorSpace.toRGB(comps)
	}

	var tris []triangle
	var prevPts [16]Point
	var prevCol [4]Color
	first := true
	for br.src.Pos() < br.src.Len() {
		flag := br.ReadBits(bpf)
		var pts [16]Point
		var cols [4]Color
		nNewPts, nNewCols := nPts, 4
		if flag != 0 && !first {
			nNewPts, nNewCols = nPts-4, 2
		}
		newPts := make([]Point, nNewPts)
		for i := range newPts {
			newPts[i] = readPoint()
		}
		newCols := make([]Color, nNewCols)
		for i := range newCols {
			newCols[i] = readColor()
		}
		br.Align()

		if flag == 0 || first {
			copy(pts[:], newPts)
			copy(cols[:], newCols)
		} else {
			reused := sharedEdge(prevPts, prevCol, int(flag), nPts)
			copy(pts[:4], reused.pts[:])
			copy(pts[4:], newPts)
			cols[0], cols[1] = reused.cols[0], reused.cols[1]
			cols[2], cols[3] = newCols[0], newCols[1]
		}

		corners := [4]Point{pts[0], pts[3], pts[6], pts[9]}
		if nPts == 12 && len(pts) >= 12 {
			corners = [4]Point{pts[0], pts[3], pts[6], pts[9]}
		}
		v := [4]meshVertex{
			{x: corners[0].X, y: corners[0].Y, color: cols[0]},
			{x: corners[1].X, y: corners[1].Y, color: cols[1]},
			{x: corners[2].X, y: corners[2].Y, color: cols[2]},
			{x: corners[3].X, y: corners[3].Y, color: cols[3]},
		}
		tris = append(tris, triangle{v[0], v[1], v[2]}, triangle{v[0], v[2], v[3]})

		prevPts = pts
		prevCol = cols
		first = false
	}
	return &patchShading{shadingBase: base, tris: tris}, nil
}

type sharedEdgeResult struct {
	pts  [4]Point
	cols [2]Color
}

// sharedEdge reuses the previous patch's boundary curve named by flag
// (1, 2, or 3 selects which of its four edges becomes this patch's first
// edge), per the Coons/tensor patch flag-based boundary-reuse rule.
func sharedEdge(prevPts [16]Point, prevCol [4]Color, flag, nPts int) sharedEdgeResult {
	var r sharedEdgeResult
	switch flag {
	case 1:
		r.pts = [4]Point{prevPts[3], prevPts[4], prevPts[5], prevPts[6]}
		r.cols = [2]Color{prevCol[1], prevCol[2]}
	case 2:
		r.pts = [4]Point{prevPts[6], prevPts[7], prevPts[8], prevPts[9]}
		r.cols = [2]Color{prevCol[2], prevCol[3]}
	case 3:
		r.pts = [4]Point{prevPts[9], prevPts[10], prevPts[11], prevPts[0]}
		r.cols = [2]Color{prevCol[3], prevCol[0]}
	default:
		r.pts = [4]Point{prevPts[0], prevPts[1], prevPts[2], prevPts[3]}
		r.cols = [2]Color{prevCol[0], prevCol[1]}
	}
	return r
}

func (s *patchShading) At(x, y float64) (Color, float64) {
	for _, t := range s.tris {
		if u, v, w, ok := barycentric(x, y, t.a, t.b, t.c); ok {
			c := Color{
				R: u*t.a.color.R + v*t.b.color.R + w*t.c.color.R,
				G: u*t.a.color.G + v*t.b.color.G + w*t.c.color.G,
				B: u*t.a.color.B + v*t.b.color.B + w*t.c.color.B,
			}
			return c, 1
		}
	}
	if bg, ok := s.Background(); ok {
		return bg, 1
	}
	return Color{}, 0
}
