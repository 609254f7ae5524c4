package pdf

import "math"

// PathOp names one path-construction command.
type PathOp int

const (
	PathMoveTo PathOp = iota
	PathLineTo
	PathCurveTo
	PathClose
)

// PathSeg is one path command. CurveTo uses all three points (cubic Bezier
// control points 1, 2, and the endpoint); MoveTo/LineTo use only Pts[0].
type PathSeg struct {
	Op  PathOp
	Pts [3]Point
}

// Path is an unflattened device- or user-space path: the vocabulary the
// content interpreter's path-construction operators (m/l/c/v/y/h) build
// and that Device.Fill/Stroke/Clip consume.
type Path struct {
	Segs []PathSeg
	cur  Point
}

func NewPath() *Path { return &Path{} }

func (p *Path) MoveTo(x, y float64) {
	p.Segs = append(p.Segs, PathSeg{Op: PathMoveTo, Pts: [3]Point{{x, y}}})
	p.cur = Point{x, y}
}

func (p *Path) LineTo(x, y float64) {
	p.Segs = append(p.Segs, PathSeg{Op: PathLineTo, Pts: [3]Point{{x, y}}})
	p.cur = Point{x, y}
}

func (p *Path) CurveTo(x1, y1, x2, y2, x3, y3 float64) {
	p.Segs = append(p.Segs, PathSeg{Op: PathCurveTo, Pts: [3]Point{{x1, y1}, {x2, y2}, {x3, y3}}})
	p.cur = Point{x3, y3}
}

func (p *Path) ClosePath() {
	p.Segs = append(p.Segs, PathSeg{Op: PathClose})
}

func (p *Path) CurrentPoint() Point { return p.cur }

// Transform returns a new Path with every point run through m.
func (p *Path) Transform(m Matrix) *Path {
	out := &Path{Segs: make([]PathSeg, len(p.Segs))}
	for i, s := range p.Segs {
		ns := PathSeg{Op: s.Op}
		switch s.Op {
		case PathCurveTo:
			for j := 0; j < 3; j++ {
				x, y := m.Apply(s.Pts[j].X, s.Pts[j].Y)
				ns.Pts[j] = Point{x, y}
			}
		case PathMoveTo, PathLineTo:
			x, y := m.Apply(s.Pts[0].X, s.Pts[0].Y)
			ns.Pts[0] = Point{x, y}
		}
		out.Segs[i] = ns
	}
	return out
}

// Bounds returns the bounding box of the path's control points (a loose
// but cheap-to-compute bound; curves never bulge far outside their
// control hull in the content this engine renders).
func (p *Path) Bounds() Rect {
	r := Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	visit := func(pt Point) {
		r.X0 = math.Min(r.X0, pt.X)
		r.Y0 = math.Min(r.Y0, pt.Y)
		r.X1 = math.Max(r.X1, pt.X)
		r.Y1 = math.Max(r.Y1, pt.Y)
	}
	for _, s := range p.Segs {
		switch s.Op {
		case PathMoveTo, PathLineTo:
			visit(s.Pts[0])
		case PathCurveTo:
			visit(s.Pts[0])
			visit(s.Pts[1])
			visit(s.Pts[2])
		}
	}
	if r.X0 > r.X1 {
		return Rect{}
	}
	return r
}

// Flatten reduces the path to polygon subpaths (one []Point per
// MoveTo-to-next-MoveTo run), evaluating cubic Beziers at fixed parameter
// steps (16 per curve, or 8 when tolerance is above 1) rather than with an
// adaptive flattener.
func (p *Path) Flatten(tolerance float64) [][]Point {
	var out [][]Point
	var cur []Point
	var start, last Point
	steps := 16
	if tolerance > 1 {
		steps = 8
	}

	flush := func() {
		if len(cur) > 1 {
			out = append(out, cur)
		}
		cur = nil
	}

	for _, s := range p.Segs {
		switch s.Op {
		case PathMoveTo:
			flush()
			start = s.Pts[0]
			last = start
			cur = []Point{start}
		case PathLineTo:
			last = s.Pts[0]
			cur = append(cur, last)
		case PathCurveTo:
			for i := 1; i <= steps; i++ {
				t := float64(i) / float64(steps)
				cur = append(cur, cubicBezierAt(last, s.Pts[0], s.Pts[1], s.Pts[2], t))
			}
			last = s.Pts[2]
		case PathClose:
			cur = append(cur, start)
			last = start
		}
	}
	flush()
	return out
}

func cubicBezierAt(p0, p1, p2, p3 Point, t float64) Point {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	c := 3 * u * t * t
	d := t * t * t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// Pixmap is a premultiplied-alpha RGBA raster buffer, the target every
// draw-device operation paints into. Values are kept as float64 in [0,1]
// rather than packed bytes: this engine prioritizes compositing-semantics
// correctness (the subject of the specification's hard parts) over
// pixel-pipeline throughput, which concrete codec/SIMD work is explicitly
// out of scope for.
type Pixmap struct {
	W, H int
	Pix  []float64 // len == W*H*4, R,G,B,A premultiplied, row-major
}

func NewPixmap(w, h int) *Pixmap {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Pixmap{W: w, H: h, Pix: make([]float64, w*h*4)}
}

func (pm *Pixmap) at(x, y int) int { return (y*pm.W + x) * 4 }

func (pm *Pixmap) InBounds(x, y int) bool { return x >= 0 && y >= 0 && x < pm.W && y < pm.H }

// GetRGBA returns the premultiplied (r,g,b,a) at (x,y), or all-zero outside
// bounds.
func (pm *Pixmap) GetRGBA(x, y int) (r, g, b, a float64) {
	if !pm.InBounds(x, y) {
		return 0, 0, 0, 0
	}
	i := pm.at(x, y)
	return pm.Pix[i], pm.Pix[i+1], pm.Pix[i+2], pm.Pix[i+3]
}

func (pm *Pixmap) SetRGBA(x, y int, r, g, b, a float64) {
	if !pm.InBounds(x, y) {
		return
	}
	i := pm.at(x, y)
	pm.Pix[i], pm.Pix[i+1], pm.Pix[i+2], pm.Pix[i+3] = r, g, b, a
}

// Clear resets every pixel to transparent black.
func (pm *Pixmap) Clear() {
	for i := range pm.Pix {
		pm.Pix[i] = 0
	}
}

// Fill paints the whole buffer with c at the given alpha.
func (pm *Pixmap) Fill(c Color, alpha float64) {
	for y := 0; y < pm.H; y++ {
		for x := 0; x < pm.W; x++ {
			pm.SetRGBA(x, y, c.R*alpha, c.G*alpha, c.B*alpha, alpha)
		}
	}
}

// blendChannel applies one of the PDF separable blend modes (§4.4). Only
// the eight most commonly produced modes are implemented; an unrecognized
// name falls back to Normal, matching the "unknown operator/name degrades
// gracefully" posture used throughout the content interpreter.
func blendChannel(mode string, cb, cs float64) float64 {
	switch mode {
	case "Multiply":
		return cb * cs
	case "Screen":
		return cb + cs - cb*cs
	case "Darken":
		return math.Min(cb, cs)
	case "Lighten":
		return math.Max(cb, cs)
	case "Difference":
		return math.Abs(cb - cs)
	case "Exclusion":
		return cb + cs - 2*cb*cs
	case "Overlay":
		return hardLight(cs, cb)
	case "HardLight":
		return hardLight(cb, cs)
	default: // Normal, Compatible, and anything unrecognized
		return cs
	}
}

func hardLight(cb, cs float64) float64 {
	if cs <= 0.5 {
		return 2 * cb * cs
	}
	return 1 - 2*(1-cb)*(1-cs)
}

// BlendOver composites a source RGBA sample (straight alpha, device-RGB)
// over the destination pixel using Porter-Duff "over" combined with the
// given separable blend mode, then writes the premultiplied result back.
// This is the single primitive every fill/stroke/image/shading/group paint
// op in the draw device funnels through.
func (pm *Pixmap) BlendOver(x, y int, src Color, srcAlpha float64, mode string) {
	if !pm.InBounds(x, y) || srcAlpha <= 0 {
		return
	}
	dr, dg, db, da := pm.GetRGBA(x, y)
	var backR, backG, backB float64
	if da > 0 {
		backR, backG, backB = dr/da, dg/da, db/da
	}

	mixR := (1-da)*src.R + da*blendChannel(mode, backR, src.R)
	mixG := (1-da)*src.G + da*blendChannel(mode, backG, src.G)
	mixB := (1-da)*src.B + da*blendChannel(mode, backB, src.B)

	outA := srcAlpha + da*(1-srcAlpha)
	outR := srcAlpha*mixR + (1-srcAlpha)*dr
	outG := srcAlpha*mixG + (1-srcAlpha)*dg
	outB := srcAlpha*mixB + (1-srcAlpha)*db
	if outA <= 0 {
		pm.SetRGBA(x, y, 0, 0, 0, 0)
		return
	}
	pm.SetRGBA(x, y, outR, outG, outB, outA)
}

// fillPolygons rasterizes a set of flattened polygon subpaths into mask (an
// alpha-only coverage buffer, one float per pixel) using either nonzero or
// even-odd winding, a standard active-edge scanline fill.
func fillPolygons(polys [][]Point, w, h int, evenOdd bool) []float64 {
	mask := make([]float64, w*h)
	type edge struct{ x0, y0, x1, y1 float64 }
	var edges []edge
	for _, poly := range polys {
		n := len(poly)
		for i := 0; i < n; i++ {
			a, b := poly[i], poly[(i+1)%n]
			if a.Y != b.Y {
				edges = append(edges, edge{a.X, a.Y, b.X, b.Y})
			}
		}
	}
	for y := 0; y < h; y++ {
		yc := float64(y) + 0.5
		type xing struct {
			x   float64
			dir int
		}
		var xs []xing
		for _, e := range edges {
			y0, y1 := e.y0, e.y1
			dir := 1
			if y0 > y1 {
				y0, y1 = y1, y0
				dir = -1
			}
			if yc < y0 || yc >= y1 {
				continue
			}
			t := (yc - e.y0) / (e.y1 - e.y0)
			x := e.x0 + t*(e.x1-e.x0)
			xs = append(xs, xing{x, dir})
		}
		if len(xs) == 0 {
			continue
		}
		for i := 0; i < len(xs); i++ {
			for j := i + 1; j < len(xs); j++ {
				if xs[j].x < xs[i].x {
					xs[i], xs[j] = xs[j], xs[i]
				}
			}
		}
		winding := 0
		for i := 0; i < len(xs); i++ {
			inside := winding != 0
			if evenOdd {
				inside = (i % 2) == 1
			}
			winding += xs[i].dir
			stillInside := winding != 0
			if evenOdd {
				stillInside = ((i + 1) % 2) == 1
			}
			if !inside && stillInside && i+1 < len(xs) {
				x0 := int(math.Ceil(xs[i].x - 0.5))
				x1 := int(math.Floor(xs[i+1].x - 0.5))
				for x := x0; x <= x1; x++ {
					if x >= 0 && x < w {
						mask[y*w+x] = 1
					}
				}
			}
		}
	}
	return mask
}

// strokeToPolygons approximates a stroked path as filled polygons: each
// segment becomes a rectangle of the given width along its direction, with
// a square cap extension, which is the pragmatic scaffolding this
// specification's compositing semantics need without pulling in a full
// stroke-outline geometry library (an external collaborator's concern
// per §1).
func strokeToPolygons(polys [][]Point, lineWidth float64) [][]Point {
	if lineWidth <= 0 {
		lineWidth = 1
	}
	half := lineWidth / 2
	var out [][]Point
	for _, poly := range polys {
		for i := 0; i+1 < len(poly); i++ {
			a, b := poly[i], poly[i+1]
			dx, dy := b.X-a.X, b.Y-a.Y
			length := math.Hypot(dx, dy)
			if length == 0 {
				continue
			}
			nx, ny := -dy/length*half, dx/length*half
			ex, ey := dx/length*half, dy/length*half
			quad := []Point{
				{a.X + nx - ex, a.Y + ny - ey},
				{b.X + nx + ex, b.Y + ny + ey},
				{b.X - nx + ex, b.Y - ny + ey},
				{a.X - nx - ex, a.Y - ny - ey},
			}
			out = append(out, quad)
		}
	}
	return out
}
