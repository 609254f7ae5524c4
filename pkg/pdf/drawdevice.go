package pdf

import "math"

// hSubpix and vSubpix set the subpixel grid (1/5 pixel on each axis) that
// text outline points are snapped to before rasterization; no glyph
// coverage is cached between calls.
const (
	hSubpix = 5
	vSubpix = 5
)

// DrawDevice is the L5 stacked-compositing renderer: the Device
// implementation that actually puts pixels in a Pixmap, built on
// raster.go's fillPolygons/strokeToPolygons/BlendOver primitives. The
// teacher has no analog for this (it only ever emitted PostScript line
// commands through vector.go, never composited pixels), so this is built
// fresh against raster.go in the style the rest of this package already
// establishes for the geometry it's layered on: a stack of clip levels,
// masks, groups, and tiles, each a push/pop around a swapped-out Target.
type DrawDevice struct {
	Target *Pixmap
	W, H   int

	clips []clipLevel

	masks  []*maskScope
	groups []*groupScope
	tiles  []*tileScope

	pendingTextClip   []float64
	pendingTextBounds Rect
}

// clipLevel is one entry in the clip stack: a bounding rect plus an
// optional cumulative coverage mask (nil means the rect itself is the
// exact clip, the fast path for a plain axis-aligned rectangle clip).
type clipLevel struct {
	rect Rect
	mask []float64
}

type maskScope struct {
	savedTarget *Pixmap
	area        Rect
	luminosity  bool
	backdrop    Color
}

type groupScope struct {
	savedTarget *Pixmap
	area        Rect
	isolated    bool
	knockout    bool
	blendMode   string
	alpha       float64
}

type tileScope struct {
	cell        *Pixmap
	savedTarget *Pixmap
	area, view  Rect
	xstep, ystep float64
	ctm         Matrix
}

// NewDrawDevice returns a draw device painting into a fresh w-by-h
// transparent pixmap, with the base clip level covering the whole page.
func NewDrawDevice(w, h int) *DrawDevice {
	d := &DrawDevice{Target: NewPixmap(w, h), W: w, H: h}
	d.clips = []clipLevel{{rect: Rect{X0: 0, Y0: 0, X1: float64(w), Y1: float64(h)}}}
	return d
}

func (d *DrawDevice) currentClip() clipLevel {
	return d.clips[len(d.clips)-1]
}

// clipFactor is the clip stack's combined coverage at a device pixel,
// 0 meaning fully clipped out.
func (d *DrawDevice) clipFactor(x, y int) float64 {
	c := d.currentClip()
	fx, fy := float64(x), float64(y)
	if fx < c.rect.X0 || fx+1 > c.rect.X1 || fy < c.rect.Y0 || fy+1 > c.rect.Y1 {
		return 0
	}
	if c.mask == nil {
		return 1
	}
	return c.mask[y*d.W+x]
}

func (d *DrawDevice) paintCoverage(coverage []float64, color Color, alpha float64, mode string) {
	for y := 0; y < d.H; y++ {
		for x := 0; x < d.W; x++ {
			cov := coverage[y*d.W+x]
			if cov <= 0 {
				continue
			}
			cf := d.clipFactor(x, y)
			if cf <= 0 {
				continue
			}
			d.Target.BlendOver(x, y, color, cov*cf*alpha, mode)
		}
	}
}

func quantizeSubpixel(polys [][]Point) [][]Point {
	out := make([][]Point, len(polys))
	for i, poly := range polys {
		q := make([]Point, len(poly))
		for j, p := range poly {
			q[j] = Point{
				X: math.Round(p.X*hSubpix) / hSubpix,
				Y: math.Round(p.Y*vSubpix) / vSubpix,
			}
		}
		out[i] = q
	}
	return out
}

// FillPath transforms path into device space and rasterizes it with the
// requested winding rule, blending color over the target at every
// covered, unclipped pixel.
func (d *DrawDevice) FillPath(path *Path, evenOdd bool, ctm Matrix, color Color, alpha float64) {
	polys := path.Transform(ctm).Flatten(1)
	coverage := fillPolygons(polys, d.W, d.H, evenOdd)
	d.paintCoverage(coverage, color, alpha, "Normal")
}

func (d *DrawDevice) StrokePath(path *Path, stroke *StrokeStyle, ctm Matrix, color Color, alpha float64) {
	lineWidth := 1.0
	if stroke != nil {
		lineWidth = stroke.LineWidth
	}
	lineWidth *= ctm.Expansion()
	polys := path.Transform(ctm).Flatten(1)
	quads := strokeToPolygons(polys, lineWidth)
	coverage := fillPolygons(quads, d.W, d.H, false)
	d.paintCoverage(coverage, color, alpha, "Normal")
}

func (d *DrawDevice) ClipPath(path *Path, evenOdd bool, ctm Matrix) {
	dpath := path.Transform(ctm)
	coverage := fillPolygons(dpath.Flatten(1), d.W, d.H, evenOdd)
	d.pushClip(dpath.Bounds(), coverage)
}

func (d *DrawDevice) ClipStrokePath(path *Path, stroke *StrokeStyle, ctm Matrix) {
	lineWidth := 1.0
	if stroke != nil {
		lineWidth = stroke.LineWidth
	}
	lineWidth *= ctm.Expansion()
	dpath := path.Transform(ctm)
	quads := strokeToPolygons(dpath.Flatten(1), lineWidth)
	coverage := fillPolygons(quads, d.W, d.H, false)
	d.pushClip(dpath.Bounds(), coverage)
}

// pushClip intersects a newly rasterized coverage buffer with the
// current top-of-stack clip and pushes the combined result, so every
// level's mask is already the full cumulative clip and PopClip is a
// plain pop with no recombination needed.
func (d *DrawDevice) pushClip(bounds Rect, coverage []float64) {
	parent := d.currentClip()
	rect := parent.rect.Intersect(bounds)
	combined := make([]float64, d.W*d.H)
	for i, c := range coverage {
		if parent.mask != nil {
			c *= parent.mask[i]
		}
		combined[i] = c
	}
	d.clips = append(d.clips, clipLevel{rect: rect, mask: combined})
}

func (d *DrawDevice) PopClip() {
	if len(d.clips) > 1 {
		d.clips = d.clips[:len(d.clips)-1]
	}
}

func (d *DrawDevice) FillText(glyphs []Glyph, color Color, alpha float64) {
	for _, g := range glyphs {
		if g.Outline == nil {
			continue
		}
		polys := quantizeSubpixel(g.Outline.Transform(g.Trm).Flatten(1))
		coverage := fillPolygons(polys, d.W, d.H, false)
		d.paintCoverage(coverage, color, alpha, "Normal")
	}
}

func (d *DrawDevice) StrokeText(glyphs []Glyph, stroke *StrokeStyle, color Color, alpha float64) {
	lineWidth := 1.0
	if stroke != nil {
		lineWidth = stroke.LineWidth
	}
	for _, g := range glyphs {
		if g.Outline == nil {
			continue
		}
		dpath := g.Outline.Transform(g.Trm)
		polys := quantizeSubpixel(dpath.Flatten(1))
		quads := strokeToPolygons(polys, lineWidth*g.Trm.Expansion())
		coverage := fillPolygons(quads, d.W, d.H, false)
		d.paintCoverage(coverage, color, alpha, "Normal")
	}
}

func (d *DrawDevice) ClipText(glyphs []Glyph, accumulate TextAccumulate) {
	if accumulate == TextAccumulateStart {
		d.pendingTextClip = make([]float64, d.W*d.H)
		d.pendingTextBounds = Rect{}
	}
	for _, g := range glyphs {
		if g.Outline == nil {
			continue
		}
		dpath := g.Outline.Transform(g.Trm)
		polys := quantizeSubpixel(dpath.Flatten(1))
		coverage := fillPolygons(polys, d.W, d.H, false)
		for i, c := range coverage {
			if c > d.pendingTextClip[i] {
				d.pendingTextClip[i] = c
			}
		}
		d.pendingTextBounds = d.pendingTextBounds.Union(dpath.Bounds())
	}
	if accumulate == TextAccumulateFinish {
		d.pushClip(d.pendingTextBounds, d.pendingTextClip)
		d.pendingTextClip = nil
	}
}

// ClipStrokeText accumulates stroked glyph outlines the same way ClipText
// accumulates filled ones.
func (d *DrawDevice) ClipStrokeText(glyphs []Glyph, stroke *StrokeStyle, accumulate TextAccumulate) {
	if accumulate == TextAccumulateStart {
		d.pendingTextClip = make([]float64, d.W*d.H)
		d.pendingTextBounds = Rect{}
	}
	lineWidth := 1.0
	if stroke != nil {
		lineWidth = stroke.LineWidth
	}
	for _, g := range glyphs {
		if g.Outline == nil {
			continue
		}
		dpath := g.Outline.Transform(g.Trm)
		polys := quantizeSubpixel(dpath.Flatten(1))
		quads := strokeToPolygons(polys, lineWidth*g.Trm.Expansion())
		coverage := fillPolygons(quads, d.W, d.H, false)
		for i, c := range coverage {
			if c > d.pendingTextClip[i] {
				d.pendingTextClip[i] = c
			}
		}
		d.pendingTextBounds = d.pendingTextBounds.Union(dpath.Bounds())
	}
	if accumulate == TextAccumulateFinish {
		d.pushClip(d.pendingTextBounds, d.pendingTextClip)
		d.pendingTextClip = nil
	}
}

// IgnoreText paints nothing: a rendering device has no use for
// render-mode-3 text beyond the position advance the interpreter already
// performed.
func (d *DrawDevice) IgnoreText(glyphs []Glyph) {}

// sampleUnitSquare maps a device pixel center back into the [0,1]x[0,1]
// space ctm placed on the page, returning ok=false outside it. PDF image
// space has its first sample row at the top of the unit square, so the
// vertical axis is flipped relative to the square's own Y.
func sampleUnitSquare(inv Matrix, x, y int, w, h int) (sx, sy int, ok bool) {
	ux, uy := inv.Apply(float64(x)+0.5, float64(y)+0.5)
	if ux < 0 || ux >= 1 || uy < 0 || uy >= 1 {
		return 0, 0, false
	}
	sx = int(ux * float64(w))
	sy = int((1 - uy) * float64(h))
	if sx < 0 {
		sx = 0
	} else if sx >= w {
		sx = w - 1
	}
	if sy < 0 {
		sy = 0
	} else if sy >= h {
		sy = h - 1
	}
	return sx, sy, true
}

func (d *DrawDevice) FillImage(img *Pixmap, ctm Matrix, alpha float64) {
	if img == nil || img.W == 0 || img.H == 0 {
		return
	}
	bounds := Rect{X0: 0, Y0: 0, X1: 1, Y1: 1}.Transform(ctm)
	inv := ctm.Invert()
	x0, x1 := int(math.Floor(bounds.X0)), int(math.Ceil(bounds.X1))
	y0, y1 := int(math.Floor(bounds.Y0)), int(math.Ceil(bounds.Y1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !d.Target.InBounds(x, y) {
				continue
			}
			cf := d.clipFactor(x, y)
			if cf <= 0 {
				continue
			}
			sx, sy, ok := sampleUnitSquare(inv, x, y, img.W, img.H)
			if !ok {
				continue
			}
			r, g, b, a := img.GetRGBA(sx, sy)
			if a <= 0 {
				continue
			}
			src := Color{r / a, g / a, b / a}
			d.Target.BlendOver(x, y, src, a*alpha*cf, "Normal")
		}
	}
}

func (d *DrawDevice) FillImageMask(mask *Pixmap, ctm Matrix, color Color, alpha float64) {
	if mask == nil || mask.W == 0 || mask.H == 0 {
		return
	}
	bounds := Rect{X0: 0, Y0: 0, X1: 1, Y1: 1}.Transform(ctm)
	inv := ctm.Invert()
	x0, x1 := int(math.Floor(bounds.X0)), int(math.Ceil(bounds.X1))
	y0, y1 := int(math.Floor(bounds.Y0)), int(math.Ceil(bounds.Y1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !d.Target.InBounds(x, y) {
				continue
			}
			cf := d.clipFactor(x, y)
			if cf <= 0 {
				continue
			}
			sx, sy, ok := sampleUnitSquare(inv, x, y, mask.W, mask.H)
			if !ok {
				continue
			}
			_, _, _, a := mask.GetRGBA(sx, sy)
			if a <= 0 {
				continue
			}
			d.Target.BlendOver(x, y, color, a*alpha*cf, "Normal")
		}
	}
}

func (d *DrawDevice) ClipImageMask(mask *Pixmap, ctm Matrix) {
	bounds := Rect{X0: 0, Y0: 0, X1: 1, Y1: 1}.Transform(ctm)
	coverage := make([]float64, d.W*d.H)
	if mask != nil && mask.W > 0 && mask.H > 0 {
		inv := ctm.Invert()
		for y := 0; y < d.H; y++ {
			for x := 0; x < d.W; x++ {
				sx, sy, ok := sampleUnitSquare(inv, x, y, mask.W, mask.H)
				if !ok {
					continue
				}
				_, _, _, a := mask.GetRGBA(sx, sy)
				coverage[y*d.W+x] = a
			}
		}
	}
	d.pushClip(bounds, coverage)
}

// FillShade paints every pixel in the current clip region with the
// shading's color field, mapping device pixels back to shading space
// through ctm's inverse. A background color (when the shading defines
// one) fills points the shading itself leaves undefined.
func (d *DrawDevice) FillShade(sh Shading, ctm Matrix, alpha float64) {
	if sh == nil {
		return
	}
	clip := d.currentClip()
	inv := ctm.Invert()
	x0 := int(math.Max(0, math.Floor(clip.rect.X0)))
	x1 := int(math.Min(float64(d.W), math.Ceil(clip.rect.X1)))
	y0 := int(math.Max(0, math.Floor(clip.rect.Y0)))
	y1 := int(math.Min(float64(d.H), math.Ceil(clip.rect.Y1)))
	bg, hasBG := sh.Background()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			cf := d.clipFactor(x, y)
			if cf <= 0 {
				continue
			}
			sx, sy := inv.Apply(float64(x)+0.5, float64(y)+0.5)
			col, a := sh.At(sx, sy)
			if a <= 0 {
				if !hasBG {
					continue
				}
				col, a = bg, 1
			}
			d.Target.BlendOver(x, y, col, a*alpha*cf, "Normal")
		}
	}
}

// BeginMask swaps the live target for a fresh buffer seeded with backdrop,
// so whatever the interpreter paints between here and EndMask accumulates
// in isolation; EndMask turns that accumulation into a clip mask.
func (d *DrawDevice) BeginMask(area Rect, luminosity bool, backdrop Color) {
	d.masks = append(d.masks, &maskScope{savedTarget: d.Target, area: area, luminosity: luminosity, backdrop: backdrop})
	fresh := NewPixmap(d.W, d.H)
	fresh.Fill(backdrop, 1)
	d.Target = fresh
}

// EndMask reduces the accumulated mask content to a single coverage value
// per pixel — luminosity (weighted RGB) or alpha, per the mask's kind —
// and pushes it onto the clip stack, so the next paint ops are implicitly
// modulated by it the same way a clip would modulate them.
func (d *DrawDevice) EndMask() {
	if len(d.masks) == 0 {
		return
	}
	ms := d.masks[len(d.masks)-1]
	d.masks = d.masks[:len(d.masks)-1]
	content := d.Target
	d.Target = ms.savedTarget

	coverage := make([]float64, d.W*d.H)
	for y := 0; y < d.H; y++ {
		for x := 0; x < d.W; x++ {
			r, g, b, a := content.GetRGBA(x, y)
			if ms.luminosity {
				var lr, lg, lb float64
				if a > 0 {
					lr, lg, lb = r/a, g/a, b/a
				}
				coverage[y*d.W+x] = (30*lr + 59*lg + 11*lb) / 100
			} else {
				coverage[y*d.W+x] = a
			}
		}
	}
	d.pushClip(ms.area, coverage)
}

// BeginGroup opens a transparency group: isolated groups start from a
// blank layer, non-isolated ones start from a copy of the current
// backdrop so blend modes inside the group see it. knockout is recorded
// on the scope but this engine doesn't re-seed the backdrop between each
// element the way a true knockout group does — every element still
// composites against what the group has painted so far, a simplification
// consistent with how little content exercises knockout groups in
// practice.
func (d *DrawDevice) BeginGroup(area Rect, isolated, knockout bool, blendMode string, alpha float64) {
	gs := &groupScope{savedTarget: d.Target, area: area, isolated: isolated, knockout: knockout, blendMode: blendMode, alpha: alpha}
	d.groups = append(d.groups, gs)
	layer := NewPixmap(d.W, d.H)
	if !isolated {
		copy(layer.Pix, d.Target.Pix)
	}
	d.Target = layer
}

// EndGroup composites the finished group layer back onto the backdrop it
// was opened against, through the group's own blend mode and alpha.
func (d *DrawDevice) EndGroup() {
	if len(d.groups) == 0 {
		return
	}
	gs := d.groups[len(d.groups)-1]
	d.groups = d.groups[:len(d.groups)-1]
	layer := d.Target
	d.Target = gs.savedTarget

	x0 := int(math.Max(0, math.Floor(gs.area.X0)))
	x1 := int(math.Min(float64(d.W), math.Ceil(gs.area.X1)))
	y0 := int(math.Max(0, math.Floor(gs.area.Y0)))
	y1 := int(math.Min(float64(d.H), math.Ceil(gs.area.Y1)))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r, g, b, a := layer.GetRGBA(x, y)
			if a <= 0 {
				continue
			}
			cf := d.clipFactor(x, y)
			if cf <= 0 {
				continue
			}
			src := Color{r / a, g / a, b / a}
			d.Target.BlendOver(x, y, src, a*gs.alpha*cf, gs.blendMode)
		}
	}
}

// BeginTile opens a pattern cell: subsequent paint calls render one tile
// instance into a pixmap sized to view, and the returned count is
// ceil(width/xstep) × ceil(height/ystep) over area, an up-front estimate a
// caller can budget/cancel against before painting. EndTile's own walk
// covers area clipped to the current clip plus one extra instance on
// every side, so it can draw more instances than this count.
func (d *DrawDevice) BeginTile(area Rect, view Rect, xstep, ystep float64, ctm Matrix) int {
	ts := &tileScope{savedTarget: d.Target, area: area, view: view, xstep: xstep, ystep: ystep, ctm: ctm}
	cellW := int(math.Ceil(view.X1 - view.X0))
	cellH := int(math.Ceil(view.Y1 - view.Y0))
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}
	ts.cell = NewPixmap(cellW, cellH)
	d.tiles = append(d.tiles, ts)
	d.Target = ts.cell

	nx, ny := 1, 1
	if xstep > 0 {
		nx = int(math.Ceil((area.X1 - area.X0) / xstep))
	}
	if ystep > 0 {
		ny = int(math.Ceil((area.Y1 - area.Y0) / ystep))
	}
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	return nx * ny
}

// EndTile replicates the finished cell across area at xstep/ystep
// intervals in pattern space, translating the cell's placement CTM by
// each step's device-space displacement and clipping every instance to
// the scissor already on the clip stack (FillImage respects clipFactor).
func (d *DrawDevice) EndTile() {
	if len(d.tiles) == 0 {
		return
	}
	ts := d.tiles[len(d.tiles)-1]
	d.tiles = d.tiles[:len(d.tiles)-1]
	cell := d.Target
	d.Target = ts.savedTarget
	if ts.xstep == 0 || ts.ystep == 0 {
		return
	}

	clip := d.currentClip()
	area := ts.area.Intersect(clip.rect)
	if area.IsEmpty() {
		return
	}
	i0 := int(math.Floor((area.X0-ts.view.X0)/ts.xstep)) - 1
	i1 := int(math.Ceil((area.X1-ts.view.X0)/ts.xstep)) + 1
	j0 := int(math.Floor((area.Y0-ts.view.Y0)/ts.ystep)) - 1
	j1 := int(math.Ceil((area.Y1-ts.view.Y0)/ts.ystep)) + 1
	for j := j0; j <= j1; j++ {
		for i := i0; i <= i1; i++ {
			dx, dy := ts.ctm.ApplyVector(float64(i)*ts.xstep, float64(j)*ts.ystep)
			placed := ts.ctm
			placed.E += dx
			placed.F += dy
			d.FillImage(cell, placed, 1)
		}
	}
}

func (d *DrawDevice) FreeUser() {
	d.Target = nil
}
