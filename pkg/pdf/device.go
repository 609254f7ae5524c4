package pdf

// Device is the closed, interpreter-facing operation set a content-stream
// consumer implements (§4.4): paint operations, text operations, image
// operations, shading, scope management, and a lifecycle hook. It is
// grounded on the teacher's VectorWriter (pkg/pdf/vector.go), which played
// the same role for exactly one consumer (PostScript emission) — Device
// generalizes that "interpreter walks content, consumer reacts" shape into
// a pluggable contract so the draw device, a bounding-box collector, a
// plain-text extractor, and a fan-out list device can all sit behind the
// same interpreter loop.
//
// The interpreter (content.go) pops, at each Q, every clip_path/
// clip_stroke_path pushed since the matching q, and runForm pops the clip
// it pushes for a form's /BBox. The interpreter never calls begin_mask,
// begin_group or begin_tile. render.go runs the interpreter inside Try,
// whose always-clause releases the device; it does not pop scopes left
// open.
type Device interface {
	PathDevice
	TextDevice
	ImageDevice
	ShadeDevice
	ScopeDevice

	// FreeUser releases whatever user-level resource (an output file, an
	// accumulated text buffer, a pixmap) this device wraps. Called exactly
	// once, after the interpreter has finished (or abandoned) a page.
	FreeUser()
}

// PathDevice paints and clips vector paths.
type PathDevice interface {
	FillPath(path *Path, evenOdd bool, ctm Matrix, color Color, alpha float64)
	StrokePath(path *Path, stroke *StrokeStyle, ctm Matrix, color Color, alpha float64)
	ClipPath(path *Path, evenOdd bool, ctm Matrix)
	ClipStrokePath(path *Path, stroke *StrokeStyle, ctm Matrix)
}

// StrokeStyle is the subset of the graphics state a stroke operation needs,
// passed by value so a device cannot mutate the interpreter's live state.
type StrokeStyle struct {
	LineWidth  float64
	LineCap    int
	LineJoin   int
	MiterLimit float64
	DashArray  []float64
	DashPhase  float64
}

// TextAccumulate mirrors the distilled spec's clip_text accumulate flag:
// 0 starts a fresh accumulation, 1 adds to the one in progress, 2 closes
// it (no more glyphs will be added before the matching pop_clip).
type TextAccumulate int

const (
	TextAccumulateStart    TextAccumulate = 0
	TextAccumulateContinue TextAccumulate = 1
	TextAccumulateFinish   TextAccumulate = 2
)

// Glyph is one positioned, already-outlined character the interpreter
// hands to the device — outline resolution (GlyphSource) has already
// happened by the time text reaches the device layer.
type Glyph struct {
	Outline *Path  // in glyph space, 1000 units/em
	Trm     Matrix // glyph space -> device space
}

// TextDevice draws and clips runs of positioned glyphs.
type TextDevice interface {
	FillText(glyphs []Glyph, color Color, alpha float64)
	StrokeText(glyphs []Glyph, stroke *StrokeStyle, color Color, alpha float64)
	ClipText(glyphs []Glyph, accumulate TextAccumulate)
	ClipStrokeText(glyphs []Glyph, stroke *StrokeStyle, accumulate TextAccumulate)
	// IgnoreText is invoked for text rendering mode 3 (invisible): the
	// interpreter still advances the text position and still calls this
	// hook so a text-extraction device can observe the glyphs, but a
	// rendering device does no painting.
	IgnoreText(glyphs []Glyph)
}

// ImageDevice paints decoded raster images and image masks.
type ImageDevice interface {
	FillImage(img *Pixmap, ctm Matrix, alpha float64)
	FillImageMask(mask *Pixmap, ctm Matrix, color Color, alpha float64)
	ClipImageMask(mask *Pixmap, ctm Matrix)
}

// ShadeDevice paints a shading pattern's already-evaluated color field.
type ShadeDevice interface {
	FillShade(sh Shading, ctm Matrix, alpha float64)
}

// ScopeDevice manages the nested clip/mask/group/tile scopes a content
// stream can open. Every Begin* call is matched by exactly one End*/Pop
// call, enforced by the interpreter rather than by the device itself.
type ScopeDevice interface {
	PopClip()
	BeginMask(area Rect, luminosity bool, backdrop Color)
	EndMask()
	BeginGroup(area Rect, isolated, knockout bool, blendMode string, alpha float64)
	EndGroup()
	BeginTile(area Rect, view Rect, xstep, ystep float64, ctm Matrix) int
	EndTile()
}

// NopDevice is a Device that discards every operation; embedding it lets a
// partial device (bbox device, text device) implement the full interface
// by only overriding the methods it cares about, the same "implement the
// parts you need, inherit no-ops for the rest" idiom the teacher uses for
// its optional writer hooks.
type NopDevice struct{}

func (NopDevice) FillPath(*Path, bool, Matrix, Color, float64)         {}
func (NopDevice) StrokePath(*Path, *StrokeStyle, Matrix, Color, float64) {}
func (NopDevice) ClipPath(*Path, bool, Matrix)                          {}
func (NopDevice) ClipStrokePath(*Path, *StrokeStyle, Matrix)            {}

func (NopDevice) FillText(glyphs []Glyph, color Color, alpha float64)               {}
func (NopDevice) StrokeText(glyphs []Glyph, stroke *StrokeStyle, color Color, a float64) {}
func (NopDevice) ClipText(glyphs []Glyph, accumulate TextAccumulate)                {}
func (NopDevice) ClipStrokeText(glyphs []Glyph, stroke *StrokeStyle, accumulate TextAccumulate) {}
func (NopDevice) IgnoreText(glyphs []Glyph)                                         {}

func (NopDevice) FillImage(*Pixmap, Matrix, float64)              {}
func (NopDevice) FillImageMask(*Pixmap, Matrix, Color, float64)   {}
func (NopDevice) ClipImageMask(*Pixmap, Matrix)                   {}

func (NopDevice) FillShade(Shading, Matrix, float64) {}

func (NopDevice) PopClip()                                                         {}
func (NopDevice) BeginMask(Rect, bool, Color)                                      {}
func (NopDevice) EndMask()                                                         {}
func (NopDevice) BeginGroup(Rect, bool, bool, string, float64)                     {}
func (NopDevice) EndGroup()                                                        {}
func (NopDevice) BeginTile(Rect, Rect, float64, float64, Matrix) int               { return 0 }
func (NopDevice) EndTile()                                                         {}
func (NopDevice) FreeUser()                                                        {}

// BBoxDevice is a non-renderer that tracks the union of every painted
// region's device-space bounding box, used for "what area of the page has
// content" queries without running the full draw device.
type BBoxDevice struct {
	NopDevice
	Bounds Rect
}

// NewBBoxDevice returns a device with an empty accumulated bounds.
func NewBBoxDevice() *BBoxDevice { return &BBoxDevice{Bounds: Rect{}} }

func (d *BBoxDevice) union(r Rect) {
	if d.Bounds == (Rect{}) {
		d.Bounds = r
		return
	}
	d.Bounds = d.Bounds.Union(r)
}

func (d *BBoxDevice) FillPath(path *Path, evenOdd bool, ctm Matrix, color Color, alpha float64) {
	d.union(path.Bounds().Transform(ctm))
}

func (d *BBoxDevice) StrokePath(path *Path, stroke *StrokeStyle, ctm Matrix, color Color, alpha float64) {
	d.union(path.Bounds().Transform(ctm))
}

func (d *BBoxDevice) FillText(glyphs []Glyph, color Color, alpha float64) {
	for _, g := range glyphs {
		if g.Outline != nil {
			d.union(g.Outline.Bounds().Transform(g.Trm))
		}
	}
}

func (d *BBoxDevice) FillImage(img *Pixmap, ctm Matrix, alpha float64) {
	d.union(Rect{X0: 0, Y0: 0, X1: 1, Y1: 1}.Transform(ctm))
}

// ListDevice fans one stream of device calls out to several sub-devices,
// the same role the teacher's writer pipeline would play if asked to
// produce two outputs (e.g. PostScript and a page thumbnail) from one
// interpreter pass, without interpreting the content stream twice.
type ListDevice struct {
	Devices []Device
}

func NewListDevice(devices ...Device) *ListDevice { return &ListDevice{Devices: devices} }

func (d *ListDevice) FillPath(path *Path, evenOdd bool, ctm Matrix, color Color, alpha float64) {
	for _, sub := range d.Devices {
		sub.FillPath(path, evenOdd, ctm, color, alpha)
	}
}
func (d *ListDevice) StrokePath(path *Path, stroke *StrokeStyle, ctm Matrix, color Color, alpha float64) {
	for _, sub := range d.Devices {
		sub.StrokePath(path, stroke, ctm, color, alpha)
	}
}
func (d *ListDevice) ClipPath(path *Path, evenOdd bool, ctm Matrix) {
	for _, sub := range d.Devices {
		sub.ClipPath(path, evenOdd, ctm)
	}
}
func (d *ListDevice) ClipStrokePath(path *Path, stroke *StrokeStyle, ctm Matrix) {
	for _, sub := range d.Devices {
		sub.ClipStrokePath(path, stroke, ctm)
	}
}
func (d *ListDevice) FillText(glyphs []Glyph, color Color, alpha float64) {
	for _, sub := range d.Devices {
		sub.FillText(glyphs, color, alpha)
	}
}
func (d *ListDevice) StrokeText(glyphs []Glyph, stroke *StrokeStyle, color Color, alpha float64) {
	for _, sub := range d.Devices {
		sub.StrokeText(glyphs, stroke, color, alpha)
	}
}
func (d *ListDevice) ClipText(glyphs []Glyph, accumulate TextAccumulate) {
	for _, sub := range d.Devices {
		sub.ClipText(glyphs, accumulate)
	}
}
func (d *ListDevice) ClipStrokeText(glyphs []Glyph, stroke *StrokeStyle, accumulate TextAccumulate) {
	for _, sub := range d.Devices {
		sub.ClipStrokeText(glyphs, stroke, accumulate)
	}
}
func (d *ListDevice) IgnoreText(glyphs []Glyph) {
	for _, sub := range d.Devices {
		sub.IgnoreText(glyphs)
	}
}
func (d *ListDevice) FillImage(img *Pixmap, ctm Matrix, alpha float64) {
	for _, sub := range d.Devices {
		sub.FillImage(img, ctm, alpha)
	}
}
func (d *ListDevice) FillImageMask(mask *Pixmap, ctm Matrix, color Color, alpha float64) {
	for _, sub := range d.Devices {
		sub.FillImageMask(mask, ctm, color, alpha)
	}
}
func (d *ListDevice) ClipImageMask(mask *Pixmap, ctm Matrix) {
	for _, sub := range d.Devices {
		sub.ClipImageMask(mask, ctm)
	}
}
func (d *ListDevice) FillShade(sh Shading, ctm Matrix, alpha float64) {
	for _, sub := range d.Devices {
		sub.FillShade(sh, ctm, alpha)
	}
}
func (d *ListDevice) PopClip() {
	for _, sub := range d.Devices {
		sub.PopClip()
	}
}
func (d *ListDevice) BeginMask(area Rect, luminosity bool, backdrop Color) {
	for _, sub := range d.Devices {
		sub.BeginMask(area, luminosity, backdrop)
	}
}
func (d *ListDevice) EndMask() {
	for _, sub := range d.Devices {
		sub.EndMask()
	}
}
func (d *ListDevice) BeginGroup(area Rect, isolated, knockout bool, blendMode string, alpha float64) {
	for _, sub := range d.Devices {
		sub.BeginGroup(area, isolated, knockout, blendMode, alpha)
	}
}
func (d *ListDevice) EndGroup() {
	for _, sub := range d.Devices {
		sub.EndGroup()
	}
}
func (d *ListDevice) BeginTile(area, view Rect, xstep, ystep float64, ctm Matrix) int {
	last := 0
	for _, sub := range d.Devices {
		last = sub.BeginTile(area, view, xstep, ystep, ctm)
	}
	return last
}
func (d *ListDevice) EndTile() {
	for _, sub := range d.Devices {
		sub.EndTile()
	}
}
func (d *ListDevice) FreeUser() {
	for _, sub := range d.Devices {
		sub.FreeUser()
	}
}
