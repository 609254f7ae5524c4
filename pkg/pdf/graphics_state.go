package pdf

// TextState holds the content stream's text-positioning parameters (§4.4):
// the text and text-line matrices, the character/word spacing, horizontal
// scale, leading, rise, and the currently selected font.
type TextState struct {
	Tm, Tlm Matrix

	CharSpace  float64
	WordSpace  float64
	Hscale     float64 // percent, 100 = no scaling
	Leading    float64
	FontSize   float64
	Rise       float64
	RenderMode int

	Font       *Value // the font dictionary
	FontSource GlyphSource
	fontHandle interface{} // *loadedFont; kept untyped here so graphics_state.go doesn't need to know the interpreter's font-cache shape
}

func newTextState() TextState {
	return TextState{Tm: Identity, Tlm: Identity, Hscale: 100}
}

// GraphicsState is the content interpreter's q/Q-stacked state: CTM, fill
// and stroke paint, line style, alpha/blend/soft-mask, the active clip,
// and the nested TextState. Grounded on the teacher's TextGraphicsState
// (CTM storage and transform helpers), generalized from "text extraction
// only" to the full painting state the device contract needs.
type GraphicsState struct {
	CTM Matrix

	FillColor   Color
	StrokeColor Color
	FillAlpha   float64
	StrokeAlpha float64
	BlendMode   string

	LineWidth float64
	LineCap   int
	LineJoin  int
	MiterLimit float64
	DashArray []float64
	DashPhase float64

	Clip      *Path
	ClipDepth int // how many dev.ClipPath/ClipStrokePath pushes are active at this q level
	SoftMask  *Value

	Text TextState
}

// NewGraphicsState returns the initial graphics state for a fresh content
// stream execution: identity CTM, opaque black fill/stroke, 1-unit line
// width, no clip.
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{
		CTM:         Identity,
		FillAlpha:   1,
		StrokeAlpha: 1,
		LineWidth:   1,
		MiterLimit:  10,
		Text:        newTextState(),
	}
}

// Clone returns a copy suitable for pushing onto the q/Q stack: the dash
// array is copied (not shared) since some operators mutate it in place,
// everything else is a value copy.
func (gs *GraphicsState) Clone() *GraphicsState {
	clone := *gs
	if gs.DashArray != nil {
		clone.DashArray = append([]float64(nil), gs.DashArray...)
	}
	return &clone
}

// Transform applies the CTM to a user-space point.
func (gs *GraphicsState) Transform(x, y float64) (float64, float64) {
	return gs.CTM.Apply(x, y)
}

// ConcatCTM left-multiplies m into the CTM, implementing the "cm" operator.
func (gs *GraphicsState) ConcatCTM(m Matrix) {
	gs.CTM = m.Mul(gs.CTM)
}

// SetTextMatrix sets Tm and Tlm together, implementing "Tm".
func (ts *TextState) SetTextMatrix(m Matrix) {
	ts.Tm = m
	ts.Tlm = m
}

// TranslateLine advances the line matrix by (tx, ty) in text space and
// makes it the current text matrix, implementing "Td"/"TD"/"T*".
func (ts *TextState) TranslateLine(tx, ty float64) {
	ts.Tlm = Translate(tx, ty).Mul(ts.Tlm)
	ts.Tm = ts.Tlm
}

// TextRenderMatrix returns the matrix mapping glyph space to user space
// for the current text state's font size, scale, and rise, per PDF's
// Trm = [Tfs*Th 0 0 Tfs 0 Trise] x Tm composition.
func (ts *TextState) TextRenderMatrix() Matrix {
	params := Matrix{A: ts.FontSize * ts.Hscale / 100, D: ts.FontSize, F: ts.Rise}
	return params.Mul(ts.Tm)
}
