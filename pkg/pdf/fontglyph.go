package pdf

import (
	"fmt"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// GlyphSource is the boundary this engine draws at for font rasterization
// (§1: font-rasterization internals are an external collaborator). A
// GlyphSource only needs to answer "what outline/advance does glyph g
// have", never how to hint or antialias it — that is the draw device's
// job once it has the outline.
type GlyphSource interface {
	// Outline returns glyph gid's contour in a 1000-unit-per-em space
	// (PDF glyph space), or nil if the glyph has no vector outline this
	// source can produce.
	Outline(gid uint16) *Path
	// Advance returns glyph gid's horizontal advance width, in the same
	// 1000-unit-per-em space.
	Advance(gid uint16) float64
	// GIDForRune maps a Unicode code point to a glyph id, or (0, false) if
	// the source has no mapping (the caller falls back to the font's own
	// /Encoding-driven code-to-GID table instead).
	GIDForRune(r rune) (uint16, bool)
}

// truetypeSource adapts an embedded TrueType/OpenType program (loaded from
// a PDF FontFile2 stream) to GlyphSource, grounded on the teacher's former
// font_renderer.go's reliance on github.com/golang/freetype/truetype for
// embedded-font parsing.
type truetypeSource struct {
	font       *truetype.Font
	unitsPerEm float64
}

// NewTrueTypeGlyphSource parses an embedded TrueType program.
func NewTrueTypeGlyphSource(data []byte) (GlyphSource, error) {
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fontglyph: %w", err)
	}
	upm := float64(f.FUnitsPerEm())
	if upm == 0 {
		upm = 1000
	}
	return &truetypeSource{font: f, unitsPerEm: upm}, nil
}

func (s *truetypeSource) scale() float64 { return 1000 / s.unitsPerEm }

func (s *truetypeSource) Outline(gid uint16) *Path {
	var buf truetype.GlyphBuf
	scale := fixed.Int26_6(s.unitsPerEm * 64)
	if err := buf.Load(s.font, scale, truetype.Index(gid), font.HintingNone); err != nil {
		return nil
	}
	return truetypeContoursToPath(buf.Points, buf.Ends, s.scale())
}

func (s *truetypeSource) Advance(gid uint16) float64 {
	scale := fixed.Int26_6(s.unitsPerEm * 64)
	adv := s.font.HMetric(scale, truetype.Index(gid)).AdvanceWidth
	return float64(adv) / 64 * s.scale()
}

func (s *truetypeSource) GIDForRune(r rune) (uint16, bool) {
	idx := s.font.Index(r)
	if idx == 0 {
		return 0, false
	}
	return uint16(idx), true
}

// truetypeContoursToPath converts freetype's quadratic-Bezier contour
// representation (on-curve points with implied on-curve midpoints between
// consecutive off-curve points) into our cubic-Bezier Path, elevating
// each quadratic segment to cubic via the standard 2/3 control-point rule.
func truetypeContoursToPath(pts []truetype.Point, ends []int, scale float64) *Path {
	p := NewPath()
	start := 0
	for _, end := range ends {
		contour := pts[start : end+1]
		start = end + 1
		if len(contour) == 0 {
			continue
		}
		emitContour(p, contour, scale)
	}
	return p
}

func onCurve(pt truetype.Point) bool { return pt.Flags&0x01 != 0 }

func ttPoint(pt truetype.Point, scale float64) Point {
	return Point{X: float64(pt.X) / 64 * scale, Y: float64(pt.Y) / 64 * scale}
}

func emitContour(p *Path, contour []truetype.Point, scale float64) {
	n := len(contour)
	// Find a starting on-curve point, synthesizing the midpoint of the
	// first and last points if the contour starts off-curve.
	startIdx := -1
	for i, pt := range contour {
		if onCurve(pt) {
			startIdx = i
			break
		}
	}
	var startPt Point
	if startIdx < 0 {
		startPt = midpoint(ttPoint(contour[0], scale), ttPoint(contour[n-1], scale))
		startIdx = 0
	} else {
		startPt = ttPoint(contour[startIdx], scale)
	}
	p.MoveTo(startPt.X, startPt.Y)

	cur := startPt
	var pendingOff *Point
	for i := 1; i <= n; i++ {
		pt := contour[(startIdx+i)%n]
		onC := onCurve(pt)
		ptPos := ttPoint(pt, scale)
		if onC {
			if pendingOff == nil {
				p.LineTo(ptPos.X, ptPos.Y)
			} else {
				quadToCubic(p, cur, *pendingOff, ptPos)
				pendingOff = nil
			}
			cur = ptPos
		} else {
			if pendingOff != nil {
				mid := midpoint(*pendingOff, ptPos)
				quadToCubic(p, cur, *pendingOff, mid)
				cur = mid
			}
			off := ptPos
			pendingOff = &off
		}
	}
	if pendingOff != nil {
		quadToCubic(p, cur, *pendingOff, startPt)
	}
	p.ClosePath()
}

func midpoint(a, b Point) Point { return Point{(a.X + b.X) / 2, (a.Y + b.Y) / 2} }

func quadToCubic(p *Path, p0, pq, p2 Point) {
	c1 := Point{p0.X + 2.0/3.0*(pq.X-p0.X), p0.Y + 2.0/3.0*(pq.Y-p0.Y)}
	c2 := Point{p2.X + 2.0/3.0*(pq.X-p2.X), p2.Y + 2.0/3.0*(pq.Y-p2.Y)}
	p.CurveTo(c1.X, c1.Y, c2.X, c2.Y, p2.X, p2.Y)
}

// basicFontSource backs the non-embedded-font path (a standard font with
// no FontFile in the PDF) with x/image's built-in bitmap face, converted
// to bounding-box rectangles rather than true outlines — enough for the
// draw device to place and fill glyph-shaped coverage without depending
// on a second vector font being bundled.
type basicFontSource struct{}

// NewFallbackGlyphSource returns a GlyphSource usable when a font resource
// carries no embedded program, grounded on golang.org/x/image/font/
// basicfont's fixed 7x13 face.
func NewFallbackGlyphSource() GlyphSource { return basicFontSource{} }

func (basicFontSource) Outline(gid uint16) *Path {
	b := basicfont.Face7x13.Mask.Bounds()
	w, h := float64(b.Dx())*1000/13, float64(basicfont.Face7x13.Height)*1000/13
	p := NewPath()
	p.MoveTo(0, 0)
	p.LineTo(w, 0)
	p.LineTo(w, h)
	p.LineTo(0, h)
	p.ClosePath()
	return p
}

func (basicFontSource) Advance(gid uint16) float64 {
	return float64(basicfont.Face7x13.Advance) * 1000 / 13
}

func (basicFontSource) GIDForRune(r rune) (uint16, bool) {
	_, _, _, adv, ok := basicfont.Face7x13.Glyph(fixed.Point26_6{}, r)
	_ = adv
	if !ok {
		return 0, false
	}
	return uint16(r), true
}
