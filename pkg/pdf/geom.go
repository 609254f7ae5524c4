package pdf

import "math"

// Matrix is a PDF-style affine transform [a b c d e f], mapping (x, y) to
// (a*x + c*y + e, b*x + d*y + f). Stored as six fields rather than the
// array-of-6 the teacher used, so graphics-state code reads like algebra
// instead of indexing into a magic array.
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the unit transform.
var Identity = Matrix{A: 1, D: 1}

// Mul returns m concatenated with n, i.e. the transform that applies m
// first and then n (PDF's "cm" operator semantics: new CTM = m x old CTM).
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.B*n.C,
		B: m.A*n.B + m.B*n.D,
		C: m.C*n.A + m.D*n.C,
		D: m.C*n.B + m.D*n.D,
		E: m.E*n.A + m.F*n.C + n.E,
		F: m.E*n.B + m.F*n.D + n.F,
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// ApplyVector transforms a displacement, ignoring translation.
func (m Matrix) ApplyVector(dx, dy float64) (float64, float64) {
	return m.A*dx + m.C*dy, m.B*dx + m.D*dy
}

// Translate returns the translation-by-(tx,ty) matrix.
func Translate(tx, ty float64) Matrix { return Matrix{A: 1, D: 1, E: tx, F: ty} }

// Scale returns the axis scaling matrix.
func Scale(sx, sy float64) Matrix { return Matrix{A: sx, D: sy} }

// Rotate returns the rotation-by-theta (radians) matrix.
func Rotate(theta float64) Matrix {
	c, s := math.Cos(theta), math.Sin(theta)
	return Matrix{A: c, B: s, C: -s, D: c}
}

// Invert returns m's inverse, or the identity if m is singular.
func (m Matrix) Invert() Matrix {
	det := m.A*m.D - m.B*m.C
	if det == 0 {
		return Identity
	}
	inv := 1 / det
	return Matrix{
		A: m.D * inv,
		B: -m.B * inv,
		C: -m.C * inv,
		D: m.A * inv,
		E: (m.C*m.F - m.D*m.E) * inv,
		F: (m.B*m.E - m.A*m.F) * inv,
	}
}

// Expansion estimates the scalar area-expansion factor of m, used to scale
// stroke line widths into device space.
func (m Matrix) Expansion() float64 {
	return math.Sqrt(math.Abs(m.A*m.D - m.B*m.C))
}

// Point is a 2D coordinate in whatever space the caller has in mind
// (user space, device space, glyph space — all the same representation).
type Point struct{ X, Y float64 }

// Rect is an axis-aligned rectangle, normalized so X0<=X1 and Y0<=Y1.
type Rect struct{ X0, Y0, X1, Y1 float64 }

// InfiniteRect represents "no clip" / "unbounded" as used for a fresh
// graphics state's clip region.
var InfiniteRect = Rect{X0: math.Inf(-1), Y0: math.Inf(-1), X1: math.Inf(1), Y1: math.Inf(1)}

func (r Rect) IsEmpty() bool { return r.X0 >= r.X1 || r.Y0 >= r.Y1 }

func (r Rect) Intersect(s Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, s.X0), Y0: math.Max(r.Y0, s.Y0),
		X1: math.Min(r.X1, s.X1), Y1: math.Min(r.Y1, s.Y1),
	}
	if out.X0 > out.X1 {
		out.X1 = out.X0
	}
	if out.Y0 > out.Y1 {
		out.Y1 = out.Y0
	}
	return out
}

func (r Rect) Union(s Rect) Rect {
	if r.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, s.X0), Y0: math.Min(r.Y0, s.Y0),
		X1: math.Max(r.X1, s.X1), Y1: math.Max(r.Y1, s.Y1),
	}
}

// Transform returns the bounding box of r's four corners transformed by m.
func (r Rect) Transform(m Matrix) Rect {
	xs := [4]float64{}
	ys := [4]float64{}
	corners := [4][2]float64{{r.X0, r.Y0}, {r.X1, r.Y0}, {r.X0, r.Y1}, {r.X1, r.Y1}}
	for i, c := range corners {
		xs[i], ys[i] = m.Apply(c[0], c[1])
	}
	out := Rect{X0: xs[0], X1: xs[0], Y0: ys[0], Y1: ys[0]}
	for i := 1; i < 4; i++ {
		out.X0 = math.Min(out.X0, xs[i])
		out.X1 = math.Max(out.X1, xs[i])
		out.Y0 = math.Min(out.Y0, ys[i])
		out.Y1 = math.Max(out.Y1, ys[i])
	}
	return out
}

// Color is a device-RGB color with components in [0, 1]. Colorspace
// conversion (Gray/CMYK/Indexed/Separation/ICCBased -> RGB) happens in
// colorspace.go; by the time a Color reaches the draw device it is always RGB.
type Color struct{ R, G, B float64 }

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// GrayColor converts a gray value in [0,1] to RGB.
func GrayColor(g float64) Color { g = clamp01(g); return Color{g, g, g} }

// CMYKColor converts CMYK in [0,1]^4 to RGB via the naive subtractive
// formula, the same approximation used throughout the reference renderer
// for devices without an ICC engine.
func CMYKColor(c, m, y, k float64) Color {
	return Color{
		R: clamp01(1 - math.Min(1, c+k)),
		G: clamp01(1 - math.Min(1, m+k)),
		B: clamp01(1 - math.Min(1, y+k)),
	}
}
