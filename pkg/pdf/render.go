package pdf

import (
	"fmt"
	"math"
)

// RenderOptions selects how PageRenderer rasterizes a page: resolution and
// which of the page's alternate boxes to use. Grounded on the teacher's
// own RenderOptions (DPI/CropBox fields carried over unchanged); fields
// for output format, password prompts, and monochrome/scale-to-size
// conversion are dropped along with the writer/CLI surface those served.
type RenderOptions struct {
	DPI     float64 // resolution in DPI; 0 defaults to 72 (one device pixel per user-space unit)
	CropBox bool    // use /CropBox instead of /MediaBox when both are present
}

// PageRenderer drives the content interpreter against a DrawDevice for one
// open document, the public entry point everything in content.go,
// content_resources.go, content_image.go, and drawdevice.go was built to
// sit behind.
type PageRenderer struct {
	doc     *Document
	options RenderOptions
}

// NewPageRenderer returns a renderer for doc with options (DPI 0 defaults
// to 72).
func NewPageRenderer(doc *Document, options RenderOptions) *PageRenderer {
	if options.DPI == 0 {
		options.DPI = 72
	}
	return &PageRenderer{doc: doc, options: options}
}

// RenderedPage is one page's rasterized pixel buffer plus the warnings its
// interpretation produced.
type RenderedPage struct {
	PageNum  int
	Width    int
	Height   int
	Pixmap   *Pixmap
	Warnings []string
}

// pageBox resolves the box RenderOptions selects (CropBox falling back to
// MediaBox, MediaBox falling back to US Letter when the file omits it
// even at the inherited root, matching the engine's recovery-tolerant
// posture elsewhere).
func pageBox(page *Value) Rect {
	box := page.DictGet("MediaBox")
	if box.IsNull() || !box.IsArray() || box.Len() != 4 {
		return Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}
	}
	x0 := ResolveIndirect(box.ArrayGet(0)).Float()
	y0 := ResolveIndirect(box.ArrayGet(1)).Float()
	x1 := ResolveIndirect(box.ArrayGet(2)).Float()
	y1 := ResolveIndirect(box.ArrayGet(3)).Float()
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r *PageRenderer) pageBox(page *Value) Rect {
	if r.options.CropBox {
		if crop := page.DictGet("CropBox"); !crop.IsNull() && crop.IsArray() && crop.Len() == 4 {
			return pageBox(pageCropStandin(crop))
		}
	}
	return pageBox(page)
}

// pageCropStandin wraps a /CropBox array so pageBox's MediaBox lookup can
// be reused for it without duplicating the array-decode logic.
func pageCropStandin(crop *Value) *Value {
	d := NewDict(1)
	d.DictPut("MediaBox", crop)
	return d
}

// pageRotation returns the page's /Rotate normalized to one of 0/90/180/270.
func pageRotation(page *Value) int {
	rot := int(ResolveIndirect(page.DictGet("Rotate")).Int())
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return (rot / 90 * 90) % 360
}

// deviceCTM builds the matrix mapping PDF user space (origin bottom-left,
// y increasing up) to device pixel space (origin top-left, y increasing
// down) for the given box, scale, and page rotation, in that composition
// order: translate the box to the origin, flip+scale to pixels, then
// rotate about the output image's own center.
func deviceCTM(box Rect, scale float64, rotate int, outW, outH int) Matrix {
	m := Translate(-box.X0, -box.Y0)
	m = m.Mul(Matrix{A: scale, D: -scale, F: float64(outH)})
	switch rotate {
	case 90:
		m = m.Mul(Matrix{A: 0, B: 1, C: -1, D: 0, E: float64(outH)})
	case 180:
		m = m.Mul(Matrix{A: -1, D: -1, E: float64(outW), F: float64(outH)})
	case 270:
		m = m.Mul(Matrix{A: 0, B: -1, C: 1, D: 0, F: float64(outW)})
	}
	return m
}

// contentBytes concatenates a page's /Contents (a single stream or an
// array of streams, per §4.4) into one buffer, separated by whitespace so
// an operator split across two streams' boundary never gets glued into
// one token.
func (doc *Document) contentBytes(page *Value) []byte {
	contents := page.DictGet("Contents")
	var streams []*Value
	if contents.IsArray() {
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.ArrayGet(i))
		}
	} else if !contents.IsNull() {
		streams = append(streams, contents)
	}

	var out []byte
	for _, s := range streams {
		num, gen := s.Reference()
		if num == 0 {
			continue
		}
		data, err := doc.StreamData(num, gen)
		if err != nil {
			doc.warnf("content stream %d %d: %v", num, gen, err)
			continue
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out
}

// RenderPage rasterizes the 0-based page index into a Pixmap, running the
// content interpreter inside Try so a raised structural failure (a
// resource that cannot be resolved at all) degrades to a partially
// painted page plus a warning rather than aborting the caller.
func (r *PageRenderer) RenderPage(pageNum int) (*RenderedPage, error) {
	if pageNum < 0 || pageNum >= r.doc.PageCount() {
		return nil, fmt.Errorf("invalid page index %d", pageNum)
	}
	page := r.doc.Page(pageNum)
	box := r.pageBox(page)
	rotate := pageRotation(page)

	scale := r.options.DPI / 72.0
	w := box.X1 - box.X0
	h := box.Y1 - box.Y0
	outW := int(math.Ceil(w * scale))
	outH := int(math.Ceil(h * scale))
	if rotate == 90 || rotate == 270 {
		outW, outH = outH, outW
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	ctm := deviceCTM(box, scale, rotate, outW, outH)
	dev := NewDrawDevice(outW, outH)
	cookie := &Cookie{}

	resources := page.DictGet("Resources")
	ip := NewInterpreter(r.doc, dev, resources, cookie)
	ip.gs.CTM = ctm
	content := r.doc.contentBytes(page)

	var pixmap *Pixmap
	err := Try(func() {
		ip.Run(content)
	}, func() {
		pixmap = dev.Target
		dev.FreeUser()
	}, func(e error) {
		r.doc.warnf("page %d: %v", pageNum, e)
	})

	result := &RenderedPage{
		PageNum:  pageNum,
		Width:    outW,
		Height:   outH,
		Pixmap:   pixmap,
		Warnings: r.doc.Warnings(),
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
