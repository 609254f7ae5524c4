package pdf

import "math"

// resourceLookup fetches name from the named subdictionary (Font, XObject,
// ExtGState, ColorSpace, Pattern, Shading, Properties) of the current
// resource dictionary.
func (ip *Interpreter) resourceLookup(category, name Name) *Value {
	if ip.resources == nil {
		return nil
	}
	sub := ip.resources.DictGet(category)
	if sub == nil || !sub.IsDict() {
		return nil
	}
	v := sub.DictGet(name)
	if v == nil || v.IsNull() {
		return nil
	}
	return v
}

func (ip *Interpreter) resolveResourceColorSpace(name Name) *colorSpaceInfo {
	switch name {
	case "DeviceGray", "DeviceRGB", "DeviceCMYK", "Pattern":
		return resolveColorSpace(ip.doc, NewName(name))
	}
	v := ip.resourceLookup("ColorSpace", name)
	if v == nil {
		return deviceGraySpace
	}
	return resolveColorSpace(ip.doc, v)
}

// evalColorOperands interprets sc/scn (or SC/SCN) operands: either n
// numeric components in the current color space, or a trailing /PatternName
// naming a pattern, which resolves to one flat Color: a shading pattern's
// color at shading-space point (0, 0), or mid-gray for a tiling pattern or
// a pattern that cannot be loaded. Pattern fills are not painted through
// the device's begin_tile path.
func (ip *Interpreter) evalColorOperands(ops []*Value, cs *colorSpaceInfo) Color {
	if len(ops) == 0 {
		return Color{}
	}
	last := ResolveIndirect(ops[len(ops)-1])
	if last.IsName() {
		pat := ip.resourceLookup("Pattern", last.NameValue())
		return ip.approximatePatternColor(pat)
	}
	comps := make([]float64, len(ops))
	for i, o := range ops {
		comps[i] = ResolveIndirect(o).Float()
	}
	return cs.toRGB(comps)
}

func (ip *Interpreter) approximatePatternColor(pat *Value) Color {
	pat = ResolveIndirect(pat)
	if pat == nil || !pat.IsDict() {
		return Color{R: 0.5, G: 0.5, B: 0.5}
	}
	if pat.DictGet("PatternType").Int() == 2 {
		if sh, err := LoadShading(ip.doc, pat.DictGet("Shading")); err == nil {
			c, _ := sh.At(0, 0)
			return c
		}
	}
	return Color{R: 0.5, G: 0.5, B: 0.5}
}

// applyExtGState merges an ExtGState resource's fields into the current
// graphics state: fill/stroke alpha, blend mode, soft mask, and the font
// size from /Font (the font reference in /Font is not applied).
func (ip *Interpreter) applyExtGState(name Name) {
	eg := ip.resourceLookup("ExtGState", name)
	if eg == nil {
		return
	}
	if v := eg.DictGet("ca"); !v.IsNull() {
		ip.gs.FillAlpha = v.Float()
	}
	if v := eg.DictGet("CA"); !v.IsNull() {
		ip.gs.StrokeAlpha = v.Float()
	}
	if v := eg.DictGet("BM"); !v.IsNull() {
		if v.IsArray() && v.Len() > 0 {
			v = v.ArrayGet(0)
		}
		ip.gs.BlendMode = string(ResolveIndirect(v).NameValue())
	}
	if v := eg.DictGet("SMask"); !v.IsNull() {
		if ResolveIndirect(v).IsName() && ResolveIndirect(v).NameValue() == "None" {
			ip.gs.SoftMask = nil
		} else {
			ip.gs.SoftMask = v
		}
	}
	if fontArr := eg.DictGet("Font"); fontArr != nil && fontArr.IsArray() && fontArr.Len() == 2 {
		ip.gs.Text.FontSize = ResolveIndirect(fontArr.ArrayGet(1)).Float()
	}
}

// setFont resolves a /Tf font resource into a GlyphSource, caching per
// resource name for the life of this interpreter (content streams tend
// to reselect the same handful of fonts repeatedly).
func (ip *Interpreter) setFont(name Name, size float64) {
	ip.gs.Text.FontSize = size
	if lf, ok := ip.fontCache[string(name)]; ok {
		ip.gs.Text.FontSource = lf.source
		ip.gs.Text.fontHandle = lf
		return
	}
	fontDict := ip.resourceLookup("Font", name)
	lf := ip.loadFont(fontDict)
	ip.fontCache[string(name)] = lf
	ip.gs.Text.FontSource = lf.source
	ip.gs.Text.fontHandle = lf
}

func (ip *Interpreter) loadFont(fontDict *Value) *loadedFont {
	lf := &loadedFont{widths: map[int]float64{}, defaultWidth: 500, codeBytes: 1}
	if fontDict == nil || !fontDict.IsDict() {
		lf.source = NewFallbackGlyphSource()
		return lf
	}
	subtype := fontDict.DictGet("Subtype").NameValue()
	descendant := fontDict
	if subtype == "Type0" {
		lf.codeBytes = 2
		lf.cidMode = true
		if arr := fontDict.DictGet("DescendantFonts"); arr != nil && arr.IsArray() && arr.Len() > 0 {
			descendant = ResolveIndirect(arr.ArrayGet(0))
		}
	}
	desc := descendant.DictGet("FontDescriptor")
	lf.source = ip.loadEmbeddedProgram(desc)
	if lf.source == nil {
		lf.source = NewFallbackGlyphSource()
	}
	ip.loadWidths(fontDict, descendant, lf)
	return lf
}

func (ip *Interpreter) loadEmbeddedProgram(desc *Value) GlyphSource {
	desc = ResolveIndirect(desc)
	if desc == nil || !desc.IsDict() {
		return nil
	}
	ff2 := desc.DictGet("FontFile2")
	num, gen := desc.DictGet("FontFile2").Reference()
	if num == 0 {
		return nil
	}
	_ = ff2
	data, err := ip.doc.StreamData(num, gen)
	if err != nil {
		return nil
	}
	src, err := NewTrueTypeGlyphSource(data)
	if err != nil {
		return nil
	}
	return src
}

func (ip *Interpreter) loadWidths(fontDict, descendant *Value, lf *loadedFont) {
	if lf.cidMode {
		if dw := descendant.DictGet("DW"); !dw.IsNull() {
			lf.defaultWidth = dw.Float()
		} else {
			lf.defaultWidth = 1000
		}
		w := descendant.DictGet("W")
		if w != nil && w.IsArray() {
			i := 0
			for i < w.Len() {
				start := int(ResolveIndirect(w.ArrayGet(i)).Int())
				i++
				if i >= w.Len() {
					break
				}
				next := ResolveIndirect(w.ArrayGet(i))
				if next.IsArray() {
					for j := 0; j < next.Len(); j++ {
						lf.widths[start+j] = ResolveIndirect(next.ArrayGet(j)).Float()
					}
					i++
				} else {
					end := int(next.Int())
					i++
					if i >= w.Len() {
						break
					}
					width := ResolveIndirect(w.ArrayGet(i)).Float()
					i++
					for c := start; c <= end; c++ {
						lf.widths[c] = width
					}
				}
			}
		}
		return
	}
	firstChar := int(fontDict.DictGet("FirstChar").Int())
	widths := fontDict.DictGet("Widths")
	if widths != nil && widths.IsArray() {
		for i := 0; i < widths.Len(); i++ {
			lf.widths[firstChar+i] = ResolveIndirect(widths.ArrayGet(i)).Float()
		}
	}
	if mw := fontDict.DictGet("FontDescriptor").DictGet("MissingWidth"); !mw.IsNull() {
		lf.defaultWidth = mw.Float()
	}
}

// showText decodes a string per the active font's code width, advances
// the text matrix per glyph, and, except in render mode 7, hands the glyph
// outlines to the device for the current render mode (IgnoreText for
// mode 3).
func (ip *Interpreter) showText(s []byte) {
	ts := &ip.gs.Text
	lf, _ := ts.fontHandle.(*loadedFont)
	if lf == nil {
		lf = &loadedFont{defaultWidth: 500, codeBytes: 1, source: NewFallbackGlyphSource()}
	}
	codes := decodeCodes(s, lf.codeBytes)
	var glyphs []Glyph
	for _, code := range codes {
		w1000 := lf.defaultWidth
		if width, ok := lf.widths[code]; ok {
			w1000 = width
		}
		trm := ts.TextRenderMatrix().Mul(ip.gs.CTM)
		if ip.visible() && ts.RenderMode != 7 && lf.source != nil {
			gid := uint16(code)
			if r, ok := lf.source.GIDForRune(rune(code)); ok {
				gid = r
			}
			outline := lf.source.Outline(gid)
			if outline != nil {
				glyphs = append(glyphs, Glyph{Outline: outline, Trm: Scale(0.001, 0.001).Mul(trm)})
			}
		}
		advance := (w1000/1000*ts.FontSize + ts.CharSpace) * ts.Hscale / 100
		if code == ' ' && lf.codeBytes == 1 {
			advance += ts.WordSpace * ts.Hscale / 100
		}
		ts.Tm = Translate(advance, 0).Mul(ts.Tm)
	}
	if len(glyphs) == 0 || !ip.visible() {
		return
	}
	switch ts.RenderMode {
	case 0:
		ip.dev.FillText(glyphs, ip.gs.FillColor, ip.gs.FillAlpha)
	case 1:
		style := &StrokeStyle{LineWidth: ip.gs.LineWidth}
		ip.dev.StrokeText(glyphs, style, ip.gs.StrokeColor, ip.gs.StrokeAlpha)
	case 2:
		ip.dev.FillText(glyphs, ip.gs.FillColor, ip.gs.FillAlpha)
		style := &StrokeStyle{LineWidth: ip.gs.LineWidth}
		ip.dev.StrokeText(glyphs, style, ip.gs.StrokeColor, ip.gs.StrokeAlpha)
	case 3:
		ip.dev.IgnoreText(glyphs)
	case 4:
		ip.dev.FillText(glyphs, ip.gs.FillColor, ip.gs.FillAlpha)
		ip.dev.ClipText(glyphs, TextAccumulateContinue)
	case 5:
		style := &StrokeStyle{LineWidth: ip.gs.LineWidth}
		ip.dev.StrokeText(glyphs, style, ip.gs.StrokeColor, ip.gs.StrokeAlpha)
		ip.dev.ClipText(glyphs, TextAccumulateContinue)
	case 6:
		ip.dev.FillText(glyphs, ip.gs.FillColor, ip.gs.FillAlpha)
		ip.dev.ClipText(glyphs, TextAccumulateContinue)
	case 7:
		ip.dev.ClipText(glyphs, TextAccumulateContinue)
	}
}

func decodeCodes(s []byte, codeBytes int) []int {
	var out []int
	for i := 0; i+codeBytes <= len(s); i += codeBytes {
		code := 0
		for j := 0; j < codeBytes; j++ {
			code = code<<8 | int(s[i+j])
		}
		out = append(out, code)
	}
	return out
}

// doXObject dispatches a /Do operator to either a Form XObject (which
// recurses the interpreter over nested content with the form's own
// resources and Matrix) or an Image XObject (which decodes pixels and
// calls FillImage/FillImageMask).
func (ip *Interpreter) doXObject(name Name) {
	xobjRef := ip.resourceLookup("XObject", name)
	num, gen := xobjRef.Reference()
	xobj := ResolveIndirect(xobjRef)
	if xobj == nil || !xobj.IsDict() {
		return
	}
	subtype := xobj.DictGet("Subtype").NameValue()
	switch subtype {
	case "Form":
		ip.runForm(xobj, num, gen)
	case "Image":
		ip.drawImageXObject(xobj, num, gen)
	}
}

func (ip *Interpreter) runForm(form *Value, num, gen int) {
	if ip.depth >= maxFormRecursionDepth {
		ip.doc.warnf("content: form recursion depth exceeded")
		return
	}
	if num == 0 {
		return
	}
	data, err := ip.doc.StreamData(num, gen)
	if err != nil {
		ip.doc.warnf("content: form stream: %v", err)
		return
	}
	saved := *ip.gs
	if m := floatArray(form.DictGet("Matrix")); len(m) == 6 {
		ip.gs.ConcatCTM(Matrix{A: m[0], B: m[1], C: m[2], D: m[3], E: m[4], F: m[5]})
	}
	clipped := false
	if bbox := floatArray(form.DictGet("BBox")); len(bbox) == 4 {
		r := Rect{X0: bbox[0], Y0: bbox[1], X1: bbox[2], Y1: bbox[3]}
		p := NewPath()
		p.MoveTo(r.X0, r.Y0)
		p.LineTo(r.X1, r.Y0)
		p.LineTo(r.X1, r.Y1)
		p.LineTo(r.X0, r.Y1)
		p.ClosePath()
		ip.dev.ClipPath(p, false, ip.gs.CTM)
		clipped = true
	}
	savedResources := ip.resources
	if res := form.DictGet("Resources"); res != nil && res.IsDict() {
		ip.resources = res
	}
	ip.depth++
	ip.Run(data)
	ip.depth--
	ip.resources = savedResources
	if clipped {
		ip.dev.PopClip()
	}
	*ip.gs = saved
}

func (ip *Interpreter) doShading(name Name) {
	shDict := ip.resourceLookup("Shading", name)
	sh, err := LoadShading(ip.doc, shDict)
	if err != nil {
		ip.doc.warnf("content: shading: %v", err)
		return
	}
	if ip.visible() {
		ip.dev.FillShade(sh, ip.gs.CTM, ip.gs.FillAlpha)
	}
}

// resolveOCVisibility checks a BDC /OC operand (a Name into the Properties
// resource, resolving to an OCG/OCMD reference) against the document's
// optional-content visibility state.
func (ip *Interpreter) resolveOCVisibility(operand *Value) bool {
	operand = ResolveIndirect(operand)
	var ocgRef *Value
	if operand != nil && operand.IsName() {
		ocgRef = ip.resourceLookup("Properties", operand.NameValue())
	} else {
		ocgRef = operand
	}
	if ocgRef == nil {
		return true
	}
	return ip.doc.IsOCGVisible(ocgRef)
}

func clampUnit(x float64) float64 { return math.Max(0, math.Min(1, x)) }
