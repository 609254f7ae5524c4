package pdf

import (
	"bytes"
	"image"
	"image/jpeg"
)

// drawImageXObject decodes an Image XObject's pixel data (honoring
// DCTDecode/JPXDecode's pass-through-to-stdlib-decoder path, §1's explicit
// boundary: this engine never reimplements a JPEG decoder, it calls one)
// and hands the result to the device as either an image fill or an image
// mask fill, per whether /ImageMask is true.
func (ip *Interpreter) drawImageXObject(xobj *Value, num, gen int) {
	if !ip.visible() {
		return
	}
	w := int(xobj.DictGet("Width").Int())
	h := int(xobj.DictGet("Height").Int())
	if w <= 0 || h <= 0 {
		return
	}
	raw, err := ip.doc.StreamData(num, gen)
	if err != nil {
		ip.doc.warnf("content: image stream: %v", err)
		return
	}
	isMask := xobj.DictGet("ImageMask").Bool()
	lastFilter := lastFilterName(xobj.DictGet("Filter"))

	if isMask {
		bpc := 1
		decode := floatArray(xobj.DictGet("Decode"))
		invert := len(decode) == 2 && decode[0] == 1
		pm := samplesToMask(raw, w, h, bpc, invert)
		ip.dev.FillImageMask(pm, ip.gs.CTM, ip.gs.FillColor, ip.gs.FillAlpha)
		return
	}

	cs := resolveColorSpace(ip.doc, xobj.DictGet("ColorSpace"))
	bpc := int(xobj.DictGet("BitsPerComponent").Int())
	if bpc == 0 {
		bpc = 8
	}
	decode := floatArray(xobj.DictGet("Decode"))

	var pm *Pixmap
	switch lastFilter {
	case "DCTDecode", "JPXDecode":
		img, _, decErr := image.Decode(bytes.NewReader(raw))
		if decErr != nil {
			img, decErr = jpeg.Decode(bytes.NewReader(raw))
		}
		if decErr != nil {
			ip.doc.warnf("content: image decode: %v", decErr)
			return
		}
		pm = imageToPixmap(img)
	default:
		pm = samplesToPixmap(raw, w, h, bpc, cs, decode)
	}
	if pm == nil {
		return
	}
	applySoftMaskOrMask(ip.doc, xobj, pm)
	ip.dev.FillImage(pm, ip.gs.CTM, ip.gs.FillAlpha)
}

func lastFilterName(filterSpec *Value) string {
	filterSpec = ResolveIndirect(filterSpec)
	if filterSpec == nil {
		return ""
	}
	if filterSpec.IsName() {
		return string(filterSpec.NameValue())
	}
	if filterSpec.IsArray() && filterSpec.Len() > 0 {
		return string(ResolveIndirect(filterSpec.ArrayGet(filterSpec.Len() - 1)).NameValue())
	}
	return ""
}

func imageToPixmap(img image.Image) *Pixmap {
	b := img.Bounds()
	pm := NewPixmap(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			pm.SetRGBA(x-b.Min.X, y-b.Min.Y, float64(r)/65535, float64(g)/65535, float64(bl)/65535, float64(a)/65535)
		}
	}
	return pm
}

// samplesToPixmap unpacks raw component samples (already predictor- and
// filter-decoded by StreamData) into an RGB pixmap, applying the
// colorspace's native-range Decode array and then toRGB.
func samplesToPixmap(raw []byte, w, h, bpc int, cs *colorSpaceInfo, decode []float64) *Pixmap {
	nComp := 1
	if cs != nil {
		nComp = cs.nComps
	}
	pm := NewPixmap(w, h)
	src := newByteSource(raw)
	rowBits := w * nComp * bpc
	rowBytes := (rowBits + 7) / 8
	maxVal := float64((uint64(1) << uint(bpc)) - 1)
	for y := 0; y < h; y++ {
		rowStart := int64(y) * int64(rowBytes)
		src.Seek(rowStart)
		br := newBitReader(src)
		for x := 0; x < w; x++ {
			comps := make([]float64, nComp)
			for c := 0; c < nComp; c++ {
				v := float64(br.ReadBits(bpc))
				lo, hi := 0.0, 1.0
				if cs != nil && cs.family == "Indexed" {
					lo, hi = 0, maxVal
				}
				if 2*c+1 < len(decode) {
					lo, hi = decode[2*c], decode[2*c+1]
				} else if !(cs != nil && cs.family == "Indexed") {
					lo, hi = 0, 1
				}
				comps[c] = lo + (v/maxVal)*(hi-lo)
			}
			col := cs.toRGB(comps)
			pm.SetRGBA(x, y, col.R, col.G, col.B, 1)
		}
	}
	return pm
}

// samplesToMask unpacks a 1-bit (typically) stencil mask into a pixmap
// whose alpha channel carries coverage; invert honors a Decode of [1 0].
func samplesToMask(raw []byte, w, h, bpc int, invert bool) *Pixmap {
	pm := NewPixmap(w, h)
	src := newByteSource(raw)
	rowBytes := (w*bpc + 7) / 8
	for y := 0; y < h; y++ {
		src.Seek(int64(y) * int64(rowBytes))
		br := newBitReader(src)
		for x := 0; x < w; x++ {
			bit := br.ReadBits(bpc)
			painted := bit == 0
			if invert {
				painted = !painted
			}
			a := 0.0
			if painted {
				a = 1.0
			}
			pm.SetRGBA(x, y, 0, 0, 0, a)
		}
	}
	return pm
}

// applySoftMaskOrMask multiplies an image's alpha channel by its /SMask or
// stencil /Mask, if present, scaling the mask to the base image's grid with
// simple nearest-neighbor sampling.
func applySoftMaskOrMask(doc *Document, xobj *Value, pm *Pixmap) {
	if sm := xobj.DictGet("SMask"); sm != nil && !sm.IsNull() {
		applyAlphaSource(doc, sm, pm, false)
		return
	}
	if m := xobj.DictGet("Mask"); m != nil && !m.IsNull() {
		if ResolveIndirect(m).IsArray() {
			return // color-key masking: not modeled at the pixmap level
		}
		applyAlphaSource(doc, m, pm, true)
	}
}

func applyAlphaSource(doc *Document, maskRef *Value, pm *Pixmap, stencil bool) {
	num, gen := maskRef.Reference()
	if num == 0 {
		return
	}
	maskDict := ResolveIndirect(maskRef)
	raw, err := doc.StreamData(num, gen)
	if err != nil {
		return
	}
	mw := int(maskDict.DictGet("Width").Int())
	mh := int(maskDict.DictGet("Height").Int())
	if mw <= 0 || mh <= 0 {
		return
	}
	bpc := int(maskDict.DictGet("BitsPerComponent").Int())
	if bpc == 0 {
		bpc = 8
	}
	decode := floatArray(maskDict.DictGet("Decode"))
	invert := stencil && len(decode) == 2 && decode[0] == 1
	var maskPm *Pixmap
	if stencil {
		maskPm = samplesToMask(raw, mw, mh, bpc, invert)
	} else {
		maskPm = samplesToPixmap(raw, mw, mh, bpc, deviceGraySpace, decode)
	}
	for y := 0; y < pm.H; y++ {
		my := y * mh / pm.H
		for x := 0; x < pm.W; x++ {
			mx := x * mw / pm.W
			mr, _, _, ma := maskPm.GetRGBA(mx, my)
			k := ma
			if !stencil {
				k = mr // a soft mask's gray level is its alpha
			}
			r, g, b, a := pm.GetRGBA(x, y)
			pm.SetRGBA(x, y, r*k, g*k, b*k, a*k)
		}
	}
}

// inlineImageKeyExpansions maps the abbreviated keys/values the BI...ID...EI
// grammar allows (to keep content streams small) to their full XObject
// dictionary equivalents, so the rest of the image pipeline never needs to
// know inline images use different spellings.
var inlineImageKeyExpansions = map[string]Name{
	"BPC": "BitsPerComponent", "CS": "ColorSpace", "D": "Decode",
	"DP": "DecodeParms", "F": "Filter", "H": "Height", "IM": "ImageMask",
	"I": "Interpolate", "W": "Width", "L": "Length",
}

var inlineImageNameExpansions = map[Name]Name{
	"G": "DeviceGray", "RGB": "DeviceRGB", "CMYK": "DeviceCMYK", "I": "Indexed",
	"AHx": "ASCIIHexDecode", "A85": "ASCII85Decode", "LZW": "LZWDecode",
	"Fl": "FlateDecode", "RL": "RunLengthDecode", "CCF": "CCITTFaxDecode", "DCT": "DCTDecode",
}

func expandInlineName(n Name) Name {
	if full, ok := inlineImageNameExpansions[n]; ok {
		return full
	}
	return n
}

// execInlineImage consumes a BI...ID...EI block: the parameter dict uses
// normal content-stream token syntax (handled by the shared contentLexer),
// but the pixel data between ID and EI is arbitrary binary and must be
// sliced directly out of the underlying byte source rather than tokenized.
func (ip *Interpreter) execInlineImage(lx *contentLexer) {
	dict := NewDict(8)
	for {
		tok := lx.next()
		if tok.kind == ctEOF {
			return
		}
		if tok.kind == ctOperator && tok.op == "ID" {
			break
		}
		if tok.kind != ctName {
			continue
		}
		key := tok.name
		if full, ok := inlineImageKeyExpansions[key]; ok {
			key = string(full)
		}
		vtok := lx.next()
		val := readValueFromToken(lx, vtok)
		if val.IsName() {
			expanded := NewName(expandInlineName(val.NameValue()))
			dict.DictPut(Name(key), expanded)
			expanded.Drop()
		} else if val.IsArray() {
			expanded := NewArray(val.Len())
			for i := 0; i < val.Len(); i++ {
				el := ResolveIndirect(val.ArrayGet(i))
				if el.IsName() {
					ev := NewName(expandInlineName(el.NameValue()))
					expanded.ArrayPush(ev)
					ev.Drop()
				} else {
					expanded.ArrayPush(el)
				}
			}
			dict.DictPut(Name(key), expanded)
			expanded.Drop()
		} else {
			dict.DictPut(Name(key), val)
		}
		val.Drop()
	}
	// Exactly one whitespace byte separates "ID" from the binary data.
	if p := lx.src.Peek(1); len(p) > 0 && isWhitespaceByte(p[0]) {
		lx.src.ReadByte()
	}
	start := lx.src.Pos()
	end := findInlineImageEnd(lx.src.data, start)
	raw := lx.src.data[start:end]
	lx.src.Seek(end)
	// Consume the "EI" operator token that follows.
	lx.next()

	ip.paintInlineImage(dict, raw)
	dict.Drop()
}

// findInlineImageEnd scans for a whitespace-delimited "EI" marker, the
// same tolerant-scan strategy parser.go's readStreamBody uses for a
// trusted-but-verify endstream search.
func findInlineImageEnd(data []byte, start int64) int64 {
	i := start
	for i+1 < int64(len(data)) {
		if data[i] == 'E' && data[i+1] == 'I' {
			before := i == start || isWhitespaceByte(data[i-1])
			afterOK := i+2 >= int64(len(data)) || isWhitespaceByte(data[i+2]) || isContentDelim(data[i+2])
			if before && afterOK {
				end := i
				if end > start && isWhitespaceByte(data[end-1]) {
					end--
				}
				return end
			}
		}
		i++
	}
	return int64(len(data))
}

func (ip *Interpreter) paintInlineImage(dict *Value, raw []byte) {
	if !ip.visible() {
		return
	}
	w := int(dict.DictGet("Width").Int())
	h := int(dict.DictGet("Height").Int())
	if w <= 0 || h <= 0 {
		return
	}
	decoded, err := ApplyFilterChain(raw, dict.DictGet("Filter"), dict.DictGet("DecodeParms"))
	if err != nil {
		decoded = raw
	}
	isMask := dict.DictGet("ImageMask").Bool()
	if isMask {
		decode := floatArray(dict.DictGet("Decode"))
		invert := len(decode) == 2 && decode[0] == 1
		pm := samplesToMask(decoded, w, h, 1, invert)
		ip.dev.FillImageMask(pm, ip.gs.CTM, ip.gs.FillColor, ip.gs.FillAlpha)
		return
	}
	cs := resolveColorSpace(ip.doc, dict.DictGet("ColorSpace"))
	bpc := int(dict.DictGet("BitsPerComponent").Int())
	if bpc == 0 {
		bpc = 8
	}
	decode := floatArray(dict.DictGet("Decode"))
	lastFilter := lastFilterName(dict.DictGet("Filter"))
	var pm *Pixmap
	if lastFilter == "DCTDecode" {
		img, decErr := jpeg.Decode(bytes.NewReader(decoded))
		if decErr != nil {
			ip.doc.warnf("content: inline image decode: %v", decErr)
			return
		}
		pm = imageToPixmap(img)
	} else {
		pm = samplesToPixmap(decoded, w, h, bpc, cs, decode)
	}
	ip.dev.FillImage(pm, ip.gs.CTM, ip.gs.FillAlpha)
}
