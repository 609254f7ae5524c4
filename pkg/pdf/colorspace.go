package pdf

import "math"

// colorSpaceInfo is the resolved, ready-to-evaluate form of a PDF color
// space entry: how many components it takes and how to turn them into
// device RGB. Grounded on the teacher's ImageExtractor.parseColorSpace
// (image.go), which did the same Name/Array dispatch over DeviceGray/RGB/
// CMYK/ICCBased/Indexed/Separation/DeviceN but only ever needed a name and
// a component count for its PNG/PPM export path; this generalizes that
// dispatch into an actual Value-in, Color-out conversion for the draw
// device and shading engine.
type colorSpaceInfo struct {
	family string
	nComps int

	// Indexed
	base    *colorSpaceInfo
	hival   int
	lookup  []byte

	// Separation / DeviceN
	altSpace *colorSpaceInfo
	tint     Function
}

var deviceGraySpace = &colorSpaceInfo{family: "DeviceGray", nComps: 1}
var deviceRGBSpace = &colorSpaceInfo{family: "DeviceRGB", nComps: 3}
var deviceCMYKSpace = &colorSpaceInfo{family: "DeviceCMYK", nComps: 4}

// resolveColorSpace interprets a /ColorSpace entry (a Name or an Array
// naming a parameterized space), falling back to DeviceGray on anything
// unrecognized so callers never need a nil check.
func resolveColorSpace(doc *Document, cs *Value) *colorSpaceInfo {
	cs = ResolveIndirect(cs)
	if cs == nil {
		return deviceGraySpace
	}
	if cs.IsName() {
		switch cs.NameValue() {
		case "DeviceGray", "G", "CalGray":
			return deviceGraySpace
		case "DeviceRGB", "RGB", "CalRGB":
			return deviceRGBSpace
		case "DeviceCMYK", "CMYK":
			return deviceCMYKSpace
		case "Pattern":
			return deviceRGBSpace
		default:
			return deviceGraySpace
		}
	}
	if !cs.IsArray() || cs.Len() == 0 {
		return deviceGraySpace
	}
	family := ResolveIndirect(cs.ArrayGet(0)).NameValue()
	switch family {
	case "ICCBased":
		return resolveICCBased(doc, cs)
	case "Indexed", "I":
		return resolveIndexed(doc, cs)
	case "Separation":
		return resolveSeparation(doc, cs)
	case "DeviceN":
		return resolveDeviceN(doc, cs)
	case "CalGray":
		return deviceGraySpace
	case "CalRGB", "Lab":
		return deviceRGBSpace
	case "Pattern":
		if cs.Len() > 1 {
			return resolveColorSpace(doc, cs.ArrayGet(1))
		}
		return deviceRGBSpace
	default:
		return deviceGraySpace
	}
}

func resolveICCBased(doc *Document, cs *Value) *colorSpaceInfo {
	if cs.Len() < 2 {
		return deviceRGBSpace
	}
	streamVal := cs.ArrayGet(1)
	streamDict := ResolveIndirect(streamVal)
	n := int(streamDict.DictGet("N").Int())
	switch n {
	case 1:
		return deviceGraySpace
	case 4:
		return deviceCMYKSpace
	default:
		if alt := streamDict.DictGet("Alternate"); alt != nil && !alt.IsNull() {
			return resolveColorSpace(doc, alt)
		}
		return deviceRGBSpace
	}
}

func resolveIndexed(doc *Document, cs *Value) *colorSpaceInfo {
	if cs.Len() < 4 {
		return deviceGraySpace
	}
	base := resolveColorSpace(doc, cs.ArrayGet(1))
	hival := int(ResolveIndirect(cs.ArrayGet(2)).Int())
	lookupV := ResolveIndirect(cs.ArrayGet(3))
	var lookup []byte
	if lookupV.IsString() {
		lookup = lookupV.RawString()
	} else if num, gen := cs.ArrayGet(3).Reference(); num != 0 {
		data, err := doc.StreamData(num, gen)
		if err == nil {
			lookup = data
		}
	}
	return &colorSpaceInfo{family: "Indexed", nComps: 1, base: base, hival: hival, lookup: lookup}
}

func resolveSeparation(doc *Document, cs *Value) *colorSpaceInfo {
	if cs.Len() < 4 {
		return deviceGraySpace
	}
	alt := resolveColorSpace(doc, cs.ArrayGet(2))
	fn, err := LoadFunction(doc, cs.ArrayGet(3))
	if err != nil {
		return &colorSpaceInfo{family: "Separation", nComps: 1, altSpace: alt}
	}
	return &colorSpaceInfo{family: "Separation", nComps: 1, altSpace: alt, tint: fn}
}

func resolveDeviceN(doc *Document, cs *Value) *colorSpaceInfo {
	if cs.Len() < 4 {
		return deviceGraySpace
	}
	names := cs.ArrayGet(1)
	alt := resolveColorSpace(doc, cs.ArrayGet(2))
	fn, err := LoadFunction(doc, cs.ArrayGet(3))
	info := &colorSpaceInfo{family: "DeviceN", nComps: names.Len(), altSpace: alt}
	if err == nil {
		info.tint = fn
	}
	return info
}

// toRGB converts a component vector in this space's native range to
// device RGB in [0,1].
func (cs *colorSpaceInfo) toRGB(comps []float64) Color {
	if cs == nil {
		return grayComps(comps)
	}
	switch cs.family {
	case "DeviceGray", "":
		return grayComps(comps)
	case "DeviceRGB":
		return rgbComps(comps)
	case "DeviceCMYK":
		return cmykComps(comps)
	case "Indexed":
		return cs.indexedToRGB(comps)
	case "Separation", "DeviceN":
		if cs.tint != nil {
			return cs.altSpace.toRGB(cs.tint.Eval(comps))
		}
		return grayComps(comps)
	default:
		return grayComps(comps)
	}
}

func (cs *colorSpaceInfo) indexedToRGB(comps []float64) Color {
	if len(comps) == 0 || cs.base == nil {
		return Color{}
	}
	idx := int(math.Round(comps[0]))
	if idx < 0 {
		idx = 0
	}
	if idx > cs.hival {
		idx = cs.hival
	}
	n := cs.base.nComps
	off := idx * n
	if off+n > len(cs.lookup) {
		return Color{}
	}
	baseComps := make([]float64, n)
	for i := 0; i < n; i++ {
		baseComps[i] = float64(cs.lookup[off+i]) / 255
	}
	return cs.base.toRGB(baseComps)
}

func grayComps(c []float64) Color {
	g := 0.0
	if len(c) > 0 {
		g = c[0]
	}
	return GrayColor(g)
}

func rgbComps(c []float64) Color {
	var r, g, b float64
	if len(c) > 0 {
		r = c[0]
	}
	if len(c) > 1 {
		g = c[1]
	}
	if len(c) > 2 {
		b = c[2]
	}
	return Color{R: clamp01(r), G: clamp01(g), B: clamp01(b)}
}

func cmykComps(c []float64) Color {
	var cy, m, y, k float64
	if len(c) > 0 {
		cy = c[0]
	}
	if len(c) > 1 {
		m = c[1]
	}
	if len(c) > 2 {
		y = c[2]
	}
	if len(c) > 3 {
		k = c[3]
	}
	return CMYKColor(cy, m, y, k)
}
