package pdf

import (
	"math"
	"testing"
)

func approxColor(t *testing.T, got, want Color, tol float64) {
	t.Helper()
	if math.Abs(got.R-want.R) > tol || math.Abs(got.G-want.G) > tol || math.Abs(got.B-want.B) > tol {
		t.Errorf("color = %+v, want %+v (tol %v)", got, want, tol)
	}
}

func TestDeviceGrayToRGB(t *testing.T) {
	got := deviceGraySpace.toRGB([]float64{0.4})
	approxColor(t, got, Color{0.4, 0.4, 0.4}, 1e-9)
}

func TestDeviceCMYKToRGB(t *testing.T) {
	got := deviceCMYKSpace.toRGB([]float64{0, 0, 0, 1})
	approxColor(t, got, Color{0, 0, 0}, 1e-9)

	got = deviceCMYKSpace.toRGB([]float64{0, 0, 0, 0})
	approxColor(t, got, Color{1, 1, 1}, 1e-9)
}

func TestIndexedColorSpaceLooksUpBaseComponents(t *testing.T) {
	cs := &colorSpaceInfo{
		family: "Indexed",
		nComps: 1,
		base:   deviceRGBSpace,
		hival:  2,
		lookup: []byte{
			255, 0, 0, // index 0: red
			0, 255, 0, // index 1: green
			0, 0, 255, // index 2: blue
		},
	}
	got := cs.toRGB([]float64{1})
	approxColor(t, got, Color{0, 1, 0}, 1e-6)
}

func TestIndexedColorSpaceClampsOutOfRangeIndex(t *testing.T) {
	cs := &colorSpaceInfo{
		family: "Indexed",
		nComps: 1,
		base:   deviceGraySpace,
		hival:  1,
		lookup: []byte{0, 255},
	}
	got := cs.toRGB([]float64{-5})
	approxColor(t, got, Color{0, 0, 0}, 1e-6)

	got = cs.toRGB([]float64{99})
	approxColor(t, got, Color{1, 1, 1}, 1e-6)
}

func TestSeparationAppliesTintTransformIntoAlternate(t *testing.T) {
	// A tint transform that maps its single input directly to a CMYK K
	// channel: "sc 1" (100% black) should land at RGB black, 0 at white.
	fn, err := LoadPostScriptFunctionFromStream([]byte("{ 0 0 0 4 -1 roll }"), []float64{0, 1}, []float64{0, 1, 0, 1, 0, 1, 0, 1})
	if err != nil {
		t.Fatalf("LoadPostScriptFunctionFromStream: %v", err)
	}
	cs := &colorSpaceInfo{family: "Separation", nComps: 1, altSpace: deviceCMYKSpace, tint: fn}

	black := cs.toRGB([]float64{1})
	approxColor(t, black, Color{0, 0, 0}, 1e-6)

	white := cs.toRGB([]float64{0})
	approxColor(t, white, Color{1, 1, 1}, 1e-6)
}

func TestResolveColorSpaceDispatchesNames(t *testing.T) {
	doc := &Document{ctx: NewContext(0)}
	gray := NewName("DeviceGray")
	rgb := NewName("DeviceRGB")
	cmyk := NewName("DeviceCMYK")
	defer gray.Drop()
	defer rgb.Drop()
	defer cmyk.Drop()

	if got := resolveColorSpace(doc, gray); got != deviceGraySpace {
		t.Errorf("resolveColorSpace(DeviceGray) = %+v, want the deviceGraySpace singleton", got)
	}
	if got := resolveColorSpace(doc, rgb); got != deviceRGBSpace {
		t.Errorf("resolveColorSpace(DeviceRGB) = %+v, want the deviceRGBSpace singleton", got)
	}
	if got := resolveColorSpace(doc, cmyk); got != deviceCMYKSpace {
		t.Errorf("resolveColorSpace(DeviceCMYK) = %+v, want the deviceCMYKSpace singleton", got)
	}
}

func TestResolveColorSpaceUnknownNameFallsBackToGray(t *testing.T) {
	doc := &Document{ctx: NewContext(0)}
	weird := NewName("SomeVendorSpecificSpace")
	defer weird.Drop()
	if got := resolveColorSpace(doc, weird); got != deviceGraySpace {
		t.Errorf("resolveColorSpace(unknown) = %+v, want fallback to deviceGraySpace", got)
	}
}
