package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Filter is the stream-transform plugin contract from §6: takes the input
// bytes and the filter's parameter dictionary and yields decoded bytes, or
// raises (here: returns an error, converted to a raise at the call site
// that owns the try/catch) on malformed input.
type Filter func(data []byte, params *Value) ([]byte, error)

var filterRegistry map[Name]Filter

func init() {
	filterRegistry = map[Name]Filter{
		"FlateDecode":     flateDecode,
		"Fl":              flateDecode,
		"LZWDecode":       lzwDecode,
		"LZW":             lzwDecode,
		"ASCII85Decode":   ascii85Decode,
		"A85":             ascii85Decode,
		"ASCIIHexDecode":  asciiHexDecode,
		"AHx":             asciiHexDecode,
		"RunLengthDecode": runLengthDecode,
		"RL":              runLengthDecode,
		"CCITTFaxDecode":  ccittFaxDecode,
		"CCF":             ccittFaxDecode,
		"DCTDecode":       passthroughDecode,
		"DCT":             passthroughDecode,
		"JPXDecode":       passthroughDecode,
		"JBIG2Decode":     jbig2Decode,
		"Crypt":           passthroughDecode,
	}
}

// WithFilter registers or overrides a named filter plugin, the extension
// point named `with_filter` in §6.
func WithFilter(name Name, f Filter) {
	filterRegistry[name] = f
}

func lookupFilter(name Name) (Filter, bool) {
	f, ok := filterRegistry[name]
	return f, ok
}

// ApplyFilterChain runs data through the Filter and DecodeParms named in a
// stream dictionary (either may be a single name/dict or a parallel array),
// in order.
func ApplyFilterChain(data []byte, filterSpec, parmsSpec *Value) ([]byte, error) {
	names, parms := normalizeFilterChain(filterSpec, parmsSpec)
	for i, n := range names {
		f, ok := lookupFilter(n)
		if !ok {
			return nil, fmt.Errorf("unsupported filter %q", n)
		}
		var p *Value
		if i < len(parms) {
			p = parms[i]
		}
		out, err := f(data, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		data = out
	}
	return data, nil
}

func normalizeFilterChain(filterSpec, parmsSpec *Value) ([]Name, []*Value) {
	var names []Name
	var parms []*Value
	switch ResolveIndirect(filterSpec).Kind() {
	case KindName:
		names = []Name{filterSpec.NameValue()}
		parms = []*Value{parmsSpec}
	case KindArray:
		n := filterSpec.Len()
		names = make([]Name, n)
		parms = make([]*Value, n)
		for i := 0; i < n; i++ {
			names[i] = filterSpec.ArrayGet(i).NameValue()
			if ResolveIndirect(parmsSpec).Kind() == KindArray {
				parms[i] = parmsSpec.ArrayGet(i)
			} else if i == 0 {
				parms[i] = parmsSpec
			}
		}
	}
	return names, parms
}

func flateDecode(data []byte, params *Value) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && len(out) == 0 {
		return nil, err
	}
	return applyPredictor(out, params)
}

// applyPredictor reverses the TIFF (predictor 2; 8-bit components only)
// or PNG (any predictor above 2; each row's tag byte selects None/Sub/Up/
// Average/Paeth) byte prediction FlateDecode/LZWDecode streams may be
// wrapped in, as signaled by DecodeParms.
func applyPredictor(data []byte, params *Value) ([]byte, error) {
	if params == nil || !params.IsDict() {
		return data, nil
	}
	predictor := params.DictGet("Predictor").Int()
	if predictor <= 1 {
		return data, nil
	}
	colors := int(params.DictGet("Colors").Int())
	if colors == 0 {
		colors = 1
	}
	bpc := int(params.DictGet("BitsPerComponent").Int())
	if bpc == 0 {
		bpc = 8
	}
	columns := int(params.DictGet("Columns").Int())
	if columns == 0 {
		columns = 1
	}
	bytesPerPixel := (colors*bpc + 7) / 8
	rowBytes := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return reverseTIFFPredictor(data, colors, bpc, columns), nil
	}

	var out bytes.Buffer
	prev := make([]byte, rowBytes)
	for off := 0; off+1+rowBytes <= len(data); off += 1 + rowBytes {
		tag := data[off]
		row := append([]byte(nil), data[off+1:off+1+rowBytes]...)
		for i := range row {
			var a, b, c byte
			if i >= bytesPerPixel {
				a = row[i-bytesPerPixel]
				c = prev[i-bytesPerPixel]
			}
			b = prev[i]
			switch tag {
			case 0: // None
			case 1: // Sub
				row[i] += a
			case 2: // Up
				row[i] += b
			case 3: // Average
				row[i] += byte((int(a) + int(b)) / 2)
			case 4: // Paeth
				row[i] += paethPredictor(a, b, c)
			}
		}
		out.Write(row)
		prev = row
	}
	return out.Bytes(), nil
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func reverseTIFFPredictor(data []byte, colors, bpc, columns int) []byte {
	if bpc != 8 {
		return data // only the byte-aligned case is worth the complexity here
	}
	rowBytes := colors * columns
	out := append([]byte(nil), data...)
	for off := 0; off+rowBytes <= len(out); off += rowBytes {
		for i := colors; i < rowBytes; i++ {
			out[off+i] += out[off+i-colors]
		}
	}
	return out
}

// lzwDecode implements the PDF/TIFF variant of LZW (9-to-12-bit codes, an
// EarlyChange parameter controlling whether the code-width grows one code
// early). Go's standard compress/lzw targets the GIF variant's code-order
// and lacks EarlyChange, so this is hand-rolled against the same grammar the
// teacher's decoder used, rather than forced onto a non-matching stdlib
// package.
func lzwDecode(data []byte, params *Value) ([]byte, error) {
	earlyChange := int64(1)
	if params != nil && params.IsDict() {
		if v := params.DictGet("EarlyChange"); !v.IsNull() {
			earlyChange = v.Int()
		}
	}
	out, err := lzwDecompress(data, earlyChange != 0)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

const (
	lzwClearCode = 256
	lzwEODCode   = 257
	lzwFirstCode = 258
)

func lzwDecompress(data []byte, earlyChange bool) ([]byte, error) {
	var out bytes.Buffer
	br := newBitReader(newByteSource(data))

	table := make([][]byte, 4096)
	resetTable := func() int {
		for i := 0; i < 256; i++ {
			table[i] = []byte{byte(i)}
		}
		return lzwFirstCode
	}
	next := resetTable()
	codeWidth := 9
	var prev []byte

	for {
		code := br.ReadBits(codeWidth)
		if int(code) == lzwEODCode {
			break
		}
		if int(code) == lzwClearCode {
			next = resetTable()
			codeWidth = 9
			prev = nil
			continue
		}
		var entry []byte
		if int(code) < next && table[code] != nil {
			entry = table[code]
		} else if prev != nil {
			entry = append(append([]byte(nil), prev...), prev[0])
		} else {
			return nil, fmt.Errorf("lzw: invalid code %d", code)
		}
		out.Write(entry)
		if prev != nil && next < 4096 {
			table[next] = append(append([]byte(nil), prev...), entry[0])
			next++
		}
		prev = entry

		threshold := next
		if earlyChange {
			threshold++
		}
		switch {
		case threshold > 2048:
			codeWidth = 12
		case threshold > 1024:
			codeWidth = 11
		case threshold > 512:
			codeWidth = 10
		default:
			codeWidth = 9
		}
	}
	return out.Bytes(), nil
}

func ascii85Decode(data []byte, _ *Value) ([]byte, error) {
	var out bytes.Buffer
	var group [5]byte
	n := 0
	flush := func(count int) error {
		if count == 0 {
			return nil
		}
		for i := count; i < 5; i++ {
			group[i] = 'u'
		}
		var val uint32
		for _, c := range group {
			val = val*85 + uint32(c-'!')
		}
		b := [4]byte{byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val)}
		out.Write(b[:count-1])
		return nil
	}
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '~':
			flush(n)
			return out.Bytes(), nil
		case c == 'z' && n == 0:
			out.Write([]byte{0, 0, 0, 0})
		case c >= '!' && c <= 'u':
			group[n] = c
			n++
			if n == 5 {
				flush(5)
				n = 0
			}
		}
	}
	flush(n)
	return out.Bytes(), nil
}

func asciiHexDecode(data []byte, _ *Value) ([]byte, error) {
	var hex []byte
	for _, c := range data {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			hex = append(hex, c)
		case c == '>':
			goto done
		}
	}
done:
	if len(hex)%2 != 0 {
		hex = append(hex, '0')
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		var v int
		fmt.Sscanf(string(hex[i:i+2]), "%02x", &v)
		out[i/2] = byte(v)
	}
	return out, nil
}

func runLengthDecode(data []byte, _ *Value) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		length := data[i]
		i++
		switch {
		case length == 128:
			return out.Bytes(), nil
		case length < 128:
			end := i + int(length) + 1
			if end > len(data) {
				end = len(data)
			}
			out.Write(data[i:end])
			i = end
		default:
			if i >= len(data) {
				return out.Bytes(), nil
			}
			b := data[i]
			i++
			for j := 0; j < 257-int(length); j++ {
				out.WriteByte(b)
			}
		}
	}
	return out.Bytes(), nil
}

// ccittFaxDecode and jbig2Decode are out of this specification's scope
// (§1: "Concrete decompression/filter codecs ... supplied as stream-
// transform plugins"); the engine ships a passthrough so that pages using
// these image filters still open and the stream bytes remain addressable
// by a caller-supplied plugin registered via WithFilter.
func ccittFaxDecode(data []byte, _ *Value) ([]byte, error) { return data, nil }
func jbig2Decode(data []byte, _ *Value) ([]byte, error)    { return data, nil }
func passthroughDecode(data []byte, _ *Value) ([]byte, error) { return data, nil }
