package pdf

import (
	"bytes"
	"fmt"
	"strconv"
)

// xrefEntryType mirrors the classical table's single-letter type column,
// normalized so that a stream-xref's three-way Type field (free/in-file/
// in-object-stream) and the classical table's two-way (n/f) field share one
// representation.
type xrefEntryType byte

const (
	xrefFree        xrefEntryType = 'f'
	xrefInFile      xrefEntryType = 'n'
	xrefInObjStream xrefEntryType = 'o'
)

// xrefEntry is one row of the cross-reference table (§4.3): either a free
// slot, a direct byte offset into the file, or a (container, index) pair
// into a compressed object stream. cached holds the resolved object once
// cacheObject has parsed it, so repeat lookups are pointer-stable per the
// refcounting contract in §3/§8.
type xrefEntry struct {
	typ          xrefEntryType
	offset       int64 // byte offset (xrefInFile) or container object number (xrefInObjStream)
	generation   int   // generation number (xrefInFile) or index within the stream (xrefInObjStream)
	streamOffset int64
	cached       *Value
}

// xrefTable is the document's full object table, indexed by object number.
type xrefTable struct {
	entries map[int]*xrefEntry
	maxNum  int
}

func newXrefTable() *xrefTable {
	return &xrefTable{entries: make(map[int]*xrefEntry)}
}

func (t *xrefTable) get(num int) *xrefEntry {
	return t.entries[num]
}

// setIfAbsent installs e for num only if no entry exists yet, implementing
// the "newest (closest to the startxref) wins" trailer-chain rule: callers
// walk updates before the base table, so earlier calls always take
// priority.
func (t *xrefTable) setIfAbsent(num int, e *xrefEntry) {
	if _, ok := t.entries[num]; ok {
		return
	}
	t.entries[num] = e
	if num > t.maxNum {
		t.maxNum = num
	}
}

// xrefSection is a parsed chunk of cross-reference data plus the trailer
// dictionary it came with and the Prev/XRefStm offsets to follow next.
type xrefSection struct {
	entries    map[int]*xrefEntry
	trailer    *Value
	prev       int64
	hasPrev    bool
	xrefStm    int64
	hasXRefStm bool
}

// readXref parses the chain of xref sections starting at startOffset,
// merging classical tables and cross-reference streams uniformly, and
// returns the combined table plus the first (most recent) trailer seen,
// which is where /Root and /Encrypt are read from. doc is the
// not-yet-fully-initialized Document that indirect references parsed
// along the way will carry as their back-pointer; its xref field is filled
// in by the caller once this returns, before any of those references are
// dereferenced.
func readXref(src *byteSource, startOffset int64, doc *Document) (*xrefTable, *Value, error) {
	table := newXrefTable()
	var firstTrailer *Value
	visited := make(map[int64]bool)
	offset := startOffset

	for {
		if offset < 0 || offset >= src.Len() || visited[offset] {
			break
		}
		visited[offset] = true

		sec, err := readXrefSection(src, offset, doc)
		if err != nil {
			return nil, nil, err
		}
		for num, e := range sec.entries {
			table.setIfAbsent(num, e)
		}
		if firstTrailer == nil {
			firstTrailer = sec.trailer
		}

		if sec.hasXRefStm {
			if stmSec, err := readXrefSection(src, sec.xrefStm, doc); err == nil {
				for num, e := range stmSec.entries {
					table.setIfAbsent(num, e)
				}
			}
		}

		if !sec.hasPrev {
			break
		}
		offset = sec.prev
	}

	if firstTrailer == nil {
		return nil, nil, fmt.Errorf("xref: no trailer found")
	}
	return table, firstTrailer, nil
}

// readXrefSection dispatches between the classical "xref\n..." table syntax
// and a cross-reference stream object, based on what immediately follows
// the offset, per §4.3 step 2.
func readXrefSection(src *byteSource, offset int64, doc *Document) (*xrefSection, error) {
	if offset < 0 || offset >= src.Len() {
		return nil, fmt.Errorf("xref: offset %d out of range", offset)
	}
	if looksLikeClassicXref(src.data, int(offset)) {
		return readClassicXrefSection(src.data, int(offset), doc)
	}
	return readXrefStreamSection(src, offset, doc)
}

func looksLikeClassicXref(data []byte, pos int) bool {
	pos = skipSpacesByte(data, pos)
	return bytes.HasPrefix(data[pos:], []byte("xref"))
}

// readClassicXrefSection parses a classical "xref\n<sub>...\ntrailer\n<<dict>>"
// section directly against the raw bytes rather than through the token
// lexer, since the per-entry type column ('n'/'f') is not a PDF keyword the
// lexer otherwise recognizes.
func readClassicXrefSection(data []byte, pos int, doc *Document) (*xrefSection, error) {
	sec := &xrefSection{entries: make(map[int]*xrefEntry)}
	pos = skipSpacesByte(data, pos)
	if !bytes.HasPrefix(data[pos:], []byte("xref")) {
		return nil, fmt.Errorf("xref: expected 'xref' keyword at offset %d", pos)
	}
	pos += len("xref")

	for {
		pos = skipSpacesByte(data, pos)
		if bytes.HasPrefix(data[pos:], []byte("trailer")) {
			pos += len("trailer")
			break
		}
		if pos >= len(data) || !isDigitByte(data[pos]) {
			return nil, fmt.Errorf("xref: malformed subsection header at offset %d", pos)
		}
		startNum, next := scanUint(data, pos)
		pos = skipSpacesByte(data, next)
		if pos >= len(data) || !isDigitByte(data[pos]) {
			return nil, fmt.Errorf("xref: malformed subsection count at offset %d", pos)
		}
		count, next2 := scanUint(data, pos)
		pos = next2

		for i := 0; i < count; i++ {
			pos = skipSpacesByte(data, pos)
			off, n1 := scanUint(data, pos)
			pos = skipSpacesByte(data, n1)
			gen, n2 := scanUint(data, pos)
			pos = skipSpacesByte(data, n2)
			if pos >= len(data) {
				return nil, fmt.Errorf("xref: truncated entry table")
			}
			typ := xrefInFile
			switch data[pos] {
			case 'f':
				typ = xrefFree
			case 'n':
				typ = xrefInFile
			}
			pos++
			if typ == xrefInFile && off == 0 {
				typ = xrefFree
			}
			num := startNum + i
			sec.entries[num] = &xrefEntry{typ: typ, offset: int64(off), generation: gen}
			// Consume the remainder of the 20-byte record's line ending.
			for pos < len(data) && (data[pos] == '\r' || data[pos] == '\n' || data[pos] == ' ') {
				pos++
				if data[pos-1] == '\n' {
					break
				}
			}
		}
	}

	trailer, err := parseDictAt(data, pos, doc)
	if err != nil {
		return nil, fmt.Errorf("xref: malformed trailer: %w", err)
	}
	sec.trailer = trailer
	if prev := trailer.DictGet("Prev"); prev.IsInt() {
		sec.prev = prev.Int()
		sec.hasPrev = true
	}
	if xs := trailer.DictGet("XRefStm"); xs.IsInt() {
		sec.xrefStm = xs.Int()
		sec.hasXRefStm = true
	}
	return sec, nil
}

// readXrefStreamSection parses a cross-reference stream object: "N G obj
// <<dict>> stream ... endstream", decoding its W-field-width binary rows
// per §4.3 step 3. The stream dictionary itself doubles as the trailer.
func readXrefStreamSection(src *byteSource, offset int64, doc *Document) (*xrefSection, error) {
	sec := &xrefSection{entries: make(map[int]*xrefEntry)}
	base := src.data[offset:]
	lx := NewLexerFromBytes(base)

	dict, raw, err := parseIndirectObject(lx, base, doc)
	if err != nil {
		return nil, fmt.Errorf("xref: malformed xref stream at offset %d: %w", offset, err)
	}
	if !dict.IsDict() {
		return nil, fmt.Errorf("xref: xref stream object is not a dictionary")
	}

	data, err := ApplyFilterChain(raw, dict.DictGet("Filter"), dict.DictGet("DecodeParms"))
	if err != nil {
		return nil, fmt.Errorf("xref: decoding xref stream: %w", err)
	}

	w := dict.DictGet("W")
	if w.Len() != 3 {
		return nil, fmt.Errorf("xref: xref stream missing W array")
	}
	w0, w1, w2 := int(w.ArrayGet(0).Int()), int(w.ArrayGet(1).Int()), int(w.ArrayGet(2).Int())

	size := int(dict.DictGet("Size").Int())
	index := dict.DictGet("Index")
	var ranges [][2]int
	if index.IsArray() && index.Len() >= 2 {
		for i := 0; i+1 < index.Len(); i += 2 {
			ranges = append(ranges, [2]int{int(index.ArrayGet(i).Int()), int(index.ArrayGet(i + 1).Int())})
		}
	} else {
		ranges = [][2]int{{0, size}}
	}

	br := newBitReader(newByteSource(data))
	for _, r := range ranges {
		start, count := r[0], r[1]
		for i := 0; i < count; i++ {
			num := start + i
			var f0 uint32 = 1 // default type is 1 (in-file) when W[0] is 0
			if w0 > 0 {
				f0 = br.ReadBits(w0 * 8)
			}
			f1 := br.ReadBits(w1 * 8)
			f2 := br.ReadBits(w2 * 8)
			switch f0 {
			case 0:
				sec.entries[num] = &xrefEntry{typ: xrefFree, offset: int64(f1), generation: int(f2)}
			case 1:
				sec.entries[num] = &xrefEntry{typ: xrefInFile, offset: int64(f1), generation: int(f2)}
			case 2:
				sec.entries[num] = &xrefEntry{typ: xrefInObjStream, offset: int64(f1), generation: int(f2)}
			}
		}
	}

	sec.trailer = dict
	if prev := dict.DictGet("Prev"); prev.IsInt() {
		sec.prev = prev.Int()
		sec.hasPrev = true
	}
	return sec, nil
}

// parseDictAt parses a single dictionary value starting at byte offset pos
// in data, used for classical-table trailers.
func parseDictAt(data []byte, pos int, doc *Document) (*Value, error) {
	lx := NewLexerFromBytes(data[pos:])
	p := newParserFromLexer(lx, doc)
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !v.IsDict() {
		return nil, fmt.Errorf("expected dictionary")
	}
	return v, nil
}

// findStartXref scans backward from the end of the file for the last
// "startxref\n<offset>" marker, per §4.3 step 1.
func findStartXref(data []byte) (int64, bool) {
	tail := data
	base := 0
	if len(tail) > 2048 {
		base = len(tail) - 2048
		tail = tail[base:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, false
	}
	rest := tail[idx+len("startxref"):]
	lx := NewLexerFromBytes(rest)
	tok, err := lx.NextToken()
	if err != nil || tok.Type != TokenInteger {
		return 0, false
	}
	return tok.Value.(int64), true
}

// repairXref rebuilds the table by a linear scan for "N G obj" markers when
// the startxref chain is missing, malformed, or any entry's offset fails to
// land on a matching object header, per §4.3 step 5 and §C's object-stream
// re-expansion supplement. doc.xref is assigned the recovered table before
// returning so that cacheObject calls made during repair (probing for the
// Catalog, re-expanding object streams) resolve correctly.
func repairXref(src *byteSource, doc *Document) (*xrefTable, *Value, error) {
	table := newXrefTable()
	data := src.data
	var objStmCandidates []int

	for i := 0; i < len(data); i++ {
		if !isDigitByte(data[i]) {
			continue
		}
		if i > 0 && !isWhitespaceByte(data[i-1]) && data[i-1] != 0 {
			continue
		}
		num, n1 := scanUint(data, i)
		if n1 == i {
			continue
		}
		j := skipSpacesByte(data, n1)
		if j >= len(data) || !isDigitByte(data[j]) {
			continue
		}
		gen, n2 := scanUint(data, j)
		k := skipSpacesByte(data, n2)
		if !bytes.HasPrefix(data[k:], []byte("obj")) {
			continue
		}
		table.entries[num] = &xrefEntry{typ: xrefInFile, offset: int64(i), generation: gen}
		if num > table.maxNum {
			table.maxNum = num
		}
		objStmCandidates = append(objStmCandidates, num)
		i = k + 2
	}

	doc.xref = table

	var trailer *Value
	if idx := bytes.LastIndex(data, []byte("trailer")); idx >= 0 {
		if d, err := parseDictAt(data, idx+len("trailer"), doc); err == nil {
			trailer = d
		}
	}

	if trailer == nil {
		for _, num := range objStmCandidates {
			e := table.entries[num]
			v, err := doc.cacheObject(num, e.generation)
			if err != nil || !v.IsDict() {
				continue
			}
			if v.DictGet("Type").NameValue() == "Catalog" {
				trailer = NewDict(2)
				trailer.DictPut("Root", NewIndirect(num, e.generation, doc))
				break
			}
		}
	}
	if trailer == nil {
		trailer = NewDict(0)
	}

	// Re-expand any compressed object streams found, per §C: a repaired
	// table built from a linear scan never sees the entries an ObjStm
	// carries internally, so each candidate object that turns out to be
	// of Type ObjStm has its contained objects installed too.
	for _, num := range objStmCandidates {
		e := table.entries[num]
		v, err := doc.cacheObject(num, e.generation)
		if err != nil || !v.IsDict() {
			continue
		}
		if v.DictGet("Type").NameValue() != "ObjStm" {
			continue
		}
		expandRepairedObjStm(doc, table, num, e.generation)
	}

	return table, trailer, nil
}

// expandRepairedObjStm installs entries for every object packed into the
// object stream numbered num, so that a repair pass recovers objects that
// were only ever reachable via compressed storage.
func expandRepairedObjStm(doc *Document, table *xrefTable, num, gen int) {
	n := doc.ObjStmCount(num, gen)
	for i := 0; i < n; i++ {
		childNum, ok := doc.ObjStmObjectNumber(num, gen, i)
		if !ok {
			continue
		}
		if _, exists := table.entries[childNum]; exists {
			continue
		}
		table.entries[childNum] = &xrefEntry{typ: xrefInObjStream, offset: int64(num), generation: i}
		if childNum > table.maxNum {
			table.maxNum = childNum
		}
	}
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
func isWhitespaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f'
}

func scanUint(data []byte, i int) (int, int) {
	start := i
	for i < len(data) && isDigitByte(data[i]) {
		i++
	}
	v, _ := strconv.Atoi(string(data[start:i]))
	return v, i
}

func skipSpacesByte(data []byte, i int) int {
	for i < len(data) && isWhitespaceByte(data[i]) {
		i++
	}
	return i
}
