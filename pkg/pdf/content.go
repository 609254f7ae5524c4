package pdf

import (
	"fmt"
	"math"
)

// contentTokenKind enumerates the content-stream grammar's token shapes.
// Content streams share PDF's object syntax (numbers, strings, names,
// arrays, dicts) but additionally use bare keyword runs as *operators*
// ("re", "f", "Tj", "BT"...), which lexer.go's readKeyword rejects outright
// (it only recognizes the fixed file-structure keyword set). Rather than
// loosen the shared file-structure lexer, content streams get their own
// small tokenizer here — a deliberate, narrow deviation, the same kind
// xref.go takes for the classical xref table's non-keyword type column.
type contentTokenKind int

const (
	ctEOF contentTokenKind = iota
	ctNumber
	ctString
	ctName
	ctArrayStart
	ctArrayEnd
	ctDictStart
	ctDictEnd
	ctOperator
	ctBoolean
	ctNull
)

type contentToken struct {
	kind contentTokenKind
	num  float64
	str  []byte
	name string
	op   string
	b    bool
}

type contentLexer struct {
	src *byteSource
}

func newContentLexer(data []byte) *contentLexer { return &contentLexer{src: newByteSource(data)} }

func (l *contentLexer) skipWhitespaceAndComments() {
	for {
		b, ok := l.src.ReadByte()
		if !ok {
			return
		}
		if isWhitespaceByte(b) {
			continue
		}
		if b == '%' {
			for {
				b2, ok2 := l.src.ReadByte()
				if !ok2 || b2 == '\n' || b2 == '\r' {
					break
				}
			}
			continue
		}
		l.src.Seek(l.src.Pos() - 1)
		return
	}
}

func isContentDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *contentLexer) next() contentToken {
	l.skipWhitespaceAndComments()
	b, ok := l.src.ReadByte()
	if !ok {
		return contentToken{kind: ctEOF}
	}
	switch b {
	case '[':
		return contentToken{kind: ctArrayStart}
	case ']':
		return contentToken{kind: ctArrayEnd}
	case '/':
		return contentToken{kind: ctName, name: l.readName()}
	case '(':
		return contentToken{kind: ctString, str: l.readLiteralString()}
	case '<':
		if peek := l.src.Peek(1); len(peek) > 0 && peek[0] == '<' {
			l.src.ReadByte()
			return contentToken{kind: ctDictStart}
		}
		return contentToken{kind: ctString, str: l.readHexString()}
	case '>':
		if peek := l.src.Peek(1); len(peek) > 0 && peek[0] == '>' {
			l.src.ReadByte()
			return contentToken{kind: ctDictEnd}
		}
		return l.next()
	case '{', '}':
		return l.next() // calculator punctuation never appears bare in page content
	default:
		if b == '+' || b == '-' || b == '.' || isDigitByte(b) {
			l.src.Seek(l.src.Pos() - 1)
			return l.readNumber()
		}
		l.src.Seek(l.src.Pos() - 1)
		return l.readKeywordOrOperator()
	}
}

func (l *contentLexer) readName() string {
	var buf []byte
	for {
		peek := l.src.Peek(1)
		if len(peek) == 0 || isWhitespaceByte(peek[0]) || isContentDelim(peek[0]) {
			break
		}
		b, _ := l.src.ReadByte()
		if b == '#' {
			hex := l.src.Read(2)
			var v int
			fmt.Sscanf(string(hex), "%02x", &v)
			buf = append(buf, byte(v))
		} else {
			buf = append(buf, b)
		}
	}
	return string(buf)
}

func (l *contentLexer) readLiteralString() []byte {
	var buf []byte
	depth := 1
	for depth > 0 {
		b, ok := l.src.ReadByte()
		if !ok {
			break
		}
		switch b {
		case '(':
			depth++
			buf = append(buf, b)
		case ')':
			depth--
			if depth > 0 {
				buf = append(buf, b)
			}
		case '\\':
			e, ok := l.src.ReadByte()
			if !ok {
				break
			}
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '(', ')', '\\':
				buf = append(buf, e)
			case '\r':
				if p := l.src.Peek(1); len(p) > 0 && p[0] == '\n' {
					l.src.ReadByte()
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					octal := []byte{e}
					for i := 0; i < 2; i++ {
						p := l.src.Peek(1)
						if len(p) == 0 || p[0] < '0' || p[0] > '7' {
							break
						}
						c, _ := l.src.ReadByte()
						octal = append(octal, c)
					}
					var v int
					fmt.Sscanf(string(octal), "%o", &v)
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

func (l *contentLexer) readHexString() []byte {
	var hex []byte
	for {
		b, ok := l.src.ReadByte()
		if !ok || b == '>' {
			break
		}
		if isWhitespaceByte(b) {
			continue
		}
		hex = append(hex, b)
	}
	if len(hex)%2 != 0 {
		hex = append(hex, '0')
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		var v int
		fmt.Sscanf(string(hex[i:i+2]), "%02x", &v)
		out[i/2] = byte(v)
	}
	return out
}

func (l *contentLexer) readNumber() contentToken {
	start := l.src.Pos()
	l.src.ReadByte()
	for {
		peek := l.src.Peek(1)
		if len(peek) == 0 {
			break
		}
		c := peek[0]
		if isDigitByte(c) || c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E' {
			l.src.ReadByte()
			continue
		}
		break
	}
	raw := l.src.data[start:l.src.Pos()]
	var f float64
	fmt.Sscanf(string(raw), "%g", &f)
	return contentToken{kind: ctNumber, num: f}
}

func (l *contentLexer) readKeywordOrOperator() contentToken {
	start := l.src.Pos()
	for {
		peek := l.src.Peek(1)
		if len(peek) == 0 || isWhitespaceByte(peek[0]) || isContentDelim(peek[0]) {
			break
		}
		l.src.ReadByte()
	}
	word := string(l.src.data[start:l.src.Pos()])
	switch word {
	case "true":
		return contentToken{kind: ctBoolean, b: true}
	case "false":
		return contentToken{kind: ctBoolean, b: false}
	case "null":
		return contentToken{kind: ctNull}
	default:
		return contentToken{kind: ctOperator, op: word}
	}
}

// readValueFromToken interprets an already-consumed token as the start of
// one PDF object (recursing into readValueFromToken for array/dict
// elements), the building block operand collection and inline-image
// parameter dicts both use.
func readValueFromToken(lx *contentLexer, tok contentToken) *Value {
	switch tok.kind {
	case ctNumber:
		if tok.num == math.Trunc(tok.num) && math.Abs(tok.num) < 1e15 {
			return NewInt(int64(tok.num))
		}
		return NewReal(tok.num)
	case ctName:
		return NewName(Name(tok.name))
	case ctString:
		return NewString(tok.str, false)
	case ctBoolean:
		return NewBool(tok.b)
	case ctArrayStart:
		arr := NewArray(4)
		for {
			t := lx.next()
			if t.kind == ctArrayEnd || t.kind == ctEOF {
				break
			}
			v := readValueFromToken(lx, t)
			arr.ArrayPush(v)
			v.Drop()
		}
		return arr
	case ctDictStart:
		d := NewDict(8)
		for {
			t := lx.next()
			if t.kind == ctDictEnd || t.kind == ctEOF {
				break
			}
			if t.kind != ctName {
				continue
			}
			key := Name(t.name)
			vt := lx.next()
			val := readValueFromToken(lx, vt)
			d.DictPut(key, val)
			val.Drop()
		}
		return d
	default:
		return NewNull()
	}
}

// Interpreter walks a content stream, maintaining the q/Q graphics-state
// stack and dispatching painting operators to a Device. Grounded on the
// teacher's content-stream walk in text.go/vector.go (both scan operators
// and react to a fixed set), generalized from "one hardcoded consumer" to
// "any Device".
type Interpreter struct {
	doc       *Document
	dev       Device
	ctx       *Context
	cookie    *Cookie
	gsStack   []*GraphicsState
	gs        *GraphicsState
	path      *Path
	pendingClip *pendingClipState
	resources *Value
	resStack  []*Value
	fillColorSpace   *colorSpaceInfo
	strokeColorSpace *colorSpaceInfo
	mcVisible []bool // marked-content visibility stack (BDC/EMC with /OC)
	fontCache map[string]*loadedFont
	depth     int
}

type loadedFont struct {
	source       GlyphSource
	widths       map[int]float64
	defaultWidth float64
	cidMode      bool
	codeBytes    int // 1 for simple fonts, 2 for typical Identity-H CID fonts
}

// NewInterpreter prepares an interpreter for running content against dev,
// starting from the page's initial resource dictionary.
func NewInterpreter(doc *Document, dev Device, resources *Value, cookie *Cookie) *Interpreter {
	return &Interpreter{
		doc: doc, dev: dev, ctx: doc.ctx, cookie: cookie,
		gs: NewGraphicsState(), resources: resources, path: NewPath(),
		fontCache: make(map[string]*loadedFont),
	}
}

const maxFormRecursionDepth = 16

// Run executes one content stream's bytes. Errors from malformed operators
// are swallowed into a warning (per the soft-type-error taxonomy) so one
// bad operator doesn't abort the whole page, and a resource that cannot be
// found is skipped. Only the cookie's abort flag, checked before each
// operator, stops execution early; Run always returns nil.
func (ip *Interpreter) Run(content []byte) error {
	lx := newContentLexer(content)
	var operands []*Value
	defer func() {
		for _, v := range operands {
			v.Drop()
		}
	}()
	for {
		if ip.cookie != nil && ip.cookie.Abort != 0 {
			return nil
		}
		tok := lx.next()
		if tok.kind == ctEOF {
			break
		}
		if tok.kind == ctOperator {
			if tok.op == "BI" {
				ip.execInlineImage(lx)
				for _, v := range operands {
					v.Drop()
				}
				operands = operands[:0]
				continue
			}
			ip.execOperator(tok.op, operands)
			for _, v := range operands {
				v.Drop()
			}
			operands = operands[:0]
			if ip.cookie != nil {
				ip.cookie.Progress++
			}
			continue
		}
		operands = append(operands, readValueFromToken(lx, tok))
	}
	return nil
}

func numAt(ops []*Value, i int) float64 {
	if i < 0 || i >= len(ops) {
		return 0
	}
	return ResolveIndirect(ops[i]).Float()
}

func nameAt(ops []*Value, i int) Name {
	if i < 0 || i >= len(ops) {
		return ""
	}
	return ResolveIndirect(ops[i]).NameValue()
}

// execOperator dispatches one content-stream operator. Grounded on the
// teacher's operator switch in text.go (Tj/TJ/Tf/Td family) and vector.go
// (path-construction/painting family), merged and generalized to call
// through Device instead of writing PostScript/text buffers directly.
func (ip *Interpreter) execOperator(op string, ops []*Value) {
	switch op {
	// --- graphics state stack ---
	case "q":
		clone := ip.gs.Clone()
		ip.gsStack = append(ip.gsStack, ip.gs)
		ip.gs = clone
	case "Q":
		if n := len(ip.gsStack); n > 0 {
			prevDepth := ip.gs.ClipDepth
			ip.gs = ip.gsStack[n-1]
			ip.gsStack = ip.gsStack[:n-1]
			for i := prevDepth; i > ip.gs.ClipDepth; i-- {
				ip.dev.PopClip()
			}
		}
	case "cm":
		if len(ops) >= 6 {
			m := Matrix{A: numAt(ops, 0), B: numAt(ops, 1), C: numAt(ops, 2), D: numAt(ops, 3), E: numAt(ops, 4), F: numAt(ops, 5)}
			ip.gs.ConcatCTM(m)
		}
	case "w":
		ip.gs.LineWidth = numAt(ops, 0)
	case "J":
		ip.gs.LineCap = int(numAt(ops, 0))
	case "j":
		ip.gs.LineJoin = int(numAt(ops, 0))
	case "M":
		ip.gs.MiterLimit = numAt(ops, 0)
	case "d":
		if len(ops) >= 2 && ops[0].IsArray() {
			arr := ops[0]
			dash := make([]float64, arr.Len())
			for i := range dash {
				dash[i] = ResolveIndirect(arr.ArrayGet(i)).Float()
			}
			ip.gs.DashArray = dash
			ip.gs.DashPhase = numAt(ops, 1)
		}
	case "gs":
		ip.applyExtGState(nameAt(ops, 0))
	case "ri", "i":
		// rendering intent / flatness tolerance: no-ops for this renderer

	// --- path construction ---
	case "m":
		ip.path.MoveTo(numAt(ops, 0), numAt(ops, 1))
	case "l":
		ip.path.LineTo(numAt(ops, 0), numAt(ops, 1))
	case "c":
		ip.path.CurveTo(numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3), numAt(ops, 4), numAt(ops, 5))
	case "v":
		cur := ip.path.CurrentPoint()
		ip.path.CurveTo(cur.X, cur.Y, numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3))
	case "y":
		ip.path.CurveTo(numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3), numAt(ops, 2), numAt(ops, 3))
	case "h":
		ip.path.ClosePath()
	case "re":
		x, y, w, h := numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3)
		ip.path.MoveTo(x, y)
		ip.path.LineTo(x+w, y)
		ip.path.LineTo(x+w, y+h)
		ip.path.LineTo(x, y+h)
		ip.path.ClosePath()

	// --- path painting ---
	case "S":
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "s":
		ip.path.ClosePath()
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "f", "F":
		ip.fillCurrentPath(false)
		ip.path = NewPath()
	case "f*":
		ip.fillCurrentPath(true)
		ip.path = NewPath()
	case "B":
		ip.fillCurrentPath(false)
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "B*":
		ip.fillCurrentPath(true)
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "b":
		ip.path.ClosePath()
		ip.fillCurrentPath(false)
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "b*":
		ip.path.ClosePath()
		ip.fillCurrentPath(true)
		ip.strokeCurrentPath()
		ip.path = NewPath()
	case "n":
		ip.applyPendingClip()
		ip.path = NewPath()
	case "W":
		ip.pendingClip = &pendingClipState{evenOdd: false}
	case "W*":
		ip.pendingClip = &pendingClipState{evenOdd: true}

	// --- color ---
	case "g":
		ip.gs.FillColor = GrayColor(numAt(ops, 0))
	case "G":
		ip.gs.StrokeColor = GrayColor(numAt(ops, 0))
	case "rg":
		ip.gs.FillColor = Color{R: numAt(ops, 0), G: numAt(ops, 1), B: numAt(ops, 2)}
	case "RG":
		ip.gs.StrokeColor = Color{R: numAt(ops, 0), G: numAt(ops, 1), B: numAt(ops, 2)}
	case "k":
		ip.gs.FillColor = CMYKColor(numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3))
	case "K":
		ip.gs.StrokeColor = CMYKColor(numAt(ops, 0), numAt(ops, 1), numAt(ops, 2), numAt(ops, 3))
	case "cs":
		ip.fillColorSpace = ip.resolveResourceColorSpace(nameAt(ops, 0))
	case "CS":
		ip.strokeColorSpace = ip.resolveResourceColorSpace(nameAt(ops, 0))
	case "sc", "scn":
		ip.gs.FillColor = ip.evalColorOperands(ops, ip.fillColorSpace)
	case "SC", "SCN":
		ip.gs.StrokeColor = ip.evalColorOperands(ops, ip.strokeColorSpace)

	// --- text ---
	case "BT":
		ip.gs.Text.Tm = Identity
		ip.gs.Text.Tlm = Identity
	case "ET":
	case "Tc":
		ip.gs.Text.CharSpace = numAt(ops, 0)
	case "Tw":
		ip.gs.Text.WordSpace = numAt(ops, 0)
	case "Tz":
		ip.gs.Text.Hscale = numAt(ops, 0)
	case "TL":
		ip.gs.Text.Leading = numAt(ops, 0)
	case "Tf":
		ip.setFont(nameAt(ops, 0), numAt(ops, 1))
	case "Tr":
		ip.gs.Text.RenderMode = int(numAt(ops, 0))
	case "Ts":
		ip.gs.Text.Rise = numAt(ops, 0)
	case "Td":
		ip.gs.Text.TranslateLine(numAt(ops, 0), numAt(ops, 1))
	case "TD":
		ip.gs.Text.Leading = -numAt(ops, 1)
		ip.gs.Text.TranslateLine(numAt(ops, 0), numAt(ops, 1))
	case "Tm":
		if len(ops) >= 6 {
			ip.gs.Text.SetTextMatrix(Matrix{A: numAt(ops, 0), B: numAt(ops, 1), C: numAt(ops, 2), D: numAt(ops, 3), E: numAt(ops, 4), F: numAt(ops, 5)})
		}
	case "T*":
		ip.gs.Text.TranslateLine(0, -ip.gs.Text.Leading)
	case "Tj":
		if len(ops) >= 1 {
			ip.showText(ResolveIndirect(ops[0]).RawString())
		}
	case "'":
		ip.gs.Text.TranslateLine(0, -ip.gs.Text.Leading)
		if len(ops) >= 1 {
			ip.showText(ResolveIndirect(ops[0]).RawString())
		}
	case "\"":
		ip.gs.Text.WordSpace = numAt(ops, 0)
		ip.gs.Text.CharSpace = numAt(ops, 1)
		ip.gs.Text.TranslateLine(0, -ip.gs.Text.Leading)
		if len(ops) >= 3 {
			ip.showText(ResolveIndirect(ops[2]).RawString())
		}
	case "TJ":
		if len(ops) >= 1 && ops[0].IsArray() {
			arr := ops[0]
			for i := 0; i < arr.Len(); i++ {
				el := ResolveIndirect(arr.ArrayGet(i))
				if el.IsString() {
					ip.showText(el.RawString())
				} else if el.IsNumber() {
					adj := -el.Float() / 1000 * ip.gs.Text.FontSize * ip.gs.Text.Hscale / 100
					ip.gs.Text.Tm = Translate(adj, 0).Mul(ip.gs.Text.Tm)
				}
			}
		}

	// --- XObjects / shading / marked content ---
	case "Do":
		ip.doXObject(nameAt(ops, 0))
	case "sh":
		ip.doShading(nameAt(ops, 0))
	case "BMC", "BDC":
		visible := true
		if op == "BDC" && len(ops) >= 2 && nameAt(ops, 0) == "OC" {
			visible = ip.resolveOCVisibility(ops[1])
		}
		ip.mcVisible = append(ip.mcVisible, visible && ip.visible())
	case "EMC":
		if n := len(ip.mcVisible); n > 0 {
			ip.mcVisible = ip.mcVisible[:n-1]
		}
	case "MP", "DP", "BX", "EX":
		// marked-content point / compatibility section markers: no geometry

	default:
		// Unknown operator: ignore, per the soft-error discipline — a
		// future/extension operator shouldn't abort the whole page.
	}
}

func (ip *Interpreter) visible() bool {
	for _, v := range ip.mcVisible {
		if !v {
			return false
		}
	}
	return true
}

type pendingClipState struct{ evenOdd bool }

func (ip *Interpreter) applyPendingClip() {
	if ip.pendingClip == nil {
		return
	}
	clipped := ip.path.Transform(ip.gs.CTM)
	ip.gs.Clip = clipped
	ip.dev.ClipPath(ip.path, ip.pendingClip.evenOdd, ip.gs.CTM)
	ip.gs.ClipDepth++
	ip.pendingClip = nil
}

func (ip *Interpreter) strokeCurrentPath() {
	if !ip.visible() {
		ip.applyPendingClip()
		return
	}
	style := &StrokeStyle{
		LineWidth: ip.gs.LineWidth, LineCap: ip.gs.LineCap, LineJoin: ip.gs.LineJoin,
		MiterLimit: ip.gs.MiterLimit, DashArray: ip.gs.DashArray, DashPhase: ip.gs.DashPhase,
	}
	ip.dev.StrokePath(ip.path, style, ip.gs.CTM, ip.gs.StrokeColor, ip.gs.StrokeAlpha)
	if ip.pendingClip != nil {
		ip.dev.ClipStrokePath(ip.path, style, ip.gs.CTM)
		ip.gs.ClipDepth++
		ip.pendingClip = nil
	}
}

func (ip *Interpreter) fillCurrentPath(evenOdd bool) {
	if !ip.visible() {
		ip.applyPendingClip()
		return
	}
	ip.dev.FillPath(ip.path, evenOdd, ip.gs.CTM, ip.gs.FillColor, ip.gs.FillAlpha)
	ip.applyPendingClip()
}
