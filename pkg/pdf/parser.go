package pdf

import (
	"bytes"
	"fmt"
)

// Parser turns a token stream from a Lexer into Values, handling the one
// piece of PDF grammar a pure token stream can't express directly: telling
// an indirect reference "5 0 R" apart from two bare integers "5 0" by
// looking two tokens ahead.
type Parser struct {
	lx  *Lexer
	doc *Document
	buf []Token
}

func newParserFromLexer(lx *Lexer, doc *Document) *Parser {
	return &Parser{lx: lx, doc: doc}
}

func (p *Parser) next() (Token, error) {
	if n := len(p.buf); n > 0 {
		t := p.buf[n-1]
		p.buf = p.buf[:n-1]
		return t, nil
	}
	return p.lx.NextToken()
}

func (p *Parser) pushback(t Token) {
	p.buf = append(p.buf, t)
}

// parseValue reads and constructs the next complete Value from the token
// stream.
func (p *Parser) parseValue() (*Value, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	return p.parseValueFrom(tok)
}

func (p *Parser) parseValueFrom(tok Token) (*Value, error) {
	switch tok.Type {
	case TokenNull:
		return NewNull(), nil
	case TokenBoolean:
		return NewBool(tok.Value.(bool)), nil
	case TokenInteger:
		return p.parseIntegerOrRef(tok)
	case TokenReal:
		return NewReal(tok.Value.(float64)), nil
	case TokenString:
		return NewString(tok.Value.([]byte), false), nil
	case TokenHexString:
		return NewString(tok.Value.([]byte), true), nil
	case TokenName:
		return NewName(Name(tok.Value.(string))), nil
	case TokenArrayStart:
		return p.parseArray()
	case TokenDictStart:
		return p.parseDict()
	case TokenEOF:
		return nil, fmt.Errorf("parser: unexpected end of input")
	default:
		return nil, fmt.Errorf("parser: unexpected token at position %d", tok.Pos)
	}
}

// parseIntegerOrRef implements the two-token lookahead that distinguishes
// "N" from "N G R".
func (p *Parser) parseIntegerOrRef(first Token) (*Value, error) {
	num := first.Value.(int64)

	second, err := p.next()
	if err != nil {
		return NewInt(num), nil
	}
	if second.Type != TokenInteger {
		p.pushback(second)
		return NewInt(num), nil
	}
	gen := second.Value.(int64)

	third, err := p.next()
	if err != nil {
		p.pushback(second)
		return NewInt(num), nil
	}
	if third.Type != TokenRef {
		p.pushback(third)
		p.pushback(second)
		return NewInt(num), nil
	}
	return NewIndirect(int(num), int(gen), p.doc), nil
}

func (p *Parser) parseArray() (*Value, error) {
	arr := NewArray(8)
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenArrayEnd {
			return arr, nil
		}
		v, err := p.parseValueFrom(tok)
		if err != nil {
			return nil, err
		}
		arr.ArrayPush(v)
		v.Drop() // ArrayPush Keeps its own reference
	}
}

func (p *Parser) parseDict() (*Value, error) {
	d := NewDict(8)
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Type == TokenDictEnd {
			return d, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("parser: expected name key in dictionary at position %d", tok.Pos)
		}
		key := Name(tok.Value.(string))
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		d.DictPut(key, val)
		val.Drop()
	}
}

// parseIndirectObject parses a full "N G obj ... endobj" body starting at
// the lexer's current position (the object-number token), including the
// stream data that follows a dictionary-valued object's "stream" keyword,
// and returns the object's value (the stream dictionary itself for a
// stream object) together with the stream's raw, undecoded body bytes
// (nil when the object is not a stream).
func parseIndirectObject(lx *Lexer, base []byte, doc *Document) (*Value, []byte, error) {
	p := newParserFromLexer(lx, doc)

	numTok, err := p.next()
	if err != nil || numTok.Type != TokenInteger {
		return nil, nil, fmt.Errorf("parser: expected object number")
	}
	if _, err := p.next(); err != nil { // generation
		return nil, nil, err
	}
	objTok, err := p.next()
	if err != nil || objTok.Type != TokenObjStart {
		return nil, nil, fmt.Errorf("parser: expected 'obj' keyword")
	}

	val, err := p.parseValue()
	if err != nil {
		return nil, nil, err
	}

	tok, err := p.next()
	if err != nil {
		return val, nil, nil
	}
	if tok.Type != TokenStreamStart {
		p.pushback(tok)
		return val, nil, nil
	}

	raw, err := readStreamBody(lx, base, val.DictGet("Length"))
	if err != nil {
		return val, nil, err
	}

	// consume the matching "endstream" keyword, tolerating a missing one
	// (malformed producers sometimes omit it).
	for i := 0; i < 2; i++ {
		t, err := p.next()
		if err != nil || t.Type == TokenStreamEnd {
			break
		}
	}
	return val, raw, nil
}

// readStreamBody reads the raw bytes of a stream following the "stream"
// keyword the lexer just consumed, against base (the byte slice the lexer
// was constructed over, so lx.Position() can be used to slice the
// unconsumed remainder without copying). It trusts /Length when it lands
// exactly on an "endstream" boundary, and otherwise falls back to scanning
// for the keyword, which is the tolerant behavior malformed-length
// producers need (§4.3's recovery posture extended to stream bodies).
func readStreamBody(lx *Lexer, base []byte, length *Value) ([]byte, error) {
	// The stream keyword must be followed by CRLF or LF; a single CR alone
	// is non-conformant but tolerated.
	b, err := lx.readByte()
	if err != nil {
		return nil, err
	}
	if b == '\r' {
		if nb, err := lx.peekByte(); err == nil && nb == '\n' {
			lx.readByte()
		}
	} else if b != '\n' {
		lx.unreadByte()
	}

	pos := lx.Position()
	var data []byte
	if pos >= 0 && pos <= int64(len(base)) {
		data = base[pos:]
	}

	n := -1
	if length != nil && length.Kind() == KindInt {
		n = int(length.Int())
	}
	if n >= 0 && n <= len(data) {
		tail := data[n:]
		trimmed := bytes.TrimLeft(tail, "\r\n \t")
		if bytes.HasPrefix(trimmed, []byte("endstream")) {
			lx.SkipBytes(int64(n))
			return data[:n], nil
		}
	}

	idx := bytes.Index(data, []byte("endstream"))
	if idx < 0 {
		lx.SkipBytes(int64(len(data)))
		return data, nil
	}
	body := data[:idx]
	body = bytes.TrimRight(body, "\r\n")
	lx.SkipBytes(int64(idx))
	return body, nil
}
