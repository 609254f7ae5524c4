// Package pdf provides PDF parsing and content-interpretation functionality.
package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// Kind identifies which of the nine variants a Value currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindString
	KindName
	KindArray
	KindDict
	KindIndirect
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindName:
		return "name"
	case KindArray:
		return "array"
	case KindDict:
		return "dictionary"
	case KindIndirect:
		return "reference"
	default:
		return "unknown"
	}
}

// keyval is one slot of a dictionary. Dictionaries are kept as a flat slice
// rather than a Go map so that the linear-then-sorted search discipline and
// the cycle-breaking visit mark described for the value model have somewhere
// to live; a bare map cannot carry either.
type keyval struct {
	key Name
	val *Value
}

type dict struct {
	items  []keyval
	sorted bool
	marked bool
}

// Value is the dynamic PDF object: a refcounted tagged variant with exactly
// one inhabitant per Kind. It is always handled through a pointer so that
// Keep/Drop and pointer-equality caching are meaningful.
type Value struct {
	refs int32
	kind Kind

	b bool
	i int64
	f float64

	str   []byte
	isHex bool

	name Name

	arr []*Value

	dict *dict

	refNum int
	refGen int
	refDoc *Document
}

// Name is an interned identifier; comparison is bytewise of the decoded text
// (name objects never carry the leading slash or #xx escapes once lexed).
type Name string

var sharedNull = &Value{kind: KindNull, refs: 1}

// NewNull returns the (shared, never-freed) null value.
func NewNull() *Value { return sharedNull }

// NewBool constructs a boolean Value with an initial reference count of 1.
func NewBool(b bool) *Value { return &Value{kind: KindBool, b: b, refs: 1} }

// NewInt constructs an integer Value.
func NewInt(i int64) *Value { return &Value{kind: KindInt, i: i, refs: 1} }

// NewReal constructs a real Value (stored at double precision internally;
// the wire format is 32-bit, per §6's numeric semantics).
func NewReal(f float64) *Value { return &Value{kind: KindReal, f: f, refs: 1} }

// NewString constructs a string Value. isHex only affects how the value
// prints; both literal and hex strings decode identically once parsed.
func NewString(b []byte, isHex bool) *Value {
	return &Value{kind: KindString, str: append([]byte(nil), b...), isHex: isHex, refs: 1}
}

// NewName constructs a name Value.
func NewName(n Name) *Value { return &Value{kind: KindName, name: n, refs: 1} }

// NewArray constructs an empty array with the given capacity hint.
func NewArray(capHint int) *Value {
	return &Value{kind: KindArray, arr: make([]*Value, 0, capHint), refs: 1}
}

// NewDict constructs an empty dictionary with the given capacity hint.
func NewDict(capHint int) *Value {
	return &Value{kind: KindDict, dict: &dict{items: make([]keyval, 0, capHint)}, refs: 1}
}

// NewIndirect constructs an indirect reference Value bound to doc, which it
// does not own: the Document outlives every Value produced from its xref
// table by construction (§9's back-pointer discussion, option (a)), so the
// back-pointer here carries no reference count of its own.
func NewIndirect(num, gen int, doc *Document) *Value {
	return &Value{kind: KindIndirect, refNum: num, refGen: gen, refDoc: doc, refs: 1}
}

// Kind reports v's tag without dereferencing indirect references.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// Keep increments v's reference count and returns v, so that it can be used
// inline: `child := parent.Keep()`.
func (v *Value) Keep() *Value {
	if v == nil || v == sharedNull {
		return v
	}
	v.refs++
	return v
}

// Drop decrements v's reference count, recursively dropping owned children
// and releasing v's storage once the count reaches zero. Indirect references
// do not own their referent (the Document's xref cache does), so dropping an
// indirect Value never recurses into the document.
func (v *Value) Drop() {
	if v == nil || v == sharedNull {
		return
	}
	v.refs--
	if v.refs > 0 {
		return
	}
	switch v.kind {
	case KindArray:
		for _, e := range v.arr {
			e.Drop()
		}
	case KindDict:
		for _, kv := range v.dict.items {
			kv.val.Drop()
		}
	}
}

// ResolveIndirect chases indirect references up to 10 hops (the contract
// preserved from the source's unexplained magic number, §9). A cycle or a
// missing target yields null and a warning rather than propagating an error,
// matching the "every accessor is total" discipline for the value layer.
func ResolveIndirect(v *Value) *Value {
	hops := 10
	for v != nil && v.kind == KindIndirect && hops > 0 {
		if v.refDoc == nil {
			return sharedNull
		}
		next, err := v.refDoc.cacheObject(v.refNum, v.refGen)
		if err != nil {
			v.refDoc.warnf("resolve_indirect: %v", err)
			return sharedNull
		}
		v = next
		hops--
	}
	if v != nil && v.kind == KindIndirect {
		if v.refDoc != nil {
			v.refDoc.warnf("resolve_indirect: cycle or excessive indirection at %d %d R", v.refNum, v.refGen)
		}
		return sharedNull
	}
	if v == nil {
		return sharedNull
	}
	return v
}

// IsNull reports whether v resolves to the null value.
func (v *Value) IsNull() bool { return ResolveIndirect(v).kind == KindNull }

// IsBool reports whether v resolves to a boolean.
func (v *Value) IsBool() bool { return ResolveIndirect(v).kind == KindBool }

// IsInt reports whether v resolves to an integer.
func (v *Value) IsInt() bool { return ResolveIndirect(v).kind == KindInt }

// IsReal reports whether v resolves to a real.
func (v *Value) IsReal() bool { return ResolveIndirect(v).kind == KindReal }

// IsNumber reports whether v resolves to an integer or a real.
func (v *Value) IsNumber() bool {
	k := ResolveIndirect(v).kind
	return k == KindInt || k == KindReal
}

// IsString reports whether v resolves to a string.
func (v *Value) IsString() bool { return ResolveIndirect(v).kind == KindString }

// IsName reports whether v resolves to a name.
func (v *Value) IsName() bool { return ResolveIndirect(v).kind == KindName }

// IsArray reports whether v resolves to an array.
func (v *Value) IsArray() bool { return ResolveIndirect(v).kind == KindArray }

// IsDict reports whether v resolves to a dictionary.
func (v *Value) IsDict() bool { return ResolveIndirect(v).kind == KindDict }

// IsIndirect reports whether v itself (no dereference) is an indirect
// reference.
func (v *Value) IsIndirect() bool { return v != nil && v.kind == KindIndirect }

// Bool returns v's boolean payload, or false on type mismatch.
func (v *Value) Bool() bool {
	r := ResolveIndirect(v)
	if r.kind != KindBool {
		return false
	}
	return r.b
}

// Int returns v's integer payload (truncating a real), or 0 on type
// mismatch.
func (v *Value) Int() int64 {
	r := ResolveIndirect(v)
	switch r.kind {
	case KindInt:
		return r.i
	case KindReal:
		return int64(r.f)
	default:
		return 0
	}
}

// Float returns v's numeric payload as a float64, or 0 on type mismatch.
func (v *Value) Float() float64 {
	r := ResolveIndirect(v)
	switch r.kind {
	case KindInt:
		return float64(r.i)
	case KindReal:
		return r.f
	default:
		return 0
	}
}

// RawString returns v's string bytes, or nil on type mismatch.
func (v *Value) RawString() []byte {
	r := ResolveIndirect(v)
	if r.kind != KindString {
		return nil
	}
	return r.str
}

// Text decodes v's string payload as PDF text: UTF-16BE with a BOM of
// 0xFEFF, or PDFDocEncoding (approximated via Windows-1252, as the two
// agree on the printable ASCII range this engine exercises) otherwise.
// Non-string values decode to "".
func (v *Value) Text() string {
	r := ResolveIndirect(v)
	if r.kind != KindString {
		return ""
	}
	return decodeTextString(r.str)
}

func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u16 := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u16 = append(u16, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u16))
	}
	dec := charmap.Windows1252.NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// NameValue returns v's name payload, or "" on type mismatch.
func (v *Value) NameValue() Name {
	r := ResolveIndirect(v)
	if r.kind != KindName {
		return ""
	}
	return r.name
}

// Len returns the number of elements in an array or entries in a dictionary;
// 0 otherwise.
func (v *Value) Len() int {
	r := ResolveIndirect(v)
	switch r.kind {
	case KindArray:
		return len(r.arr)
	case KindDict:
		return len(r.dict.items)
	default:
		return 0
	}
}

// ArrayGet returns the i'th element of an array, or null if v is not an
// array or i is out of range.
func (v *Value) ArrayGet(i int) *Value {
	r := ResolveIndirect(v)
	if r.kind != KindArray || i < 0 || i >= len(r.arr) {
		return sharedNull
	}
	return r.arr[i]
}

// ArrayPut sets the i'th element of an array, growing it with nulls if
// necessary. A no-op if v is not an array.
func (v *Value) ArrayPut(i int, e *Value) {
	if v == nil || v.kind != KindArray || i < 0 {
		return
	}
	for len(v.arr) <= i {
		v.arr = append(v.arr, sharedNull)
	}
	old := v.arr[i]
	v.arr[i] = e.Keep()
	old.Drop()
}

// ArrayPush appends e to the end of an array.
func (v *Value) ArrayPush(e *Value) {
	if v == nil || v.kind != KindArray {
		return
	}
	v.arr = append(v.arr, e.Keep())
}

// finds implements the dictionary probe: binary search once the dictionary
// is sorted and non-empty, linear scan otherwise. It returns the found value
// (nil if absent) and, when absent, the index a new entry should be inserted
// at to keep a sorted dictionary sorted.
func (d *dict) finds(key Name) (val *Value, idx int, found bool) {
	if d.sorted && len(d.items) > 0 {
		lo, hi := 0, len(d.items)
		for lo < hi {
			mid := (lo + hi) / 2
			if d.items[mid].key < key {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo < len(d.items) && d.items[lo].key == key {
			return d.items[lo].val, lo, true
		}
		return nil, lo, false
	}
	for i, kv := range d.items {
		if kv.key == key {
			return kv.val, i, true
		}
	}
	return nil, len(d.items), false
}

func (d *dict) sortNow() {
	sort.Slice(d.items, func(i, j int) bool { return d.items[i].key < d.items[j].key })
	d.sorted = true
}

// DictGet looks up key in v, returning null if v is not a dictionary or the
// key is absent. The dictionary is sorted in place (once) the first time its
// length exceeds 100 entries, per the linear-then-binary search discipline.
func (v *Value) DictGet(key Name) *Value {
	r := ResolveIndirect(v)
	if r.kind != KindDict {
		return sharedNull
	}
	d := r.dict
	if !d.sorted && len(d.items) > 100 {
		d.sortNow()
	}
	val, _, found := d.finds(key)
	if !found {
		return sharedNull
	}
	return val
}

// DictPut sets key to val in v, preserving dictionary order and sortedness.
// A no-op if v is not a dictionary.
func (v *Value) DictPut(key Name, val *Value) {
	if v == nil || v.kind != KindDict {
		return
	}
	d := v.dict
	if !d.sorted && len(d.items) > 100 {
		d.sortNow()
	}
	existing, idx, found := d.finds(key)
	if found {
		existing.Drop()
		d.items[idx].val = val.Keep()
		return
	}
	kv := keyval{key: key, val: val.Keep()}
	if d.sorted {
		d.items = append(d.items, keyval{})
		copy(d.items[idx+1:], d.items[idx:])
		d.items[idx] = kv
	} else {
		d.items = append(d.items, kv)
	}
}

// DictDelete removes key from v. Deletion is cheap: the entry is swapped
// with the last one and the slice shortened, which means the dictionary can
// no longer be assumed sorted afterwards.
func (v *Value) DictDelete(key Name) {
	if v == nil || v.kind != KindDict {
		return
	}
	d := v.dict
	_, idx, found := d.finds(key)
	if !found {
		return
	}
	d.items[idx].val.Drop()
	last := len(d.items) - 1
	d.items[idx] = d.items[last]
	d.items = d.items[:last]
	d.sorted = false
}

// DictKeys returns the dictionary's keys in storage order (sorted order if
// the dictionary has been sorted, insertion order otherwise).
func (v *Value) DictKeys() []Name {
	r := ResolveIndirect(v)
	if r.kind != KindDict {
		return nil
	}
	keys := make([]Name, len(r.dict.items))
	for i, kv := range r.dict.items {
		keys[i] = kv.key
	}
	return keys
}

// Marked reports the dictionary's single-bit cycle-breaking visit mark.
func (v *Value) Marked() bool {
	r := ResolveIndirect(v)
	return r.kind == KindDict && r.dict.marked
}

// Mark sets the dictionary's visit mark, returning the previous value so
// callers can restore it symmetrically.
func (v *Value) Mark() bool {
	r := ResolveIndirect(v)
	if r.kind != KindDict {
		return false
	}
	prev := r.dict.marked
	r.dict.marked = true
	return prev
}

// Unmark clears the dictionary's visit mark.
func (v *Value) Unmark() {
	r := ResolveIndirect(v)
	if r.kind == KindDict {
		r.dict.marked = false
	}
}

// Cmp performs deep, element-wise equality as specified: strings compare
// length-first then bytewise, names bytewise, arrays/dicts element-wise,
// indirect references by (num,gen) without dereferencing.
func Cmp(a, b *Value) bool {
	if a == nil {
		a = sharedNull
	}
	if b == nil {
		b = sharedNull
	}
	if a == b {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindReal:
		return a.f == b.f
	case KindString:
		return len(a.str) == len(b.str) && bytes.Equal(a.str, b.str)
	case KindName:
		return a.name == b.name
	case KindIndirect:
		return a.refNum == b.refNum && a.refGen == b.refGen
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Cmp(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.dict.items) != len(b.dict.items) {
			return false
		}
		for _, kv := range a.dict.items {
			bv, _, found := b.dict.finds(kv.key)
			if !found || !Cmp(kv.val, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Sprint pretty-prints v. tight=true produces the compact one-line form used
// when writing back into a stream (no interior whitespace beyond what the
// grammar requires); tight=false produces an indented, human-readable form.
func Sprint(v *Value, tight bool) string {
	var buf bytes.Buffer
	fmtValue(&buf, v, tight, 0)
	return buf.String()
}

func fmtValue(buf *bytes.Buffer, v *Value, tight bool, indent int) {
	if v == nil {
		v = sharedNull
	}
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindReal:
		buf.WriteString(strconv.FormatFloat(v.f, 'f', -1, 64))
	case KindString:
		fmtString(buf, v.str)
	case KindName:
		fmtName(buf, v.name)
	case KindIndirect:
		fmt.Fprintf(buf, "%d %d R", v.refNum, v.refGen)
	case KindArray:
		fmtArray(buf, v, tight, indent)
	case KindDict:
		fmtDict(buf, v, tight, indent)
	}
}

// fmtString chooses a hex or escaped literal rendering by the proportion of
// non-printable bytes, as the pretty-printer's two-mode contract requires.
func fmtString(buf *bytes.Buffer, s []byte) {
	nonPrintable := 0
	for _, b := range s {
		if b < 0x20 || b >= 0x7F {
			nonPrintable++
		}
	}
	if len(s) > 0 && nonPrintable*2 > len(s) {
		buf.WriteByte('<')
		for _, b := range s {
			fmt.Fprintf(buf, "%02x", b)
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, b := range s {
		switch b {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if b < 0x20 || b >= 0x7F {
				fmt.Fprintf(buf, "\\%03o", b)
			} else {
				buf.WriteByte(b)
			}
		}
	}
	buf.WriteByte(')')
}

func fmtName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		b := n[i]
		if b <= 0x20 || b >= 0x7F || isDelimiter(b) || b == '#' {
			fmt.Fprintf(buf, "#%02x", b)
		} else {
			buf.WriteByte(b)
		}
	}
}

func fmtArray(buf *bytes.Buffer, v *Value, tight bool, indent int) {
	buf.WriteByte('[')
	for i, e := range v.arr {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmtValue(buf, e, tight, indent)
	}
	buf.WriteByte(']')
}

func fmtDict(buf *bytes.Buffer, v *Value, tight bool, indent int) {
	if tight || len(v.dict.items) == 0 {
		buf.WriteString("<<")
		for i, kv := range v.dict.items {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmtName(buf, kv.key)
			buf.WriteByte(' ')
			fmtValue(buf, kv.val, tight, indent)
		}
		buf.WriteString(">>")
		return
	}
	buf.WriteString("<<\n")
	for _, kv := range v.dict.items {
		writeIndent(buf, indent+1)
		fmtName(buf, kv.key)
		buf.WriteByte(' ')
		fmtValue(buf, kv.val, tight, indent+1)
		buf.WriteByte('\n')
	}
	writeIndent(buf, indent)
	buf.WriteString(">>")
}

func writeIndent(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteString("  ")
	}
}

// Reference returns the (num, gen) pair of an indirect Value; (0,0) if v is
// not indirect.
func (v *Value) Reference() (num, gen int) {
	if v == nil || v.kind != KindIndirect {
		return 0, 0
	}
	return v.refNum, v.refGen
}
