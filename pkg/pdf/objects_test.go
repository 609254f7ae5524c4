package pdf

import "testing"

func TestValueConstructorsReportTheirKind(t *testing.T) {
	cases := []struct {
		name string
		v    *Value
		want Kind
	}{
		{"null", NewNull(), KindNull},
		{"bool", NewBool(true), KindBool},
		{"int", NewInt(7), KindInt},
		{"real", NewReal(1.5), KindReal},
		{"string", NewString([]byte("hi"), false), KindString},
		{"name", NewName("Foo"), KindName},
		{"array", NewArray(0), KindArray},
		{"dict", NewDict(0), KindDict},
		{"indirect", NewIndirect(1, 0, nil), KindIndirect},
	}
	for _, c := range cases {
		if got := c.v.Kind(); got != c.want {
			t.Errorf("%s: Kind() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIntAcceptsRealByTruncation(t *testing.T) {
	r := NewReal(3.9)
	if got := r.Int(); got != 3 {
		t.Errorf("Int() on real 3.9 = %d, want 3", got)
	}
	if got := r.Float(); got != 3.9 {
		t.Errorf("Float() on real 3.9 = %v, want 3.9", got)
	}
}

func TestArrayPushKeepsAndDropReleases(t *testing.T) {
	arr := NewArray(0)
	elem := NewInt(42)
	arr.ArrayPush(elem)
	elem.Drop() // caller's own local reference, per the Keep-on-insert discipline

	if arr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", arr.Len())
	}
	if got := arr.ArrayGet(0).Int(); got != 42 {
		t.Errorf("ArrayGet(0).Int() = %d, want 42", got)
	}

	arr.Drop()
}

func TestDictPutGetRoundTrip(t *testing.T) {
	d := NewDict(0)
	v := NewName("Page")
	d.DictPut("Type", v)
	v.Drop()

	if got := d.DictGet("Type").NameValue(); got != "Page" {
		t.Errorf("DictGet(Type).NameValue() = %q, want Page", got)
	}
	if got := d.DictGet("Missing"); !got.IsNull() {
		t.Errorf("DictGet(Missing) should resolve to null, got kind %v", got.Kind())
	}
	d.Drop()
}

func TestDictPutOverwriteDropsThePreviousValue(t *testing.T) {
	d := NewDict(0)
	first := NewInt(1)
	d.DictPut("N", first)
	first.Drop()

	second := NewInt(2)
	d.DictPut("N", second)
	second.Drop()

	if got := d.DictGet("N").Int(); got != 2 {
		t.Errorf("DictGet(N).Int() = %d, want 2", got)
	}
	d.Drop()
}

func TestDictSortsOnceItCrossesTheLinearThreshold(t *testing.T) {
	d := NewDict(0)
	for i := 0; i < 150; i++ {
		name := Name(string(rune('a' + i%26)) + string(rune('A'+i/26)))
		v := NewInt(int64(i))
		d.DictPut(name, v)
		v.Drop()
	}
	if !d.dict.sorted {
		t.Fatalf("dictionary with >100 entries should have sorted itself during the inserts")
	}
	_ = d.DictGet("aA") // lookups on a sorted dictionary keep it sorted
	if !d.dict.sorted {
		t.Errorf("dictionary with >100 entries should be sorted after a lookup")
	}
	for i := 0; i < 150; i++ {
		name := Name(string(rune('a' + i%26)) + string(rune('A'+i/26)))
		if got := d.DictGet(name).Int(); got != int64(i) {
			t.Errorf("DictGet(%s) = %d, want %d", name, got, i)
		}
	}
	d.Drop()
}

func TestResolveIndirectOnAMissingObjectYieldsNull(t *testing.T) {
	doc := &Document{ctx: NewContext(0), xref: newXrefTable(), streamRaw: map[int][]byte{}}
	ref := NewIndirect(5, 0, doc)
	// No entry for object 5 exists in the table, which cacheObject treats
	// as "no such object" rather than an error — ResolveIndirect must
	// still yield null, verifying the "every accessor is total" contract
	// holds even when the backing document can't resolve the reference.
	if got := ResolveIndirect(ref); !got.IsNull() {
		t.Errorf("ResolveIndirect on a missing object should yield null, got kind %v", got.Kind())
	}
}

func TestCmpComparesArraysAndDictsStructurally(t *testing.T) {
	a := NewArray(0)
	av := NewInt(1)
	a.ArrayPush(av)
	av.Drop()

	b := NewArray(0)
	bv := NewInt(1)
	b.ArrayPush(bv)
	bv.Drop()

	if !Cmp(a, b) {
		t.Errorf("Cmp should treat structurally-equal arrays as equal")
	}

	c := NewInt(2)
	b.ArrayPush(c)
	c.Drop()
	if Cmp(a, b) {
		t.Errorf("Cmp should distinguish arrays of different length")
	}

	a.Drop()
	b.Drop()
}

func TestCmpOnIndirectComparesReferenceNotTarget(t *testing.T) {
	r1 := NewIndirect(3, 0, nil)
	r2 := NewIndirect(3, 0, nil)
	r3 := NewIndirect(4, 0, nil)
	if !Cmp(r1, r2) {
		t.Errorf("indirect refs with the same (num,gen) should compare equal")
	}
	if Cmp(r1, r3) {
		t.Errorf("indirect refs with different object numbers should not compare equal")
	}
}

func TestSprintTightVersusReadable(t *testing.T) {
	d := NewDict(0)
	one := NewInt(1)
	d.DictPut("A", one)
	one.Drop()

	tight := Sprint(d, true)
	if tight != "<</A 1>>" {
		t.Errorf("Sprint(tight) = %q, want %q", tight, "<</A 1>>")
	}
	readable := Sprint(d, false)
	if readable == tight {
		t.Errorf("Sprint(readable) should differ from the tight form")
	}
	d.Drop()
}

func TestTextDecodesUTF16BOMAndPDFDocEncoding(t *testing.T) {
	utf16be := NewString([]byte{0xFE, 0xFF, 0x00, 0x41}, false)
	if got := utf16be.Text(); got != "A" {
		t.Errorf("Text() on UTF-16BE BOM string = %q, want %q", got, "A")
	}

	plain := NewString([]byte("hello"), false)
	if got := plain.Text(); got != "hello" {
		t.Errorf("Text() on plain ASCII = %q, want %q", got, "hello")
	}
}
