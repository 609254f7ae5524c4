package pdf

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type pageAttrSummary struct {
	MediaBox []float64
	ProcSet  string
}

func summarizePageAttrs(page *Value) pageAttrSummary {
	box := page.DictGet("MediaBox")
	var vals []float64
	for i := 0; i < box.Len(); i++ {
		vals = append(vals, box.ArrayGet(i).Float())
	}
	procSet := page.DictGet("Resources").DictGet("ProcSet").ArrayGet(0).NameValue()
	return pageAttrSummary{MediaBox: vals, ProcSet: string(procSet)}
}

// TestPageTreeInheritsResourcesAndMediaBoxPerPage builds a two-page
// document where one leaf inherits its Pages parent's /MediaBox and
// /Resources untouched and the other overrides /MediaBox while still
// inheriting /Resources, and diffs the resolved per-page attributes
// against what walkPageTree's inheritance rule should produce.
func TestPageTreeInheritsResourcesAndMediaBoxPerPage(t *testing.T) {
	var offsets [5]int64
	buf := "%PDF-1.4\n"
	writeObj := func(num int, body string) {
		offsets[num] = int64(len(buf))
		buf += fmt.Sprintf("%d 0 obj\n%s\nendobj\n", num, body)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 "+
		"/MediaBox [0 0 600 800] /Resources << /ProcSet [/PDF] >> >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R >>")
	writeObj(4, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>")

	xrefOffset := int64(len(buf))
	buf += "xref\n0 5\n0000000000 65535 f \n"
	for i := 1; i <= 4; i++ {
		buf += fmt.Sprintf("%010d %05d n \n", offsets[i], 0)
	}
	buf += "trailer\n<< /Size 5 /Root 1 0 R >>\n"
	buf += fmt.Sprintf("startxref\n%d\n%%%%EOF", xrefOffset)

	doc, err := Open([]byte(buf))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", doc.PageCount())
	}

	want := []pageAttrSummary{
		{MediaBox: []float64{0, 0, 600, 800}, ProcSet: "PDF"},
		{MediaBox: []float64{0, 0, 200, 200}, ProcSet: "PDF"},
	}
	got := []pageAttrSummary{
		summarizePageAttrs(doc.Page(0)),
		summarizePageAttrs(doc.Page(1)),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved page attributes differ:\n%s", diff)
	}
}
