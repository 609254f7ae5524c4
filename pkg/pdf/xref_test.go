package pdf

import (
	"fmt"
	"testing"
)

const threeObjectBody = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>\nendobj\n"

// TestXrefSizeMismatchTriggersRepair builds a classical xref table whose
// trailer /Size claims one more object than the table actually lists (the
// 50-vs-49-object corruption pattern), and checks that Open falls back to
// the linear repair scan rather than operating on the hole-riddled table.
func TestXrefSizeMismatchTriggersRepair(t *testing.T) {
	body := threeObjectBody
	xrefOffset := len(body)
	xref := "xref\n0 4\n" +
		"0000000000 65535 f \n" +
		"0000000000 00000 n \n" +
		"0000000000 00000 n \n" +
		"0000000000 00000 n \n" +
		"trailer\n<< /Size 5 /Root 1 0 R >>\n"
	full := body + xref + fmt.Sprintf("startxref\n%d\n%%%%EOF", xrefOffset)

	doc, err := Open([]byte(full))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1 (recovered via repair after the Size/entry-count mismatch)", doc.PageCount())
	}
	page := doc.Page(0)
	if got := page.DictGet("Type").NameValue(); got != "Page" {
		t.Errorf("recovered page Type = %q, want Page", got)
	}
}

// TestCorruptedStartxrefTriggersRepair points startxref at a non-numeric
// offset and omits any trailer keyword entirely, exercising repairXref's
// Catalog-probe fallback for locating /Root.
func TestCorruptedStartxrefTriggersRepair(t *testing.T) {
	full := threeObjectBody + "startxref\nnotanumber\n%%EOF"

	doc, err := Open([]byte(full))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := doc.trailer.DictGet("Root"); !got.IsIndirect() && !got.IsDict() {
		t.Fatalf("repaired trailer has no usable /Root")
	}
	if doc.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1 (recovered via Catalog probe)", doc.PageCount())
	}
}

func TestFindStartXrefLocatesTheLastOffsetMarker(t *testing.T) {
	data := []byte("garbage\nstartxref\n1234\n%%EOF")
	off, ok := findStartXref(data)
	if !ok || off != 1234 {
		t.Errorf("findStartXref = (%d, %v), want (1234, true)", off, ok)
	}
}

func TestFindStartXrefMissingMarkerFails(t *testing.T) {
	data := []byte("no marker here at all")
	if _, ok := findStartXref(data); ok {
		t.Errorf("findStartXref should fail when no startxref marker is present")
	}
}
