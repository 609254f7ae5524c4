package pdf

import "testing"

// TestInterpreterRunFillsARectangle drives a tiny hand-built content
// stream through the full operator dispatch (color, path construction,
// painting) into a real DrawDevice, checking the device contract is
// exercised end-to-end rather than through any one operator in isolation.
func TestInterpreterRunFillsARectangle(t *testing.T) {
	dev := NewDrawDevice(20, 20)
	cookie := &Cookie{}
	ip := NewInterpreter(&Document{ctx: NewContext(0)}, dev, NewDict(0), cookie)
	ip.gs.CTM = Identity

	content := []byte("1 0 0 rg\n4 4 8 8 re\nf\n")
	if err := ip.Run(content); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r, g, b, a := dev.Target.GetRGBA(8, 8)
	if r != 1 || g != 0 || b != 0 || a != 1 {
		t.Errorf("inside the filled rectangle = (%v,%v,%v,%v), want (1,0,0,1)", r, g, b, a)
	}
	_, _, _, a = dev.Target.GetRGBA(18, 18)
	if a != 0 {
		t.Errorf("outside the filled rectangle should stay untouched, got alpha %v", a)
	}
}

// TestInterpreterRunHonorsClipAcrossQSave checks that a W...n clip pushed
// inside a q/Q pair is popped again on Q, so a fill issued after Q reaches
// pixels the clip would have excluded.
func TestInterpreterRunHonorsClipAcrossQSave(t *testing.T) {
	dev := NewDrawDevice(20, 20)
	ip := NewInterpreter(&Document{ctx: NewContext(0)}, dev, NewDict(0), &Cookie{})
	ip.gs.CTM = Identity

	content := []byte(
		"q\n" +
			"2 2 4 4 re\nW\nn\n" + // clip to a small square, consumed by n
			"0 1 0 rg\n0 0 20 20 re\nf\n" + // filled green, but only the clip shows through
			"Q\n" +
			"0 0 1 rg\n0 0 20 20 re\nf\n", // after Q the clip is gone; blue covers everything
	)
	if err := ip.Run(content); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Far corner: green never reached it (clipped out), but blue (after Q)
	// painted over it unclipped.
	r, g, b, a := dev.Target.GetRGBA(15, 15)
	if r != 0 || g != 0 || b != 1 || a != 1 {
		t.Errorf("(15,15) after Q = (%v,%v,%v,%v), want blue opaque (0,0,1,1)", r, g, b, a)
	}
}

func TestInterpreterRunIgnoresUnknownOperators(t *testing.T) {
	dev := NewDrawDevice(5, 5)
	ip := NewInterpreter(&Document{ctx: NewContext(0)}, dev, NewDict(0), &Cookie{})
	ip.gs.CTM = Identity

	if err := ip.Run([]byte("1 2 3 XY\n0 0 0 rg\n0 0 5 5 re\nf\n")); err != nil {
		t.Fatalf("Run should swallow an unknown operator, got error: %v", err)
	}
	_, _, _, a := dev.Target.GetRGBA(2, 2)
	if a != 1 {
		t.Errorf("fill after an unknown operator should still happen, got alpha %v", a)
	}
}
