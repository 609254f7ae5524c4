package pdf

import (
	"math"
	"testing"
)

func realArrayValue(vals ...float64) *Value {
	arr := NewArray(len(vals))
	for _, v := range vals {
		n := NewReal(v)
		arr.ArrayPush(n)
		n.Drop()
	}
	return arr
}

func TestExponentialFunctionLinearCase(t *testing.T) {
	fn := NewDict(0)
	defer fn.Drop()
	c0 := realArrayValue(0, 0, 0)
	c1 := realArrayValue(1, 1, 1)
	n := NewInt(1)
	fn.DictPut("C0", c0)
	fn.DictPut("C1", c1)
	fn.DictPut("N", n)
	c0.Drop()
	c1.Drop()
	n.Drop()

	f, err := newExponentialFunction(fn, []float64{0, 1}, nil)
	if err != nil {
		t.Fatalf("newExponentialFunction: %v", err)
	}
	out := f.Eval([]float64{0.5})
	if len(out) != 3 {
		t.Fatalf("Eval returned %d outputs, want 3", len(out))
	}
	for i, v := range out {
		if math.Abs(v-0.5) > 1e-9 {
			t.Errorf("out[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestExponentialFunctionClampsToRange(t *testing.T) {
	fn := NewDict(0)
	defer fn.Drop()
	c0 := realArrayValue(0)
	c1 := realArrayValue(10)
	n := NewInt(1)
	fn.DictPut("C0", c0)
	fn.DictPut("C1", c1)
	fn.DictPut("N", n)
	c0.Drop()
	c1.Drop()
	n.Drop()

	f, err := newExponentialFunction(fn, []float64{0, 1}, []float64{0, 1})
	if err != nil {
		t.Fatalf("newExponentialFunction: %v", err)
	}
	out := f.Eval([]float64{1})
	if len(out) != 1 || out[0] != 1 {
		t.Errorf("Eval(1) with Range [0,1] = %v, want [1] (clamped from 10)", out)
	}
}

func TestStitchingFunctionSelectsSubfunctionByBounds(t *testing.T) {
	lowFn := NewDict(0)
	lowFn.DictPut("FunctionType", NewInt(2))
	c0 := realArrayValue(0)
	c1 := realArrayValue(1)
	lowFn.DictPut("C0", c0)
	lowFn.DictPut("C1", c1)
	lowFn.DictPut("N", NewInt(1))
	c0.Drop()
	c1.Drop()

	highFn := NewDict(0)
	highFn.DictPut("FunctionType", NewInt(2))
	c0b := realArrayValue(10)
	c1b := realArrayValue(20)
	highFn.DictPut("C0", c0b)
	highFn.DictPut("C1", c1b)
	highFn.DictPut("N", NewInt(1))
	c0b.Drop()
	c1b.Drop()

	functions := NewArray(2)
	functions.ArrayPush(lowFn)
	functions.ArrayPush(highFn)
	lowFn.Drop()
	highFn.Drop()

	stitch := NewDict(0)
	defer stitch.Drop()
	stitch.DictPut("Functions", functions)
	functions.Drop()
	bounds := realArrayValue(0.5)
	stitch.DictPut("Bounds", bounds)
	bounds.Drop()
	encode := realArrayValue(0, 1, 0, 1)
	stitch.DictPut("Encode", encode)
	encode.Drop()

	f, err := newStitchingFunction(nil, stitch, []float64{0, 1}, nil)
	if err != nil {
		t.Fatalf("newStitchingFunction: %v", err)
	}

	below := f.Eval([]float64{0.25})
	if len(below) != 1 || math.Abs(below[0]-0.5) > 1e-9 {
		t.Errorf("Eval(0.25) = %v, want [0.5] from the low sub-function", below)
	}
	above := f.Eval([]float64{0.75})
	if len(above) != 1 || math.Abs(above[0]-15) > 1e-9 {
		t.Errorf("Eval(0.75) = %v, want [15] from the high sub-function", above)
	}
}

func TestPostScriptFunctionArithmeticAndDup(t *testing.T) {
	f, err := LoadPostScriptFunctionFromStream([]byte("{ dup mul }"), []float64{0, 10}, nil)
	if err != nil {
		t.Fatalf("LoadPostScriptFunctionFromStream: %v", err)
	}
	out := f.Eval([]float64{3})
	if len(out) != 1 || out[0] != 9 {
		t.Errorf("Eval(3) of {dup mul} = %v, want [9]", out)
	}
}

func TestPostScriptFunctionIfElse(t *testing.T) {
	// x 0.5 gt { 1 } { 0 } ifelse
	code := []byte("{ 0.5 gt { 1 } { 0 } ifelse }")
	f, err := LoadPostScriptFunctionFromStream(code, []float64{0, 1}, nil)
	if err != nil {
		t.Fatalf("LoadPostScriptFunctionFromStream: %v", err)
	}
	if out := f.Eval([]float64{0.9}); len(out) != 1 || out[0] != 1 {
		t.Errorf("Eval(0.9) = %v, want [1]", out)
	}
	if out := f.Eval([]float64{0.1}); len(out) != 1 || out[0] != 0 {
		t.Errorf("Eval(0.1) = %v, want [0]", out)
	}
}

func TestPostScriptFunctionStackOps(t *testing.T) {
	// For inputs (a, b) pushed in that order, exch then sub computes b - a.
	f, err := LoadPostScriptFunctionFromStream([]byte("{ exch sub }"), []float64{0, 1, 0, 1}, nil)
	if err != nil {
		t.Fatalf("LoadPostScriptFunctionFromStream: %v", err)
	}
	out := f.Eval([]float64{0.2, 0.7})
	if len(out) != 1 || math.Abs(out[0]-0.5) > 1e-9 {
		t.Errorf("Eval(0.2, 0.7) of {exch sub} = %v, want [0.5]", out)
	}
}
