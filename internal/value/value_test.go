package value

import (
	"testing"

	"rift/internal/gc"
)

func newCollector() *gc.Collector {
	return gc.NewCollector(ChildrenOf)
}

func TestDoubleVectorLen(t *testing.T) {
	c := newCollector()
	dv := NewDoubleVector(c, []float64{1, 2, 3})
	if got := dv.Len(); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	if dv.Header().Type != gc.DoubleVector {
		t.Fatalf("got type %v, want DoubleVector", dv.Header().Type)
	}
}

// TestCharacterVectorIsByteArray pins down the data model: a
// CharacterVector is a per-character byte array, not a vector of whole
// interned-string tokens, so a 3-character literal has length 3, not
// length 1.
func TestCharacterVectorIsByteArray(t *testing.T) {
	c := newCollector()
	cv := NewCharacterVector(c, []byte("aba"))
	if got := cv.Len(); got != 3 {
		t.Fatalf("got length %d, want 3", got)
	}
	if string(cv.Bytes) != "aba" {
		t.Fatalf("got %q, want %q", string(cv.Bytes), "aba")
	}
}

func TestBindingsSetGet(t *testing.T) {
	c := newCollector()
	b := NewBindings(c)
	dv := NewDoubleVector(c, []float64{42})

	if _, ok := b.Get(0); ok {
		t.Fatalf("expected no binding for a fresh Bindings")
	}
	b.Set(0, dv)
	got, ok := b.Get(0)
	if !ok {
		t.Fatalf("expected binding 0 to be set")
	}
	if got != Value(dv) {
		t.Fatalf("got %v, want the same DoubleVector", got)
	}

	// Re-setting the same name overwrites rather than appending.
	dv2 := NewDoubleVector(c, []float64{7})
	b.Set(0, dv2)
	got, _ = b.Get(0)
	if got != Value(dv2) {
		t.Fatalf("expected overwrite, got %v", got)
	}
}

func TestBindingsGrowsPastInitialSize(t *testing.T) {
	c := newCollector()
	b := NewBindings(c)
	for i := 0; i < bindingsInitialSize+bindingsGrowSize+1; i++ {
		b.Set(i, NewDoubleVector(c, []float64{float64(i)}))
	}
	for i := 0; i < bindingsInitialSize+bindingsGrowSize+1; i++ {
		got, ok := b.Get(i)
		if !ok {
			t.Fatalf("binding %d missing after growth", i)
		}
		if got.(*DoubleVector).Data[0] != float64(i) {
			t.Fatalf("binding %d corrupted after growth", i)
		}
	}
}

// TestEnvironmentParentChain covers envGet walking the parent chain and
// envSet never reaching past the current frame.
func TestEnvironmentParentChain(t *testing.T) {
	c := newCollector()
	outer := NewEnvironment(c, nil)
	outer.Set(c, 0, NewDoubleVector(c, []float64{1}))

	inner := NewEnvironment(c, outer)
	v, err := inner.Get(0, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(*DoubleVector).Data[0] != 1 {
		t.Fatalf("expected inner lookup to see outer's binding")
	}

	// envSet always binds in the current frame; it never rebinds the
	// enclosing scope's variable.
	inner.Set(c, 0, NewDoubleVector(c, []float64{2}))
	innerVal, _ := inner.Get(0, "x")
	if innerVal.(*DoubleVector).Data[0] != 2 {
		t.Fatalf("expected inner's own binding to shadow outer's")
	}
	outerVal, _ := outer.Get(0, "x")
	if outerVal.(*DoubleVector).Data[0] != 1 {
		t.Fatalf("expected outer's binding to be unaffected by inner's assignment")
	}
}

func TestEnvironmentGetUnbound(t *testing.T) {
	c := newCollector()
	env := NewEnvironment(c, nil)
	if _, err := env.Get(0, "missing"); err == nil {
		t.Fatalf("expected a lookup error for an unbound symbol")
	}
}

// TestFunctionCloseOnlyOnce asserts Close's documented invariant: closing
// an already-closed record panics rather than silently rebinding it.
func TestFunctionCloseOnlyOnce(t *testing.T) {
	c := newCollector()
	tmpl := NewFunctionTemplate(c, 0, nil, func(env *Environment, args []Value) (Value, error) {
		return nil, nil
	}, nil)
	env := NewEnvironment(c, nil)
	closed := tmpl.Close(c, env)
	if closed.Env != env {
		t.Fatalf("expected closed record's Env to be the environment it closed over")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic closing an already-closed record")
		}
	}()
	closed.Close(c, env)
}

func TestTypeName(t *testing.T) {
	c := newCollector()
	dv := NewDoubleVector(c, []float64{1})
	cv := NewCharacterVector(c, []byte("a"))
	if got := TypeName(dv); got != "double" {
		t.Fatalf("got %q, want %q", got, "double")
	}
	if got := TypeName(cv); got != "character" {
		t.Fatalf("got %q, want %q", got, "character")
	}
}
