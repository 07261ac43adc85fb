package runtime

import (
	"testing"

	"github.com/kr/pretty"

	"rift/internal/gc"
	"rift/internal/pool"
	"rift/internal/value"
)

func newRuntime() *Runtime {
	p := pool.New()
	c := gc.NewCollector(value.ChildrenOf)
	return New(c, p, nil)
}

func dv(rt *Runtime, data ...float64) *value.DoubleVector {
	return rt.DoubleVectorLiteral(data)
}

func cv(rt *Runtime, s string) *value.CharacterVector {
	idx := rt.Pool.Intern(s)
	return rt.CharacterVectorLiteral(idx)
}

func assertDoubleVector(t *testing.T, v value.Value, want []float64) {
	t.Helper()
	got, ok := v.(*value.DoubleVector)
	if !ok {
		t.Fatalf("expected *value.DoubleVector, got %T", v)
	}
	if diff := pretty.Diff(want, got.Data); len(diff) != 0 {
		t.Fatalf("double vector mismatch: %v", diff)
	}
}

// TestGenericArithmeticBroadcastTable covers property 1: |l op r| =
// max(|l|,|r|), with each operand recycling modulo its own length.
func TestGenericArithmeticBroadcastTable(t *testing.T) {
	rt := newRuntime()
	tests := []struct {
		name string
		a, b []float64
		want []float64
	}{
		{"equal length", []float64{1, 2, 3}, []float64{10, 20, 30}, []float64{11, 22, 33}},
		{"recycle shorter rhs", []float64{1, 2, 3}, []float64{1}, []float64{2, 3, 4}},
		{"recycle shorter lhs", []float64{1}, []float64{1, 2, 3}, []float64{2, 3, 4}},
		{"recycle modulo (uneven lengths)", []float64{1, 2, 3, 4}, []float64{10, 20, 30}, []float64{11, 22, 33, 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.GenericAdd(dv(rt, tt.a...), dv(rt, tt.b...))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertDoubleVector(t, got, tt.want)
		})
	}
}

func TestGenericAddRejectsMixedClasses(t *testing.T) {
	rt := newRuntime()
	if _, err := rt.GenericAdd(dv(rt, 1), cv(rt, "a")); err == nil {
		t.Fatalf("expected a type error mixing double and character operands")
	}
}

func TestCharacterConcatenation(t *testing.T) {
	rt := newRuntime()
	got, err := rt.GenericAdd(cv(rt, "foo"), cv(rt, "bar"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := got.(*value.CharacterVector)
	if !ok {
		t.Fatalf("expected *value.CharacterVector, got %T", got)
	}
	if string(c.Bytes) != "foobar" {
		t.Fatalf("got %q, want %q", string(c.Bytes), "foobar")
	}
}

// TestSameClassComparisonIsElementWise and TestCrossClassComparisonCollapses
// together cover property 2.
func TestSameClassComparisonIsElementWise(t *testing.T) {
	rt := newRuntime()
	got, err := rt.GenericEq(cv(rt, "aba"), cv(rt, "aca"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, got, []float64{1, 0, 1})
}

func TestCrossClassComparisonCollapsesToScalar(t *testing.T) {
	rt := newRuntime()
	eq, err := rt.GenericEq(dv(rt, 1), cv(rt, "a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, eq, []float64{0})

	neq, err := rt.GenericNeq(dv(rt, 1), cv(rt, "a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, neq, []float64{1})
}

// TestFunctionEqualityByEntry: two closures of the same template share a
// compiled entry and compare equal regardless of the environments they
// closed over; closures of different templates do not.
func TestFunctionEqualityByEntry(t *testing.T) {
	rt := newRuntime()
	entry := func(_ *value.Environment, _ []value.Value) (value.Value, error) { return nil, nil }
	tmplA := value.NewFunctionTemplate(rt.GC, 0, nil, entry, nil)
	tmplB := value.NewFunctionTemplate(rt.GC, 1, nil, entry, nil)

	f1 := rt.CreateFunction(tmplA, value.NewEnvironment(rt.GC, nil))
	f2 := rt.CreateFunction(tmplA, value.NewEnvironment(rt.GC, nil))
	g := rt.CreateFunction(tmplB, value.NewEnvironment(rt.GC, nil))

	eq, err := rt.GenericEq(f1, f2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, eq, []float64{1})

	neq, err := rt.GenericEq(f1, g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, neq, []float64{0})
}

func TestGenericIndexing(t *testing.T) {
	rt := newRuntime()
	v := dv(rt, 10, 20, 30)

	single, err := rt.GenericGetElement(v, dv(rt, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, single, []float64{10})

	gathered, err := rt.GenericGetElement(v, dv(rt, 2, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, gathered, []float64{30, 10})

	if _, err := rt.GenericGetElement(v, dv(rt, 10)); err == nil {
		t.Fatalf("expected a bounds error indexing past the vector's length")
	}
}

func TestGenericIndexAssignmentRecyclesValue(t *testing.T) {
	rt := newRuntime()
	v := dv(rt, 1, 2, 3)
	if err := rt.GenericSetElement(v, dv(rt, 0, 1), dv(rt, 56)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Data[0] != 56 || v.Data[1] != 56 || v.Data[2] != 3 {
		t.Fatalf("got %v, want [56 56 3]", v.Data)
	}
}

func TestCharacterIndexing(t *testing.T) {
	rt := newRuntime()
	s := cv(rt, "hello")
	got, err := rt.GenericGetElement(s, dv(rt, 1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := got.(*value.CharacterVector)
	if !ok {
		t.Fatalf("expected *value.CharacterVector, got %T", got)
	}
	if string(c.Bytes) != "eh" {
		t.Fatalf("got %q, want %q", string(c.Bytes), "eh")
	}
}

func TestGenericC(t *testing.T) {
	rt := newRuntime()
	got, err := rt.GenericC([]value.Value{dv(rt, 1, 2), dv(rt, 3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, got, []float64{1, 2, 3})

	if _, err := rt.GenericC([]value.Value{dv(rt, 1), cv(rt, "a")}); err == nil {
		t.Fatalf("expected an error mixing classes in c()")
	}

	empty, err := rt.GenericC(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, empty, nil)
}

func TestGenericLengthRejectsFunctions(t *testing.T) {
	rt := newRuntime()
	if _, err := rt.GenericLength(dv(rt, 1, 2, 3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := value.NewFunctionTemplate(rt.GC, 0, nil, func(env *value.Environment, args []value.Value) (value.Value, error) {
		return nil, nil
	}, nil)
	if _, err := rt.GenericLength(fn); err == nil {
		t.Fatalf("expected length() to reject a function")
	}
}

func TestGenericType(t *testing.T) {
	rt := newRuntime()
	got := rt.GenericType(dv(rt, 1))
	c, ok := got.(*value.CharacterVector)
	if !ok {
		t.Fatalf("expected *value.CharacterVector, got %T", got)
	}
	if string(c.Bytes) != "double" {
		t.Fatalf("got %q, want %q", string(c.Bytes), "double")
	}
}

func TestGenericEvalRequiresCharacterVector(t *testing.T) {
	rt := newRuntime()
	env := value.NewEnvironment(rt.GC, nil)
	if _, err := rt.GenericEval(env, dv(rt, 1)); err == nil {
		t.Fatalf("expected eval() to reject a non-character argument")
	}
}

// TestGenericEvalDelegatesToEvalHook: eval hands the hook both the source
// text and the calling frame's environment, so eval'd code runs in the
// caller's scope.
func TestGenericEvalDelegatesToEvalHook(t *testing.T) {
	p := pool.New()
	c := gc.NewCollector(value.ChildrenOf)
	var calledWith string
	var calledEnv *value.Environment
	rt := New(c, p, func(rt *Runtime, env *value.Environment, source string) (value.Value, error) {
		calledWith = source
		calledEnv = env
		return rt.DoubleVectorLiteral([]float64{42}), nil
	})
	env := value.NewEnvironment(rt.GC, nil)
	got, err := rt.GenericEval(env, cv(rt, "1+1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calledWith != "1+1" {
		t.Fatalf("got source %q, want %q", calledWith, "1+1")
	}
	if calledEnv != env {
		t.Fatalf("expected the hook to receive the caller's environment")
	}
	assertDoubleVector(t, got, []float64{42})
}

func TestCallArityAndClosureEnvironment(t *testing.T) {
	rt := newRuntime()
	paramIdx := rt.Pool.Intern("x")
	params := value.NewFunctionArgs(rt.GC, []int{paramIdx})
	tmpl := value.NewFunctionTemplate(rt.GC, 0, params, func(env *value.Environment, args []value.Value) (value.Value, error) {
		return env.Get(paramIdx, "x")
	}, nil)
	closure := rt.CreateFunction(tmpl, value.NewEnvironment(rt.GC, nil))

	got, err := rt.Call(closure, []value.Value{dv(rt, 7)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDoubleVector(t, got, []float64{7})

	if _, err := rt.Call(closure, nil); err == nil {
		t.Fatalf("expected an arity error calling with 0 args for a 1-arg function")
	}
}

func TestToBoolean(t *testing.T) {
	rt := newRuntime()
	tests := []struct {
		data []float64
		want bool
	}{
		{[]float64{0}, false},
		{[]float64{1}, true},
		{[]float64{-5}, true},
		// Truthiness only consults the first element; a multi-element
		// vector is true or false exactly like its length-1 counterpart
		// with the same leading value.
		{[]float64{0, 1}, false},
		{[]float64{1, 0}, true},
	}
	for _, tt := range tests {
		got, err := rt.ToBoolean(dv(rt, tt.data...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Fatalf("ToBoolean(%v) = %v, want %v", tt.data, got, tt.want)
		}
	}
	if _, err := rt.ToBoolean(dv(rt)); err != nil {
		t.Fatalf("unexpected error converting an empty vector to boolean: %v", err)
	}
	if got, _ := rt.ToBoolean(dv(rt)); got {
		t.Fatalf("expected an empty vector to be falsy")
	}
	fn := value.NewFunctionTemplate(rt.GC, 0, nil, func(_ *value.Environment, _ []value.Value) (value.Value, error) {
		return nil, nil
	}, nil).Close(rt.GC, value.NewEnvironment(rt.GC, nil))
	if got, err := rt.ToBoolean(fn); err != nil || !got {
		t.Fatalf("expected a function to always be truthy, got (%v, %v)", got, err)
	}
}
