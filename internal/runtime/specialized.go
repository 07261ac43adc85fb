package runtime

import "rift/internal/errors"
import "rift/internal/value"

// This file implements the specialized intrinsics: the monomorphic entry
// points internal/specialize rewrites generic calls to once both operands'
// class is proven. Each has a fixed, narrower contract than its generic
// counterpart — callers (the backend's closure interpreter) are only ever
// allowed to reach these once internal/analysis has already checked the
// precondition, so these do not re-check class, only bounds.

func (rt *Runtime) DoubleAdd(a, b *value.DoubleVector) (value.Value, error) {
	return rt.genericDoubleArith(a, b, func(x, y float64) float64 { return x + y })
}

func (rt *Runtime) DoubleSub(a, b *value.DoubleVector) (value.Value, error) {
	return rt.genericDoubleArith(a, b, func(x, y float64) float64 { return x - y })
}

func (rt *Runtime) DoubleMul(a, b *value.DoubleVector) (value.Value, error) {
	return rt.genericDoubleArith(a, b, func(x, y float64) float64 { return x * y })
}

func (rt *Runtime) DoubleDiv(a, b *value.DoubleVector) (value.Value, error) {
	return rt.genericDoubleArith(a, b, func(x, y float64) float64 { return x / y })
}

type doubleCmp func(x, y float64) bool

// doubleCompare is element-wise with the same broadcast as arithmetic: the
// result is a vector of 0/1s at the longer operand's length, not a single
// collapsed scalar — same-class comparisons only fold to a scalar when both
// operands are themselves length 1.
func (rt *Runtime) doubleCompare(a, b *value.DoubleVector, cmp doubleCmp) (value.Value, error) {
	n, err := broadcastLen(a.Len(), b.Len())
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if cmp(a.Data[recycle(i, a.Len())], b.Data[recycle(i, b.Len())]) {
			out[i] = 1
		}
	}
	return rt.DoubleVectorLiteral(out), nil
}

func (rt *Runtime) DoubleEq(a, b *value.DoubleVector) (value.Value, error) {
	return rt.doubleCompare(a, b, func(x, y float64) bool { return x == y })
}

func (rt *Runtime) DoubleNeq(a, b *value.DoubleVector) (value.Value, error) {
	return rt.doubleCompare(a, b, func(x, y float64) bool { return x != y })
}

func (rt *Runtime) DoubleLt(a, b *value.DoubleVector) (value.Value, error) {
	return rt.doubleCompare(a, b, func(x, y float64) bool { return x < y })
}

func (rt *Runtime) DoubleGt(a, b *value.DoubleVector) (value.Value, error) {
	return rt.doubleCompare(a, b, func(x, y float64) bool { return x > y })
}

// ScalarFromVector is an unchecked narrowing used only where analysis has
// already proven length 1.
func (rt *Runtime) ScalarFromVector(v *value.DoubleVector) float64 {
	return v.Data[0]
}

// DoubleGetSingleElement is the unboxed fast path used once analysis
// proves the index is a scalar: a single 0-based bounds-checked lookup
// returning the raw double. The unboxing rewrite boxes the result back
// itself, via the rebox form of doubleVectorLiteral.
func (rt *Runtime) DoubleGetSingleElement(v *value.DoubleVector, i int) (float64, error) {
	if i < 0 || i >= v.Len() {
		return 0, errors.NewBoundsError(i, v.Len())
	}
	return v.Data[i], nil
}

// DoubleGetElement indexes with a full index vector, 0-based: the result
// has one element per index element, gathered from v.
func (rt *Runtime) DoubleGetElement(v *value.DoubleVector, idx *value.DoubleVector) (value.Value, error) {
	out := make([]float64, idx.Len())
	for k, f := range idx.Data {
		i := int(f)
		if i < 0 || i >= v.Len() {
			return nil, errors.NewBoundsError(i, v.Len())
		}
		out[k] = v.Data[i]
	}
	return rt.DoubleVectorLiteral(out), nil
}

func (rt *Runtime) CharacterGetElement(v *value.CharacterVector, idx *value.DoubleVector) (value.Value, error) {
	out := make([]byte, idx.Len())
	for k, f := range idx.Data {
		i := int(f)
		if i < 0 || i >= v.Len() {
			return nil, errors.NewBoundsError(i, v.Len())
		}
		out[k] = v.Bytes[i]
	}
	return rt.characterVectorFromBytes(out), nil
}

// DoubleSetElement assigns with a full index vector, 0-based: val recycles
// modulo its own length across the index positions.
func (rt *Runtime) DoubleSetElement(v *value.DoubleVector, idx, val *value.DoubleVector) error {
	for k, f := range idx.Data {
		i := int(f)
		if i < 0 || i >= v.Len() {
			return errors.NewBoundsError(i, v.Len())
		}
		v.Data[i] = val.Data[recycle(k, val.Len())]
	}
	return nil
}

// ScalarSetElement is the length-1 fast path used when analysis proves the
// index is a scalar.
func (rt *Runtime) ScalarSetElement(v *value.DoubleVector, idx float64, x float64) error {
	i := int(idx)
	if i < 0 || i >= v.Len() {
		return errors.NewBoundsError(i, v.Len())
	}
	v.Data[i] = x
	return nil
}

func (rt *Runtime) CharacterSetElement(v *value.CharacterVector, idx *value.DoubleVector, val *value.CharacterVector) error {
	for k, f := range idx.Data {
		i := int(f)
		if i < 0 || i >= v.Len() {
			return errors.NewBoundsError(i, v.Len())
		}
		v.Bytes[i] = val.Bytes[recycle(k, val.Len())]
	}
	return nil
}

// CharacterAdd concatenates: the result length is the sum of the two
// operand lengths, not a broadcast length. "foo" + "bar" is the
// 6-character "foobar", never a 3-character recycle of one operand.
func (rt *Runtime) CharacterAdd(a, b *value.CharacterVector) (value.Value, error) {
	out := make([]byte, 0, a.Len()+b.Len())
	out = append(out, a.Bytes...)
	out = append(out, b.Bytes...)
	return rt.characterVectorFromBytes(out), nil
}

// CharacterEq is element-wise with the same broadcast as doubleCompare,
// comparing individual characters.
func (rt *Runtime) CharacterEq(a, b *value.CharacterVector) (value.Value, error) {
	n, err := broadcastLen(a.Len(), b.Len())
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if a.Bytes[recycle(i, a.Len())] == b.Bytes[recycle(i, b.Len())] {
			out[i] = 1
		}
	}
	return rt.DoubleVectorLiteral(out), nil
}

// CharacterNeq computes the SAME element-wise equality CharacterEq does,
// rather than negating it. This reproduces a known bug rather than
// silently fixing it.
func (rt *Runtime) CharacterNeq(a, b *value.CharacterVector) (value.Value, error) {
	return rt.CharacterEq(a, b)
}

func (rt *Runtime) DoubleC(vs []*value.DoubleVector) (value.Value, error) {
	total := 0
	for _, v := range vs {
		total += v.Len()
	}
	out := make([]float64, 0, total)
	for _, v := range vs {
		out = append(out, v.Data...)
	}
	return rt.DoubleVectorLiteral(out), nil
}

func (rt *Runtime) CharacterC(vs []*value.CharacterVector) (value.Value, error) {
	total := 0
	for _, v := range vs {
		total += v.Len()
	}
	out := make([]byte, 0, total)
	for _, v := range vs {
		out = append(out, v.Bytes...)
	}
	return rt.characterVectorFromBytes(out), nil
}
